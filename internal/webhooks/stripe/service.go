package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v84"

	"github.com/pustakbazzar/pustak-backend/internal/payments"
	"github.com/pustakbazzar/pustak-backend/internal/settlement"
	pkgerrors "github.com/pustakbazzar/pustak-backend/pkg/errors"
	"github.com/pustakbazzar/pustak-backend/pkg/logger"
)

type settler interface {
	Settle(ctx context.Context, v *payments.Verification) (*settlement.Outcome, error)
}

type ServiceParams struct {
	Settlement settler
	Logger     *logger.Logger
}

// Service turns Checkout Session events into settlement verifications.
type Service struct {
	settlement settler
	logg       *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Settlement == nil {
		return nil, fmt.Errorf("settlement service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{settlement: params.Settlement, logg: params.Logger}, nil
}

// HandleEvent settles the session carried by the event. Unrelated event
// types and sessions that are still awaiting an async payment are ignored.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	var status payments.VerificationStatus
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		// completed with an unpaid session means a delayed method is still processing
		status = ""
	case stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		status = payments.VerificationPaid
	case stripe.EventTypeCheckoutSessionExpired, stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		status = payments.VerificationCancelled
	default:
		return nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session event")
	}
	if sess.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout session id missing")
	}
	if status == "" {
		status = payments.SessionOutcome(&sess)
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"stripe_event_id":   event.ID,
		"stripe_event_type": string(event.Type),
		"gateway_reference": sess.ID,
	})
	if status == payments.VerificationPending {
		s.logg.Info(ctx, "stripe.session.awaiting_payment")
		return nil
	}

	outcome, err := s.settlement.Settle(ctx, payments.SessionVerification(&sess, status))
	if err != nil {
		if pkgerrors.As(err) != nil && pkgerrors.As(err).Code() == pkgerrors.CodeNotFound {
			// sessions opened outside checkout share the account
			s.logg.Warn(ctx, "stripe.session.unknown")
			return nil
		}
		return err
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"order_id": outcome.OrderID.String(),
		"status":   string(outcome.Status),
		"replayed": outcome.Replayed,
	})
	s.logg.Info(ctx, "stripe.session.settled")
	return nil
}
