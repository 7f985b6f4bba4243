package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/pustakbazzar/pustak-backend/pkg/config"
	"github.com/pustakbazzar/pustak-backend/pkg/db/models"
	"github.com/pustakbazzar/pustak-backend/pkg/enums"
	pkgerrors "github.com/pustakbazzar/pustak-backend/pkg/errors"
)

type stripeCheckoutAPI interface {
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error)
}

// StripeGateway opens hosted checkout sessions. Outcomes normally arrive by
// webhook; Verify is the fallback lookup.
type StripeGateway struct {
	api        stripeCheckoutAPI
	successURL string
	cancelURL  string
}

func NewStripeGateway(api stripeCheckoutAPI, cfg config.CheckoutConfig) (*StripeGateway, error) {
	if api == nil {
		return nil, fmt.Errorf("stripe client required")
	}
	if cfg.SuccessURL == "" || cfg.CancelURL == "" {
		return nil, fmt.Errorf("stripe success and cancel urls required")
	}
	return &StripeGateway{api: api, successURL: cfg.SuccessURL, cancelURL: cfg.CancelURL}, nil
}

func (g *StripeGateway) Method() enums.PaymentMethod {
	return enums.PaymentMethodStripe
}

// ValidateAmount rejects zero-amount sessions, which Stripe refuses.
func (g *StripeGateway) ValidateAmount(amountCents int64) error {
	if amountCents <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe payments need a positive amount").
			WithDetails(map[string]any{"amount": FormatAmount(amountCents)})
	}
	return nil
}

func (g *StripeGateway) Initiate(ctx context.Context, order *models.Order) (*Initiation, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	if err := g.ValidateAmount(order.NetTotalCents); err != nil {
		return nil, err
	}
	params := SessionParams(order, g.successURL, g.cancelURL)
	sess, err := g.api.CreateCheckoutSession(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stripe checkout session")
	}
	raw, _ := json.Marshal(map[string]any{"id": sess.ID, "url": sess.URL, "amount_total": sess.AmountTotal})
	redirect := sess.URL
	return &Initiation{Reference: sess.ID, RedirectURL: &redirect, Raw: raw}, nil
}

func (g *StripeGateway) Verify(ctx context.Context, reference string) (*Verification, error) {
	sess, err := g.api.GetCheckoutSession(ctx, reference)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retrieve stripe checkout session")
	}
	return SessionVerification(sess, SessionOutcome(sess)), nil
}

// SessionParams builds the checkout session for an order: one line per book
// plus shipping. Sessions take no negative line items, so a discounted order
// is charged as a single line at its net total.
func SessionParams(order *models.Order, successURL, cancelURL string) *stripe.CheckoutSessionParams {
	currency := strings.ToLower(order.Currency)
	line := func(name string, unit int64, qty int64) *stripe.CheckoutSessionLineItemParams {
		return &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(unit),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(name),
				},
			},
			Quantity: stripe.Int64(qty),
		}
	}

	var items []*stripe.CheckoutSessionLineItemParams
	if order.DiscountCents > 0 {
		items = append(items, line("Order "+order.ID.String(), order.NetTotalCents, 1))
	} else {
		for _, sub := range order.SubOrders {
			for _, l := range sub.Lines {
				items = append(items, line(l.Title, l.UnitPriceCents, int64(l.Quantity)))
			}
		}
		if order.ShippingFeeCents > 0 {
			items = append(items, line("Shipping", order.ShippingFeeCents, 1))
		}
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:         items,
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(order.ID.String()),
	}
	params.AddMetadata("order_id", order.ID.String())
	return params
}

// SessionOutcome maps a retrieved session to a verification status.
func SessionOutcome(sess *stripe.CheckoutSession) VerificationStatus {
	switch {
	case sess == nil:
		return VerificationPending
	case sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		return VerificationPaid
	case sess.Status == stripe.CheckoutSessionStatusExpired:
		return VerificationCancelled
	default:
		return VerificationPending
	}
}

// SessionVerification converts a session into a verification with the given
// outcome. Webhook handlers pass the outcome implied by the event type.
func SessionVerification(sess *stripe.CheckoutSession, status VerificationStatus) *Verification {
	v := &Verification{Status: status}
	if sess == nil {
		return v
	}
	v.Reference = sess.ID
	v.AmountCents = sess.AmountTotal
	v.OrderID = sessionOrderID(sess)
	v.Raw, _ = json.Marshal(map[string]any{
		"id":             sess.ID,
		"status":         sess.Status,
		"payment_status": sess.PaymentStatus,
		"amount_total":   sess.AmountTotal,
		"order_id":       v.OrderID,
	})
	return v
}

func sessionOrderID(sess *stripe.CheckoutSession) uuid.UUID {
	if raw, ok := sess.Metadata["order_id"]; ok {
		if id, err := uuid.Parse(raw); err == nil {
			return id
		}
	}
	if id, err := uuid.Parse(sess.ClientReferenceID); err == nil {
		return id
	}
	return uuid.Nil
}
