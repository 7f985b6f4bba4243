// Package settlement turns gateway verifications into durable payment state:
// transaction resolution, order payment status, platform earnings and seller
// balances, all in one database transaction.
package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/pustakbazzar/pustak-backend/internal/orders"
	"github.com/pustakbazzar/pustak-backend/internal/payments"
	"github.com/pustakbazzar/pustak-backend/pkg/db/models"
	"github.com/pustakbazzar/pustak-backend/pkg/enums"
	pkgerrors "github.com/pustakbazzar/pustak-backend/pkg/errors"
	"github.com/pustakbazzar/pustak-backend/pkg/logger"
	"github.com/pustakbazzar/pustak-backend/pkg/metrics"
)

// Outcome reports the payment state after a settlement attempt.
type Outcome struct {
	Reference         string                      `json:"gateway_reference"`
	OrderID           uuid.UUID                   `json:"order_id"`
	Status            payments.VerificationStatus `json:"status"`
	TransactionStatus enums.TransactionStatus     `json:"transaction_status"`
	PaymentStatus     enums.PaymentStatus         `json:"payment_status"`
	OrderStatus       enums.OrderStatus           `json:"order_status"`
	// Replayed is true when the attempt had already been resolved and
	// nothing was written.
	Replayed bool `json:"replayed"`
	// RefundRequired marks a payment that arrived after a seller rejection.
	RefundRequired bool `json:"refund_required,omitempty"`
}

// Service settles verified payments.
type Service interface {
	Settle(ctx context.Context, v *payments.Verification) (*Outcome, error)
	VerifyAndSettle(ctx context.Context, buyerID uuid.UUID, reference string) (*Outcome, error)
	CollectCredit(ctx context.Context, adminID uuid.UUID, reference string) (*Outcome, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type earningsRecorder interface {
	RecordSettlement(ctx context.Context, tx *gorm.DB, txn *models.Transaction, order *models.Order, at time.Time) ([]models.PlatformEarning, error)
	HasEarnings(ctx context.Context, transactionID uuid.UUID) (bool, error)
}

type paymentNotifier interface {
	PaymentConfirmed(ctx context.Context, tx *gorm.DB, order *models.Order, txn *models.Transaction, paidAt time.Time) error
}

type bookAvailability interface {
	ReserveForSale(ctx context.Context, orderID uuid.UUID, ids []uuid.UUID) error
}

type gatewayLookup interface {
	Get(method enums.PaymentMethod) (payments.Gateway, error)
}

// ServiceParams groups the reconciler's collaborators.
type ServiceParams struct {
	Transactions  payments.Repository
	Orders        orders.Repository
	Ledger        earningsRecorder
	Notifier      paymentNotifier
	Books         bookAvailability
	Gateways      gatewayLookup
	TxRunner      txRunner
	Metrics       *metrics.PaymentMetrics
	Logger        *logger.Logger
	VerifyTimeout time.Duration
}

type service struct {
	txns          payments.Repository
	orders        orders.Repository
	ledger        earningsRecorder
	notifier      paymentNotifier
	books         bookAvailability
	gateways      gatewayLookup
	tx            txRunner
	metrics       *metrics.PaymentMetrics
	logg          *logger.Logger
	verifyTimeout time.Duration
	now           func() time.Time
}

// NewService builds the settlement reconciler.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Transactions == nil:
		return nil, fmt.Errorf("transactions repository required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger required")
	case params.Notifier == nil:
		return nil, fmt.Errorf("payment notifier required")
	case params.Books == nil:
		return nil, fmt.Errorf("book availability required")
	case params.Gateways == nil:
		return nil, fmt.Errorf("gateway registry required")
	case params.TxRunner == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	timeout := params.VerifyTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &service{
		txns:          params.Transactions,
		orders:        params.Orders,
		ledger:        params.Ledger,
		notifier:      params.Notifier,
		books:         params.Books,
		gateways:      params.Gateways,
		tx:            params.TxRunner,
		metrics:       params.Metrics,
		logg:          params.Logger,
		verifyTimeout: timeout,
		now:           time.Now,
	}, nil
}

// Settle applies a verification exactly once per transaction. Repeats and
// stale verifications return the recorded outcome without side effects.
func (s *service) Settle(ctx context.Context, v *payments.Verification) (*Outcome, error) {
	if v == nil || v.Reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway reference is required")
	}
	ctx = s.logg.WithField(ctx, "gateway_reference", v.Reference)

	if v.Status == payments.VerificationPending {
		txn, err := s.loadTransaction(ctx, s.txns, v.Reference, false)
		if err != nil {
			return nil, err
		}
		order, err := s.orders.FindByID(ctx, txn.OrderID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if txn.Status.IsTerminal() {
			out := outcomeFor(txn, order, resolvedStatus(txn))
			out.Replayed = true
			return out, nil
		}
		return outcomeFor(txn, order, v.Status), nil
	}
	if v.Status != payments.VerificationPaid && v.Status != payments.VerificationCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown verification status").
			WithDetails(map[string]any{"status": v.Status})
	}

	var (
		out        *Outcome
		method     enums.PaymentMethod
		reinstated *models.Order
		audit      uuid.UUID
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txnRepo := s.txns.WithTx(tx)
		orderRepo := s.orders.WithTx(tx)

		txn, err := s.loadTransaction(ctx, txnRepo, v.Reference, true)
		if err != nil {
			return err
		}
		method = txn.PaymentMethod
		order, err := orderRepo.FindByIDForUpdate(ctx, txn.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order == nil {
			return s.integrityFailure(ctx, txn, v, "transaction order missing")
		}

		if txn.Status.IsTerminal() {
			out = outcomeFor(txn, order, resolvedStatus(txn))
			out.Replayed = true
			if txn.Status == enums.TransactionStatusCompleted && order.OrderStatus != enums.OrderStatusCancelledBySeller {
				audit = txn.ID
			}
			return nil
		}

		if v.OrderID != uuid.Nil && v.OrderID != txn.OrderID {
			return s.integrityFailure(ctx, txn, v, "verification order does not match transaction")
		}
		if txn.AmountCents != order.NetTotalCents {
			return s.integrityFailure(ctx, txn, v, "transaction amount does not match order total")
		}

		at := s.now().UTC()
		if v.Status == payments.VerificationCancelled {
			ok, err := txnRepo.Resolve(ctx, txn.ID, enums.TransactionStatusFailed, v.Raw, at)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve transaction")
			}
			if ok {
				txn.Status = enums.TransactionStatusFailed
			}
			out = outcomeFor(txn, order, v.Status)
			out.Replayed = !ok
			return nil
		}

		if v.AmountCents != txn.AmountCents {
			return s.integrityFailure(ctx, txn, v, "verified amount does not match transaction")
		}

		ok, err := txnRepo.Resolve(ctx, txn.ID, enums.TransactionStatusCompleted, v.Raw, at)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve transaction")
		}
		if !ok {
			out = outcomeFor(txn, order, v.Status)
			out.Replayed = true
			return nil
		}
		txn.Status = enums.TransactionStatusCompleted

		nextStatus := order.OrderStatus
		refundRequired := false
		switch order.OrderStatus {
		case enums.OrderStatusCancelled:
			// payment beats a buyer or admin cancellation
			nextStatus = orders.DeriveOrderStatus(order.SubOrderStatuses())
			reinstated = order
		case enums.OrderStatusCancelledBySeller:
			refundRequired = true
		}

		paid, err := orderRepo.MarkPaid(ctx, order.ID, nextStatus, at)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
		}
		if !paid {
			return s.integrityFailure(ctx, txn, v, "order already paid by another transaction")
		}
		order.PaymentStatus = enums.PaymentStatusPaid
		order.OrderStatus = nextStatus
		order.PaidAt = &at

		if refundRequired {
			s.logg.Error(s.logg.WithFields(ctx, map[string]any{
				"order_id":     order.ID.String(),
				"amount_cents": txn.AmountCents,
			}), "payment settled on a seller-cancelled order, buyer refund required", fmt.Errorf("refund required"))
		} else {
			if _, err := s.ledger.RecordSettlement(ctx, tx, txn, order, at); err != nil {
				return err
			}
			if err := s.notifier.PaymentConfirmed(ctx, tx, order, txn, at); err != nil {
				return err
			}
		}

		out = outcomeFor(txn, order, v.Status)
		out.RefundRequired = refundRequired
		return nil
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeIntegrity {
			s.metrics.IncIntegrityFailure(string(method))
		}
		return nil, err
	}

	switch {
	case out.Replayed:
		s.metrics.IncSettlement(string(method), "replayed")
		if audit != uuid.Nil {
			s.auditLedger(ctx, method, audit)
		}
	default:
		s.metrics.IncSettlement(string(method), string(v.Status))
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"order_id":           out.OrderID.String(),
			"transaction_status": string(out.TransactionStatus),
		}), "payment settled")
	}
	if reinstated != nil {
		s.logg.Warn(s.logg.WithOrderID(ctx, reinstated.ID.String()), "paid order reinstated after cancellation")
		s.markSold(ctx, reinstated)
	}
	return out, nil
}

// VerifyAndSettle backs the buyer-facing verify call for poll-based gateways.
func (s *service) VerifyAndSettle(ctx context.Context, buyerID uuid.UUID, reference string) (*Outcome, error) {
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway reference is required")
	}
	txn, err := s.loadTransaction(ctx, s.txns, reference, false)
	if err != nil {
		return nil, err
	}
	if txn.BuyerID != buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment belongs to another buyer")
	}
	if txn.Status.IsTerminal() {
		order, err := s.orders.FindByID(ctx, txn.OrderID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		out := outcomeFor(txn, order, resolvedStatus(txn))
		out.Replayed = true
		return out, nil
	}

	gateway, err := s.gateways.Get(txn.PaymentMethod)
	if err != nil {
		return nil, err
	}
	verifyCtx, cancel := context.WithTimeout(ctx, s.verifyTimeout)
	defer cancel()
	v, err := gateway.Verify(verifyCtx, reference)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "payment verification failed").
			WithDetails(map[string]any{"order_id": txn.OrderID, "gateway_reference": reference})
	}
	if v.Reference == "" {
		v.Reference = reference
	}
	return s.Settle(ctx, v)
}

// CollectCredit confirms that a credit order was paid outside any gateway.
func (s *service) CollectCredit(ctx context.Context, adminID uuid.UUID, reference string) (*Outcome, error) {
	txn, err := s.loadTransaction(ctx, s.txns, reference, false)
	if err != nil {
		return nil, err
	}
	if txn.PaymentMethod != enums.PaymentMethodCredit {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "only credit payments can be collected manually").
			WithDetails(map[string]any{"payment_method": txn.PaymentMethod})
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"admin_id":          adminID.String(),
		"gateway_reference": reference,
	}), "credit payment collected")
	return s.Settle(ctx, &payments.Verification{
		Reference:   reference,
		Status:      payments.VerificationPaid,
		AmountCents: txn.AmountCents,
		OrderID:     txn.OrderID,
	})
}

func (s *service) loadTransaction(ctx context.Context, repo payments.Repository, reference string, lock bool) (*models.Transaction, error) {
	var (
		txn *models.Transaction
		err error
	)
	if lock {
		txn, err = repo.FindByReferenceForUpdate(ctx, reference)
	} else {
		txn, err = repo.FindByReference(ctx, reference)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	if txn == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found").
			WithDetails(map[string]any{"gateway_reference": reference})
	}
	return txn, nil
}

// integrityFailure logs the full gateway detail and returns an error whose
// details never reach the caller.
func (s *service) integrityFailure(ctx context.Context, txn *models.Transaction, v *payments.Verification, reason string) error {
	err := pkgerrors.New(pkgerrors.CodeIntegrity, reason)
	s.logg.Error(s.logg.WithFields(ctx, map[string]any{
		"transaction_id":      txn.ID.String(),
		"order_id":            txn.OrderID.String(),
		"expected_amount":     txn.AmountCents,
		"verified_amount":     v.AmountCents,
		"verified_order_id":   v.OrderID.String(),
		"verification_status": string(v.Status),
		"gateway_payload":     string(v.Raw),
	}), "settlement integrity check failed", err)
	return err
}

// auditLedger flags a completed payment whose earnings never reached the
// ledger. Replays are the only time a settled transaction is looked at again.
func (s *service) auditLedger(ctx context.Context, method enums.PaymentMethod, txnID uuid.UUID) {
	ctx = s.logg.WithField(ctx, "transaction_id", txnID.String())
	has, err := s.ledger.HasEarnings(ctx, txnID)
	if err != nil {
		s.logg.Warn(ctx, "ledger audit skipped: "+err.Error())
		return
	}
	if !has {
		s.metrics.IncIntegrityFailure(string(method))
		s.logg.Error(ctx, "completed payment has no ledger entries", fmt.Errorf("ledger entries missing"))
	}
}

// markSold re-reserves each book of a reinstated order. A book bought by
// someone else in the meantime stays with that buyer and is reported.
func (s *service) markSold(ctx context.Context, order *models.Order) {
	var errs error
	for _, bookID := range order.BookIDs() {
		if err := s.books.ReserveForSale(ctx, order.ID, []uuid.UUID{bookID}); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("book %s: %w", bookID, err))
		}
	}
	if errs != nil {
		s.logg.Error(ctx, "reserve books for reinstated order", errs)
	}
}

func resolvedStatus(txn *models.Transaction) payments.VerificationStatus {
	switch txn.Status {
	case enums.TransactionStatusCompleted:
		return payments.VerificationPaid
	case enums.TransactionStatusFailed:
		return payments.VerificationCancelled
	default:
		return payments.VerificationPending
	}
}

func outcomeFor(txn *models.Transaction, order *models.Order, status payments.VerificationStatus) *Outcome {
	out := &Outcome{
		Reference:         txn.GatewayReference,
		OrderID:           txn.OrderID,
		Status:            status,
		TransactionStatus: txn.Status,
	}
	if order != nil {
		out.PaymentStatus = order.PaymentStatus
		out.OrderStatus = order.OrderStatus
	}
	return out
}
