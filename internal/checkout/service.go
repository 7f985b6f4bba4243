// Package checkout turns a buyer's cart into an order and starts payment.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pustakbazzar/pustak-backend/internal/books"
	"github.com/pustakbazzar/pustak-backend/internal/cart"
	"github.com/pustakbazzar/pustak-backend/internal/checkout/helpers"
	"github.com/pustakbazzar/pustak-backend/internal/orders"
	"github.com/pustakbazzar/pustak-backend/internal/payments"
	"github.com/pustakbazzar/pustak-backend/internal/pricing"
	"github.com/pustakbazzar/pustak-backend/pkg/config"
	"github.com/pustakbazzar/pustak-backend/pkg/db/models"
	"github.com/pustakbazzar/pustak-backend/pkg/enums"
	pkgerrors "github.com/pustakbazzar/pustak-backend/pkg/errors"
	"github.com/pustakbazzar/pustak-backend/pkg/logger"
	"github.com/pustakbazzar/pustak-backend/pkg/metrics"
	"github.com/pustakbazzar/pustak-backend/pkg/types"
)

const (
	lockScopeCheckout = "checkout"
	lockScopeRetry    = "checkout_retry"
)

// Service executes checkout orchestration.
type Service interface {
	Checkout(ctx context.Context, buyerID uuid.UUID, input Input) (*Result, error)
	RetryPayment(ctx context.Context, buyerID, orderID uuid.UUID) (*Result, error)
}

// Input captures what the buyer submits at checkout. A nil ShippingFeeCents
// falls back to the sum of the sellers' delivery prices.
type Input struct {
	PaymentMethod    enums.PaymentMethod
	ShippingFeeCents *int64
	DiscountCents    int64
	ShippingAddress  types.Address
}

// Payment describes the started payment attempt.
type Payment struct {
	Method      enums.PaymentMethod `json:"method"`
	Reference   string              `json:"gateway_reference"`
	RedirectURL *string             `json:"redirect_url,omitempty"`
}

// Result is the created order plus its payment attempt.
type Result struct {
	Order   orders.OrderDTO `json:"order"`
	Payment Payment         `json:"payment"`
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type locker interface {
	TryLock(ctx context.Context, scope, id string, ttl time.Duration) (func(context.Context) error, bool, error)
}

type gatewayLookup interface {
	Get(method enums.PaymentMethod) (payments.Gateway, error)
}

type orderNotifier interface {
	OrderCreated(ctx context.Context, tx *gorm.DB, order *models.Order) error
}

// ServiceParams groups the orchestrator's collaborators.
type ServiceParams struct {
	Carts        cart.Repository
	Orders       orders.Repository
	Transactions payments.Repository
	Books        books.Repository
	Gateways     gatewayLookup
	Pricing      *pricing.Calculator
	Notifier     orderNotifier
	Locker       locker
	TxRunner     txRunner
	Metrics      *metrics.PaymentMetrics
	Logger       *logger.Logger
	Config       config.CheckoutConfig
	Currency     string
}

type service struct {
	carts    cart.Repository
	orders   orders.Repository
	txns     payments.Repository
	books    books.Repository
	gateways gatewayLookup
	pricing  *pricing.Calculator
	notifier orderNotifier
	locker   locker
	tx       txRunner
	metrics  *metrics.PaymentMetrics
	logg     *logger.Logger
	cfg      config.CheckoutConfig
	currency string
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Carts == nil:
		return nil, fmt.Errorf("cart repository required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Transactions == nil:
		return nil, fmt.Errorf("transactions repository required")
	case params.Books == nil:
		return nil, fmt.Errorf("books repository required")
	case params.Gateways == nil:
		return nil, fmt.Errorf("gateway registry required")
	case params.Pricing == nil:
		return nil, fmt.Errorf("pricing calculator required")
	case params.Notifier == nil:
		return nil, fmt.Errorf("order notifier required")
	case params.Locker == nil:
		return nil, fmt.Errorf("locker required")
	case params.TxRunner == nil:
		return nil, fmt.Errorf("tx runner required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	cfg := params.Config
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	currency := params.Currency
	if currency == "" {
		currency = "NPR"
	}
	return &service{
		carts:    params.Carts,
		orders:   params.Orders,
		txns:     params.Transactions,
		books:    params.Books,
		gateways: params.Gateways,
		pricing:  params.Pricing,
		notifier: params.Notifier,
		locker:   params.Locker,
		tx:       params.TxRunner,
		metrics:  params.Metrics,
		logg:     params.Logger,
		cfg:      cfg,
		currency: currency,
	}, nil
}

// Checkout consumes the buyer's cart into a pending order, then starts a
// payment attempt. A failed initiation keeps the order so payment can be
// retried.
func (s *service) Checkout(ctx context.Context, buyerID uuid.UUID, input Input) (*Result, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	if err := helpers.ValidateShippingAddress(input.ShippingAddress); err != nil {
		return nil, err
	}
	gateway, err := s.gateways.Get(input.PaymentMethod)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"buyer_id":       buyerID.String(),
		"payment_method": input.PaymentMethod.String(),
	})

	release, err := s.lock(ctx, lockScopeCheckout, buyerID, "checkout already in progress")
	if err != nil {
		s.metrics.IncCheckout(input.PaymentMethod.String(), "conflict")
		return nil, err
	}
	defer release()

	var order *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		created, err := s.createOrder(ctx, tx, gateway, buyerID, input)
		if err != nil {
			return err
		}
		order = created
		return nil
	})
	if err != nil {
		s.metrics.IncCheckout(input.PaymentMethod.String(), outcomeLabel(err))
		return nil, err
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	s.logg.Info(ctx, "order created from cart")

	payment, err := s.initiate(ctx, gateway, order)
	if err != nil {
		s.metrics.IncCheckout(input.PaymentMethod.String(), "gateway_unavailable")
		return nil, err
	}
	s.metrics.IncCheckout(input.PaymentMethod.String(), "initiated")
	return &Result{Order: orders.NewOrderDTO(order, nil), Payment: *payment}, nil
}

// RetryPayment starts a fresh payment attempt for a payable order whose
// earlier attempts failed or never started.
func (s *service) RetryPayment(ctx context.Context, buyerID, orderID uuid.UUID) (*Result, error) {
	ctx = s.logg.WithOrderID(ctx, orderID.String())
	release, err := s.lock(ctx, lockScopeRetry, orderID, "payment retry already in progress")
	if err != nil {
		return nil, err
	}
	defer release()

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if order.BuyerID != buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to buyer")
	}
	if order.PaymentStatus != enums.PaymentStatusPending || !order.OrderStatus.BuyerCancellable() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment").
			WithDetails(map[string]any{
				"order_status":   order.OrderStatus,
				"payment_status": order.PaymentStatus,
			})
	}
	live, err := s.txns.HasLiveAttempt(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check payment attempts")
	}
	if live {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order already has an active payment attempt")
	}
	gateway, err := s.gateways.Get(order.PaymentMethod)
	if err != nil {
		return nil, err
	}
	if err := gateway.ValidateAmount(order.NetTotalCents); err != nil {
		return nil, err
	}

	payment, err := s.initiate(ctx, gateway, order)
	if err != nil {
		s.metrics.IncCheckout(order.PaymentMethod.String(), "retry_gateway_unavailable")
		return nil, err
	}
	s.metrics.IncCheckout(order.PaymentMethod.String(), "retry_initiated")
	return &Result{Order: orders.NewOrderDTO(order, nil), Payment: *payment}, nil
}

func (s *service) createOrder(ctx context.Context, tx *gorm.DB, gateway payments.Gateway, buyerID uuid.UUID, input Input) (*models.Order, error) {
	current, err := s.carts.WithTx(tx).FindByBuyer(ctx, buyerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if current.IsEmpty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty").
			WithDetails(map[string]any{"reason": "EmptyCart"})
	}

	orderID := uuid.New()
	subs, totals, err := helpers.BuildSubOrders(orderID, current.SellerGroups, s.pricing)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty").
			WithDetails(map[string]any{"reason": "EmptyCart"})
	}

	shipping := totals.DeliveryTotalCents
	if input.ShippingFeeCents != nil {
		shipping = *input.ShippingFeeCents
	}
	if err := helpers.ValidateAmounts(totals.TotalPriceCents, shipping, input.DiscountCents); err != nil {
		return nil, err
	}
	netTotal := pricing.NetTotal(totals.TotalPriceCents, shipping, input.DiscountCents)
	if err := gateway.ValidateAmount(netTotal); err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:               orderID,
		BuyerID:          buyerID,
		TotalPriceCents:  totals.TotalPriceCents,
		ShippingFeeCents: shipping,
		DiscountCents:    input.DiscountCents,
		NetTotalCents:    netTotal,
		Currency:         s.currency,
		OrderStatus:      enums.OrderStatusPending,
		PaymentStatus:    enums.PaymentStatusPending,
		PaymentMethod:    input.PaymentMethod,
		ShippingAddress:  input.ShippingAddress,
		SubOrders:        subs,
	}
	if err := s.orders.WithTx(tx).Create(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist order")
	}

	// Another buyer may have checked out the same book since it was carted.
	if err := s.books.WithTx(tx).ReserveForSale(ctx, order.ID, order.BookIDs()); err != nil {
		return nil, err
	}

	cleared, err := s.carts.WithTx(tx).ReplaceGroups(ctx, buyerID, current.Version, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	if !cleared {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "cart changed during checkout")
	}

	if err := s.notifier.OrderCreated(ctx, tx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order created")
	}
	return order, nil
}

// initiate calls the gateway outside any database transaction and records the
// attempt once the gateway has answered.
func (s *service) initiate(ctx context.Context, gateway payments.Gateway, order *models.Order) (*Payment, error) {
	gatewayCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	initiation, err := gateway.Initiate(gatewayCtx, order)
	if err == nil && (initiation == nil || initiation.Reference == "") {
		err = errors.New("gateway returned no reference")
	}
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeValidation {
			return nil, typed
		}
		s.logg.Error(ctx, "payment initiation failed", err)
		return nil, gatewayUnavailable(err, order)
	}

	txn := &models.Transaction{
		OrderID:           order.ID,
		BuyerID:           order.BuyerID,
		PaymentMethod:     order.PaymentMethod,
		AmountCents:       order.NetTotalCents,
		GatewayReference:  initiation.Reference,
		RedirectURL:       initiation.RedirectURL,
		Status:            enums.TransactionStatusInitiated,
		RawGatewayPayload: initiation.Raw,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.txns.WithTx(tx).Create(ctx, txn); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist transaction")
		}
		if err := s.orders.WithTx(tx).SetGatewayReference(ctx, order.ID, initiation.Reference); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store gateway reference")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	reference := initiation.Reference
	order.GatewayReference = &reference
	s.logg.Info(s.logg.WithField(ctx, "gateway_reference", reference), "payment initiated")
	return &Payment{
		Method:      order.PaymentMethod,
		Reference:   reference,
		RedirectURL: initiation.RedirectURL,
	}, nil
}

func (s *service) lock(ctx context.Context, scope string, id uuid.UUID, busy string) (func(), error) {
	release, ok, err := s.locker.TryLock(ctx, scope, id.String(), s.cfg.LockTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire checkout lock")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, busy)
	}
	return func() {
		// The caller's context may already be cancelled; release on a fresh one.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := release(releaseCtx); err != nil {
			s.logg.Warn(ctx, "release checkout lock: "+err.Error())
		}
	}, nil
}

func gatewayUnavailable(err error, order *models.Order) error {
	return pkgerrors.Wrap(pkgerrors.CodeGateway, err, "payment gateway unavailable").
		WithDetails(map[string]any{
			"order_id":       order.ID,
			"payment_method": order.PaymentMethod,
		})
}

func outcomeLabel(err error) string {
	if typed := pkgerrors.As(err); typed != nil {
		switch typed.Code() {
		case pkgerrors.CodeValidation:
			return "rejected"
		case pkgerrors.CodeConflict:
			return "conflict"
		}
	}
	return "error"
}
