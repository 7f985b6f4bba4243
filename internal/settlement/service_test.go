package settlement

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pustakbazzar/pustak-backend/internal/books"
	"github.com/pustakbazzar/pustak-backend/internal/ledger"
	"github.com/pustakbazzar/pustak-backend/internal/orders"
	"github.com/pustakbazzar/pustak-backend/internal/payments"
	"github.com/pustakbazzar/pustak-backend/pkg/db"
	"github.com/pustakbazzar/pustak-backend/pkg/db/dbtest"
	"github.com/pustakbazzar/pustak-backend/pkg/db/models"
	"github.com/pustakbazzar/pustak-backend/pkg/enums"
	pkgerrors "github.com/pustakbazzar/pustak-backend/pkg/errors"
	"github.com/pustakbazzar/pustak-backend/pkg/logger"
	"github.com/pustakbazzar/pustak-backend/pkg/metrics"
	"github.com/pustakbazzar/pustak-backend/pkg/types"
)

type recordingNotifier struct {
	confirmed int
}

func (n *recordingNotifier) PaymentConfirmed(ctx context.Context, tx *gorm.DB, order *models.Order, txn *models.Transaction, paidAt time.Time) error {
	n.confirmed++
	return nil
}

type stubGateway struct {
	method enums.PaymentMethod
	result *payments.Verification
	err    error
	calls  int
}

func (g *stubGateway) Method() enums.PaymentMethod { return g.method }

func (g *stubGateway) ValidateAmount(amountCents int64) error { return nil }

func (g *stubGateway) Initiate(ctx context.Context, order *models.Order) (*payments.Initiation, error) {
	return nil, errors.New("not used")
}

func (g *stubGateway) Verify(ctx context.Context, reference string) (*payments.Verification, error) {
	g.calls++
	return g.result, g.err
}

type fixture struct {
	conn     *gorm.DB
	svc      Service
	orders   orders.Repository
	txns     payments.Repository
	notifier *recordingNotifier
	gateway  *stubGateway
	order    *models.Order
	txn      *models.Transaction
	buyerID  uuid.UUID
	sellers  []uuid.UUID
	registry *prometheus.Registry
}

func newFixture(t *testing.T, method enums.PaymentMethod) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	f := &fixture{
		conn:     conn,
		orders:   orders.NewRepository(conn),
		txns:     payments.NewRepository(conn),
		notifier: &recordingNotifier{},
		gateway:  &stubGateway{method: enums.PaymentMethodKhalti},
		buyerID:  uuid.New(),
		registry: prometheus.NewRegistry(),
	}
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn))
	require.NoError(t, err)
	registry, err := payments.NewRegistry(f.gateway, payments.NewCreditGateway())
	require.NoError(t, err)

	f.svc, err = NewService(ServiceParams{
		Transactions: f.txns,
		Orders:       f.orders,
		Ledger:       ledgerSvc,
		Notifier:     f.notifier,
		Books:        books.NewRepository(conn),
		Gateways:     registry,
		TxRunner:     db.Wrap(conn),
		Metrics:      metrics.NewPaymentMetrics(f.registry),
		Logger:       logger.New(logger.Options{ServiceName: "settlement-test", Output: io.Discard}),
	})
	require.NoError(t, err)

	f.seed(t, method)
	return f
}

func (f *fixture) seed(t *testing.T, method enums.PaymentMethod) {
	t.Helper()
	ctx := context.Background()
	orderID := uuid.New()
	order := &models.Order{
		ID:               orderID,
		BuyerID:          f.buyerID,
		TotalPriceCents:  25000,
		ShippingFeeCents: 2000,
		NetTotalCents:    27000,
		Currency:         "NPR",
		OrderStatus:      enums.OrderStatusPending,
		PaymentStatus:    enums.PaymentStatusPending,
		PaymentMethod:    method,
		ShippingAddress:  types.Address{FullName: "Sita", Phone: "98", Line1: "Street", City: "Pokhara"},
	}
	for _, line := range []struct {
		price int64
		qty   int
	}{{10000, 2}, {5000, 1}} {
		seller := models.User{ID: uuid.New(), Email: uuid.NewString() + "@pustak.test", FullName: "Seller"}
		require.NoError(t, f.conn.Create(&seller).Error)
		f.sellers = append(f.sellers, seller.ID)

		book := models.Book{ID: uuid.New(), SellerID: seller.ID, Title: "Karnali Blues", SellingPriceCents: line.price, Status: enums.BookStatusSold, SoldOrderID: &orderID}
		require.NoError(t, f.conn.Create(&book).Error)

		gross := line.price * int64(line.qty)
		subID := uuid.New()
		order.SubOrders = append(order.SubOrders, models.SubOrder{
			ID:                 subID,
			OrderID:            orderID,
			SellerID:           seller.ID,
			DeliveryPriceCents: 1000,
			Status:             enums.SubOrderStatusPending,
			Lines: []models.OrderLine{{
				ID: uuid.New(), SubOrderID: subID, OrderID: orderID, BookID: book.ID, Title: book.Title,
				UnitPriceCents: line.price, Quantity: line.qty,
				PlatformFeeCents: gross / 10, SellerEarningsCents: gross - gross/10,
			}},
		})
	}
	require.NoError(t, f.orders.Create(ctx, order))
	f.order = order

	reference := "pidx-" + orderID.String()
	if method == enums.PaymentMethodCredit {
		reference = payments.CreditReference(order)
	}
	f.txn = &models.Transaction{
		OrderID:          orderID,
		BuyerID:          f.buyerID,
		PaymentMethod:    method,
		AmountCents:      27000,
		GatewayReference: reference,
		Status:           enums.TransactionStatusInitiated,
	}
	require.NoError(t, f.txns.Create(ctx, f.txn))
}

func (f *fixture) paid() *payments.Verification {
	return &payments.Verification{Reference: f.txn.GatewayReference, Status: payments.VerificationPaid, AmountCents: 27000}
}

func (f *fixture) balances(t *testing.T) []int64 {
	t.Helper()
	out := []int64{}
	for _, id := range f.sellers {
		var user models.User
		require.NoError(t, f.conn.First(&user, "id = ?", id).Error)
		out = append(out, user.BalanceCents)
	}
	return out
}

func (f *fixture) reload(t *testing.T) (*models.Order, *models.Transaction) {
	t.Helper()
	order, err := f.orders.FindByID(context.Background(), f.order.ID)
	require.NoError(t, err)
	txn, err := f.txns.FindByReference(context.Background(), f.txn.GatewayReference)
	require.NoError(t, err)
	return order, txn
}

func (f *fixture) earningRows(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.conn.Model(&models.PlatformEarning{}).Count(&count).Error)
	return count
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	assert.Equal(t, code, typed.Code())
}

func (f *fixture) integrityFailures(t *testing.T) float64 {
	t.Helper()
	families, err := f.registry.Gather()
	require.NoError(t, err)
	var total float64
	for _, family := range families {
		if family.GetName() != "settlement_integrity_failures_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestSettleReplayAuditsLedger(t *testing.T) {
	f := newFixture(t, enums.PaymentMethodKhalti)
	ctx := context.Background()

	_, err := f.svc.Settle(ctx, f.paid())
	require.NoError(t, err)
	_, err = f.svc.Settle(ctx, f.paid())
	require.NoError(t, err)
	assert.Zero(t, f.integrityFailures(t))

	require.NoError(t, f.conn.Where("transaction_id = ?", f.txn.ID).Delete(&models.PlatformEarning{}).Error)
	out, err := f.svc.Settle(ctx, f.paid())
	require.NoError(t, err)
	assert.True(t, out.Replayed)
	assert.Equal(t, float64(1), f.integrityFailures(t))
	assert.Zero(t, f.earningRows(t), "an audit never rewrites the ledger")
}

func TestSettlePaidCreditsSellersOnce(t *testing.T) {
	f := newFixture(t, enums.PaymentMethodKhalti)
	ctx := context.Background()

	out, err := f.svc.Settle(ctx, f.paid())
	require.NoError(t, err)
	assert.False(t, out.Replayed)
	assert.Equal(t, enums.TransactionStatusCompleted, out.TransactionStatus)
	assert.Equal(t, enums.PaymentStatusPaid, out.PaymentStatus)
	assert.Equal(t, []int64{18000, 4500}, f.balances(t))
	assert.Equal(t, int64(2), f.earningRows(t))
	assert.Equal(t, 1, f.notifier.confirmed)

	out, err = f.svc.Settle(ctx, f.paid())
	require.NoError(t, err)
	assert.True(t, out.Replayed)
	assert.Equal(t, []int64{18000, 4500}, f.balances(t), "replay must not double-credit")
	assert.Equal(t, int64(2), f.earningRows(t))
	assert.Equal(t, 1, f.notifier.confirmed)

	cancelled := f.paid()
	cancelled.Status = payments.VerificationCancelled
	out, err = f.svc.Settle(ctx, cancelled)
	require.NoError(t, err)
	assert.True(t, out.Replayed)
	assert.Equal(t, payments.VerificationPaid, out.Status, "a resolved attempt reports its recorded outcome")
}

func TestSettleIntegrityFailureWritesNothing(t *testing.T) {
	f := newFixture(t, enums.PaymentMethodKhalti)
	ctx := context.Background()

	v := f.paid()
	v.AmountCents = 100
	_, err := f.svc.Settle(ctx, v)
	requireCode(t, err, pkgerrors.CodeIntegrity)

	v = f.paid()
	v.OrderID = uuid.New()
	_, err = f.svc.Settle(ctx, v)
	requireCode(t, err, pkgerrors.CodeIntegrity)

	order, txn := f.reload(t)
	assert.Equal(t, enums.TransactionStatusInitiated, txn.Status)
	assert.Equal(t, enums.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, []int64{0, 0}, f.balances(t))
}

func TestSettleCancelledLeavesOrderUntouched(t *testing.T) {
	f := newFixture(t, enums.PaymentMethodKhalti)

	v := f.paid()
	v.Status = payments.VerificationCancelled
	out, err := f.svc.Settle(context.Background(), v)
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusFailed, out.TransactionStatus)

	order, txn := f.reload(t)
	assert.Equal(t, enums.TransactionStatusFailed, txn.Status)
	assert.NotNil(t, txn.ResolvedAt)
	assert.Equal(t, enums.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, enums.OrderStatusPending, order.OrderStatus)
	assert.Zero(t, f.notifier.confirmed)
}

func TestSettlePendingIsReadOnly(t *testing.T) {
	f := newFixture(t, enums.PaymentMethodKhalti)

	v := f.paid()
	v.Status = payments.VerificationPending
	out, err := f.svc.Settle(context.Background(), v)
	require.NoError(t, err)
	assert.Equal(t, payments.VerificationPending, out.Status)

	_, txn := f.reload(t)
	assert.Equal(t, enums.TransactionStatusInitiated, txn.Status)

	_, err = f.svc.Settle(context.Background(), &payments.Verification{Reference: "missing", Status: payments.VerificationPaid})
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestSettlePaidAfterBuyerCancelReinstatesOrder(t *testing.T) {
	f := newFixture(t, enums.PaymentMethodKhalti)
	ctx := context.Background()

	ok, err := f.orders.CancelUnpaid(ctx, f.order.ID, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, f.conn.Model(&models.Book{}).Where("1 = 1").
		Updates(map[string]any{"status": enums.BookStatusAvailable, "sold_order_id": nil}).Error)

	out, err := f.svc.Settle(ctx, f.paid())
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, out.OrderStatus)
	assert.Equal(t, enums.PaymentStatusPaid, out.PaymentStatus)
	assert.Equal(t, []int64{18000, 4500}, f.balances(t))

	var sold int64
	require.NoError(t, f.conn.Model(&models.Book{}).Where("status = ?", enums.BookStatusSold).Count(&sold).Error)
	assert.Equal(t, int64(2), sold)
}

func TestSettleReinstatedOrderKeepsResoldBooks(t *testing.T) {
	f := newFixture(t, enums.PaymentMethodKhalti)
	ctx := context.Background()

	ok, err := f.orders.CancelUnpaid(ctx, f.order.ID, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, f.conn.Model(&models.Book{}).Where("1 = 1").
		Updates(map[string]any{"status": enums.BookStatusAvailable, "sold_order_id": nil}).Error)

	resold := f.order.SubOrders[0].Lines[0].BookID
	otherOrder := uuid.New()
	require.NoError(t, f.conn.Model(&models.Book{}).Where("id = ?", resold).
		Updates(map[string]any{"status": enums.BookStatusSold, "sold_order_id": otherOrder}).Error)

	out, err := f.svc.Settle(ctx, f.paid())
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, out.PaymentStatus)

	var held models.Book
	require.NoError(t, f.conn.First(&held, "id = ?", resold).Error)
	require.NotNil(t, held.SoldOrderID)
	assert.Equal(t, otherOrder, *held.SoldOrderID)

	var reserved int64
	require.NoError(t, f.conn.Model(&models.Book{}).Where("sold_order_id = ?", f.order.ID).Count(&reserved).Error)
	assert.Equal(t, int64(1), reserved)
}

func TestSettlePaidAfterSellerRejectionFlagsRefund(t *testing.T) {
	f := newFixture(t, enums.PaymentMethodKhalti)
	ctx := context.Background()

	_, err := f.orders.SetOrderStatus(ctx, f.order.ID, enums.OrderStatusCancelledBySeller,
		[]enums.OrderStatus{enums.OrderStatusPending}, nil)
	require.NoError(t, err)

	out, err := f.svc.Settle(ctx, f.paid())
	require.NoError(t, err)
	assert.True(t, out.RefundRequired)
	assert.Equal(t, enums.OrderStatusCancelledBySeller, out.OrderStatus)
	assert.Equal(t, enums.PaymentStatusPaid, out.PaymentStatus)
	assert.Equal(t, []int64{0, 0}, f.balances(t))
	assert.Zero(t, f.earningRows(t))
	assert.Zero(t, f.notifier.confirmed)
}

func TestVerifyAndSettle(t *testing.T) {
	f := newFixture(t, enums.PaymentMethodKhalti)
	ctx := context.Background()

	_, err := f.svc.VerifyAndSettle(ctx, uuid.New(), f.txn.GatewayReference)
	requireCode(t, err, pkgerrors.CodeForbidden)

	f.gateway.err = errors.New("timeout")
	_, err = f.svc.VerifyAndSettle(ctx, f.buyerID, f.txn.GatewayReference)
	requireCode(t, err, pkgerrors.CodeGateway)

	f.gateway.err = nil
	f.gateway.result = &payments.Verification{Status: payments.VerificationPaid, AmountCents: 27000}
	out, err := f.svc.VerifyAndSettle(ctx, f.buyerID, f.txn.GatewayReference)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, out.PaymentStatus)

	calls := f.gateway.calls
	out, err = f.svc.VerifyAndSettle(ctx, f.buyerID, f.txn.GatewayReference)
	require.NoError(t, err)
	assert.True(t, out.Replayed)
	assert.Equal(t, calls, f.gateway.calls, "resolved payments are not re-verified")
}

func TestCollectCredit(t *testing.T) {
	t.Run("credit order settles", func(t *testing.T) {
		f := newFixture(t, enums.PaymentMethodCredit)
		out, err := f.svc.CollectCredit(context.Background(), uuid.New(), f.txn.GatewayReference)
		require.NoError(t, err)
		assert.Equal(t, enums.PaymentStatusPaid, out.PaymentStatus)
		assert.Equal(t, []int64{18000, 4500}, f.balances(t))
	})
	t.Run("gateway order rejected", func(t *testing.T) {
		f := newFixture(t, enums.PaymentMethodKhalti)
		_, err := f.svc.CollectCredit(context.Background(), uuid.New(), f.txn.GatewayReference)
		requireCode(t, err, pkgerrors.CodeValidation)
	})
}
