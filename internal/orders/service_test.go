package orders

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pustakbazzar/pustak-backend/internal/books"
	"github.com/pustakbazzar/pustak-backend/pkg/db"
	"github.com/pustakbazzar/pustak-backend/pkg/db/dbtest"
	"github.com/pustakbazzar/pustak-backend/pkg/db/models"
	"github.com/pustakbazzar/pustak-backend/pkg/enums"
	pkgerrors "github.com/pustakbazzar/pustak-backend/pkg/errors"
	"github.com/pustakbazzar/pustak-backend/pkg/logger"
	"github.com/pustakbazzar/pustak-backend/pkg/pagination"
	"github.com/pustakbazzar/pustak-backend/pkg/types"
)

type recordingNotifier struct {
	decided   []enums.SubOrderStatus
	cancelled []string
	shipped   int
}

func (n *recordingNotifier) SubOrderDecided(ctx context.Context, tx *gorm.DB, order *models.Order, sub *models.SubOrder) error {
	n.decided = append(n.decided, sub.Status)
	return nil
}

func (n *recordingNotifier) OrderCancelled(ctx context.Context, tx *gorm.DB, order *models.Order, cancelledBy string, actorID uuid.UUID, reason string) error {
	n.cancelled = append(n.cancelled, cancelledBy)
	return nil
}

func (n *recordingNotifier) OrderShipped(ctx context.Context, tx *gorm.DB, order *models.Order, sub *models.SubOrder) error {
	n.shipped++
	return nil
}

type fixture struct {
	conn     *gorm.DB
	svc      Service
	repo     Repository
	notifier *recordingNotifier
	order    *models.Order
	buyerID  uuid.UUID
	sellerA  uuid.UUID
	sellerB  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	notifier := &recordingNotifier{}
	logg := logger.New(logger.Options{ServiceName: "orders-test", Output: io.Discard})
	svc, err := NewService(repo, db.Wrap(conn), books.NewRepository(conn), notifier, logg)
	require.NoError(t, err)

	f := &fixture{
		conn:     conn,
		svc:      svc,
		repo:     repo,
		notifier: notifier,
		buyerID:  uuid.New(),
		sellerA:  uuid.New(),
		sellerB:  uuid.New(),
	}
	f.order = f.seedOrder(t)
	return f
}

func (f *fixture) seedOrder(t *testing.T) *models.Order {
	t.Helper()
	orderID := uuid.New()
	order := &models.Order{
		ID:               orderID,
		BuyerID:          f.buyerID,
		TotalPriceCents:  250,
		ShippingFeeCents: 20,
		NetTotalCents:    270,
		Currency:         "NPR",
		OrderStatus:      enums.OrderStatusPending,
		PaymentStatus:    enums.PaymentStatusPending,
		PaymentMethod:    enums.PaymentMethodKhalti,
		ShippingAddress:  types.Address{FullName: "Sita", Phone: "98", Line1: "Street", City: "Kathmandu"},
	}
	for _, seller := range []struct {
		id    uuid.UUID
		price int64
		qty   int
	}{{f.sellerA, 100, 2}, {f.sellerB, 50, 1}} {
		book := models.Book{
			ID:                uuid.New(),
			SellerID:          seller.id,
			Title:             "Muna Madan",
			SellingPriceCents: seller.price,
			Status:            enums.BookStatusSold,
			SoldOrderID:       &orderID,
		}
		require.NoError(t, f.conn.Create(&book).Error)

		subID := uuid.New()
		gross := seller.price * int64(seller.qty)
		order.SubOrders = append(order.SubOrders, models.SubOrder{
			ID:                 subID,
			OrderID:            orderID,
			SellerID:           seller.id,
			DeliveryPriceCents: 10,
			Status:             enums.SubOrderStatusPending,
			Lines: []models.OrderLine{{
				ID:                  uuid.New(),
				SubOrderID:          subID,
				OrderID:             orderID,
				BookID:              book.ID,
				Title:               book.Title,
				UnitPriceCents:      seller.price,
				Quantity:            seller.qty,
				PlatformFeeCents:    gross / 10,
				SellerEarningsCents: gross - gross/10,
			}},
		})
	}
	require.NoError(t, f.repo.Create(context.Background(), order))
	return order
}

func (f *fixture) bookStatuses(t *testing.T) []enums.BookStatus {
	t.Helper()
	var rows []models.Book
	require.NoError(t, f.conn.Order("selling_price_cents DESC").Find(&rows).Error)
	out := make([]enums.BookStatus, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Status)
	}
	return out
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	assert.Equal(t, code, typed.Code())
}

func TestDecideAllApprovedConfirmsOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dto, err := f.svc.Decide(ctx, f.sellerA, f.order.ID, DecisionInput{Decision: enums.SellerDecisionApproved})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPartiallyApproved, dto.OrderStatus)
	require.Len(t, dto.SubOrders, 1)
	assert.Equal(t, f.sellerA, dto.SubOrders[0].SellerID)

	dto, err = f.svc.Decide(ctx, f.sellerB, f.order.ID, DecisionInput{Decision: enums.SellerDecisionApproved})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, dto.OrderStatus)
	assert.Equal(t, []enums.SubOrderStatus{enums.SubOrderStatusApproved, enums.SubOrderStatusApproved}, f.notifier.decided)
	assert.Empty(t, f.notifier.cancelled)
}

func TestDecideRejectionCancelsAndRestoresBooks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Decide(ctx, f.sellerA, f.order.ID, DecisionInput{Decision: enums.SellerDecisionApproved})
	require.NoError(t, err)
	dto, err := f.svc.Decide(ctx, f.sellerB, f.order.ID, DecisionInput{Decision: enums.SellerDecisionRejected})
	require.NoError(t, err)

	assert.Equal(t, enums.OrderStatusCancelledBySeller, dto.OrderStatus)
	require.NotNil(t, dto.CancellationMessage)
	assert.Equal(t, defaultRejectionMessage, *dto.CancellationMessage)
	assert.Equal(t, []string{"seller"}, f.notifier.cancelled)
	assert.Equal(t, []enums.BookStatus{enums.BookStatusAvailable, enums.BookStatusAvailable}, f.bookStatuses(t))

	stored, err := f.repo.FindByID(ctx, f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.SubOrderStatusApproved, stored.SubOrderFor(f.sellerA).Status)
	assert.Equal(t, enums.SubOrderStatusRejected, stored.SubOrderFor(f.sellerB).Status)
}

func TestDecideRepeatAndConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Decide(ctx, f.sellerA, f.order.ID, DecisionInput{Decision: enums.SellerDecisionApproved})
	require.NoError(t, err)

	dto, err := f.svc.Decide(ctx, f.sellerA, f.order.ID, DecisionInput{Decision: enums.SellerDecisionApproved})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPartiallyApproved, dto.OrderStatus)
	assert.Len(t, f.notifier.decided, 1, "repeat must not emit again")

	_, err = f.svc.Decide(ctx, f.sellerA, f.order.ID, DecisionInput{Decision: enums.SellerDecisionRejected, Message: "changed my mind"})
	requireCode(t, err, pkgerrors.CodeStateConflict)
	assert.Equal(t, []enums.BookStatus{enums.BookStatusSold, enums.BookStatusSold}, f.bookStatuses(t))
}

func TestDecideGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Decide(ctx, uuid.New(), f.order.ID, DecisionInput{Decision: enums.SellerDecisionApproved})
	requireCode(t, err, pkgerrors.CodeForbidden)

	_, err = f.svc.Decide(ctx, f.sellerA, uuid.New(), DecisionInput{Decision: enums.SellerDecisionApproved})
	requireCode(t, err, pkgerrors.CodeNotFound)

	_, err = f.svc.Decide(ctx, f.sellerA, f.order.ID, DecisionInput{Decision: "maybe"})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = f.svc.CancelOrder(ctx, f.buyerID, f.order.ID)
	require.NoError(t, err)
	_, err = f.svc.Decide(ctx, f.sellerA, f.order.ID, DecisionInput{Decision: enums.SellerDecisionApproved})
	requireCode(t, err, pkgerrors.CodeStateConflict)
}

func TestCancelOrderByBuyer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CancelOrder(ctx, uuid.New(), f.order.ID)
	requireCode(t, err, pkgerrors.CodeForbidden)

	dto, err := f.svc.CancelOrder(ctx, f.buyerID, f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, dto.OrderStatus)
	assert.Equal(t, []string{"buyer"}, f.notifier.cancelled)
	assert.Equal(t, []enums.BookStatus{enums.BookStatusAvailable, enums.BookStatusAvailable}, f.bookStatuses(t))

	_, err = f.svc.CancelOrder(ctx, f.buyerID, f.order.ID)
	requireCode(t, err, pkgerrors.CodeStateConflict)
}

func TestCancelOrderLeavesBooksHeldByOtherOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other := uuid.New()
	bookID := f.order.SubOrderFor(f.sellerA).Lines[0].BookID
	require.NoError(t, f.conn.Model(&models.Book{}).Where("id = ?", bookID).Update("sold_order_id", other).Error)

	_, err := f.svc.CancelOrder(ctx, f.buyerID, f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, []enums.BookStatus{enums.BookStatusSold, enums.BookStatusAvailable}, f.bookStatuses(t))

	var held models.Book
	require.NoError(t, f.conn.First(&held, "id = ?", bookID).Error)
	require.NotNil(t, held.SoldOrderID)
	assert.Equal(t, other, *held.SoldOrderID)
}

func TestCancelPaidOrderConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.repo.MarkPaid(ctx, f.order.ID, enums.OrderStatusPending, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.CancelOrder(ctx, f.buyerID, f.order.ID)
	requireCode(t, err, pkgerrors.CodeStateConflict)

	ok, err = f.repo.CancelUnpaid(ctx, f.order.ID, nil)
	require.NoError(t, err)
	assert.False(t, ok, "conditional cancel must not touch a paid order")
	assert.Empty(t, f.notifier.cancelled)
}

func TestAdminUpdateStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	adminID := uuid.New()

	_, err := f.svc.AdminUpdateStatus(ctx, adminID, f.order.ID, enums.OrderStatusConfirmed, "")
	requireCode(t, err, pkgerrors.CodeValidation)

	dto, err := f.svc.AdminUpdateStatus(ctx, adminID, f.order.ID, enums.OrderStatusCancelled, "fraud check")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, dto.OrderStatus)
	require.NotNil(t, dto.CancellationMessage)
	assert.Equal(t, "fraud check", *dto.CancellationMessage)
	assert.Equal(t, []string{"admin"}, f.notifier.cancelled)
}

func TestUpdateTracking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpdateTracking(ctx, f.sellerA, f.order.ID, "NP-123")
	requireCode(t, err, pkgerrors.CodeStateConflict)

	_, err = f.svc.Decide(ctx, f.sellerA, f.order.ID, DecisionInput{Decision: enums.SellerDecisionApproved})
	require.NoError(t, err)

	_, err = f.svc.UpdateTracking(ctx, f.sellerA, f.order.ID, " ")
	requireCode(t, err, pkgerrors.CodeValidation)

	dto, err := f.svc.UpdateTracking(ctx, f.sellerA, f.order.ID, "NP-123")
	require.NoError(t, err)
	require.Len(t, dto.SubOrders, 1)
	require.NotNil(t, dto.SubOrders[0].TrackingNumber)
	assert.Equal(t, "NP-123", *dto.SubOrders[0].TrackingNumber)
	assert.Equal(t, 1, f.notifier.shipped)
}

func TestGetVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dto, err := f.svc.Get(ctx, Viewer{UserID: f.buyerID, Role: enums.UserRoleUser}, f.order.ID)
	require.NoError(t, err)
	assert.Len(t, dto.SubOrders, 2)
	assert.Equal(t, int64(270), dto.NetTotalCents)

	dto, err = f.svc.Get(ctx, Viewer{UserID: f.sellerB, Role: enums.UserRoleUser}, f.order.ID)
	require.NoError(t, err)
	require.Len(t, dto.SubOrders, 1)
	assert.Equal(t, int64(45), dto.SubOrders[0].SellerEarningsCents)

	_, err = f.svc.Get(ctx, Viewer{UserID: uuid.New(), Role: enums.UserRoleUser}, f.order.ID)
	requireCode(t, err, pkgerrors.CodeForbidden)

	dto, err = f.svc.Get(ctx, Viewer{UserID: uuid.New(), Role: enums.UserRoleAdmin}, f.order.ID)
	require.NoError(t, err)
	assert.Len(t, dto.SubOrders, 2)
}

func TestListings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	params := pagination.Params{Limit: 10}

	page, err := f.svc.ListSeller(ctx, f.sellerA, ListFilters{}, params)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Len(t, page.Items[0].SubOrders, 1)

	page, err = f.svc.ListSeller(ctx, uuid.New(), ListFilters{}, params)
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	page, err = f.svc.ListBuyer(ctx, f.buyerID, ListFilters{}, params)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)

	paid := enums.PaymentStatusPaid
	page, err = f.svc.ListAdmin(ctx, ListFilters{PaymentStatus: &paid}, params)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}
