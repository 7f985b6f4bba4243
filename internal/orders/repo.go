package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/pustakbazzar/pustak-backend/pkg/db"
	"github.com/pustakbazzar/pustak-backend/pkg/db/models"
	"github.com/pustakbazzar/pustak-backend/pkg/enums"
	"github.com/pustakbazzar/pustak-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the order with its sub-orders and lines.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.find(ctx, id, false)
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.find(ctx, id, true)
}

func (r *repository) find(ctx context.Context, id uuid.UUID, lock bool) (*models.Order, error) {
	query := r.db.WithContext(ctx)
	if lock {
		query = dbpkg.ForUpdate(query)
	}
	var order models.Order
	err := preloadAggregate(query).Where("id = ?", id).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListForBuyer(ctx context.Context, buyerID uuid.UUID, filters ListFilters, params pagination.Params) (pagination.Page[models.Order], error) {
	query := r.db.WithContext(ctx).Model(&models.Order{}).Where("buyer_id = ?", buyerID)
	return r.list(query, filters, params)
}

func (r *repository) ListForSeller(ctx context.Context, sellerID uuid.UUID, filters ListFilters, params pagination.Params) (pagination.Page[models.Order], error) {
	owned := r.db.Model(&models.SubOrder{}).Select("order_id").Where("seller_id = ?", sellerID)
	query := r.db.WithContext(ctx).Model(&models.Order{}).Where("id IN (?)", owned)
	return r.list(query, filters, params)
}

func (r *repository) ListAll(ctx context.Context, filters ListFilters, params pagination.Params) (pagination.Page[models.Order], error) {
	return r.list(r.db.WithContext(ctx).Model(&models.Order{}), filters, params)
}

func (r *repository) list(query *gorm.DB, filters ListFilters, params pagination.Params) (pagination.Page[models.Order], error) {
	if filters.OrderStatus != nil {
		query = query.Where("order_status = ?", *filters.OrderStatus)
	}
	if filters.PaymentStatus != nil {
		query = query.Where("payment_status = ?", *filters.PaymentStatus)
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return pagination.Page[models.Order]{}, err
		}
		if cursor != nil {
			query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
		}
	}

	var rows []models.Order
	err := preloadAggregate(query).
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	if err != nil {
		return pagination.Page[models.Order]{}, err
	}
	return pagination.Trim(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	}), nil
}

func (r *repository) DecideSubOrder(ctx context.Context, subOrderID uuid.UUID, status enums.SubOrderStatus, message *string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.SubOrder{}).
		Where("id = ? AND status = ?", subOrderID, enums.SubOrderStatusPending).
		Updates(map[string]any{
			"status":           status,
			"decision_message": message,
			"decided_at":       at,
			"updated_at":       at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) SetOrderStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus, from []enums.OrderStatus, message *string) (bool, error) {
	updates := map[string]any{
		"order_status": status,
		"updated_at":   time.Now().UTC(),
	}
	if message != nil {
		updates["cancellation_message"] = *message
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND order_status IN ?", orderID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CancelUnpaid re-checks the payment status in the same statement as the
// write, so a confirmed payment always wins over a cancellation.
func (r *repository) CancelUnpaid(ctx context.Context, orderID uuid.UUID, message *string) (bool, error) {
	updates := map[string]any{
		"order_status": enums.OrderStatusCancelled,
		"updated_at":   time.Now().UTC(),
	}
	if message != nil {
		updates["cancellation_message"] = *message
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status <> ? AND order_status IN ?",
			orderID, enums.PaymentStatusPaid,
			[]enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusPartiallyApproved}).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) SetTracking(ctx context.Context, subOrderID uuid.UUID, tracking string) error {
	return r.db.WithContext(ctx).
		Model(&models.SubOrder{}).
		Where("id = ?", subOrderID).
		Updates(map[string]any{
			"tracking_number": tracking,
			"updated_at":      time.Now().UTC(),
		}).Error
}

func (r *repository) SetGatewayReference(ctx context.Context, orderID uuid.UUID, reference string) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]any{
			"gateway_reference": reference,
			"updated_at":        time.Now().UTC(),
		}).Error
}

// MarkPaid flips payment_status from pending to paid and writes status as the
// order status in the same statement.
func (r *repository) MarkPaid(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus, paidAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", orderID, enums.PaymentStatusPending).
		Updates(map[string]any{
			"payment_status": enums.PaymentStatusPaid,
			"order_status":   status,
			"paid_at":        paidAt,
			"updated_at":     paidAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func preloadAggregate(query *gorm.DB) *gorm.DB {
	return query.
		Preload("SubOrders", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Preload("SubOrders.Lines", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") })
}
