package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pustakbazzar/pustak-backend/pkg/db/models"
	"github.com/pustakbazzar/pustak-backend/pkg/enums"
	"github.com/pustakbazzar/pustak-backend/pkg/pagination"
)

// Repository defines persistence operations for the order aggregate.
// Status writers are conditional and report whether a row changed.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	// FindByIDForUpdate also row-locks the order until the transaction ends.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListForBuyer(ctx context.Context, buyerID uuid.UUID, filters ListFilters, params pagination.Params) (pagination.Page[models.Order], error)
	ListForSeller(ctx context.Context, sellerID uuid.UUID, filters ListFilters, params pagination.Params) (pagination.Page[models.Order], error)
	ListAll(ctx context.Context, filters ListFilters, params pagination.Params) (pagination.Page[models.Order], error)
	DecideSubOrder(ctx context.Context, subOrderID uuid.UUID, status enums.SubOrderStatus, message *string, at time.Time) (bool, error)
	SetOrderStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus, from []enums.OrderStatus, message *string) (bool, error)
	CancelUnpaid(ctx context.Context, orderID uuid.UUID, message *string) (bool, error)
	SetTracking(ctx context.Context, subOrderID uuid.UUID, tracking string) error
	SetGatewayReference(ctx context.Context, orderID uuid.UUID, reference string) error
	MarkPaid(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus, paidAt time.Time) (bool, error)
}

// ListFilters narrows order listings. Nil fields are ignored.
type ListFilters struct {
	OrderStatus   *enums.OrderStatus
	PaymentStatus *enums.PaymentStatus
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type bookAvailability interface {
	ReleaseForOrder(ctx context.Context, orderID uuid.UUID) (int64, error)
}

type orderNotifier interface {
	SubOrderDecided(ctx context.Context, tx *gorm.DB, order *models.Order, sub *models.SubOrder) error
	OrderCancelled(ctx context.Context, tx *gorm.DB, order *models.Order, cancelledBy string, actorID uuid.UUID, reason string) error
	OrderShipped(ctx context.Context, tx *gorm.DB, order *models.Order, sub *models.SubOrder) error
}
