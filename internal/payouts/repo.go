package payouts

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pustakbazzar/pustak-backend/pkg/db/models"
	"github.com/pustakbazzar/pustak-backend/pkg/pagination"
)

// Repository stores payout history rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payout *models.Payout) error
	ListBySeller(ctx context.Context, sellerID uuid.UUID, params pagination.Params) (pagination.Page[models.Payout], error)
	ListAll(ctx context.Context, params pagination.Params) (pagination.Page[models.Payout], error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payouts repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payout *models.Payout) error {
	if payout.ID == uuid.Nil {
		payout.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(payout).Error
}

func (r *repository) ListBySeller(ctx context.Context, sellerID uuid.UUID, params pagination.Params) (pagination.Page[models.Payout], error) {
	return r.list(r.db.WithContext(ctx).Model(&models.Payout{}).Where("seller_id = ?", sellerID), params)
}

func (r *repository) ListAll(ctx context.Context, params pagination.Params) (pagination.Page[models.Payout], error) {
	return r.list(r.db.WithContext(ctx).Model(&models.Payout{}), params)
}

func (r *repository) list(query *gorm.DB, params pagination.Params) (pagination.Page[models.Payout], error) {
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return pagination.Page[models.Payout]{}, err
		}
		if cursor != nil {
			query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
		}
	}
	var rows []models.Payout
	if err := query.
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error; err != nil {
		return pagination.Page[models.Payout]{}, err
	}
	return pagination.Trim(rows, params.Limit, func(p models.Payout) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	}), nil
}
