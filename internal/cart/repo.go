package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pustakbazzar/pustak-backend/pkg/db/models"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByBuyer(ctx context.Context, buyerID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).Where("buyer_id = ?", buyerID).First(&cart).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cart, nil
}

func (r *repository) Create(ctx context.Context, cart *models.Cart) error {
	if cart.ID == uuid.Nil {
		cart.ID = uuid.New()
	}
	if cart.SellerGroups == nil {
		cart.SellerGroups = []models.CartSellerGroup{}
	}
	return r.db.WithContext(ctx).Create(cart).Error
}

func (r *repository) ReplaceGroups(ctx context.Context, buyerID uuid.UUID, expectedVersion int64, groups []models.CartSellerGroup) (bool, error) {
	if groups == nil {
		groups = []models.CartSellerGroup{}
	}
	encoded, err := json.Marshal(groups)
	if err != nil {
		return false, fmt.Errorf("encode seller groups: %w", err)
	}
	res := r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("buyer_id = ? AND version = ?", buyerID, expectedVersion).
		Updates(map[string]any{
			"seller_groups": string(encoded),
			"version":       gorm.Expr("version + 1"),
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
