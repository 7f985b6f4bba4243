package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pustakbazzar/pustak-backend/pkg/db/models"
)

// Repository manages platform earnings and seller balance columns.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateEarning(ctx context.Context, earning *models.PlatformEarning) error
	ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]models.PlatformEarning, error)
	SumPlatformFees(ctx context.Context, sellerID uuid.UUID) (int64, error)
	FindAccount(ctx context.Context, sellerID uuid.UUID) (*models.User, error)
	// CreditBalance is an atomic increment; false means the seller row is missing.
	CreditBalance(ctx context.Context, sellerID uuid.UUID, amountCents int64) (bool, error)
	// DrainBalance zeroes the balance only if it still equals expectedCents and
	// moves that amount to the lifetime earning column.
	DrainBalance(ctx context.Context, sellerID uuid.UUID, expectedCents int64) (bool, error)
	// SellersWithBalance lists seller ids whose balance is at least minCents.
	SellersWithBalance(ctx context.Context, minCents int64) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateEarning(ctx context.Context, earning *models.PlatformEarning) error {
	if earning.ID == uuid.Nil {
		earning.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(earning).Error
}

func (r *repository) ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]models.PlatformEarning, error) {
	var rows []models.PlatformEarning
	if err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) SumPlatformFees(ctx context.Context, sellerID uuid.UUID) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.PlatformEarning{}).
		Select("COALESCE(SUM(platform_fee_cents), 0)").
		Where("seller_id = ?", sellerID).
		Scan(&total).Error
	return total, err
}

func (r *repository) FindAccount(ctx context.Context, sellerID uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", sellerID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) CreditBalance(ctx context.Context, sellerID uuid.UUID, amountCents int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", sellerID).
		Update("balance_cents", gorm.Expr("balance_cents + ?", amountCents))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) DrainBalance(ctx context.Context, sellerID uuid.UUID, expectedCents int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND balance_cents = ?", sellerID, expectedCents).
		Updates(map[string]any{
			"balance_cents": 0,
			"earning_cents": gorm.Expr("earning_cents + ?", expectedCents),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) SellersWithBalance(ctx context.Context, minCents int64) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("balance_cents >= ? AND balance_cents > 0", minCents).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}
