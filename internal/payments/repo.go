package payments

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/pustakbazzar/pustak-backend/pkg/db"
	"github.com/pustakbazzar/pustak-backend/pkg/db/models"
	"github.com/pustakbazzar/pustak-backend/pkg/enums"
)

// Repository persists payment attempts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.Transaction) error
	FindByReference(ctx context.Context, reference string) (*models.Transaction, error)
	FindByReferenceForUpdate(ctx context.Context, reference string) (*models.Transaction, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error)
	// HasLiveAttempt reports whether an initiated or completed attempt exists.
	HasLiveAttempt(ctx context.Context, orderID uuid.UUID) (bool, error)
	// Resolve moves an initiated attempt to status; false means it was
	// already resolved.
	Resolve(ctx context.Context, id uuid.UUID, status enums.TransactionStatus, raw json.RawMessage, at time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a transactions repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, txn *models.Transaction) error {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) FindByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	return r.find(r.db.WithContext(ctx), reference)
}

func (r *repository) FindByReferenceForUpdate(ctx context.Context, reference string) (*models.Transaction, error) {
	return r.find(dbpkg.ForUpdate(r.db.WithContext(ctx)), reference)
}

func (r *repository) find(query *gorm.DB, reference string) (*models.Transaction, error) {
	var txn models.Transaction
	err := query.Where("gateway_reference = ?", reference).First(&txn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error) {
	var rows []models.Transaction
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) HasLiveAttempt(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("order_id = ? AND status IN ?", orderID,
			[]enums.TransactionStatus{enums.TransactionStatusInitiated, enums.TransactionStatusCompleted}).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) Resolve(ctx context.Context, id uuid.UUID, status enums.TransactionStatus, raw json.RawMessage, at time.Time) (bool, error) {
	updates := map[string]any{
		"status":      status,
		"resolved_at": at,
		"updated_at":  at,
	}
	if len(raw) > 0 {
		updates["raw_gateway_payload"] = string(raw)
	}
	res := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, enums.TransactionStatusInitiated).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
