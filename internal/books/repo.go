// Package books is the narrow view of the catalog that checkout needs: price
// lookup for the cart and the sale reservation an order holds on its books.
package books

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pustakbazzar/pustak-backend/pkg/db/models"
	"github.com/pustakbazzar/pustak-backend/pkg/enums"
	pkgerrors "github.com/pustakbazzar/pustak-backend/pkg/errors"
)

// Repository reads and updates catalog rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetBook(ctx context.Context, id uuid.UUID) (*models.Book, error)
	GetBooks(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Book, error)
	ReserveForSale(ctx context.Context, orderID uuid.UUID, ids []uuid.UUID) error
	ReleaseForOrder(ctx context.Context, orderID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a books repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// GetBook returns NOT_FOUND when the id is unknown.
func (r *repository) GetBook(ctx context.Context, id uuid.UUID) (*models.Book, error) {
	var book models.Book
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&book).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "book not found").WithDetails(map[string]any{"book_id": id})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load book")
	}
	return &book, nil
}

// GetBooks loads the live rows for ids. Missing ids are simply absent.
func (r *repository) GetBooks(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Book, error) {
	result := make(map[uuid.UUID]models.Book, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var rows []models.Book
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load books")
	}
	for _, row := range rows {
		result[row.ID] = row
	}
	return result, nil
}

// ReserveForSale marks ids sold to orderID, but only if every one of them is
// still available. Callers run it inside their transaction so a CONFLICT
// leaves no partial reservation behind.
func (r *repository) ReserveForSale(ctx context.Context, orderID uuid.UUID, ids []uuid.UUID) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	ids = unique(ids)
	if len(ids) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.Book{}).
		Where("id IN ? AND status = ? AND for_donation = ?", ids, enums.BookStatusAvailable, false).
		Updates(map[string]any{
			"status":        enums.BookStatusSold,
			"sold_order_id": orderID,
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve books")
	}
	if res.RowsAffected == int64(len(ids)) {
		return nil
	}

	var taken []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.Book{}).
		Where("id IN ? AND (sold_order_id IS NULL OR sold_order_id <> ?)", ids, orderID).
		Pluck("id", &taken).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load unavailable books")
	}
	return pkgerrors.New(pkgerrors.CodeConflict, "book no longer available").
		WithDetails(map[string]any{"book_ids": taken})
}

// ReleaseForOrder puts back on sale the books orderID holds. Books sold to
// any other order are left alone.
func (r *repository) ReleaseForOrder(ctx context.Context, orderID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Book{}).
		Where("sold_order_id = ? AND status = ?", orderID, enums.BookStatusSold).
		Updates(map[string]any{
			"status":        enums.BookStatusAvailable,
			"sold_order_id": nil,
		})
	if res.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release books")
	}
	return res.RowsAffected, nil
}

func unique(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
