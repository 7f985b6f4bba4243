package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pustakbazzar/pustak-backend/pkg/db/models"
)

// Repository persists the single cart document owned by each buyer.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// FindByBuyer returns nil without error when the buyer has no cart yet.
	FindByBuyer(ctx context.Context, buyerID uuid.UUID) (*models.Cart, error)
	Create(ctx context.Context, cart *models.Cart) error
	// ReplaceGroups writes groups and bumps the version only when the stored
	// version still equals expectedVersion.
	ReplaceGroups(ctx context.Context, buyerID uuid.UUID, expectedVersion int64, groups []models.CartSellerGroup) (bool, error)
}

type bookLookup interface {
	GetBook(ctx context.Context, id uuid.UUID) (*models.Book, error)
	GetBooks(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Book, error)
}
