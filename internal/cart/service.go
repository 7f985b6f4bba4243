// Package cart holds each buyer's pending selections grouped by seller, with
// the book price snapshotted when the line was added.
package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pustakbazzar/pustak-backend/pkg/db"
	"github.com/pustakbazzar/pustak-backend/pkg/db/models"
	"github.com/pustakbazzar/pustak-backend/pkg/enums"
	pkgerrors "github.com/pustakbazzar/pustak-backend/pkg/errors"
)

const maxWriteAttempts = 3

// Service exposes cart mutations. Every write is a conditional update on the
// cart version so concurrent writers never silently drop a line.
type Service interface {
	View(ctx context.Context, buyerID uuid.UUID) (*View, error)
	AddLine(ctx context.Context, buyerID, bookID uuid.UUID, quantity int) (*View, error)
	RemoveLine(ctx context.Context, buyerID, bookID uuid.UUID) (*View, error)
	RemoveSeller(ctx context.Context, buyerID, sellerID uuid.UUID) (*View, error)
	UpdateDeliveryPrice(ctx context.Context, buyerID, sellerID uuid.UUID, priceCents int64) (*View, error)
	Clear(ctx context.Context, buyerID uuid.UUID) error
}

type service struct {
	repo  Repository
	books bookLookup
	now   func() time.Time
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo Repository, books bookLookup) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if books == nil {
		return nil, fmt.Errorf("book lookup required")
	}
	return &service{repo: repo, books: books, now: time.Now}, nil
}

func (s *service) View(ctx context.Context, buyerID uuid.UUID) (*View, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id is required")
	}
	cart, err := s.repo.FindByBuyer(ctx, buyerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return s.render(ctx, buyerID, cart)
}

// AddLine snapshots the current selling price. Adding a book that is already
// in the cart increments its quantity and keeps the original snapshot.
func (s *service) AddLine(ctx context.Context, buyerID, bookID uuid.UUID, quantity int) (*View, error) {
	if buyerID == uuid.Nil || bookID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id and book id are required")
	}
	if quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	book, err := s.books.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if book.ForDonation || book.Status == enums.BookStatusDonated {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "donation books cannot be purchased").
			WithDetails(map[string]any{"book_id": bookID})
	}
	if book.Status != enums.BookStatusAvailable {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "book is no longer available").
			WithDetails(map[string]any{"book_id": bookID, "status": book.Status})
	}
	if book.SellerID == buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "you cannot buy your own book")
	}

	now := s.now().UTC()
	return s.mutate(ctx, buyerID, func(cart *models.Cart) error {
		group := cart.GroupFor(book.SellerID)
		if group == nil {
			cart.SellerGroups = append(cart.SellerGroups, models.CartSellerGroup{SellerID: book.SellerID})
			group = &cart.SellerGroups[len(cart.SellerGroups)-1]
		}
		if line := group.LineFor(book.ID); line != nil {
			line.Quantity += quantity
			return nil
		}
		group.Lines = append(group.Lines, models.CartLine{
			BookID:         book.ID,
			Title:          book.Title,
			UnitPriceCents: book.SellingPriceCents,
			Quantity:       quantity,
			AddedAt:        now,
		})
		return nil
	})
}

func (s *service) RemoveLine(ctx context.Context, buyerID, bookID uuid.UUID) (*View, error) {
	return s.mutate(ctx, buyerID, func(cart *models.Cart) error {
		for gi := range cart.SellerGroups {
			group := &cart.SellerGroups[gi]
			for li := range group.Lines {
				if group.Lines[li].BookID != bookID {
					continue
				}
				group.Lines = append(group.Lines[:li], group.Lines[li+1:]...)
				if len(group.Lines) == 0 {
					cart.SellerGroups = append(cart.SellerGroups[:gi], cart.SellerGroups[gi+1:]...)
				}
				return nil
			}
		}
		return pkgerrors.New(pkgerrors.CodeNotFound, "book is not in the cart")
	})
}

func (s *service) RemoveSeller(ctx context.Context, buyerID, sellerID uuid.UUID) (*View, error) {
	return s.mutate(ctx, buyerID, func(cart *models.Cart) error {
		for gi := range cart.SellerGroups {
			if cart.SellerGroups[gi].SellerID == sellerID {
				cart.SellerGroups = append(cart.SellerGroups[:gi], cart.SellerGroups[gi+1:]...)
				return nil
			}
		}
		return pkgerrors.New(pkgerrors.CodeNotFound, "seller is not in the cart")
	})
}

func (s *service) UpdateDeliveryPrice(ctx context.Context, buyerID, sellerID uuid.UUID, priceCents int64) (*View, error) {
	if priceCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery price must be non-negative")
	}
	return s.mutate(ctx, buyerID, func(cart *models.Cart) error {
		group := cart.GroupFor(sellerID)
		if group == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "seller is not in the cart")
		}
		group.DeliveryPriceCents = priceCents
		return nil
	})
}

// Clear empties the seller groups and keeps the cart row for reuse.
func (s *service) Clear(ctx context.Context, buyerID uuid.UUID) error {
	_, err := s.mutate(ctx, buyerID, func(cart *models.Cart) error {
		cart.SellerGroups = nil
		return nil
	})
	return err
}

// mutate applies fn to a private copy of the buyer's cart and writes it back
// guarded by the version it read. Lost races are retried from a fresh read.
func (s *service) mutate(ctx context.Context, buyerID uuid.UUID, fn func(cart *models.Cart) error) (*View, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id is required")
	}
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		cart, err := s.loadOrCreate(ctx, buyerID)
		if err != nil {
			return nil, err
		}
		working := cloneCart(cart)
		if err := fn(working); err != nil {
			return nil, err
		}
		ok, err := s.repo.ReplaceGroups(ctx, buyerID, cart.Version, working.SellerGroups)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart")
		}
		if ok {
			working.Version = cart.Version + 1
			return s.render(ctx, buyerID, working)
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "cart was modified concurrently, please retry")
}

func (s *service) loadOrCreate(ctx context.Context, buyerID uuid.UUID) (*models.Cart, error) {
	cart, err := s.repo.FindByBuyer(ctx, buyerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if cart != nil {
		return cart, nil
	}
	cart = &models.Cart{BuyerID: buyerID}
	if err := s.repo.Create(ctx, cart); err != nil {
		if !db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
		}
		// another request created it first
		cart, err = s.repo.FindByBuyer(ctx, buyerID)
		if err != nil || cart == nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
	}
	return cart, nil
}

func (s *service) render(ctx context.Context, buyerID uuid.UUID, cart *models.Cart) (*View, error) {
	live, err := s.books.GetBooks(ctx, bookIDs(cart))
	if err != nil {
		return nil, err
	}
	return buildView(buyerID, cart, live), nil
}

func cloneCart(cart *models.Cart) *models.Cart {
	out := *cart
	out.SellerGroups = make([]models.CartSellerGroup, len(cart.SellerGroups))
	for i, group := range cart.SellerGroups {
		group.Lines = append([]models.CartLine(nil), group.Lines...)
		out.SellerGroups[i] = group
	}
	return &out
}
