package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pustakbazzar/pustak-backend/pkg/db/models"
	pkgerrors "github.com/pustakbazzar/pustak-backend/pkg/errors"
)

// Service records what the platform and each seller earned from a settled
// payment.
type Service interface {
	// RecordSettlement writes one earning row per seller on the order and
	// credits each seller's balance. It must run inside the settlement
	// transaction.
	RecordSettlement(ctx context.Context, tx *gorm.DB, txn *models.Transaction, order *models.Order, at time.Time) ([]models.PlatformEarning, error)
	HasEarnings(ctx context.Context, transactionID uuid.UUID) (bool, error)
}

type service struct {
	repo Repository
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) RecordSettlement(ctx context.Context, tx *gorm.DB, txn *models.Transaction, order *models.Order, at time.Time) ([]models.PlatformEarning, error) {
	if txn == nil || txn.ID == uuid.Nil {
		return nil, fmt.Errorf("transaction is required")
	}
	if order == nil || order.ID == uuid.Nil {
		return nil, fmt.Errorf("order is required")
	}
	if txn.OrderID != order.ID {
		return nil, pkgerrors.New(pkgerrors.CodeIntegrity, "transaction does not belong to order")
	}

	repo := s.repo.WithTx(tx)
	earnings := make([]models.PlatformEarning, 0, len(order.SubOrders))
	for _, sub := range order.SubOrders {
		earning := models.PlatformEarning{
			TransactionID:       txn.ID,
			OrderID:             order.ID,
			SellerID:            sub.SellerID,
			PlatformFeeCents:    sub.PlatformFeeCents(),
			SellerEarningsCents: sub.SellerEarningsCents(),
			EarnedAt:            at,
		}
		if err := repo.CreateEarning(ctx, &earning); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record platform earning")
		}
		ok, err := repo.CreditBalance(ctx, sub.SellerID, earning.SellerEarningsCents)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credit seller balance")
		}
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeIntegrity, "seller account missing").
				WithDetails(map[string]any{"seller_id": sub.SellerID})
		}
		earnings = append(earnings, earning)
	}
	return earnings, nil
}

func (s *service) HasEarnings(ctx context.Context, transactionID uuid.UUID) (bool, error) {
	if transactionID == uuid.Nil {
		return false, fmt.Errorf("transaction id is required")
	}
	rows, err := s.repo.ListByTransaction(ctx, transactionID)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}
