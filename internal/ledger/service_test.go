package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pustakbazzar/pustak-backend/pkg/db/models"
	pkgerrors "github.com/pustakbazzar/pustak-backend/pkg/errors"
)

type fakeRepository struct {
	earnings []models.PlatformEarning
	credits  map[uuid.UUID]int64
	missing  map[uuid.UUID]bool
	createFn func(ctx context.Context, earning *models.PlatformEarning) error
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{credits: map[uuid.UUID]int64{}, missing: map[uuid.UUID]bool{}}
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) CreateEarning(ctx context.Context, earning *models.PlatformEarning) error {
	if f.createFn != nil {
		if err := f.createFn(ctx, earning); err != nil {
			return err
		}
	}
	f.earnings = append(f.earnings, *earning)
	return nil
}

func (f *fakeRepository) ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]models.PlatformEarning, error) {
	var out []models.PlatformEarning
	for _, e := range f.earnings {
		if e.TransactionID == transactionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeRepository) SumPlatformFees(ctx context.Context, sellerID uuid.UUID) (int64, error) {
	return 0, nil
}

func (f *fakeRepository) FindAccount(ctx context.Context, sellerID uuid.UUID) (*models.User, error) {
	return nil, nil
}

func (f *fakeRepository) CreditBalance(ctx context.Context, sellerID uuid.UUID, amountCents int64) (bool, error) {
	if f.missing[sellerID] {
		return false, nil
	}
	f.credits[sellerID] += amountCents
	return true, nil
}

func (f *fakeRepository) DrainBalance(ctx context.Context, sellerID uuid.UUID, expectedCents int64) (bool, error) {
	return false, nil
}

func (f *fakeRepository) SellersWithBalance(ctx context.Context, minCents int64) ([]uuid.UUID, error) {
	return nil, nil
}

func settledOrder() (*models.Transaction, *models.Order) {
	orderID := uuid.New()
	order := &models.Order{
		ID: orderID,
		SubOrders: []models.SubOrder{
			{SellerID: uuid.New(), Lines: []models.OrderLine{
				{UnitPriceCents: 100, Quantity: 2, PlatformFeeCents: 20, SellerEarningsCents: 180},
				{UnitPriceCents: 55, Quantity: 1, PlatformFeeCents: 6, SellerEarningsCents: 49},
			}},
			{SellerID: uuid.New(), Lines: []models.OrderLine{
				{UnitPriceCents: 50, Quantity: 1, PlatformFeeCents: 5, SellerEarningsCents: 45},
			}},
		},
	}
	return &models.Transaction{ID: uuid.New(), OrderID: orderID}, order
}

func TestService_RecordSettlementCreditsEachSeller(t *testing.T) {
	repo := newFakeRepository()
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	txn, order := settledOrder()

	earnings, err := svc.RecordSettlement(context.Background(), nil, txn, order, time.Now())
	if err != nil {
		t.Fatalf("RecordSettlement error: %v", err)
	}
	if len(earnings) != 2 {
		t.Fatalf("expected one earning per seller, got %d", len(earnings))
	}
	if earnings[0].PlatformFeeCents != 26 || earnings[0].SellerEarningsCents != 229 {
		t.Fatalf("unexpected first earning %+v", earnings[0])
	}
	if repo.credits[order.SubOrders[0].SellerID] != 229 || repo.credits[order.SubOrders[1].SellerID] != 45 {
		t.Fatalf("unexpected credits %+v", repo.credits)
	}

	has, err := svc.HasEarnings(context.Background(), txn.ID)
	if err != nil || !has {
		t.Fatalf("expected earnings for transaction, got %v %v", has, err)
	}
}

func TestService_RecordSettlementValidation(t *testing.T) {
	repo := newFakeRepository()
	svc, _ := NewService(repo)
	txn, order := settledOrder()

	if _, err := svc.RecordSettlement(context.Background(), nil, nil, order, time.Now()); err == nil {
		t.Fatalf("expected transaction error")
	}

	other := *txn
	other.OrderID = uuid.New()
	_, err := svc.RecordSettlement(context.Background(), nil, &other, order, time.Now())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeIntegrity {
		t.Fatalf("expected integrity error, got %v", err)
	}

	repo.missing[order.SubOrders[1].SellerID] = true
	_, err = svc.RecordSettlement(context.Background(), nil, txn, order, time.Now())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeIntegrity {
		t.Fatalf("expected integrity error for missing seller, got %v", err)
	}
}

func TestService_RecordSettlementPropagatesRepoError(t *testing.T) {
	repo := newFakeRepository()
	repo.createFn = func(ctx context.Context, earning *models.PlatformEarning) error {
		return errors.New("boom")
	}
	svc, _ := NewService(repo)
	txn, order := settledOrder()

	if _, err := svc.RecordSettlement(context.Background(), nil, txn, order, time.Now()); err == nil {
		t.Fatalf("expected error")
	}
	if len(repo.credits) != 0 {
		t.Fatalf("no balance should be credited after a failed insert")
	}
}

func TestNewServiceRequiresRepo(t *testing.T) {
	if _, err := NewService(nil); err == nil {
		t.Fatalf("expected error")
	}
}
