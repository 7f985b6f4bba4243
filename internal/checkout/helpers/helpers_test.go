package helpers

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pustakbazzar/pustak-backend/internal/pricing"
	"github.com/pustakbazzar/pustak-backend/pkg/db/models"
	pkgerrors "github.com/pustakbazzar/pustak-backend/pkg/errors"
	"github.com/pustakbazzar/pustak-backend/pkg/types"
)

func TestBuildSubOrders(t *testing.T) {
	t.Parallel()
	calc, err := pricing.NewCalculator(decimal.RequireFromString("0.10"))
	if err != nil {
		t.Fatalf("calculator: %v", err)
	}
	sellerA, sellerB := uuid.New(), uuid.New()
	orderID := uuid.New()
	groups := []models.CartSellerGroup{
		{SellerID: sellerA, DeliveryPriceCents: 10, Lines: []models.CartLine{
			{BookID: uuid.New(), Title: "Seto Dharti", UnitPriceCents: 100, Quantity: 2},
		}},
		{SellerID: uuid.New()},
		{SellerID: sellerB, DeliveryPriceCents: 15, Lines: []models.CartLine{
			{BookID: uuid.New(), Title: "Palpasa Cafe", UnitPriceCents: 55, Quantity: 1},
		}},
	}

	subs, totals, err := BuildSubOrders(orderID, groups, calc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("expected empty group skipped, got %d sub-orders", len(subs))
	}
	if subs[0].SellerID != sellerA || subs[1].SellerID != sellerB {
		t.Fatalf("sub-orders out of cart order")
	}
	if totals.TotalPriceCents != 255 || totals.DeliveryTotalCents != 25 || totals.ItemCount != 3 {
		t.Fatalf("unexpected totals %+v", totals)
	}
	line := subs[1].Lines[0]
	if line.PlatformFeeCents != 6 || line.SellerEarningsCents != 49 {
		t.Fatalf("expected half-up fee 6/49, got %d/%d", line.PlatformFeeCents, line.SellerEarningsCents)
	}
	for _, sub := range subs {
		if sub.OrderID != orderID {
			t.Fatalf("sub-order not linked to order")
		}
		for _, l := range sub.Lines {
			if l.SubOrderID != sub.ID || l.OrderID != orderID {
				t.Fatalf("line not linked to sub-order")
			}
		}
	}
}

type failingCalc struct{}

func (failingCalc) ComputeFee(int64, int) (pricing.Fee, error) {
	return pricing.Fee{}, errors.New("quantity must be positive")
}

func TestBuildSubOrdersRejectsInvalidLine(t *testing.T) {
	t.Parallel()
	groups := []models.CartSellerGroup{{SellerID: uuid.New(), Lines: []models.CartLine{{BookID: uuid.New(), Quantity: 0}}}}
	_, _, err := BuildSubOrders(uuid.New(), groups, failingCalc{})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestValidateShippingAddress(t *testing.T) {
	t.Parallel()
	if err := ValidateShippingAddress(types.Address{FullName: "Ram", Phone: "98", Line1: "Lakeside", City: "Pokhara"}); err != nil {
		t.Fatalf("expected valid address, got %v", err)
	}
	err := ValidateShippingAddress(types.Address{FullName: "Ram"})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details := typed.Details().(map[string]any)
	if missing := details["missing"].([]string); len(missing) != 3 {
		t.Fatalf("expected 3 missing fields, got %v", missing)
	}
}

func TestValidateAmounts(t *testing.T) {
	t.Parallel()
	if err := ValidateAmounts(250, 20, 270); err != nil {
		t.Fatalf("discount equal to total should pass: %v", err)
	}
	if err := ValidateAmounts(250, 20, 271); err == nil {
		t.Fatalf("expected discount above total to fail")
	}
}
