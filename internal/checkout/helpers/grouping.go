// Package helpers turns a cart snapshot into order rows.
package helpers

import (
	"github.com/google/uuid"

	"github.com/pustakbazzar/pustak-backend/internal/pricing"
	"github.com/pustakbazzar/pustak-backend/pkg/db/models"
	pkgerrors "github.com/pustakbazzar/pustak-backend/pkg/errors"
)

// FeeCalculator splits a line total into platform fee and seller earnings.
type FeeCalculator interface {
	ComputeFee(unitPriceCents int64, quantity int) (pricing.Fee, error)
}

// OrderTotals summarizes the sub-orders built from a cart.
type OrderTotals struct {
	TotalPriceCents    int64
	DeliveryTotalCents int64
	ItemCount          int
}

// BuildSubOrders creates one pending sub-order per seller group, keeping the
// snapshot price of every line. Empty groups are skipped.
func BuildSubOrders(orderID uuid.UUID, groups []models.CartSellerGroup, calc FeeCalculator) ([]models.SubOrder, OrderTotals, error) {
	var totals OrderTotals
	subs := make([]models.SubOrder, 0, len(groups))
	for _, group := range groups {
		if len(group.Lines) == 0 {
			continue
		}
		sub := models.SubOrder{
			ID:                 uuid.New(),
			OrderID:            orderID,
			SellerID:           group.SellerID,
			DeliveryPriceCents: group.DeliveryPriceCents,
			Lines:              make([]models.OrderLine, 0, len(group.Lines)),
		}
		for _, line := range group.Lines {
			fee, err := calc.ComputeFee(line.UnitPriceCents, line.Quantity)
			if err != nil {
				return nil, OrderTotals{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cart line").
					WithDetails(map[string]any{"book_id": line.BookID})
			}
			sub.Lines = append(sub.Lines, models.OrderLine{
				ID:                  uuid.New(),
				SubOrderID:          sub.ID,
				OrderID:             orderID,
				BookID:              line.BookID,
				Title:               line.Title,
				UnitPriceCents:      line.UnitPriceCents,
				Quantity:            line.Quantity,
				PlatformFeeCents:    fee.PlatformFeeCents,
				SellerEarningsCents: fee.SellerEarningsCents,
			})
			totals.TotalPriceCents += line.UnitPriceCents * int64(line.Quantity)
			totals.ItemCount += line.Quantity
		}
		totals.DeliveryTotalCents += group.DeliveryPriceCents
		subs = append(subs, sub)
	}
	return subs, totals, nil
}
