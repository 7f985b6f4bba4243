// Package pricing splits a line's gross amount into the platform fee and the
// seller's earnings. Amounts are minor currency units.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// Fee is the result of splitting one line.
type Fee struct {
	PlatformFeeCents    int64
	SellerEarningsCents int64
}

// Calculator applies a flat fee percentage loaded from configuration.
type Calculator struct {
	feePercent decimal.Decimal
}

// NewCalculator rejects fee percentages outside [0,1).
func NewCalculator(feePercent decimal.Decimal) (*Calculator, error) {
	if err := validatePercent(feePercent); err != nil {
		return nil, err
	}
	return &Calculator{feePercent: feePercent}, nil
}

// FeePercent returns the configured rate.
func (c *Calculator) FeePercent() decimal.Decimal {
	return c.feePercent
}

// ComputeFee splits unitPriceCents*quantity using the configured rate.
func (c *Calculator) ComputeFee(unitPriceCents int64, quantity int) (Fee, error) {
	return ComputeFee(unitPriceCents, quantity, c.feePercent)
}

// ComputeFee rounds the platform fee half-up to the minor unit and gives the
// remainder to the seller, so the two parts always sum to the gross.
func ComputeFee(unitPriceCents int64, quantity int, feePercent decimal.Decimal) (Fee, error) {
	if unitPriceCents < 0 {
		return Fee{}, fmt.Errorf("unit price must be non-negative, got %d", unitPriceCents)
	}
	if quantity < 1 {
		return Fee{}, fmt.Errorf("quantity must be at least 1, got %d", quantity)
	}
	if err := validatePercent(feePercent); err != nil {
		return Fee{}, err
	}

	gross := decimal.NewFromInt(unitPriceCents).Mul(decimal.NewFromInt(int64(quantity)))
	fee := gross.Mul(feePercent).Round(0)
	return Fee{
		PlatformFeeCents:    fee.IntPart(),
		SellerEarningsCents: gross.Sub(fee).IntPart(),
	}, nil
}

// NetTotal is what the buyer pays: total + shipping - discount.
func NetTotal(totalPriceCents, shippingFeeCents, discountCents int64) int64 {
	return totalPriceCents + shippingFeeCents - discountCents
}

func validatePercent(p decimal.Decimal) error {
	if p.IsNegative() || p.GreaterThanOrEqual(one) {
		return errors.New("fee percent must be in [0,1)")
	}
	return nil
}
