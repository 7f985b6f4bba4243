package checkout

import (
	"fmt"

	pkgerrors "github.com/pustakbazzar/pustak-backend/pkg/errors"
)

// Amounts are the money inputs of a checkout, in minor units.
type Amounts struct {
	TotalPriceCents  int64
	ShippingFeeCents int64
	DiscountCents    int64
}

// AmountViolation describes one rejected amount.
type AmountViolation struct {
	Field  string `json:"field"`
	Value  int64  `json:"value"`
	Reason string `json:"reason"`
}

// ValidateAmounts rejects negative amounts and discounts larger than the
// order's gross total.
func ValidateAmounts(a Amounts) error {
	var violations []AmountViolation
	for _, field := range []struct {
		name  string
		value int64
	}{
		{"total_price_cents", a.TotalPriceCents},
		{"shipping_fee_cents", a.ShippingFeeCents},
		{"discount_cents", a.DiscountCents},
	} {
		if field.value < 0 {
			violations = append(violations, AmountViolation{Field: field.name, Value: field.value, Reason: "must not be negative"})
		}
	}
	if a.DiscountCents > a.TotalPriceCents+a.ShippingFeeCents {
		violations = append(violations, AmountViolation{
			Field:  "discount_cents",
			Value:  a.DiscountCents,
			Reason: fmt.Sprintf("exceeds order total %d", a.TotalPriceCents+a.ShippingFeeCents),
		})
	}
	if len(violations) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid checkout amounts (%d)", len(violations))).WithDetails(map[string]any{
		"violations": violations,
	})
}
