package helpers

import (
	"github.com/pustakbazzar/pustak-backend/pkg/checkout"
	pkgerrors "github.com/pustakbazzar/pustak-backend/pkg/errors"
	"github.com/pustakbazzar/pustak-backend/pkg/types"
)

// ValidateShippingAddress requires the fields a courier needs.
func ValidateShippingAddress(addr types.Address) error {
	if missing := addr.Missing(); len(missing) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping address is required").
			WithDetails(map[string]any{"missing": missing})
	}
	return nil
}

// ValidateAmounts enforces non-negative amounts and a discount that does not
// exceed what the buyer owes.
func ValidateAmounts(totalPriceCents, shippingFeeCents, discountCents int64) error {
	return checkout.ValidateAmounts(checkout.Amounts{
		TotalPriceCents:  totalPriceCents,
		ShippingFeeCents: shippingFeeCents,
		DiscountCents:    discountCents,
	})
}
