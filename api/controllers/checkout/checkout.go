package checkout

import (
	"net/http"

	"github.com/pustakbazzar/pustak-backend/api/middleware"
	"github.com/pustakbazzar/pustak-backend/api/responses"
	"github.com/pustakbazzar/pustak-backend/api/validators"
	checkoutsvc "github.com/pustakbazzar/pustak-backend/internal/checkout"
	"github.com/pustakbazzar/pustak-backend/pkg/enums"
	pkgerrors "github.com/pustakbazzar/pustak-backend/pkg/errors"
	"github.com/pustakbazzar/pustak-backend/pkg/logger"
	"github.com/pustakbazzar/pustak-backend/pkg/types"
)

type checkoutRequest struct {
	PaymentMethod    string        `json:"payment_method" validate:"required"`
	ShippingFeeCents *int64        `json:"shipping_fee_cents,omitempty"`
	DiscountCents    int64         `json:"discount_cents"`
	ShippingAddress  types.Address `json:"shipping_address"`
}

func (r checkoutRequest) toInput() (checkoutsvc.Input, error) {
	method, err := enums.ParsePaymentMethod(r.PaymentMethod)
	if err != nil {
		return checkoutsvc.Input{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported payment method").
			WithDetails(map[string]any{"payment_method": r.PaymentMethod})
	}
	return checkoutsvc.Input{
		PaymentMethod:    method,
		ShippingFeeCents: r.ShippingFeeCents,
		DiscountCents:    r.DiscountCents,
		ShippingAddress:  r.ShippingAddress,
	}, nil
}

// Checkout converts the caller's cart into an order and starts payment.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, err := middleware.RequirePrincipal(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Checkout(r.Context(), principal.UserID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// RetryPayment opens a fresh gateway attempt for an unpaid order.
func RetryPayment(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, err := middleware.RequirePrincipal(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.RetryPayment(r.Context(), principal.UserID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
