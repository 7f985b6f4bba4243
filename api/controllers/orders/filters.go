package orders

import (
	"net/http"
	"strings"

	"github.com/pustakbazzar/pustak-backend/api/validators"
	internalorders "github.com/pustakbazzar/pustak-backend/internal/orders"
	"github.com/pustakbazzar/pustak-backend/pkg/enums"
	pkgerrors "github.com/pustakbazzar/pustak-backend/pkg/errors"
	"github.com/pustakbazzar/pustak-backend/pkg/pagination"
)

func parseListQuery(r *http.Request) (internalorders.ListFilters, pagination.Params, error) {
	var filters internalorders.ListFilters
	params, err := validators.ParsePage(r)
	if err != nil {
		return filters, params, err
	}

	query := r.URL.Query()
	if raw := strings.TrimSpace(query.Get("order_status")); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return filters, params, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order_status").
				WithDetails(map[string]any{"field": "order_status"})
		}
		filters.OrderStatus = &status
	}
	if raw := strings.TrimSpace(query.Get("payment_status")); raw != "" {
		status, err := enums.ParsePaymentStatus(raw)
		if err != nil {
			return filters, params, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment_status").
				WithDetails(map[string]any{"field": "payment_status"})
		}
		filters.PaymentStatus = &status
	}
	return filters, params, nil
}
