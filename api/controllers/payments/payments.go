package payments

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pustakbazzar/pustak-backend/api/middleware"
	"github.com/pustakbazzar/pustak-backend/api/responses"
	"github.com/pustakbazzar/pustak-backend/api/validators"
	"github.com/pustakbazzar/pustak-backend/internal/settlement"
	pkgerrors "github.com/pustakbazzar/pustak-backend/pkg/errors"
	"github.com/pustakbazzar/pustak-backend/pkg/logger"
)

type verifyRequest struct {
	GatewayReference string `json:"gateway_reference" validate:"required,max=255"`
}

// Verify asks the gateway for the attempt's outcome and settles it. Calling
// it again after settlement returns the recorded outcome.
func Verify(svc settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, err := middleware.RequirePrincipal(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload verifyRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		outcome, err := svc.VerifyAndSettle(r.Context(), principal.UserID, strings.TrimSpace(payload.GatewayReference))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, outcome)
	}
}

// CollectCredit marks a credit order's cash as received.
func CollectCredit(svc settlement.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, err := middleware.RequirePrincipal(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reference := strings.TrimSpace(chi.URLParam(r, "reference"))
		if reference == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "gateway reference is required"))
			return
		}
		outcome, err := svc.CollectCredit(r.Context(), principal.UserID, reference)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, outcome)
	}
}
