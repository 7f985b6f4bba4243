package checkout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pustakbazzar/pustak-backend/api/middleware"
	checkoutsvc "github.com/pustakbazzar/pustak-backend/internal/checkout"
	"github.com/pustakbazzar/pustak-backend/internal/orders"
	"github.com/pustakbazzar/pustak-backend/pkg/auth"
	"github.com/pustakbazzar/pustak-backend/pkg/enums"
	pkgerrors "github.com/pustakbazzar/pustak-backend/pkg/errors"
)

type stubCheckoutService struct {
	checkout func(buyerID uuid.UUID, input checkoutsvc.Input) (*checkoutsvc.Result, error)
	retry    func(buyerID, orderID uuid.UUID) (*checkoutsvc.Result, error)
}

func (s *stubCheckoutService) Checkout(ctx context.Context, buyerID uuid.UUID, input checkoutsvc.Input) (*checkoutsvc.Result, error) {
	return s.checkout(buyerID, input)
}

func (s *stubCheckoutService) RetryPayment(ctx context.Context, buyerID, orderID uuid.UUID) (*checkoutsvc.Result, error) {
	return s.retry(buyerID, orderID)
}

const validBody = `{
	"payment_method": "khalti",
	"discount_cents": 500,
	"shipping_address": {"full_name": "Sita Sharma", "phone": "9800000000", "line1": "Baneshwor", "city": "Kathmandu"}
}`

func authed(req *http.Request, userID uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithPrincipal(req.Context(), auth.Principal{UserID: userID, Role: enums.UserRoleUser}))
}

func TestCheckoutCreatesOrder(t *testing.T) {
	buyer := uuid.New()
	orderID := uuid.New()
	redirect := "https://pay.khalti.com/?pidx=abc"
	svc := &stubCheckoutService{checkout: func(buyerID uuid.UUID, input checkoutsvc.Input) (*checkoutsvc.Result, error) {
		assert.Equal(t, buyer, buyerID)
		assert.Equal(t, enums.PaymentMethodKhalti, input.PaymentMethod)
		assert.Nil(t, input.ShippingFeeCents)
		assert.Equal(t, int64(500), input.DiscountCents)
		assert.Equal(t, "Kathmandu", input.ShippingAddress.City)
		return &checkoutsvc.Result{
			Order:   orders.OrderDTO{ID: orderID},
			Payment: checkoutsvc.Payment{Method: enums.PaymentMethodKhalti, Reference: "abc", RedirectURL: &redirect},
		}, nil
	}}

	rec := httptest.NewRecorder()
	Checkout(svc, nil).ServeHTTP(rec, authed(httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(validBody)), buyer))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var envelope struct {
		Data struct {
			Order   struct{ ID uuid.UUID } `json:"order"`
			Payment struct {
				Reference   string `json:"gateway_reference"`
				RedirectURL string `json:"redirect_url"`
			} `json:"payment"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, orderID, envelope.Data.Order.ID)
	assert.Equal(t, "abc", envelope.Data.Payment.Reference)
	assert.Equal(t, redirect, envelope.Data.Payment.RedirectURL)
}

func TestCheckoutRejectsUnknownMethod(t *testing.T) {
	svc := &stubCheckoutService{checkout: func(uuid.UUID, checkoutsvc.Input) (*checkoutsvc.Result, error) {
		t.Fatal("service should not be called")
		return nil, nil
	}}
	body := strings.Replace(validBody, "khalti", "paypal", 1)
	rec := httptest.NewRecorder()
	Checkout(svc, nil).ServeHTTP(rec, authed(httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body)), uuid.New()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckoutGatewayFailureReturnsOrderID(t *testing.T) {
	orderID := uuid.New()
	svc := &stubCheckoutService{checkout: func(uuid.UUID, checkoutsvc.Input) (*checkoutsvc.Result, error) {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "khalti unavailable").
			WithDetails(map[string]any{"order_id": orderID, "payment_method": enums.PaymentMethodKhalti})
	}}
	rec := httptest.NewRecorder()
	Checkout(svc, nil).ServeHTTP(rec, authed(httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(validBody)), uuid.New()))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), orderID.String())
}

func TestRetryPayment(t *testing.T) {
	buyer, orderID := uuid.New(), uuid.New()
	svc := &stubCheckoutService{retry: func(buyerID, id uuid.UUID) (*checkoutsvc.Result, error) {
		assert.Equal(t, buyer, buyerID)
		assert.Equal(t, orderID, id)
		return &checkoutsvc.Result{Order: orders.OrderDTO{ID: id}}, nil
	}}

	rc := chi.NewRouteContext()
	rc.URLParams.Add("orderId", orderID.String())
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
	rec := httptest.NewRecorder()
	RetryPayment(svc, nil).ServeHTTP(rec, authed(req, buyer))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}
