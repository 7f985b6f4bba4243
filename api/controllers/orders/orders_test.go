package orders

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pustakbazzar/pustak-backend/api/middleware"
	internalorders "github.com/pustakbazzar/pustak-backend/internal/orders"
	"github.com/pustakbazzar/pustak-backend/pkg/auth"
	"github.com/pustakbazzar/pustak-backend/pkg/enums"
	pkgerrors "github.com/pustakbazzar/pustak-backend/pkg/errors"
	"github.com/pustakbazzar/pustak-backend/pkg/pagination"
)

type stubOrdersService struct {
	internalorders.Service

	get          func(viewer internalorders.Viewer, orderID uuid.UUID) (*internalorders.OrderDTO, error)
	listBuyer    func(buyerID uuid.UUID, filters internalorders.ListFilters, params pagination.Params) (*pagination.Page[internalorders.OrderDTO], error)
	listAdmin    func(filters internalorders.ListFilters, params pagination.Params) (*pagination.Page[internalorders.OrderDTO], error)
	decide       func(sellerID, orderID uuid.UUID, input internalorders.DecisionInput) (*internalorders.OrderDTO, error)
	cancel       func(buyerID, orderID uuid.UUID) (*internalorders.OrderDTO, error)
	adminUpdate  func(adminID, orderID uuid.UUID, status enums.OrderStatus, reason string) (*internalorders.OrderDTO, error)
	trackingSeen string
}

func (s *stubOrdersService) Get(ctx context.Context, viewer internalorders.Viewer, orderID uuid.UUID) (*internalorders.OrderDTO, error) {
	return s.get(viewer, orderID)
}

func (s *stubOrdersService) ListBuyer(ctx context.Context, buyerID uuid.UUID, filters internalorders.ListFilters, params pagination.Params) (*pagination.Page[internalorders.OrderDTO], error) {
	return s.listBuyer(buyerID, filters, params)
}

func (s *stubOrdersService) ListAdmin(ctx context.Context, filters internalorders.ListFilters, params pagination.Params) (*pagination.Page[internalorders.OrderDTO], error) {
	return s.listAdmin(filters, params)
}

func (s *stubOrdersService) Decide(ctx context.Context, sellerID, orderID uuid.UUID, input internalorders.DecisionInput) (*internalorders.OrderDTO, error) {
	return s.decide(sellerID, orderID, input)
}

func (s *stubOrdersService) CancelOrder(ctx context.Context, buyerID, orderID uuid.UUID) (*internalorders.OrderDTO, error) {
	return s.cancel(buyerID, orderID)
}

func (s *stubOrdersService) UpdateTracking(ctx context.Context, sellerID, orderID uuid.UUID, trackingNumber string) (*internalorders.OrderDTO, error) {
	s.trackingSeen = trackingNumber
	return &internalorders.OrderDTO{ID: orderID}, nil
}

func (s *stubOrdersService) AdminUpdateStatus(ctx context.Context, adminID, orderID uuid.UUID, status enums.OrderStatus, reason string) (*internalorders.OrderDTO, error) {
	return s.adminUpdate(adminID, orderID, status, reason)
}

func request(method, target, body string, principal auth.Principal, orderID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rc := chi.NewRouteContext()
	if orderID != uuid.Nil {
		rc.URLParams.Add("orderId", orderID.String())
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	ctx = middleware.WithPrincipal(ctx, principal)
	return req.WithContext(ctx)
}

func user() auth.Principal {
	return auth.Principal{UserID: uuid.New(), Role: enums.UserRoleUser}
}

func TestListBuyerParsesFilters(t *testing.T) {
	caller := user()
	svc := &stubOrdersService{listBuyer: func(buyerID uuid.UUID, filters internalorders.ListFilters, params pagination.Params) (*pagination.Page[internalorders.OrderDTO], error) {
		assert.Equal(t, caller.UserID, buyerID)
		require.NotNil(t, filters.OrderStatus)
		assert.Equal(t, enums.OrderStatusConfirmed, *filters.OrderStatus)
		assert.Nil(t, filters.PaymentStatus)
		assert.Equal(t, 5, params.Limit)
		return &pagination.Page[internalorders.OrderDTO]{Items: []internalorders.OrderDTO{}}, nil
	}}

	rec := httptest.NewRecorder()
	ListBuyer(svc, nil).ServeHTTP(rec, request(http.MethodGet, "/api/v1/orders?order_status=confirmed&limit=5", "", caller, uuid.Nil))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestListBuyerRejectsUnknownStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	ListBuyer(&stubOrdersService{}, nil).ServeHTTP(rec, request(http.MethodGet, "/api/v1/orders?payment_status=refunded", "", user(), uuid.Nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDetailPassesViewer(t *testing.T) {
	caller := auth.Principal{UserID: uuid.New(), Role: enums.UserRoleAdmin}
	orderID := uuid.New()
	svc := &stubOrdersService{get: func(viewer internalorders.Viewer, id uuid.UUID) (*internalorders.OrderDTO, error) {
		assert.Equal(t, internalorders.Viewer{UserID: caller.UserID, Role: enums.UserRoleAdmin}, viewer)
		return &internalorders.OrderDTO{ID: id}, nil
	}}
	rec := httptest.NewRecorder()
	Detail(svc, nil).ServeHTTP(rec, request(http.MethodGet, "/", "", caller, orderID))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDetailNotFound(t *testing.T) {
	svc := &stubOrdersService{get: func(internalorders.Viewer, uuid.UUID) (*internalorders.OrderDTO, error) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}}
	rec := httptest.NewRecorder()
	Detail(svc, nil).ServeHTTP(rec, request(http.MethodGet, "/", "", user(), uuid.New()))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSellerDecision(t *testing.T) {
	caller := user()
	orderID := uuid.New()
	svc := &stubOrdersService{decide: func(sellerID, id uuid.UUID, input internalorders.DecisionInput) (*internalorders.OrderDTO, error) {
		assert.Equal(t, caller.UserID, sellerID)
		assert.Equal(t, enums.SellerDecisionRejected, input.Decision)
		assert.Equal(t, "book damaged", input.Message)
		return &internalorders.OrderDTO{ID: id, OrderStatus: enums.OrderStatusCancelledBySeller}, nil
	}}

	rec := httptest.NewRecorder()
	SellerDecision(svc, nil).ServeHTTP(rec, request(http.MethodPatch, "/", `{"decision":"Rejected","message":"book damaged"}`, caller, orderID))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), string(enums.OrderStatusCancelledBySeller))
}

func TestSellerDecisionRejectsUnknownDecision(t *testing.T) {
	rec := httptest.NewRecorder()
	SellerDecision(&stubOrdersService{}, nil).ServeHTTP(rec, request(http.MethodPatch, "/", `{"decision":"maybe"}`, user(), uuid.New()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSellerDecisionStateConflict(t *testing.T) {
	svc := &stubOrdersService{decide: func(uuid.UUID, uuid.UUID, internalorders.DecisionInput) (*internalorders.OrderDTO, error) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "sub-order already decided")
	}}
	rec := httptest.NewRecorder()
	SellerDecision(svc, nil).ServeHTTP(rec, request(http.MethodPatch, "/", `{"decision":"approved"}`, user(), uuid.New()))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestUpdateTrackingTrims(t *testing.T) {
	svc := &stubOrdersService{}
	rec := httptest.NewRecorder()
	UpdateTracking(svc, nil).ServeHTTP(rec, request(http.MethodPatch, "/", `{"tracking_number":"  NCM-42 "}`, user(), uuid.New()))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "NCM-42", svc.trackingSeen)
}

func TestCancel(t *testing.T) {
	caller := user()
	orderID := uuid.New()
	svc := &stubOrdersService{cancel: func(buyerID, id uuid.UUID) (*internalorders.OrderDTO, error) {
		assert.Equal(t, caller.UserID, buyerID)
		return &internalorders.OrderDTO{ID: id, OrderStatus: enums.OrderStatusCancelled}, nil
	}}
	rec := httptest.NewRecorder()
	Cancel(svc, nil).ServeHTTP(rec, request(http.MethodPatch, "/", "", caller, orderID))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminUpdateStatus(t *testing.T) {
	admin := auth.Principal{UserID: uuid.New(), Role: enums.UserRoleAdmin}
	svc := &stubOrdersService{adminUpdate: func(adminID, orderID uuid.UUID, status enums.OrderStatus, reason string) (*internalorders.OrderDTO, error) {
		assert.Equal(t, admin.UserID, adminID)
		assert.Equal(t, enums.OrderStatusCancelled, status)
		assert.Equal(t, "fraud", reason)
		return &internalorders.OrderDTO{ID: orderID, OrderStatus: status}, nil
	}}
	rec := httptest.NewRecorder()
	AdminUpdateStatus(svc, nil).ServeHTTP(rec, request(http.MethodPatch, "/", `{"status":"cancelled","reason":"fraud"}`, admin, uuid.New()))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestAdminList(t *testing.T) {
	svc := &stubOrdersService{listAdmin: func(filters internalorders.ListFilters, params pagination.Params) (*pagination.Page[internalorders.OrderDTO], error) {
		require.NotNil(t, filters.PaymentStatus)
		assert.Equal(t, enums.PaymentStatusPaid, *filters.PaymentStatus)
		assert.Equal(t, pagination.DefaultLimit, params.Limit)
		return &pagination.Page[internalorders.OrderDTO]{Items: []internalorders.OrderDTO{}}, nil
	}}
	rec := httptest.NewRecorder()
	AdminList(svc, nil).ServeHTTP(rec, request(http.MethodGet, "/api/admin/v1/orders?payment_status=paid", "", user(), uuid.Nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
