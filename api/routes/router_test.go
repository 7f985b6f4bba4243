package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pustakbazzar/pustak-backend/api/controllers"
	"github.com/pustakbazzar/pustak-backend/internal/cart"
	"github.com/pustakbazzar/pustak-backend/internal/checkout"
	"github.com/pustakbazzar/pustak-backend/internal/orders"
	"github.com/pustakbazzar/pustak-backend/internal/payouts"
	pkgAuth "github.com/pustakbazzar/pustak-backend/pkg/auth"
	"github.com/pustakbazzar/pustak-backend/pkg/config"
	"github.com/pustakbazzar/pustak-backend/pkg/enums"
	"github.com/pustakbazzar/pustak-backend/pkg/pagination"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type memoryRedis struct {
	mu   sync.Mutex
	data map[string]string
	hits map[string]int64
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{data: map[string]string{}, hits: map[string]int64{}}
}

func (m *memoryRedis) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key], _ = value.(string)
	return true, nil
}

func (m *memoryRedis) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryRedis) IdempotencyKey(scope, id string) string {
	return "pb:idempotency:" + scope + ":" + id
}

func (m *memoryRedis) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits[scope]++
	return m.hits[scope] <= limit, m.hits[scope], nil
}

type stubCart struct {
	cart.Service
}

func (stubCart) View(ctx context.Context, buyerID uuid.UUID) (*cart.View, error) {
	return &cart.View{BuyerID: buyerID}, nil
}

type stubCheckout struct {
	checkout.Service
	calls int
}

func (s *stubCheckout) Checkout(ctx context.Context, buyerID uuid.UUID, input checkout.Input) (*checkout.Result, error) {
	s.calls++
	return &checkout.Result{Order: orders.OrderDTO{ID: uuid.New(), BuyerID: buyerID}}, nil
}

type stubOrders struct {
	orders.Service
}

func (stubOrders) ListAdmin(ctx context.Context, filters orders.ListFilters, params pagination.Params) (*pagination.Page[orders.OrderDTO], error) {
	return &pagination.Page[orders.OrderDTO]{Items: []orders.OrderDTO{}}, nil
}

type stubPayouts struct {
	payouts.Service
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", CORSOrigins: []string{"http://localhost:3000"}},
		JWT: config.JWTConfig{Secret: "router-secret", Issuer: "pustak", ExpirationMinutes: 10},
		RateLimit: config.RateLimitConfig{
			PaymentWindow:    time.Minute,
			PaymentIPLimit:   100,
			PaymentUserLimit: 2,
		},
	}
}

func newTestRouter(t *testing.T, checkoutSvc *stubCheckout) (http.Handler, *config.Config) {
	t.Helper()
	cfg := testConfig()
	handler := NewRouter(Dependencies{
		Config:   cfg,
		Pingers:  map[string]controllers.Pinger{"db": stubPinger{}, "redis": stubPinger{}},
		Redis:    newMemoryRedis(),
		Metrics:  http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("# metrics")) }),
		Cart:     stubCart{},
		Checkout: checkoutSvc,
		Orders:   stubOrders{},
		Payouts:  stubPayouts{},
	})
	return handler, cfg
}

func bearer(t *testing.T, cfg *config.Config, role enums.UserRole) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{UserID: uuid.New(), Role: role})
	require.NoError(t, err)
	return "Bearer " + token
}

func serve(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	router, _ := newTestRouter(t, &stubCheckout{})

	assert.Equal(t, http.StatusOK, serve(router, httptest.NewRequest(http.MethodGet, "/health/live", nil)).Code)
	assert.Equal(t, http.StatusOK, serve(router, httptest.NewRequest(http.MethodGet, "/health/ready", nil)).Code)
	rec := serve(router, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# metrics")
}

func TestAPIRequiresBearerToken(t *testing.T) {
	router, cfg := newTestRouter(t, &stubCheckout{})

	assert.Equal(t, http.StatusUnauthorized, serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("Authorization", bearer(t, cfg, enums.UserRoleUser))
	assert.Equal(t, http.StatusOK, serve(router, req).Code)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	router, cfg := newTestRouter(t, &stubCheckout{})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders", nil)
	req.Header.Set("Authorization", bearer(t, cfg, enums.UserRoleUser))
	assert.Equal(t, http.StatusForbidden, serve(router, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders", nil)
	req.Header.Set("Authorization", bearer(t, cfg, enums.UserRoleAdmin))
	assert.Equal(t, http.StatusOK, serve(router, req).Code)
}

func TestCheckoutRequiresIdempotencyKeyAndReplays(t *testing.T) {
	svc := &stubCheckout{}
	router, cfg := newTestRouter(t, svc)
	token := bearer(t, cfg, enums.UserRoleUser)
	body := `{"payment_method":"credit","shipping_address":{"full_name":"A","phone":"1","line1":"x","city":"Pokhara"}}`

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body))
	req.Header.Set("Authorization", token)
	assert.Equal(t, http.StatusBadRequest, serve(router, req).Code)
	assert.Zero(t, svc.calls)

	for i := 0; i < 2; i++ {
		req = httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body))
		req.Header.Set("Authorization", token)
		req.Header.Set("Idempotency-Key", "order-1")
		assert.Equal(t, http.StatusCreated, serve(router, req).Code)
	}
	assert.Equal(t, 1, svc.calls)
}

func TestStripeWebhookNotMountedWithoutStripe(t *testing.T) {
	router, _ := newTestRouter(t, &stubCheckout{})
	// falls through to the authenticated API group
	rec := serve(router, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
