package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stripe/stripe-go/v84"

	"github.com/pustakbazzar/pustak-backend/api/controllers"
	cartcontrollers "github.com/pustakbazzar/pustak-backend/api/controllers/cart"
	checkoutcontrollers "github.com/pustakbazzar/pustak-backend/api/controllers/checkout"
	ordercontrollers "github.com/pustakbazzar/pustak-backend/api/controllers/orders"
	paymentcontrollers "github.com/pustakbazzar/pustak-backend/api/controllers/payments"
	payoutcontrollers "github.com/pustakbazzar/pustak-backend/api/controllers/payouts"
	webhookcontrollers "github.com/pustakbazzar/pustak-backend/api/controllers/webhooks"
	"github.com/pustakbazzar/pustak-backend/api/middleware"
	"github.com/pustakbazzar/pustak-backend/internal/cart"
	"github.com/pustakbazzar/pustak-backend/internal/checkout"
	"github.com/pustakbazzar/pustak-backend/internal/orders"
	"github.com/pustakbazzar/pustak-backend/internal/payouts"
	"github.com/pustakbazzar/pustak-backend/internal/settlement"
	"github.com/pustakbazzar/pustak-backend/pkg/config"
	"github.com/pustakbazzar/pustak-backend/pkg/enums"
	"github.com/pustakbazzar/pustak-backend/pkg/logger"
	pkgredis "github.com/pustakbazzar/pustak-backend/pkg/redis"
)

type redisStore interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

type stripeEventVerifier interface {
	ConstructEvent(payload []byte, header string) (stripe.Event, error)
}

type stripeGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// Dependencies carries everything the router hands to controllers. Stripe
// fields may be nil when Stripe is not configured; the webhook route is then
// not mounted.
type Dependencies struct {
	Config     *config.Config
	Logger     *logger.Logger
	Pingers    map[string]controllers.Pinger
	Redis      redisStore
	Metrics    http.Handler
	Cart       cart.Service
	Checkout   checkout.Service
	Orders     orders.Service
	Settlement settlement.Service
	Payouts    payouts.Service

	StripeWebhooks webhookcontrollers.StripeWebhookService
	StripeClient   stripeEventVerifier
	StripeGuard    stripeGuard
}

func NewRouter(deps Dependencies) http.Handler {
	cfg, logg := deps.Config, deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	paymentPolicy := middleware.NewRateLimitPolicy(
		"payments",
		cfg.RateLimit.PaymentWindow,
		cfg.RateLimit.PaymentIPLimit,
		cfg.RateLimit.PaymentUserLimit,
	)
	paymentLimit := middleware.RateLimit(paymentPolicy, deps.Redis, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg.App.Env))
		r.Get("/ready", controllers.HealthReady(cfg.App.Env, deps.Pingers, logg))
	})
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	if deps.StripeWebhooks != nil && deps.StripeClient != nil && deps.StripeGuard != nil {
		r.Post("/api/v1/webhooks/stripe", webhookcontrollers.StripeWebhook(deps.StripeWebhooks, deps.StripeClient, deps.StripeGuard, logg))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.Redis, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartcontrollers.View(deps.Cart, logg))
			r.Delete("/", cartcontrollers.Clear(deps.Cart, logg))
			r.Post("/lines", cartcontrollers.AddLine(deps.Cart, logg))
			r.Delete("/lines/{bookId}", cartcontrollers.RemoveLine(deps.Cart, logg))
			r.Delete("/sellers/{sellerId}", cartcontrollers.RemoveSeller(deps.Cart, logg))
			r.Put("/sellers/{sellerId}/delivery", cartcontrollers.UpdateDelivery(deps.Cart, logg))
		})

		r.With(paymentLimit).Post("/checkout", checkoutcontrollers.Checkout(deps.Checkout, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.ListBuyer(deps.Orders, logg))
			r.Get("/seller", ordercontrollers.ListSeller(deps.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
			r.Patch("/{orderId}/seller-decision", ordercontrollers.SellerDecision(deps.Orders, logg))
			r.Patch("/{orderId}/tracking", ordercontrollers.UpdateTracking(deps.Orders, logg))
			r.Patch("/{orderId}/cancel", ordercontrollers.Cancel(deps.Orders, logg))
			r.With(paymentLimit).Post("/{orderId}/pay", checkoutcontrollers.RetryPayment(deps.Checkout, logg))
		})

		r.With(paymentLimit).Post("/payments/verify", paymentcontrollers.Verify(deps.Settlement, logg))

		r.Route("/payouts", func(r chi.Router) {
			r.Get("/earnings", payoutcontrollers.Earnings(deps.Payouts, logg))
			r.Get("/history", payoutcontrollers.History(deps.Payouts, logg))
			r.Post("/", payoutcontrollers.Request(deps.Payouts, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.UserRoleAdmin, logg))
		r.Use(middleware.Idempotency(deps.Redis, logg))

		r.Get("/orders", ordercontrollers.AdminList(deps.Orders, logg))
		r.Patch("/orders/{orderId}/status", ordercontrollers.AdminUpdateStatus(deps.Orders, logg))
		r.Post("/payments/{reference}/collect", paymentcontrollers.CollectCredit(deps.Settlement, logg))
		r.Get("/payouts", payoutcontrollers.AdminList(deps.Payouts, logg))
		r.Post("/payouts/{sellerId}", payoutcontrollers.AdminPayout(deps.Payouts, logg))
	})

	return r
}
