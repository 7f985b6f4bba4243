package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pustakbazzar/pustak-backend/api/controllers"
	"github.com/pustakbazzar/pustak-backend/api/routes"
	"github.com/pustakbazzar/pustak-backend/internal/books"
	"github.com/pustakbazzar/pustak-backend/internal/cart"
	"github.com/pustakbazzar/pustak-backend/internal/checkout"
	"github.com/pustakbazzar/pustak-backend/internal/ledger"
	"github.com/pustakbazzar/pustak-backend/internal/notifications"
	"github.com/pustakbazzar/pustak-backend/internal/orders"
	"github.com/pustakbazzar/pustak-backend/internal/payments"
	"github.com/pustakbazzar/pustak-backend/internal/payouts"
	"github.com/pustakbazzar/pustak-backend/internal/pricing"
	"github.com/pustakbazzar/pustak-backend/internal/settlement"
	stripewebhook "github.com/pustakbazzar/pustak-backend/internal/webhooks/stripe"
	"github.com/pustakbazzar/pustak-backend/pkg/config"
	"github.com/pustakbazzar/pustak-backend/pkg/db"
	"github.com/pustakbazzar/pustak-backend/pkg/khalti"
	"github.com/pustakbazzar/pustak-backend/pkg/logger"
	"github.com/pustakbazzar/pustak-backend/pkg/metrics"
	"github.com/pustakbazzar/pustak-backend/pkg/migrate"
	"github.com/pustakbazzar/pustak-backend/pkg/outbox"
	"github.com/pustakbazzar/pustak-backend/pkg/redis"
	"github.com/pustakbazzar/pustak-backend/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	deps, err := buildDependencies(context.Background(), cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-sigCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}()

	logg.Info(ctx, "starting api server")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down gracefully")
}

// buildDependencies wires repositories, gateways and services for the router.
// Stripe-backed pieces are only set when an API key is configured so the
// router sees untyped nils otherwise.
func buildDependencies(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (routes.Dependencies, error) {
	gdb := dbClient.DB()

	feeRate, err := cfg.Platform.FeeRate()
	if err != nil {
		return routes.Dependencies{}, err
	}
	calculator, err := pricing.NewCalculator(feeRate)
	if err != nil {
		return routes.Dependencies{}, err
	}

	emitter, err := notifications.NewEmitter(outbox.NewService(outbox.NewRepository(gdb), logg))
	if err != nil {
		return routes.Dependencies{}, err
	}

	paymentMetrics := metrics.NewPaymentMetrics(prometheus.DefaultRegisterer)
	bookRepo := books.NewRepository(gdb)
	cartRepo := cart.NewRepository(gdb)
	orderRepo := orders.NewRepository(gdb)
	txnRepo := payments.NewRepository(gdb)
	ledgerRepo := ledger.NewRepository(gdb)

	gateways := []payments.Gateway{payments.NewCreditGateway()}
	providers := []payouts.Provider{}
	var stripeClient *stripe.Client

	if cfg.Khalti.SecretKey != "" {
		khaltiClient, err := khalti.NewClient(cfg.Khalti.SecretKey, khalti.WithBaseURL(cfg.Khalti.BaseURL))
		if err != nil {
			return routes.Dependencies{}, err
		}
		gateway, err := payments.NewKhaltiGateway(khaltiClient, cfg.Checkout)
		if err != nil {
			return routes.Dependencies{}, err
		}
		gateways = append(gateways, gateway)
	} else {
		logg.Warn(ctx, "khalti secret key not set, khalti payments disabled")
	}

	if cfg.Stripe.APIKey != "" {
		stripeClient, err = stripe.NewClient(ctx, cfg.Stripe, logg)
		if err != nil {
			return routes.Dependencies{}, err
		}
		gateway, err := payments.NewStripeGateway(stripeClient, cfg.Checkout)
		if err != nil {
			return routes.Dependencies{}, err
		}
		gateways = append(gateways, gateway)
		providers = append(providers, payouts.NewStripeConnectProvider(stripeClient))
	} else {
		logg.Warn(ctx, "stripe api key not set, stripe payments and webhooks disabled")
	}
	providers = append(providers, payouts.ManualProvider{})

	registry, err := payments.NewRegistry(gateways...)
	if err != nil {
		return routes.Dependencies{}, err
	}

	cartService, err := cart.NewService(cartRepo, bookRepo)
	if err != nil {
		return routes.Dependencies{}, err
	}
	orderService, err := orders.NewService(orderRepo, dbClient, bookRepo, emitter, logg)
	if err != nil {
		return routes.Dependencies{}, err
	}
	ledgerService, err := ledger.NewService(ledgerRepo)
	if err != nil {
		return routes.Dependencies{}, err
	}
	settlementService, err := settlement.NewService(settlement.ServiceParams{
		Transactions:  txnRepo,
		Orders:        orderRepo,
		Ledger:        ledgerService,
		Notifier:      emitter,
		Books:         bookRepo,
		Gateways:      registry,
		TxRunner:      dbClient,
		Metrics:       paymentMetrics,
		Logger:        logg,
		VerifyTimeout: cfg.Checkout.GatewayTimeout,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}
	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Carts:        cartRepo,
		Orders:       orderRepo,
		Transactions: txnRepo,
		Books:        bookRepo,
		Gateways:     registry,
		Pricing:      calculator,
		Notifier:     emitter,
		Locker:       redisClient,
		TxRunner:     dbClient,
		Metrics:      paymentMetrics,
		Logger:       logg,
		Config:       cfg.Checkout,
		Currency:     cfg.Platform.Currency,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}
	payoutService, err := payouts.NewService(payouts.ServiceParams{
		Repo:               payouts.NewRepository(gdb),
		Ledger:             ledgerRepo,
		Providers:          providers,
		Notifier:           emitter,
		Locker:             redisClient,
		TxRunner:           dbClient,
		Metrics:            paymentMetrics,
		Logger:             logg,
		MinimumPayoutCents: cfg.Platform.MinimumPayoutCents,
		ProcessingDays:     cfg.Platform.PayoutProcessingDays,
		Currency:           cfg.Platform.Currency,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	deps := routes.Dependencies{
		Config: cfg,
		Logger: logg,
		Pingers: map[string]controllers.Pinger{
			"database": dbClient,
			"redis":    redisClient,
		},
		Redis:      redisClient,
		Metrics:    promhttp.Handler(),
		Cart:       cartService,
		Checkout:   checkoutService,
		Orders:     orderService,
		Settlement: settlementService,
		Payouts:    payoutService,
	}

	if stripeClient != nil {
		webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
			Settlement: settlementService,
			Logger:     logg,
		})
		if err != nil {
			return routes.Dependencies{}, err
		}
		guard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Webhooks.IdempotencyTTL, "stripe_webhook")
		if err != nil {
			return routes.Dependencies{}, err
		}
		deps.StripeWebhooks = webhookService
		deps.StripeClient = stripeClient
		deps.StripeGuard = guard
	}

	return deps, nil
}
