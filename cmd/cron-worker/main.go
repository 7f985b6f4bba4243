package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pustakbazzar/pustak-backend/internal/cron"
	"github.com/pustakbazzar/pustak-backend/internal/ledger"
	"github.com/pustakbazzar/pustak-backend/internal/notifications"
	"github.com/pustakbazzar/pustak-backend/internal/payouts"
	"github.com/pustakbazzar/pustak-backend/pkg/config"
	"github.com/pustakbazzar/pustak-backend/pkg/db"
	"github.com/pustakbazzar/pustak-backend/pkg/logger"
	"github.com/pustakbazzar/pustak-backend/pkg/metrics"
	"github.com/pustakbazzar/pustak-backend/pkg/migrate"
	"github.com/pustakbazzar/pustak-backend/pkg/outbox"
	"github.com/pustakbazzar/pustak-backend/pkg/redis"
	"github.com/pustakbazzar/pustak-backend/pkg/stripe"
)

const lockKeyFormat = "pb:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	outboxRepo := outbox.NewRepository(dbClient.DB())
	emitter, err := notifications.NewEmitter(outbox.NewService(outboxRepo, logg))
	if err != nil {
		logg.Error(context.Background(), "failed to create notification emitter", err)
		os.Exit(1)
	}

	providers := []payouts.Provider{}
	if cfg.Stripe.APIKey != "" {
		stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap stripe", err)
			os.Exit(1)
		}
		providers = append(providers, payouts.NewStripeConnectProvider(stripeClient))
	}
	providers = append(providers, payouts.ManualProvider{})

	payoutService, err := payouts.NewService(payouts.ServiceParams{
		Repo:               payouts.NewRepository(dbClient.DB()),
		Ledger:             ledger.NewRepository(dbClient.DB()),
		Providers:          providers,
		Notifier:           emitter,
		Locker:             redisClient,
		TxRunner:           dbClient,
		Metrics:            metrics.NewPaymentMetrics(prometheus.DefaultRegisterer),
		Logger:             logg,
		MinimumPayoutCents: cfg.Platform.MinimumPayoutCents,
		ProcessingDays:     cfg.Platform.PayoutProcessingDays,
		Currency:           cfg.Platform.Currency,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payout service", err)
		os.Exit(1)
	}

	payoutJob, err := cron.NewSellerPayoutJob(cron.SellerPayoutJobParams{Logger: logg, Payouts: payoutService})
	if err != nil {
		logg.Error(context.Background(), "failed to create payout job", err)
		os.Exit(1)
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:    logg,
		DB:        dbClient,
		Outbox:    outboxRepo,
		Retention: cfg.Cron.OutboxRetention,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}
	registry, err := cron.NewRegistry(payoutJob, retentionJob)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	lock, err := redis.NewMutex(redisClient, lockKey(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"interval":    cfg.Cron.Interval.String(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
