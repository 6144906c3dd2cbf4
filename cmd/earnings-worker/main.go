package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/settlements-backend/internal/cron"
	"github.com/angelmondragon/settlements-backend/internal/earnings"
	"github.com/angelmondragon/settlements-backend/internal/ledger"
	"github.com/angelmondragon/settlements-backend/internal/payouts"
	"github.com/angelmondragon/settlements-backend/pkg/config"
	"github.com/angelmondragon/settlements-backend/pkg/db"
	"github.com/angelmondragon/settlements-backend/pkg/events"
	"github.com/angelmondragon/settlements-backend/pkg/logger"
	"github.com/angelmondragon/settlements-backend/pkg/metrics"
	"github.com/angelmondragon/settlements-backend/pkg/migrate"
	"github.com/angelmondragon/settlements-backend/pkg/pubsub"
	"github.com/angelmondragon/settlements-backend/pkg/redis"
)

const lockKeyFormat = "stl:earnings-worker:lock:%s"

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "earnings-worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "earnings-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	requireResource(ctx, logg, "database", err)

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		requireResource(ctx, logg, "dev migrations", err)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)

	defer func() {
		closeErr := multierr.Combine(
			pubsubClient.Close(),
			redisClient.Close(),
			dbClient.Close(),
		)
		if closeErr != nil {
			logg.Error(ctx, "error closing worker resources", closeErr)
		}
	}()

	subscription := pubsubClient.OrdersSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "orders subscription", errors.New("subscription not configured"))
	}

	manager, err := events.NewIdempotencyManager(redisClient, cfg.Eventing.ConsumerIdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		Repo: ledger.NewRepository(dbClient.DB()),
	})
	requireResource(ctx, logg, "ledger service", err)

	consumer, err := earnings.NewConsumer(ledgerService, subscription, manager, logg)
	requireResource(ctx, logg, "earnings consumer", err)

	jobMetrics := metrics.NewJobMetrics(prometheus.DefaultRegisterer)
	staleJob, err := cron.NewStalePayoutJob(cron.StalePayoutJobParams{
		Logger:     logg,
		Repo:       payouts.NewRepository(dbClient.DB()),
		Metrics:    jobMetrics,
		StaleAfter: cfg.Payouts.StalePendingAfter,
		BatchSize:  cfg.Payouts.SweepBatchSize,
	})
	requireResource(ctx, logg, "stale payout job", err)

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	requireResource(ctx, logg, "sweep lock", err)

	sweeper, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(staleJob),
		Lock:     lock,
		Metrics:  jobMetrics,
		Interval: cfg.Payouts.SweepInterval,
	})
	requireResource(ctx, logg, "sweep service", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{"env": cfg.App.Env})
	logg.Info(runCtx, "earnings worker ready")

	sweepDone := make(chan error, 1)
	go func() {
		sweepDone <- sweeper.Run(runCtx)
	}()

	consumeErr := consumer.Run(runCtx)
	sweepErr := <-sweepDone

	runErr := multierr.Combine(consumeErr, sweepErr)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logg.Error(runCtx, "earnings worker failed", runErr)
		os.Exit(1)
	}

	logg.Info(runCtx, "earnings worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
