package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/simcheck/simcheck-backend/internal/credits"
	"github.com/simcheck/simcheck-backend/internal/cron"
	"github.com/simcheck/simcheck-backend/internal/documents"
	"github.com/simcheck/simcheck-backend/internal/magiclinks"
	"github.com/simcheck/simcheck-backend/internal/notifications"
	"github.com/simcheck/simcheck-backend/pkg/config"
	"github.com/simcheck/simcheck-backend/pkg/db"
	"github.com/simcheck/simcheck-backend/pkg/instance"
	"github.com/simcheck/simcheck-backend/pkg/logger"
	"github.com/simcheck/simcheck-backend/pkg/metrics"
	"github.com/simcheck/simcheck-backend/pkg/migrate"
	"github.com/simcheck/simcheck-backend/pkg/outbox"
	"github.com/simcheck/simcheck-backend/pkg/redis"
	"github.com/simcheck/simcheck-backend/pkg/security"
	"github.com/simcheck/simcheck-backend/pkg/storage/s3"
)

const lockTTL = 10 * time.Minute

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
		Format:      cfg.App.LogFormat,
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

	if err := migrate.ApplyInDev(context.Background(), cfg, logg, dbClient); err != nil {
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

	store, err := s3.NewClient(context.Background(), cfg.Storage, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap object storage", err)
		os.Exit(1)
	}

	registry, err := buildRegistry(cfg, logg, dbClient, store)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(redisClient, cfg.App.Env), instance.ID(cfg.Service.Kind), lockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Tick,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"jobs":        len(registry.Jobs()),
		"instance":    instance.ID(cfg.Service.Kind),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, store *s3.Client) (*cron.Registry, error) {
	hasher, err := security.NewTokenHasher(cfg.Security.TokenPepper)
	if err != nil {
		return nil, err
	}
	links, err := magiclinks.NewService(magiclinks.NewRepository(dbClient.DB()), hasher, nil)
	if err != nil {
		return nil, err
	}
	ledger, err := credits.NewService(credits.NewRepository(dbClient.DB()), dbClient, logg)
	if err != nil {
		return nil, err
	}
	docs, err := documents.NewService(documents.ServiceParams{
		Repo:    documents.NewRepository(dbClient.DB()),
		Tx:      dbClient,
		Credits: ledger,
		Links:   links,
		Store:   store,
		Outbox:  outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Logger:  logg,
		Options: documents.Options{
			MaxUploadBytes: cfg.Storage.MaxUploadBytes(),
			DownloadURLTTL: cfg.Storage.DownloadURLExpiry,
			LeaseDuration:  cfg.Extension.LeaseDuration,
			MaxAttempts:    cfg.Extension.MaxAttempts,
		},
	})
	if err != nil {
		return nil, err
	}

	leaseJob, err := cron.NewLeaseReleaseJob(cron.LeaseReleaseJobParams{Logger: logg, Documents: docs})
	if err != nil {
		return nil, err
	}
	linkJob, err := cron.NewMagicLinkExpiryJob(cron.MagicLinkExpiryJobParams{Logger: logg, Links: links})
	if err != nil {
		return nil, err
	}
	outboxJob, err := cron.NewOutboxRetentionJob(logg, dbClient, outbox.NewRepository(dbClient.DB()), cfg.Cron.OutboxRetentionDays, cfg.Outbox.MaxAttempts)
	if err != nil {
		return nil, err
	}
	notificationJob, err := cron.NewNotificationCleanupJob(logg, dbClient, notifications.NewRepository(dbClient.DB()), cfg.Cron.NotificationRetentionDays)
	if err != nil {
		return nil, err
	}

	registry := cron.NewRegistry()
	registry.RegisterEvery(leaseJob, cfg.Cron.LeaseReleaseEvery)
	registry.RegisterEvery(linkJob, cfg.Cron.MagicLinkExpiryEvery)
	registry.Register(outboxJob)
	registry.Register(notificationJob)
	return registry, nil
}

func lockKey(client *redis.Client, env string) string {
	if env == "" {
		env = "local"
	}
	return client.LockKey("cron-worker:" + env)
}
