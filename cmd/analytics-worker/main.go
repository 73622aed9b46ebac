package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/simcheck/simcheck-backend/internal/analytics/router"
	"github.com/simcheck/simcheck-backend/internal/analytics/writer"
	"github.com/simcheck/simcheck-backend/pkg/bigquery"
	"github.com/simcheck/simcheck-backend/pkg/config"
	"github.com/simcheck/simcheck-backend/pkg/inbox"
	"github.com/simcheck/simcheck-backend/pkg/instance"
	"github.com/simcheck/simcheck-backend/pkg/logger"
	"github.com/simcheck/simcheck-backend/pkg/metrics"
	"github.com/simcheck/simcheck-backend/pkg/pubsub"
	"github.com/simcheck/simcheck-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "analytics-worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "analytics-worker"

	logg = logger.New(logger.Options{
		ServiceName: "analytics-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "failed to close redis client", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}()

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	requireResource(ctx, logg, "bigquery client", err)
	defer func() {
		if err := bqClient.Close(); err != nil {
			logg.Error(ctx, "failed to close bigquery client", err)
		}
	}()

	marks, err := inbox.NewMarker(redisClient, cfg.Eventing.OutboxIdempotencyTTL, "evt:processed")
	requireResource(ctx, logg, "idempotency marker", err)

	scanWriter, err := writer.New(bqClient, writer.Config{ScanEventsTable: cfg.BigQuery.ScanEventsTable})
	requireResource(ctx, logg, "scan events writer", err)
	defer func() {
		if err := scanWriter.Flush(context.Background()); err != nil {
			logg.Error(ctx, "failed to flush scan events", err)
		}
	}()

	routes, err := router.NewRouter(scanWriter, logg, nil)
	requireResource(ctx, logg, "analytics router", err)

	consumer, err := inbox.New(inbox.Options{
		Name:    router.ConsumerName,
		Marks:   marks,
		Handler: routes,
		Logger:  logg,
		Metrics: metrics.NewDomainMetrics(prometheus.DefaultRegisterer),
	})
	requireResource(ctx, logg, "analytics consumer", err)

	subscription := pubsubClient.Subscriber(cfg.PubSub.AnalyticsSubscription)
	if subscription == nil {
		requireResource(ctx, logg, "analytics subscription", errors.New("subscription not configured"))
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.ID(cfg.Service.Kind),
	})
	logg.Info(runCtx, "analytics worker ready")

	if err := consumer.Run(runCtx, subscription); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "analytics worker failed", err)
		os.Exit(1)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
