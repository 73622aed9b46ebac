package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/simcheck/simcheck-backend/internal/email"
	"github.com/simcheck/simcheck-backend/internal/notifications"
	"github.com/simcheck/simcheck-backend/internal/profiles"
	"github.com/simcheck/simcheck-backend/internal/push"
	"github.com/simcheck/simcheck-backend/pkg/config"
	"github.com/simcheck/simcheck-backend/pkg/db"
	"github.com/simcheck/simcheck-backend/pkg/inbox"
	"github.com/simcheck/simcheck-backend/pkg/instance"
	"github.com/simcheck/simcheck-backend/pkg/logger"
	"github.com/simcheck/simcheck-backend/pkg/metrics"
	"github.com/simcheck/simcheck-backend/pkg/pubsub"
	"github.com/simcheck/simcheck-backend/pkg/redis"
	"github.com/simcheck/simcheck-backend/pkg/sendpulse"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "notification-worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "notification-worker"

	logg = logger.New(logger.Options{
		ServiceName: "notification-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "failed to close database", err)
		}
	}()

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

	domainMetrics := metrics.NewDomainMetrics(prometheus.DefaultRegisterer)

	pushService, err := push.NewService(push.ServiceParams{
		Repo:      push.NewRepository(dbClient.DB()),
		Transport: push.NewVAPIDTransport(cfg.Push),
		PublicKey: cfg.Push.VAPIDPublicKey,
		Metrics:   domainMetrics,
		Logger:    logg,
	})
	requireResource(ctx, logg, "push service", err)

	sendpulseClient, err := sendpulse.NewClient(ctx, cfg.SendPulse, logg)
	requireResource(ctx, logg, "sendpulse", err)

	warmup, err := email.NewWarmup(cfg.Warmup, redisClient)
	requireResource(ctx, logg, "email warm-up", err)

	emailService, err := email.NewService(email.ServiceParams{
		Repo:    email.NewRepository(dbClient.DB()),
		Sender:  sendpulseClient,
		Warmup:  warmup,
		Metrics: domainMetrics,
		Logger:  logg,
	})
	requireResource(ctx, logg, "email service", err)

	sendMarks, err := inbox.NewMarker(redisClient, cfg.Eventing.OutboxIdempotencyTTL, "notification:sent")
	requireResource(ctx, logg, "notification send marker", err)

	dispatcher, err := notifications.NewDispatcher(notifications.DispatcherParams{
		Repo:      notifications.NewRepository(dbClient.DB()),
		Profiles:  profiles.NewRepository(dbClient.DB()),
		Push:      pushService,
		Mail:      emailService,
		Sent:      sendMarks,
		PublicURL: cfg.App.PublicURL,
		Logger:    logg,
	})
	requireResource(ctx, logg, "notification dispatcher", err)

	fanout, err := notifications.NewFanout(dispatcher)
	requireResource(ctx, logg, "notification fan-out", err)

	marks, err := inbox.NewMarker(redisClient, cfg.Eventing.OutboxIdempotencyTTL, "evt:processed")
	requireResource(ctx, logg, "idempotency marker", err)

	consumer, err := inbox.New(inbox.Options{
		Name:    notifications.ConsumerName,
		Marks:   marks,
		Handler: fanout,
		Logger:  logg,
		Metrics: domainMetrics,
	})
	requireResource(ctx, logg, "notification consumer", err)

	service, err := newWorker(logg, consumer, pubsubClient.Subscriber(cfg.PubSub.NotificationSubscription),
		dependency{name: "database", ping: dbClient.Ping},
		dependency{name: "redis", ping: redisClient.Ping},
		dependency{name: "pubsub", ping: pubsubClient.Ping},
	)
	requireResource(ctx, logg, "notification worker", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.ID(cfg.Service.Kind),
	})
	logg.Info(runCtx, "notification worker ready")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "notification worker failed", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "notification worker shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
