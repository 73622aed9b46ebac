package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/simcheck/simcheck-backend/api/controllers"
	"github.com/simcheck/simcheck-backend/api/routes"
	"github.com/simcheck/simcheck-backend/internal/analytics"
	"github.com/simcheck/simcheck-backend/internal/bulkmatch"
	"github.com/simcheck/simcheck-backend/internal/credits"
	"github.com/simcheck/simcheck-backend/internal/documents"
	"github.com/simcheck/simcheck-backend/internal/email"
	"github.com/simcheck/simcheck-backend/internal/extension"
	"github.com/simcheck/simcheck-backend/internal/magiclinks"
	"github.com/simcheck/simcheck-backend/internal/notifications"
	"github.com/simcheck/simcheck-backend/internal/payments"
	"github.com/simcheck/simcheck-backend/internal/profiles"
	"github.com/simcheck/simcheck-backend/internal/push"
	"github.com/simcheck/simcheck-backend/internal/refunds"
	"github.com/simcheck/simcheck-backend/internal/tickets"
	"github.com/simcheck/simcheck-backend/internal/webhooks"
	paddlewebhook "github.com/simcheck/simcheck-backend/internal/webhooks/paddle"
	stripewebhook "github.com/simcheck/simcheck-backend/internal/webhooks/stripe"
	vivawebhook "github.com/simcheck/simcheck-backend/internal/webhooks/viva"
	"github.com/simcheck/simcheck-backend/pkg/bigquery"
	"github.com/simcheck/simcheck-backend/pkg/config"
	"github.com/simcheck/simcheck-backend/pkg/db"
	"github.com/simcheck/simcheck-backend/pkg/inbox"
	"github.com/simcheck/simcheck-backend/pkg/instance"
	"github.com/simcheck/simcheck-backend/pkg/logger"
	"github.com/simcheck/simcheck-backend/pkg/metrics"
	"github.com/simcheck/simcheck-backend/pkg/migrate"
	"github.com/simcheck/simcheck-backend/pkg/outbox"
	"github.com/simcheck/simcheck-backend/pkg/pdftext"
	"github.com/simcheck/simcheck-backend/pkg/redis"
	"github.com/simcheck/simcheck-backend/pkg/security"
	"github.com/simcheck/simcheck-backend/pkg/sendpulse"
	"github.com/simcheck/simcheck-backend/pkg/storage/s3"
	"github.com/simcheck/simcheck-backend/pkg/stripe"
	"github.com/simcheck/simcheck-backend/pkg/viva"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	requireResource(ctx, logg, "dev migrations", migrate.ApplyInDev(ctx, cfg, logg, dbClient))

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	store, err := s3.NewClient(ctx, cfg.Storage, logg)
	requireResource(ctx, logg, "object storage", err)

	health := map[string]controllers.Pinger{
		"db":      dbClient,
		"redis":   redisClient,
		"storage": store,
	}

	hasher, err := security.NewTokenHasher(cfg.Security.TokenPepper)
	requireResource(ctx, logg, "token hasher", err)

	domainMetrics := metrics.NewDomainMetrics(prometheus.DefaultRegisterer)
	emitter := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	profileRepo := profiles.NewRepository(dbClient.DB())
	profileService, err := profiles.NewService(profileRepo)
	requireResource(ctx, logg, "profiles service", err)

	ledger, err := credits.NewService(credits.NewRepository(dbClient.DB()), dbClient, logg)
	requireResource(ctx, logg, "credits service", err)

	linkService, err := magiclinks.NewService(magiclinks.NewRepository(dbClient.DB()), hasher, nil)
	requireResource(ctx, logg, "magic links service", err)

	docRepo := documents.NewRepository(dbClient.DB())
	documentService, err := documents.NewService(documents.ServiceParams{
		Repo:    docRepo,
		Tx:      dbClient,
		Credits: ledger,
		Links:   linkService,
		Store:   store,
		Outbox:  emitter,
		Metrics: domainMetrics,
		Logger:  logg,
		Options: documents.Options{
			MaxUploadBytes: cfg.Storage.MaxUploadBytes(),
			DownloadURLTTL: cfg.Storage.DownloadURLExpiry,
			LeaseDuration:  cfg.Extension.LeaseDuration,
			MaxAttempts:    cfg.Extension.MaxAttempts,
		},
	})
	requireResource(ctx, logg, "documents service", err)

	extensionService, err := extension.NewService(extension.NewRepository(dbClient.DB()), dbClient, hasher, extension.Options{
		TokenTTL:         cfg.Extension.TokenTTL,
		DefaultSlotLimit: cfg.Extension.DefaultSlotLimit,
	}, nil)
	requireResource(ctx, logg, "extension service", err)

	paymentParams := payments.ServiceParams{
		Repo:      payments.NewRepository(dbClient.DB()),
		Tx:        dbClient,
		Credits:   ledger,
		Outbox:    emitter,
		PublicURL: cfg.App.PublicURL,
		Logger:    logg,
	}
	var (
		stripeClient *stripe.Client
		vivaClient   *viva.Client
	)
	if cfg.FeatureFlags.EnableViva {
		vivaClient, err = viva.NewClient(ctx, cfg.Viva, logg)
		requireResource(ctx, logg, "viva client", err)
		paymentParams.Viva = vivaClient
	}
	if cfg.FeatureFlags.EnableStripe {
		stripeClient, err = stripe.NewClient(ctx, cfg.Stripe, logg)
		requireResource(ctx, logg, "stripe client", err)
		paymentParams.Stripe = stripeClient
	}
	paymentService, err := payments.NewService(paymentParams)
	requireResource(ctx, logg, "payments service", err)

	deps := routes.Deps{
		Config:        cfg,
		Logger:        logg,
		Redis:         redisClient,
		Health:        health,
		Profiles:      profileService,
		ProfileLookup: profileRepo,
		Documents:     documentService,
		Credits:       ledger,
		MagicLinks:    linkService,
		Extension:     extensionService,
		Payments:      paymentService,
	}
	wireWebhooks(ctx, cfg, logg, redisClient, paymentService, stripeClient, vivaClient, domainMetrics, &deps)

	deps.Notifications, err = notifications.NewService(notifications.NewRepository(dbClient.DB()))
	requireResource(ctx, logg, "notifications service", err)

	deps.Push, err = push.NewService(push.ServiceParams{
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
	deps.Email, err = email.NewService(email.ServiceParams{
		Repo:    email.NewRepository(dbClient.DB()),
		Sender:  sendpulseClient,
		Warmup:  warmup,
		Metrics: domainMetrics,
		Logger:  logg,
	})
	requireResource(ctx, logg, "email service", err)

	deps.Tickets, err = tickets.NewService(tickets.NewRepository(dbClient.DB()), dbClient, emitter, nil)
	requireResource(ctx, logg, "tickets service", err)

	deps.Refunds, err = refunds.NewService(refunds.ServiceParams{
		Repo:      refunds.NewRepository(dbClient.DB()),
		Tx:        dbClient,
		Documents: docRepo,
		Credits:   ledger,
		Outbox:    emitter,
	})
	requireResource(ctx, logg, "refunds service", err)

	deps.BulkMatch, err = bulkmatch.NewService(bulkmatch.ServiceParams{
		Repo:           bulkmatch.NewRepository(dbClient.DB()),
		Candidates:     docRepo,
		Documents:      documentService,
		Extractor:      pdftext.NewRunner(cfg.PDF),
		Logger:         logg,
		MaxReportBytes: cfg.Storage.MaxUploadBytes(),
	})
	requireResource(ctx, logg, "bulk matcher", err)

	if cfg.GCP.ProjectID != "" {
		bq, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
		requireResource(ctx, logg, "bigquery", err)
		defer bq.Close()
		health["bigquery"] = bq
		deps.Analytics, err = analytics.NewService(bq, cfg.GCP.ProjectID, cfg.BigQuery.Dataset, cfg.BigQuery.ScanEventsTable)
		requireResource(ctx, logg, "analytics service", err)
	} else {
		logg.Warn(ctx, "gcp project not configured, analytics dashboard disabled")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.ID("api"),
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-runCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
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
	logg.Info(ctx, "api server stopped")
}

// wireWebhooks builds the provider consumers that have credentials configured.
func wireWebhooks(
	ctx context.Context,
	cfg *config.Config,
	logg *logger.Logger,
	redisClient *redis.Client,
	paymentService payments.Service,
	stripeClient *stripe.Client,
	vivaClient *viva.Client,
	recorder *metrics.DomainMetrics,
	deps *routes.Deps,
) {
	guard, err := inbox.NewMarker(redisClient, cfg.Eventing.WebhookGuardTTL, "webhook")
	requireResource(ctx, logg, "webhook guard", err)
	processor, err := webhooks.NewProcessor(paymentService, guard, recorder, logg)
	requireResource(ctx, logg, "webhook processor", err)

	if cfg.Paddle.WebhookSecret != "" {
		svc, err := paddlewebhook.NewService(paymentService, processor, cfg.Paddle.WebhookSecret, cfg.Paddle.SignatureMaxAge, nil)
		requireResource(ctx, logg, "paddle webhook", err)
		deps.PaddleWebhook = svc
	} else {
		logg.Warn(ctx, "paddle webhook secret not configured, deliveries will be rejected")
	}
	if vivaClient != nil && cfg.Viva.VerificationKey != "" {
		svc, err := vivawebhook.NewService(paymentService, processor, vivaClient, cfg.Viva.VerificationKey)
		requireResource(ctx, logg, "viva webhook", err)
		deps.VivaWebhook = svc
	}
	if stripeClient != nil {
		svc, err := stripewebhook.NewService(stripeClient, paymentService, processor)
		requireResource(ctx, logg, "stripe webhook", err)
		deps.StripeWebhook = svc
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
