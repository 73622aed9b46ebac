package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/simcheck/simcheck-backend/internal/bulkmatch"
	"github.com/simcheck/simcheck-backend/internal/credits"
	"github.com/simcheck/simcheck-backend/internal/documents"
	"github.com/simcheck/simcheck-backend/internal/magiclinks"
	"github.com/simcheck/simcheck-backend/internal/profiles"
	"github.com/simcheck/simcheck-backend/pkg/config"
	"github.com/simcheck/simcheck-backend/pkg/db"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	"github.com/simcheck/simcheck-backend/pkg/logger"
	"github.com/simcheck/simcheck-backend/pkg/metrics"
	"github.com/simcheck/simcheck-backend/pkg/outbox"
	"github.com/simcheck/simcheck-backend/pkg/pdftext"
	"github.com/simcheck/simcheck-backend/pkg/security"
	"github.com/simcheck/simcheck-backend/pkg/storage/s3"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "report-matcher"})

	_ = godotenv.Load()

	dir := flag.String("dir", "", "directory holding similarity report PDFs")
	watch := flag.Bool("watch", false, "keep running and match reports as they arrive")
	adminID := flag.String("admin", "", "admin profile id recorded as the actor")
	debounce := flag.Duration("debounce", 2*time.Second, "quiet period before a new file is matched")
	flag.Parse()

	if *dir == "" || *adminID == "" {
		fmt.Fprintln(os.Stderr, "usage: report-matcher -dir <path> -admin <uuid> [-watch]")
		os.Exit(2)
	}
	actorID, err := uuid.Parse(*adminID)
	requireResource(ctx, logg, "admin id", err)

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "report-matcher"

	logg = logger.New(logger.Options{
		ServiceName: "report-matcher",
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

	admin, err := profiles.NewRepository(dbClient.DB()).FindByID(ctx, actorID)
	requireResource(ctx, logg, "admin profile", err)
	if admin == nil || admin.Role != enums.RoleAdmin {
		requireResource(ctx, logg, "admin profile", errors.New("profile is not an admin"))
	}

	store, err := s3.NewClient(ctx, cfg.Storage, logg)
	requireResource(ctx, logg, "object storage", err)

	matcher, err := buildMatcher(cfg, logg, dbClient, store)
	requireResource(ctx, logg, "bulk matcher", err)

	runner, err := NewRunner(matcher, documents.Actor{UserID: actorID, Role: enums.RoleAdmin}, logg)
	requireResource(ctx, logg, "runner", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{"dir": *dir, "watch": *watch})

	if !*watch {
		summary, err := runner.ProcessDir(runCtx, *dir)
		if err != nil {
			logg.Error(runCtx, "report matching failed", err)
			os.Exit(1)
		}
		logg.Info(logg.WithFields(runCtx, map[string]any{
			"matched":   summary.Matched,
			"unmatched": summary.Unmatched,
		}), "report matching finished")
		return
	}

	paths, errs, err := Watch(runCtx, WatchConfig{Dir: *dir, InitialScan: true, Debounce: *debounce})
	requireResource(ctx, logg, "directory watcher", err)
	logg.Info(runCtx, "watching for reports")

	for {
		select {
		case p, ok := <-paths:
			if !ok {
				logg.Info(runCtx, "report matcher stopped")
				return
			}
			if _, err := runner.ProcessFile(runCtx, p); err != nil {
				logg.Error(logg.WithField(runCtx, "path", p), "report matching failed", err)
			}
		case err, ok := <-errs:
			if ok && err != nil {
				logg.Error(runCtx, "watcher error", err)
			}
		}
	}
}

func buildMatcher(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, store *s3.Client) (bulkmatch.Service, error) {
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
	docRepo := documents.NewRepository(dbClient.DB())
	docs, err := documents.NewService(documents.ServiceParams{
		Repo:    docRepo,
		Tx:      dbClient,
		Credits: ledger,
		Links:   links,
		Store:   store,
		Outbox:  outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Metrics: metrics.NewDomainMetrics(prometheus.DefaultRegisterer),
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
	return bulkmatch.NewService(bulkmatch.ServiceParams{
		Repo:           bulkmatch.NewRepository(dbClient.DB()),
		Candidates:     docRepo,
		Documents:      docs,
		Extractor:      pdftext.NewRunner(cfg.PDF),
		Logger:         logg,
		MaxReportBytes: cfg.Storage.MaxUploadBytes(),
	})
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
