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

	"github.com/simcheck/simcheck-backend/internal/agent"
	"github.com/simcheck/simcheck-backend/pkg/config"
	"github.com/simcheck/simcheck-backend/pkg/logger"
	"github.com/simcheck/simcheck-backend/pkg/metrics"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "scan-agent"})

	_ = godotenv.Load()

	cfg, err := config.LoadAgent()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "scan-agent",
		Level:       logger.ParseLevel(cfg.LogLevel),
		Format:      cfg.LogFormat,
		WarnStack:   cfg.LogWarnStack,
	})

	api, err := agent.NewAPIClient(cfg.Agent.APIBaseURL, cfg.Agent.Token)
	requireResource(ctx, logg, "extension api client", err)

	checker, err := agent.NewHTTPChecker(cfg.Agent.CheckerURL)
	requireResource(ctx, logg, "checker", err)

	scanAgent, err := agent.New(agent.Params{
		API:      api,
		Checker:  checker,
		Notifier: agent.LogNotifier{Logg: logg},
		Config:   cfg.Agent,
		Metrics:  metrics.NewDomainMetrics(prometheus.DefaultRegisterer),
		Logger:   logg,
	})
	requireResource(ctx, logg, "scan agent", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"version":      cfg.Agent.Version,
		"pollInterval": cfg.Agent.PollInterval.String(),
		"enabled":      cfg.Agent.Enabled,
	})
	logg.Info(runCtx, "scan agent ready")

	if err := scanAgent.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "scan agent failed", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "scan agent stopped")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
