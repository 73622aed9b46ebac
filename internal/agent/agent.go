package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/simcheck/simcheck-backend/pkg/config"
	"github.com/simcheck/simcheck-backend/pkg/logger"
	"github.com/simcheck/simcheck-backend/pkg/metrics"
)

const (
	defaultPollInterval      = 10 * time.Second
	defaultMaxProcessingTime = 10 * time.Minute
	failureReportTimeout     = 30 * time.Second
	maxErrorMessageRunes     = 500
)

// Outcome describes what a single tick did.
type Outcome string

const (
	OutcomeDisabled  Outcome = "disabled"
	OutcomeBusy      Outcome = "busy"
	OutcomeUnhealthy Outcome = "unhealthy"
	OutcomeIdle      Outcome = "idle"
	OutcomeProcessed Outcome = "processed"
	OutcomeFailed    Outcome = "failed"
)

type extensionAPI interface {
	Heartbeat(ctx context.Context, version string) error
	Pending(ctx context.Context) (*Job, error)
	Download(ctx context.Context, id uuid.UUID) (*Download, error)
	UploadReport(ctx context.Context, upload ReportUpload) error
	ReportError(ctx context.Context, id uuid.UUID, message string) error
}

type Params struct {
	API      extensionAPI
	Checker  Checker
	Notifier Notifier
	Config   config.AgentConfig
	Metrics  *metrics.DomainMetrics
	Logger   *logger.Logger
}

// Agent polls the extension API and drives one document at a time through the checker.
type Agent struct {
	api      extensionAPI
	checker  Checker
	notifier Notifier
	cfg      config.AgentConfig
	metrics  *metrics.DomainMetrics
	logg     *logger.Logger

	busy atomic.Bool
	wg   sync.WaitGroup
}

func New(p Params) (*Agent, error) {
	switch {
	case p.API == nil:
		return nil, errors.New("extension api client is required")
	case p.Checker == nil:
		return nil, errors.New("checker is required")
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	}
	if p.Notifier == nil {
		p.Notifier = LogNotifier{Logg: p.Logger}
	}
	if p.Config.PollInterval <= 0 {
		p.Config.PollInterval = defaultPollInterval
	}
	if p.Config.MaxProcessingTime <= 0 {
		p.Config.MaxProcessingTime = defaultMaxProcessingTime
	}
	return &Agent{
		api:      p.API,
		checker:  p.Checker,
		notifier: p.Notifier,
		cfg:      p.Config,
		metrics:  p.Metrics,
		logg:     p.Logger,
	}, nil
}

// Run ticks every poll interval until ctx is cancelled, then waits for the
// in-flight document to finish or hit its deadline.
func (a *Agent) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()
	defer a.wg.Wait()

	a.spawn(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.spawn(ctx)
		}
	}
}

func (a *Agent) spawn(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		outcome, err := a.Tick(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			a.logg.Error(a.logg.WithField(ctx, "outcome", string(outcome)), "agent tick failed", err)
		}
	}()
}

// Tick runs one poll. Overlapping ticks return OutcomeBusy without touching the API.
func (a *Agent) Tick(ctx context.Context) (Outcome, error) {
	if !a.cfg.Enabled {
		return OutcomeDisabled, nil
	}
	if !a.busy.CompareAndSwap(false, true) {
		return OutcomeBusy, nil
	}
	defer a.busy.Store(false)

	outcome, err := a.tick(ctx)
	a.metrics.AgentJob(string(outcome))
	return outcome, err
}

func (a *Agent) tick(ctx context.Context) (Outcome, error) {
	if err := a.api.Heartbeat(ctx, a.cfg.Version); err != nil {
		return OutcomeUnhealthy, fmt.Errorf("heartbeat: %w", err)
	}
	job, err := a.api.Pending(ctx)
	if err != nil {
		return OutcomeUnhealthy, fmt.Errorf("claim pending: %w", err)
	}
	if job == nil {
		return OutcomeIdle, nil
	}

	logCtx := a.logg.WithFields(ctx, map[string]any{"document_id": job.ID.String(), "file_name": job.FileName})
	a.logg.Info(logCtx, "document claimed")

	jobCtx, cancel := context.WithTimeout(logCtx, a.cfg.MaxProcessingTime)
	defer cancel()
	if err := a.process(jobCtx, *job); err != nil {
		if errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("processing exceeded %s: %w", a.cfg.MaxProcessingTime, err)
		}
		a.fail(logCtx, *job, err)
		return OutcomeFailed, err
	}
	a.logg.Info(logCtx, "document processed")
	return OutcomeProcessed, nil
}

func (a *Agent) process(ctx context.Context, job Job) error {
	file, err := a.api.Download(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	if file.FileName == "" {
		file.FileName = job.FileName
	}
	reports, err := a.checker.Check(ctx, job, *file)
	if err != nil {
		return fmt.Errorf("checker: %w", err)
	}
	if err := validateReports(job, reports); err != nil {
		return err
	}
	if err := a.api.UploadReport(ctx, ReportUpload{
		DocumentID:           job.ID,
		SimilarityReport:     reports.SimilarityReport,
		AIReport:             reports.AIReport,
		SimilarityPercentage: reports.SimilarityPercentage,
		AIPercentage:         reports.AIPercentage,
	}); err != nil {
		return fmt.Errorf("upload report: %w", err)
	}
	return nil
}

// fail reports on a context detached from the job deadline so the server
// still hears about timeouts.
func (a *Agent) fail(ctx context.Context, job Job, cause error) {
	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureReportTimeout)
	defer cancel()
	message := truncate(cause.Error(), maxErrorMessageRunes)
	if err := a.api.ReportError(reportCtx, job.ID, message); err != nil {
		a.logg.Error(ctx, "failed to report processing error", err)
	}
	a.notifier.Notify(ctx, "Scan failed: "+job.FileName, message)
}

func validateReports(job Job, reports *Reports) error {
	if reports == nil || len(reports.SimilarityReport) == 0 {
		return errors.New("checker returned no similarity report")
	}
	if job.ScanType.RequiresAIReport() && len(reports.AIReport) == 0 {
		return errors.New("checker returned no ai report")
	}
	return nil
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}
