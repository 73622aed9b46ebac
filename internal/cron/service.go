package cron

import (
	"context"
	"errors"
	"time"

	"github.com/simcheck/simcheck-backend/pkg/logger"
)

type jobObserver interface {
	Observe(job string, took time.Duration, err error)
}

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  jobObserver
	// Interval is how often the service wakes to look for due jobs.
	Interval time.Duration
	Now      func() time.Time
}

// Service wakes every interval and, holding the cluster lock, runs the jobs
// that are due. A failing job does not stop the others.
type Service struct {
	ServiceParams
	lastRun map[string]time.Time
}

func NewService(p ServiceParams) (*Service, error) {
	if p.Logger == nil {
		return nil, errors.New("logger required")
	}
	if p.Lock == nil {
		return nil, errors.New("lock required")
	}
	if p.Registry == nil {
		p.Registry = NewRegistry()
	}
	if p.Interval <= 0 {
		p.Interval = time.Minute
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &Service{ServiceParams: p, lastRun: map[string]time.Time{}}, nil
}

func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		if err := s.runCycle(ctx); err != nil {
			s.Logger.Error(ctx, "cron.cycle_failed", err)
		}
		select {
		case <-ctx.Done():
			s.Logger.Info(ctx, "cron.stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) due(now time.Time) []Job {
	var jobs []Job
	for _, e := range s.Registry.schedule() {
		last, ran := s.lastRun[e.job.Name()]
		if !ran || now.Sub(last) >= e.every {
			jobs = append(jobs, e.job)
		}
	}
	return jobs
}

func (s *Service) runCycle(ctx context.Context) error {
	now := s.Now()
	jobs := s.due(now)
	if len(jobs) == 0 {
		return nil
	}

	held, err := s.Lock.Acquire(ctx)
	if err != nil {
		return err
	}
	if !held {
		s.Logger.Debug(ctx, "cron.lock_busy")
		return nil
	}
	defer func() {
		if err := s.Lock.Release(ctx); err != nil {
			s.Logger.Error(ctx, "cron.lock_release_failed", err)
		}
	}()

	for _, job := range jobs {
		s.runJob(ctx, job)
		s.lastRun[job.Name()] = now
	}
	return nil
}

func (s *Service) runJob(ctx context.Context, job Job) {
	ctx = s.Logger.WithField(ctx, "job", job.Name())
	start := time.Now()
	err := job.Run(ctx)
	took := time.Since(start)
	if s.Metrics != nil {
		s.Metrics.Observe(job.Name(), took, err)
	}

	ctx = s.Logger.WithField(ctx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.Logger.Error(ctx, "cron.job_failed", err)
		return
	}
	s.Logger.Info(ctx, "cron.job_done")
}
