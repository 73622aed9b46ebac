package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/simcheck/simcheck-backend/pkg/logger"
)

type fakeLock struct {
	acquired bool
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error { f.acquired = false; return nil }

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	registry := NewRegistry(&testJob{name: "success"}, &testJob{name: "fail", err: errors.New("boom")})
	service, err := NewService(ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     &fakeLock{},
		Interval: 0,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	ctx := context.Background()
	if err := service.runCycle(ctx); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	jobs := registry.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if success, ok := jobs[0].(*testJob); ok {
		if success.runs != 1 {
			t.Fatalf("expected success job to run once, ran %d", success.runs)
		}
	} else {
		t.Fatalf("first job type mismatch")
	}
	if failure, ok := jobs[1].(*testJob); ok {
		if failure.runs != 1 {
			t.Fatalf("expected failure job to run once, ran %d", failure.runs)
		}
	} else {
		t.Fatalf("second job type mismatch")
	}
}

func TestServiceRunsJobsWhenDue(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	fast := &testJob{name: "lease-release"}
	daily := &testJob{name: "cleanup"}
	registry := NewRegistry()
	registry.RegisterEvery(fast, time.Minute)
	registry.Register(daily)

	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	service, err := NewService(ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     &fakeLock{},
		Now:      func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := service.runCycle(context.Background()); err != nil {
			t.Fatalf("run cycle: %v", err)
		}
		now = now.Add(time.Minute)
	}
	if fast.runs != 3 {
		t.Fatalf("expected minutely job to run 3 times, ran %d", fast.runs)
	}
	if daily.runs != 1 {
		t.Fatalf("expected daily job to run once, ran %d", daily.runs)
	}

	now = now.Add(24 * time.Hour)
	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if daily.runs != 2 {
		t.Fatalf("expected daily job to run again after a day, ran %d", daily.runs)
	}
}

type busyLock struct{}

func (busyLock) Acquire(context.Context) (bool, error) { return false, nil }
func (busyLock) Release(context.Context) error         { return nil }

type observed map[string][]bool

func (o observed) Observe(job string, _ time.Duration, err error) { o[job] = append(o[job], err == nil) }

func TestServiceReportsEachJobResult(t *testing.T) {
	seen := observed{}
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry: NewRegistry(&testJob{name: "ok"}, &testJob{name: "broken", err: errors.New("boom")}),
		Lock:     &fakeLock{},
		Metrics:  seen,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if len(seen["ok"]) != 1 || !seen["ok"][0] {
		t.Fatalf("expected one success for ok, got %v", seen["ok"])
	}
	if len(seen["broken"]) != 1 || seen["broken"][0] {
		t.Fatalf("expected one failure for broken, got %v", seen["broken"])
	}
}

type failingLock struct{}

func (failingLock) Acquire(context.Context) (bool, error) { return false, errors.New("redis down") }
func (failingLock) Release(context.Context) error         { return nil }

func TestServiceRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "job"}
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry: NewRegistry(job),
		Lock:     failingLock{},
		Interval: time.Hour,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := service.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("job must not run without the lock, ran %d", job.runs)
	}
}

func TestServiceSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "job"}
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry: NewRegistry(job),
		Lock:     busyLock{},
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected job to be skipped, ran %d", job.runs)
	}
}
