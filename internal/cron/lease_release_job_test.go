package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/simcheck/simcheck-backend/pkg/logger"
)

type fakeLeaseReleaser struct {
	released int
	err      error
	calls    int
}

func (f *fakeLeaseReleaser) ReleaseExpiredLeases(context.Context) (int, error) {
	f.calls++
	return f.released, f.err
}

type fakeLinkExpirer struct {
	expired int64
	err     error
	calls   int
}

func (f *fakeLinkExpirer) ExpireDue(context.Context) (int64, error) {
	f.calls++
	return f.expired, f.err
}

func TestLeaseReleaseJob(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test"})
	docs := &fakeLeaseReleaser{released: 3}
	job, err := NewLeaseReleaseJob(LeaseReleaseJobParams{Logger: logg, Documents: docs})
	if err != nil {
		t.Fatalf("NewLeaseReleaseJob: %v", err)
	}
	if job.Name() != "document-lease-release" {
		t.Fatalf("unexpected name %s", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if docs.calls != 1 {
		t.Fatalf("expected one call, got %d", docs.calls)
	}

	docs.err = errors.New("db down")
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}

	if _, err := NewLeaseReleaseJob(LeaseReleaseJobParams{Logger: logg}); err == nil {
		t.Fatal("expected missing documents service to fail")
	}
}

func TestMagicLinkExpiryJob(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test"})
	links := &fakeLinkExpirer{expired: 2}
	job, err := NewMagicLinkExpiryJob(MagicLinkExpiryJobParams{Logger: logg, Links: links})
	if err != nil {
		t.Fatalf("NewMagicLinkExpiryJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	links.err = errors.New("boom")
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if links.calls != 2 {
		t.Fatalf("expected two calls, got %d", links.calls)
	}
}
