package cron

import (
	"context"
	"fmt"

	"github.com/simcheck/simcheck-backend/pkg/logger"
)

type leaseReleaser interface {
	ReleaseExpiredLeases(ctx context.Context) (int, error)
}

type LeaseReleaseJobParams struct {
	Logger    *logger.Logger
	Documents leaseReleaser
}

// NewLeaseReleaseJob returns documents whose extension lease lapsed to the
// pending queue. Processing attempts are left untouched.
func NewLeaseReleaseJob(params LeaseReleaseJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Documents == nil {
		return nil, fmt.Errorf("documents service required")
	}
	return &leaseReleaseJob{logg: params.Logger, documents: params.Documents}, nil
}

type leaseReleaseJob struct {
	logg      *logger.Logger
	documents leaseReleaser
}

func (j *leaseReleaseJob) Name() string { return "document-lease-release" }

func (j *leaseReleaseJob) Run(ctx context.Context) error {
	released, err := j.documents.ReleaseExpiredLeases(ctx)
	logCtx := j.logg.WithField(ctx, "released", released)
	if err != nil {
		return fmt.Errorf("lease release: %w", err)
	}
	if released > 0 {
		j.logg.Info(logCtx, "expired document leases released")
	}
	return nil
}
