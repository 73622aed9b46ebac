package cron

import (
	"context"
	"fmt"

	"github.com/simcheck/simcheck-backend/pkg/logger"
)

type linkExpirer interface {
	ExpireDue(ctx context.Context) (int64, error)
}

type MagicLinkExpiryJobParams struct {
	Logger *logger.Logger
	Links  linkExpirer
}

func NewMagicLinkExpiryJob(params MagicLinkExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Links == nil {
		return nil, fmt.Errorf("magic links service required")
	}
	return &magicLinkExpiryJob{logg: params.Logger, links: params.Links}, nil
}

type magicLinkExpiryJob struct {
	logg  *logger.Logger
	links linkExpirer
}

func (j *magicLinkExpiryJob) Name() string { return "magic-link-expiry" }

// Run flips active links past their expiry to expired.
func (j *magicLinkExpiryJob) Run(ctx context.Context) error {
	expired, err := j.links.ExpireDue(ctx)
	if err != nil {
		return fmt.Errorf("magic link expiry: %w", err)
	}
	j.logg.Info(j.logg.WithField(ctx, "expired", expired), "magic link expiry complete")
	return nil
}
