package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/simcheck/simcheck-backend/pkg/logger"
)

const (
	day = 24 * time.Hour

	defaultOutboxRetentionDays       = 30
	defaultNotificationRetentionDays = 90
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// PurgeFunc deletes rows older than cutoff inside tx and reports how many went.
type PurgeFunc func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)

type PurgeJobParams struct {
	Name   string
	Logger *logger.Logger
	DB     txRunner
	Keep   time.Duration
	Purge  PurgeFunc
}

// NewPurgeJob builds a job that drops everything older than Keep.
func NewPurgeJob(p PurgeJobParams) (Job, error) {
	switch {
	case p.Name == "":
		return nil, errors.New("purge job: name required")
	case p.Logger == nil:
		return nil, errors.New("purge job: logger required")
	case p.DB == nil:
		return nil, errors.New("purge job: db runner required")
	case p.Purge == nil:
		return nil, errors.New("purge job: purge func required")
	case p.Keep <= 0:
		return nil, errors.New("purge job: retention must be positive")
	}
	return &purgeJob{PurgeJobParams: p, now: time.Now}, nil
}

type purgeJob struct {
	PurgeJobParams
	now func() time.Time
}

func (j *purgeJob) Name() string { return j.PurgeJobParams.Name }

func (j *purgeJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.Keep)
	var removed int64
	err := j.DB.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := j.Purge(ctx, tx, cutoff)
		removed = n
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", j.PurgeJobParams.Name, err)
	}
	j.Logger.Info(j.Logger.WithFields(ctx, map[string]any{
		"cutoff":  cutoff.Format(time.RFC3339),
		"removed": removed,
	}), "purge finished")
	return nil
}

type outboxPurger interface {
	Purge(ctx context.Context, tx *gorm.DB, cutoff time.Time, attemptCeiling int) (int64, error)
}

// NewOutboxRetentionJob drops published outbox rows, and rows parked at the
// attempt ceiling, once they are older than days.
func NewOutboxRetentionJob(logg *logger.Logger, db txRunner, repo outboxPurger, days, attemptCeiling int) (Job, error) {
	if repo == nil {
		return nil, errors.New("outbox retention: repository required")
	}
	if days <= 0 {
		days = defaultOutboxRetentionDays
	}
	return NewPurgeJob(PurgeJobParams{
		Name:   "outbox-retention",
		Logger: logg,
		DB:     db,
		Keep:   time.Duration(days) * day,
		Purge: func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
			return repo.Purge(ctx, tx, cutoff, attemptCeiling)
		},
	})
}

type notificationPurger interface {
	DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// NewNotificationCleanupJob drops read notifications older than days.
// Unread ones stay.
func NewNotificationCleanupJob(logg *logger.Logger, db txRunner, repo notificationPurger, days int) (Job, error) {
	if repo == nil {
		return nil, errors.New("notification cleanup: repository required")
	}
	if days <= 0 {
		days = defaultNotificationRetentionDays
	}
	return NewPurgeJob(PurgeJobParams{
		Name:   "notification-cleanup",
		Logger: logg,
		DB:     db,
		Keep:   time.Duration(days) * day,
		Purge:  repo.DeleteOlderThan,
	})
}
