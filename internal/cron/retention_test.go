package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/simcheck/simcheck-backend/pkg/db/dbtest"
	"github.com/simcheck/simcheck-backend/pkg/db/models"
	"github.com/simcheck/simcheck-backend/pkg/enums"
	"github.com/simcheck/simcheck-backend/pkg/logger"
	"github.com/simcheck/simcheck-backend/pkg/outbox"
)

type inlineTx struct{}

func (inlineTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

func TestPurgeJobCutoff(t *testing.T) {
	now := time.Date(2026, 4, 30, 12, 0, 0, 0, time.UTC)
	var got time.Time
	job, err := NewPurgeJob(PurgeJobParams{
		Name:   "sweep",
		Logger: quietLogger(),
		DB:     inlineTx{},
		Keep:   48 * time.Hour,
		Purge: func(_ context.Context, _ *gorm.DB, cutoff time.Time) (int64, error) {
			got = cutoff
			return 3, nil
		},
	})
	require.NoError(t, err)
	job.(*purgeJob).now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, now.Add(-48*time.Hour), got)
	require.Equal(t, "sweep", job.Name())
}

func TestPurgeJobWrapsErrors(t *testing.T) {
	job, err := NewNotificationCleanupJob(quietLogger(), inlineTx{}, failingPurger{}, 0)
	require.NoError(t, err)
	err = job.Run(context.Background())
	require.ErrorContains(t, err, "notification-cleanup")

	_, err = NewPurgeJob(PurgeJobParams{Name: "x", Logger: quietLogger(), DB: inlineTx{}, Keep: time.Hour})
	require.Error(t, err)
}

type failingPurger struct{}

func (failingPurger) DeleteOlderThan(context.Context, *gorm.DB, time.Time) (int64, error) {
	return 0, errors.New("db down")
}

func TestOutboxRetentionKeepsPendingRows(t *testing.T) {
	client := dbtest.Client(t)
	conn := client.DB()
	now := time.Now().UTC()
	old := now.Add(-40 * day)
	published := old.Add(time.Hour)

	rows := []models.OutboxEvent{
		{EventType: enums.EventDocumentUploaded, AggregateType: enums.AggregateDocument, PublishedAt: &published},
		{EventType: enums.EventDocumentUploaded, AggregateType: enums.AggregateDocument, AttemptCount: 10},
		{EventType: enums.EventDocumentUploaded, AggregateType: enums.AggregateDocument, AttemptCount: 2},
		{EventType: enums.EventDocumentUploaded, AggregateType: enums.AggregateDocument},
	}
	for i := range rows {
		rows[i].Payload = []byte(`{}`)
		require.NoError(t, conn.Create(&rows[i]).Error)
	}
	for _, r := range rows[:3] {
		require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("id = ?", r.ID).Update("created_at", old).Error)
	}

	job, err := NewOutboxRetentionJob(quietLogger(), client, outbox.NewRepository(conn), 30, 10)
	require.NoError(t, err)
	require.NoError(t, job.Run(context.Background()))

	var left []models.OutboxEvent
	require.NoError(t, conn.Order("attempt_count").Find(&left).Error)
	require.Len(t, left, 2)
	require.Equal(t, rows[3].ID, left[0].ID)
	require.Equal(t, rows[2].ID, left[1].ID)
}
