package main

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/simcheck/simcheck-backend/pkg/logger"
)

func TestReadyReportsEveryFailingDependency(t *testing.T) {
	w := &worker{
		logg: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		deps: []dependency{
			{name: "database", ping: func(context.Context) error { return nil }},
			{name: "redis", ping: func(context.Context) error { return errors.New("refused") }},
			{name: "pubsub", ping: func(context.Context) error { return errors.New("no subscription") }},
		},
	}
	err := w.ready(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "redis: refused")
	require.Contains(t, err.Error(), "pubsub: no subscription")
	require.NotContains(t, err.Error(), "database")
}

func TestNewWorkerNeedsSubscription(t *testing.T) {
	_, err := newWorker(logger.New(logger.Options{ServiceName: "test", Output: io.Discard}), nil, nil)
	require.Error(t, err)
}
