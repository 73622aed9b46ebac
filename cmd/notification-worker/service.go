package main

import (
	"context"
	"errors"
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/simcheck/simcheck-backend/pkg/inbox"
	"github.com/simcheck/simcheck-backend/pkg/logger"
)

type dependency struct {
	name string
	ping func(context.Context) error
}

// worker refuses to start consuming until every dependency answers.
type worker struct {
	logg         *logger.Logger
	deps         []dependency
	consumer     *inbox.Consumer
	subscription *gcppubsub.Subscriber
}

func newWorker(logg *logger.Logger, consumer *inbox.Consumer, sub *gcppubsub.Subscriber, deps ...dependency) (*worker, error) {
	switch {
	case logg == nil:
		return nil, errors.New("logger is required")
	case consumer == nil:
		return nil, errors.New("notification consumer is required")
	case sub == nil:
		return nil, errors.New("notification subscription is not configured")
	}
	return &worker{logg: logg, deps: deps, consumer: consumer, subscription: sub}, nil
}

func (w *worker) ready(ctx context.Context) error {
	var errs []error
	for _, d := range w.deps {
		if err := d.ping(ctx); err != nil {
			w.logg.Error(ctx, d.name+" ping failed", err)
			errs = append(errs, fmt.Errorf("%s: %w", d.name, err))
		}
	}
	return errors.Join(errs...)
}

func (w *worker) Run(ctx context.Context) error {
	if err := w.ready(ctx); err != nil {
		return err
	}
	w.logg.Info(ctx, "notification worker dependencies ready")
	return w.consumer.Run(ctx, w.subscription)
}
