package email

import (
	"context"
	"math"
	"time"

	"github.com/simcheck/simcheck-backend/pkg/config"
)

const warmupCounter = "email_warmup"

type dailyCounter interface {
	IncrDaily(ctx context.Context, name string, day time.Time) (int64, error)
}

// Warmup ramps the daily send allowance from BaseLimit towards MaxLimit.
type Warmup struct {
	start   time.Time
	base    int
	growth  float64
	max     int
	counter dailyCounter
}

// NewWarmup parses cfg. An empty start date disables the ramp and leaves only MaxLimit.
func NewWarmup(cfg config.WarmupConfig, counter dailyCounter) (*Warmup, error) {
	w := &Warmup{base: cfg.BaseLimit, growth: cfg.Growth, max: cfg.MaxLimit, counter: counter}
	if cfg.StartDate != "" {
		start, err := time.Parse("2006-01-02", cfg.StartDate)
		if err != nil {
			return nil, err
		}
		w.start = start
	}
	if w.growth < 1 {
		w.growth = 1
	}
	return w, nil
}

// Cap returns min(max, base * growth^days) for the UTC day containing now.
func (w *Warmup) Cap(now time.Time) int {
	if w.start.IsZero() {
		return w.max
	}
	days := int(now.UTC().Truncate(24*time.Hour).Sub(w.start) / (24 * time.Hour))
	if days < 0 {
		days = 0
	}
	limit := float64(w.base) * math.Pow(w.growth, float64(days))
	if limit >= float64(w.max) || math.IsInf(limit, 1) {
		return w.max
	}
	return int(limit)
}

// Allow reserves one send for today. The counter is incremented before the
// comparison so concurrent senders never overshoot the cap.
func (w *Warmup) Allow(ctx context.Context, now time.Time) (bool, error) {
	if w == nil || w.counter == nil {
		return true, nil
	}
	count, err := w.counter.IncrDaily(ctx, warmupCounter, now)
	if err != nil {
		return false, err
	}
	return count <= int64(w.Cap(now)), nil
}
