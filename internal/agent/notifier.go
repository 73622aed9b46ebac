package agent

import (
	"context"

	"github.com/simcheck/simcheck-backend/pkg/logger"
)

// Notifier surfaces failures to whoever operates the agent.
type Notifier interface {
	Notify(ctx context.Context, title, message string)
}

// LogNotifier writes notices to the structured log.
type LogNotifier struct {
	Logg *logger.Logger
}

func (n LogNotifier) Notify(ctx context.Context, title, message string) {
	if n.Logg == nil {
		return
	}
	n.Logg.Warn(n.Logg.WithFields(ctx, map[string]any{"title": title, "notice": message}), "agent notice")
}
