package analytics

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/simcheck/simcheck-backend/api/responses"
	"github.com/simcheck/simcheck-backend/internal/analytics"
	"github.com/simcheck/simcheck-backend/internal/analytics/types"
	pkgerrors "github.com/simcheck/simcheck-backend/pkg/errors"
	"github.com/simcheck/simcheck-backend/pkg/logger"
)

const (
	defaultPreset = "30d"
	maxWindow     = 366 * 24 * time.Hour
)

var presets = map[string]time.Duration{
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
	"90d": 90 * 24 * time.Hour,
}

var clock = func() time.Time { return time.Now().UTC() }

// Dashboard serves the admin scan and revenue KPIs. The window is either
// ?preset=24h|7d|30d|90d ending now, or an explicit RFC 3339 ?from=&to=.
func Dashboard(service analytics.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if service == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "analytics unavailable"))
			return
		}
		req, err := window(r.URL.Query(), clock())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		result, err := service.Dashboard(ctx, req)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func window(q url.Values, now time.Time) (types.DashboardRequest, error) {
	from, to := strings.TrimSpace(q.Get("from")), strings.TrimSpace(q.Get("to"))
	if from == "" && to == "" {
		name := strings.ToLower(strings.TrimSpace(q.Get("preset")))
		if name == "" {
			name = defaultPreset
		}
		span, ok := presets[name]
		if !ok {
			return types.DashboardRequest{}, invalid("preset must be one of 24h, 7d, 30d, 90d")
		}
		return types.DashboardRequest{Start: now.Add(-span), End: now}, nil
	}

	start, errFrom := time.Parse(time.RFC3339, from)
	end, errTo := time.Parse(time.RFC3339, to)
	switch {
	case from == "" || to == "":
		return types.DashboardRequest{}, invalid("from and to go together")
	case errFrom != nil:
		return types.DashboardRequest{}, invalid("from is not an RFC 3339 timestamp")
	case errTo != nil:
		return types.DashboardRequest{}, invalid("to is not an RFC 3339 timestamp")
	case !end.After(start):
		return types.DashboardRequest{}, invalid("to must be after from")
	case end.Sub(start) > maxWindow:
		return types.DashboardRequest{}, invalid("window is limited to 366 days")
	}
	return types.DashboardRequest{Start: start.UTC(), End: end.UTC()}, nil
}

func invalid(msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, msg)
}
