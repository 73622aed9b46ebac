package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/simcheck/simcheck-backend/internal/analytics/query"
	"github.com/simcheck/simcheck-backend/internal/analytics/types"
	"github.com/simcheck/simcheck-backend/pkg/bigquery"
)

// cacheTTL bounds how stale a dashboard may be. Each dashboard costs nine
// BigQuery jobs, so repeated refreshes of the same window are served from memory.
const cacheTTL = time.Minute

// Service provides admin dashboard reports built from scan events.
type Service interface {
	Dashboard(ctx context.Context, req types.DashboardRequest) (*types.DashboardResponse, error)
}

type cached struct {
	resp    *types.DashboardResponse
	expires time.Time
}

type service struct {
	dashboard query.DashboardService
	now       func() time.Time

	mu    sync.Mutex
	cache map[windowKey]cached
}

type windowKey struct{ start, end int64 }

// NewService builds an analytics service backed by BigQuery.
func NewService(client *bigquery.Client, project, dataset, table string) (Service, error) {
	if client == nil {
		return nil, fmt.Errorf("bigquery client required")
	}
	dashboard, err := query.NewDashboardService(client, project, dataset, table)
	if err != nil {
		return nil, err
	}
	return newService(dashboard, time.Now), nil
}

func newService(dashboard query.DashboardService, now func() time.Time) *service {
	return &service{dashboard: dashboard, now: now, cache: map[windowKey]cached{}}
}

// Dashboard keys the cache on the window rounded to the minute, so "last 30
// days" requests made within the same minute share one result.
func (s *service) Dashboard(ctx context.Context, req types.DashboardRequest) (*types.DashboardResponse, error) {
	key := windowKey{
		start: req.Start.Truncate(time.Minute).Unix(),
		end:   req.End.Truncate(time.Minute).Unix(),
	}
	now := s.now()

	s.mu.Lock()
	if hit, ok := s.cache[key]; ok && now.Before(hit.expires) {
		s.mu.Unlock()
		return hit.resp, nil
	}
	s.mu.Unlock()

	resp, err := s.dashboard.Query(ctx, req)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	for k, v := range s.cache {
		if !now.Before(v.expires) {
			delete(s.cache, k)
		}
	}
	s.cache[key] = cached{resp: resp, expires: now.Add(cacheTTL)}
	s.mu.Unlock()
	return resp, nil
}
