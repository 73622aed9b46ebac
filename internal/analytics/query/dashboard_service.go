package query

import (
	"context"
	"fmt"

	cloudbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/simcheck/simcheck-backend/internal/analytics/types"
	"github.com/simcheck/simcheck-backend/pkg/bigquery"
	pkgerrors "github.com/simcheck/simcheck-backend/pkg/errors"
)

const (
	timeSeriesCountSQL = `
SELECT
  FORMAT_DATE('%%F', DATE(occurred_at)) AS day,
  COUNT(*) AS value
FROM %s
WHERE event_type = @eventType
  AND occurred_at BETWEEN @start AND @end
GROUP BY day
ORDER BY day ASC
`

	timeSeriesSumSQL = `
SELECT
  FORMAT_DATE('%%F', DATE(occurred_at)) AS day,
  SUM(COALESCE(%s, 0)) AS value
FROM %s
WHERE event_type = @eventType
  AND occurred_at BETWEEN @start AND @end
GROUP BY day
ORDER BY day ASC
`

	groupedSumSQL = `
SELECT %s AS label, SUM(COALESCE(%s, 0)) AS value
FROM %s
WHERE event_type = @eventType
  AND %s IS NOT NULL
  AND occurred_at BETWEEN @start AND @end
GROUP BY label
ORDER BY value DESC
`

	groupedCountSQL = `
SELECT %s AS label, COUNT(*) AS value
FROM %s
WHERE event_type = @eventType
  AND %s IS NOT NULL
  AND occurred_at BETWEEN @start AND @end
GROUP BY label
ORDER BY value DESC
`

	averagesSQL = `
SELECT
  AVG(similarity_percentage) AS similarity,
  AVG(ai_percentage) AS ai
FROM %s
WHERE event_type = 'document_completed'
  AND occurred_at BETWEEN @start AND @end
`

	totalsSQL = `
SELECT
  SUM(IF(event_type = 'refund_decided', COALESCE(credits, 0), 0)) AS credits_refunded,
  COUNTIF(event_type = 'document_uploaded' AND guest) AS guest_uploads,
  COUNTIF(event_type = 'document_uploaded' AND NOT COALESCE(guest, FALSE)) AS registered_uploads
FROM %s
WHERE occurred_at BETWEEN @start AND @end
`
)

// DashboardService provides admin dashboard data from BigQuery scan_events.
type DashboardService interface {
	Query(ctx context.Context, req types.DashboardRequest) (*types.DashboardResponse, error)
}

type dashboardService struct {
	client   *bigquery.Client
	tableRef string
}

// NewDashboardService builds a service backed by BigQuery.
func NewDashboardService(client *bigquery.Client, project, dataset, table string) (DashboardService, error) {
	if client == nil {
		return nil, fmt.Errorf("bigquery client required")
	}
	if project == "" || dataset == "" || table == "" {
		return nil, fmt.Errorf("project, dataset, and table are required")
	}
	return &dashboardService{
		client:   client,
		tableRef: fmt.Sprintf("`%s.%s.%s`", project, dataset, table),
	}, nil
}

func (s *dashboardService) Query(ctx context.Context, req types.DashboardRequest) (*types.DashboardResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	var (
		resp types.DashboardResponse
		err  error
	)

	if resp.Uploads, err = s.querySeries(ctx, fmt.Sprintf(timeSeriesCountSQL, s.tableRef), s.params(req, "document_uploaded")); err != nil {
		return nil, err
	}
	if resp.Completions, err = s.querySeries(ctx, fmt.Sprintf(timeSeriesCountSQL, s.tableRef), s.params(req, "document_completed")); err != nil {
		return nil, err
	}
	if resp.Failures, err = s.querySeries(ctx, fmt.Sprintf(timeSeriesCountSQL, s.tableRef), s.params(req, "document_failed")); err != nil {
		return nil, err
	}
	if resp.RevenueCents, err = s.querySeries(ctx, fmt.Sprintf(timeSeriesSumSQL, "amount_cents", s.tableRef), s.params(req, "credits_purchased")); err != nil {
		return nil, err
	}
	if resp.CreditsSold, err = s.querySeries(ctx, fmt.Sprintf(timeSeriesSumSQL, "credits", s.tableRef), s.params(req, "credits_purchased")); err != nil {
		return nil, err
	}
	if resp.RevenueByProvider, err = s.queryLabels(ctx, fmt.Sprintf(groupedSumSQL, "provider", "amount_cents", s.tableRef, "provider"), s.params(req, "credits_purchased")); err != nil {
		return nil, err
	}
	if resp.UploadsByScanType, err = s.queryLabels(ctx, fmt.Sprintf(groupedCountSQL, "scan_type", s.tableRef, "scan_type"), s.params(req, "document_uploaded")); err != nil {
		return nil, err
	}
	if resp.AvgSimilarity, resp.AvgAI, err = s.queryAverages(ctx, fmt.Sprintf(averagesSQL, s.tableRef), s.params(req, "")); err != nil {
		return nil, err
	}
	if err := s.queryTotals(ctx, fmt.Sprintf(totalsSQL, s.tableRef), s.params(req, ""), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func validateRequest(req types.DashboardRequest) error {
	if req.Start.IsZero() || req.End.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "start and end are required")
	}
	if req.End.Before(req.Start) {
		return pkgerrors.New(pkgerrors.CodeValidation, "end must be after start")
	}
	return nil
}

func (s *dashboardService) params(req types.DashboardRequest, eventType string) []cloudbigquery.QueryParameter {
	params := []cloudbigquery.QueryParameter{
		{Name: "start", Value: req.Start.UTC()},
		{Name: "end", Value: req.End.UTC()},
	}
	if eventType != "" {
		params = append(params, cloudbigquery.QueryParameter{Name: "eventType", Value: eventType})
	}
	return params
}

func (s *dashboardService) querySeries(ctx context.Context, sql string, params []cloudbigquery.QueryParameter) ([]types.TimeSeriesPoint, error) {
	iter, err := s.client.Query(ctx, sql, params)
	if err != nil {
		return nil, fmt.Errorf("query series: %w", err)
	}

	points := []types.TimeSeriesPoint{}
	for {
		var row struct {
			Day   string `bigquery:"day"`
			Value int64  `bigquery:"value"`
		}
		if err := iter.Next(&row); err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("reading series row: %w", err)
		}
		points = append(points, types.TimeSeriesPoint{Date: row.Day, Value: row.Value})
	}
	return points, nil
}

func (s *dashboardService) queryLabels(ctx context.Context, sql string, params []cloudbigquery.QueryParameter) ([]types.LabelValue, error) {
	iter, err := s.client.Query(ctx, sql, params)
	if err != nil {
		return nil, fmt.Errorf("query labels: %w", err)
	}

	result := []types.LabelValue{}
	for {
		var row struct {
			Label string `bigquery:"label"`
			Value int64  `bigquery:"value"`
		}
		if err := iter.Next(&row); err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("reading label row: %w", err)
		}
		result = append(result, types.LabelValue{Label: row.Label, Value: row.Value})
	}
	return result, nil
}

func (s *dashboardService) queryAverages(ctx context.Context, sql string, params []cloudbigquery.QueryParameter) (float64, float64, error) {
	iter, err := s.client.Query(ctx, sql, params)
	if err != nil {
		return 0, 0, fmt.Errorf("query averages: %w", err)
	}
	var row struct {
		Similarity cloudbigquery.NullFloat64 `bigquery:"similarity"`
		AI         cloudbigquery.NullFloat64 `bigquery:"ai"`
	}
	if err := iter.Next(&row); err != nil {
		if err == iterator.Done {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("reading averages row: %w", err)
	}
	var sim, ai float64
	if row.Similarity.Valid {
		sim = row.Similarity.Float64
	}
	if row.AI.Valid {
		ai = row.AI.Float64
	}
	return sim, ai, nil
}

func (s *dashboardService) queryTotals(ctx context.Context, sql string, params []cloudbigquery.QueryParameter, resp *types.DashboardResponse) error {
	iter, err := s.client.Query(ctx, sql, params)
	if err != nil {
		return fmt.Errorf("query totals: %w", err)
	}
	var row struct {
		CreditsRefunded   cloudbigquery.NullInt64 `bigquery:"credits_refunded"`
		GuestUploads      int64                   `bigquery:"guest_uploads"`
		RegisteredUploads int64                   `bigquery:"registered_uploads"`
	}
	if err := iter.Next(&row); err != nil {
		if err == iterator.Done {
			return nil
		}
		return fmt.Errorf("reading totals row: %w", err)
	}
	if row.CreditsRefunded.Valid {
		resp.CreditsRefunded = row.CreditsRefunded.Int64
	}
	resp.GuestUploads = row.GuestUploads
	resp.RegisteredUploads = row.RegisteredUploads
	return nil
}
