package types

import "time"

// DashboardRequest bounds the admin dashboard window.
type DashboardRequest struct {
	Start time.Time
	End   time.Time
}

// TimeSeriesPoint describes a single date/value pair returned by the query service.
type TimeSeriesPoint struct {
	Date  string `json:"date"`
	Value int64  `json:"value"`
}

// LabelValue is a grouped total such as revenue per provider.
type LabelValue struct {
	Label string `json:"label"`
	Value int64  `json:"value"`
}

// DashboardResponse wraps the scan KPIs for the admin dashboard.
type DashboardResponse struct {
	Uploads           []TimeSeriesPoint `json:"uploads"`
	Completions       []TimeSeriesPoint `json:"completions"`
	Failures          []TimeSeriesPoint `json:"failures"`
	RevenueCents      []TimeSeriesPoint `json:"revenue_cents"`
	CreditsSold       []TimeSeriesPoint `json:"credits_sold"`
	RevenueByProvider []LabelValue      `json:"revenue_by_provider"`
	UploadsByScanType []LabelValue      `json:"uploads_by_scan_type"`
	CreditsRefunded   int64             `json:"credits_refunded"`
	AvgSimilarity     float64           `json:"avg_similarity"`
	AvgAI             float64           `json:"avg_ai"`
	GuestUploads      int64             `json:"guest_uploads"`
	RegisteredUploads int64             `json:"registered_uploads"`
}
