package types

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// ScanEventRow mirrors the scan_events BigQuery schema. One row per domain
// event; columns that do not apply to the event stay NULL.
type ScanEventRow struct {
	EventID              string             `bigquery:"event_id"`
	EventType            string             `bigquery:"event_type"`
	OccurredAt           time.Time          `bigquery:"occurred_at"`
	UserID               *string            `bigquery:"user_id"`
	DocumentID           *string            `bigquery:"document_id"`
	PaymentID            *string            `bigquery:"payment_id"`
	Provider             *string            `bigquery:"provider"`
	CreditType           *string            `bigquery:"credit_type"`
	Credits              *int64             `bigquery:"credits"`
	AmountCents          *int64             `bigquery:"amount_cents"`
	Currency             *string            `bigquery:"currency"`
	ScanType             *string            `bigquery:"scan_type"`
	Guest                *bool              `bigquery:"guest"`
	SimilarityPercentage *float64           `bigquery:"similarity_percentage"`
	AIPercentage         *float64           `bigquery:"ai_percentage"`
	Source               *string            `bigquery:"source"`
	Payload              cbigquery.NullJSON `bigquery:"payload"`
}

// Save implements bigquery.ValueSaver. The event ID doubles as the insert
// ID so BigQuery drops rows re-sent after an ambiguous failure.
func (r ScanEventRow) Save() (map[string]cbigquery.Value, string, error) {
	row := map[string]cbigquery.Value{
		"event_id":              r.EventID,
		"event_type":            r.EventType,
		"occurred_at":           r.OccurredAt,
		"user_id":               nullable(r.UserID),
		"document_id":           nullable(r.DocumentID),
		"payment_id":            nullable(r.PaymentID),
		"provider":              nullable(r.Provider),
		"credit_type":           nullable(r.CreditType),
		"credits":               nullable(r.Credits),
		"amount_cents":          nullable(r.AmountCents),
		"currency":              nullable(r.Currency),
		"scan_type":             nullable(r.ScanType),
		"guest":                 nullable(r.Guest),
		"similarity_percentage": nullable(r.SimilarityPercentage),
		"ai_percentage":         nullable(r.AIPercentage),
		"source":                nullable(r.Source),
		"payload":               nil,
	}
	if r.Payload.Valid {
		row["payload"] = r.Payload.JSONVal
	}
	return row, r.EventID, nil
}

func nullable[T any](v *T) cbigquery.Value {
	if v == nil {
		return nil
	}
	return *v
}
