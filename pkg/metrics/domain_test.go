package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestDomainMetricsCountByLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDomainMetrics(reg)
	m.Webhook("paddle", "processed")
	m.Webhook("paddle", "processed")
	m.Webhook("viva", "duplicate")
	m.DocumentCompleted("")
	m.Email("skipped")
	m.AgentJob("processed")
	m.Consumed("analytics", "document_uploaded", "handled")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "simcheck_webhook_events_total", "provider", "paddle"); err != nil || got != 2 {
		t.Fatalf("expected 2 paddle webhooks, got %v err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "simcheck_documents_completed_total", "source", "unknown"); err != nil || got != 1 {
		t.Fatalf("expected empty source to be labelled unknown, got %v err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "simcheck_emails_total", "result", "skipped"); err != nil || got != 1 {
		t.Fatalf("expected 1 skipped email, got %v err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "simcheck_agent_jobs_total", "outcome", "processed"); err != nil || got != 1 {
		t.Fatalf("expected 1 processed agent job, got %v err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "simcheck_events_consumed_total", "consumer", "analytics"); err != nil || got != 1 {
		t.Fatalf("expected 1 consumed analytics event, got %v err=%v", got, err)
	}
}

func TestDomainMetricsNilSafe(t *testing.T) {
	var m *DomainMetrics
	m.Webhook("paddle", "processed")
	NewDomainMetrics(nil).Push("sent")
	m.AgentJob("idle")
}
