package metrics

import "github.com/prometheus/client_golang/prometheus"

// DomainMetrics counts business outcomes that dashboards alert on.
type DomainMetrics struct {
	webhooks  *prometheus.CounterVec
	documents *prometheus.CounterVec
	emails    *prometheus.CounterVec
	pushes    *prometheus.CounterVec
	agentJobs *prometheus.CounterVec
	outbox    *prometheus.CounterVec
	consumed  *prometheus.CounterVec
}

// NewDomainMetrics registers the domain counters. A nil registerer yields a no-op recorder.
func NewDomainMetrics(reg prometheus.Registerer) *DomainMetrics {
	if reg == nil {
		return &DomainMetrics{}
	}
	m := &DomainMetrics{
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Payment webhook deliveries by provider and outcome.",
		}, []string{"provider", "result"}),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_completed_total",
			Help:      "Documents completed, by completion source.",
		}, []string{"source"}),
		emails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_total",
			Help:      "Outgoing emails by result.",
		}, []string{"result"}),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_notifications_total",
			Help:      "Web push deliveries by result.",
		}, []string{"result"}),
		agentJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_jobs_total",
			Help:      "Scan agent ticks by outcome.",
		}, []string{"outcome"}),
		outbox: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_relay_total",
			Help:      "Outbox rows settled by the relay, by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		consumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_consumed_total",
			Help:      "Domain events read by subscribers, by consumer, event type and outcome.",
		}, []string{"consumer", "event_type", "outcome"}),
	}
	reg.MustRegister(m.webhooks, m.documents, m.emails, m.pushes, m.agentJobs, m.outbox, m.consumed)
	return m
}

func (m *DomainMetrics) Webhook(provider, result string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(provider), normalizeLabel(result)).Inc()
}

func (m *DomainMetrics) DocumentCompleted(source string) {
	if m == nil || m.documents == nil {
		return
	}
	m.documents.WithLabelValues(normalizeLabel(source)).Inc()
}

func (m *DomainMetrics) Email(result string) {
	if m == nil || m.emails == nil {
		return
	}
	m.emails.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *DomainMetrics) Push(result string) {
	if m == nil || m.pushes == nil {
		return
	}
	m.pushes.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *DomainMetrics) AgentJob(outcome string) {
	if m == nil || m.agentJobs == nil {
		return
	}
	m.agentJobs.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *DomainMetrics) Outbox(eventType, outcome string) {
	if m == nil || m.outbox == nil {
		return
	}
	m.outbox.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func (m *DomainMetrics) Consumed(consumer, eventType, outcome string) {
	if m == nil || m.consumed == nil {
		return
	}
	m.consumed.WithLabelValues(normalizeLabel(consumer), normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}
