package instrument

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
	leadsCreated prometheus.Counter
	migrations   *prometheus.CounterVec
	emailsSent   *prometheus.CounterVec
	matchRuns    *prometheus.CounterVec
	webhooks     *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "knot",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "knot",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		leadsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "knot",
			Name:      "leads_created_total",
			Help:      "Leads captured through the public form.",
		}),
		migrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "knot",
			Name:      "migrations_total",
			Help:      "Local storage migration records by kind and outcome.",
		}, []string{"kind", "outcome"}),
		emailsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "knot",
			Name:      "emails_sent_total",
			Help:      "Outgoing emails by template and outcome.",
		}, []string{"template", "outcome"}),
		matchRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "knot",
			Name:      "match_runs_total",
			Help:      "Match ranking requests by engine.",
		}, []string{"engine"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "knot",
			Name:      "webhook_deliveries_total",
			Help:      "CRM webhook deliveries by hook and outcome.",
		}, []string{"hook", "outcome"}),
	}
	reg.MustRegister(m.httpRequests, m.httpLatency, m.leadsCreated, m.migrations, m.emailsSent, m.matchRuns, m.webhooks)
	return m
}

// Middleware counts requests per matched route template, not raw path.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if m == nil {
			return c.Next()
		}
		start := time.Now()
		err := c.Next()

		route := c.Route().Path
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}
		m.httpRequests.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		m.httpLatency.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}

func (m *Metrics) LeadCreated() {
	if m == nil {
		return
	}
	m.leadsCreated.Inc()
}

func (m *Metrics) Migration(kind, outcome string) {
	if m == nil {
		return
	}
	m.migrations.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) EmailSent(template string, err error) {
	if m == nil {
		return
	}
	outcome := "sent"
	if err != nil {
		outcome = "failed"
	}
	m.emailsSent.WithLabelValues(template, outcome).Inc()
}

func (m *Metrics) MatchRun(engine string) {
	if m == nil {
		return
	}
	m.matchRuns.WithLabelValues(engine).Inc()
}

func (m *Metrics) WebhookDelivered(hook string, ok bool) {
	if m == nil {
		return
	}
	outcome := "delivered"
	if !ok {
		outcome = "failed"
	}
	m.webhooks.WithLabelValues(hook, outcome).Inc()
}
