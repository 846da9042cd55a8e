package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the relay.
type Metrics struct {
	SponsorOutcomes     *prometheus.CounterVec
	BroadcastDuration   prometheus.Histogram
	BroadcastAttempts   prometheus.Counter
	NameRegistrations   *prometheus.CounterVec
	CredentialDecisions *prometheus.CounterVec
	RateLimitRejections prometheus.Counter
	BackendFallbacks    *prometheus.CounterVec
	ActivityRecorded    prometheus.Counter
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates and registers all metrics on reg. Passing a fresh registry per
// test avoids duplicate registration panics.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SponsorOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "solrelay_sponsor_outcomes_total",
			Help: "Sponsorship requests by terminal outcome",
		}, []string{"outcome"}),
		BroadcastDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "solrelay_broadcast_duration_seconds",
			Help:    "Latency of transaction broadcast including retries",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		BroadcastAttempts: f.NewCounter(prometheus.CounterOpts{
			Name: "solrelay_broadcast_attempts_total",
			Help: "Individual sendTransaction calls, retries included",
		}),
		NameRegistrations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "solrelay_name_registrations_total",
			Help: "Subdomain creation requests by outcome",
		}, []string{"outcome"}),
		CredentialDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "solrelay_credential_decisions_total",
			Help: "SAS credential verification decisions by reason",
		}, []string{"reason"}),
		RateLimitRejections: f.NewCounter(prometheus.CounterOpts{
			Name: "solrelay_rate_limit_rejections_total",
			Help: "Requests rejected by the fixed-window limiter",
		}),
		BackendFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "solrelay_backend_fallbacks_total",
			Help: "Operations served by the in-memory tier because the durable backend failed or was bypassed",
		}, []string{"op"}),
		ActivityRecorded: f.NewCounter(prometheus.CounterOpts{
			Name: "solrelay_activity_recorded_total",
			Help: "Entries appended to the activity ledger",
		}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "solrelay_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// Nil-safe helpers so components can run without metrics in tests.

func (m *Metrics) ObserveSponsorOutcome(outcome string) {
	if m == nil {
		return
	}
	m.SponsorOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveBroadcast(d time.Duration) {
	if m == nil {
		return
	}
	m.BroadcastDuration.Observe(d.Seconds())
}

func (m *Metrics) IncBroadcastAttempt() {
	if m == nil {
		return
	}
	m.BroadcastAttempts.Inc()
}

func (m *Metrics) ObserveNameRegistration(outcome string) {
	if m == nil {
		return
	}
	m.NameRegistrations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveCredentialDecision(reason string) {
	if m == nil {
		return
	}
	m.CredentialDecisions.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncRateLimitRejection() {
	if m == nil {
		return
	}
	m.RateLimitRejections.Inc()
}

func (m *Metrics) IncBackendFallback(op string) {
	if m == nil {
		return
	}
	m.BackendFallbacks.WithLabelValues(op).Inc()
}

func (m *Metrics) IncActivityRecorded() {
	if m == nil {
		return
	}
	m.ActivityRecorded.Inc()
}

func (m *Metrics) ObserveHTTPRequest(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}
