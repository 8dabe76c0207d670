// Package metrics provides Prometheus metrics for the prescription
// lifecycle engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics. A nil *Metrics is valid and
// turns every recording method into a no-op, which keeps tests free of
// registry bookkeeping.
type Metrics struct {
	Transitions           *prometheus.CounterVec
	TransitionsRejected   prometheus.Counter
	Fills                 prometheus.Counter
	SubstitutionFallbacks prometheus.Counter
	FillsRejected         prometheus.Counter
	NotificationsSent     prometheus.Counter
	NotificationsFailed   prometheus.Counter
	NotificationsSkipped  prometheus.Counter
	OutboxPending         prometheus.Gauge
	RequestDuration       prometheus.Histogram
}

// New creates and registers all metrics on reg; pass
// prometheus.DefaultRegisterer in the binaries.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prescription_transitions_total",
			Help: "Committed prescription status transitions",
		}, []string{"from", "to"}),
		TransitionsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prescription_transitions_rejected_total",
			Help: "Status transitions rejected as outside the allowed graph",
		}),
		Fills: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prescription_fills_total",
			Help: "Prescriptions filled",
		}),
		SubstitutionFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prescription_substitution_fallbacks_total",
			Help: "Fills where the preferred drug type was not in stock",
		}),
		FillsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prescription_fills_rejected_total",
			Help: "Fill attempts rejected because no stocked drug matched",
		}),
		NotificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Patient notifications delivered",
		}),
		NotificationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Patient notification deliveries that failed (absorbed)",
		}),
		NotificationsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifications_skipped_total",
			Help: "Notifications skipped because the patient has no email",
		}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_pending_entries",
			Help: "Transition events awaiting publication",
		}),
		RequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
	}

	reg.MustRegister(
		m.Transitions,
		m.TransitionsRejected,
		m.Fills,
		m.SubstitutionFallbacks,
		m.FillsRejected,
		m.NotificationsSent,
		m.NotificationsFailed,
		m.NotificationsSkipped,
		m.OutboxPending,
		m.RequestDuration,
	)

	return m
}

// ObserveTransition records a committed transition.
func (m *Metrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
}

// IncRejectedTransition records a rejected transition.
func (m *Metrics) IncRejectedTransition() {
	if m == nil {
		return
	}
	m.TransitionsRejected.Inc()
}

// ObserveFill records a completed fill; fallback marks a substitute.
func (m *Metrics) ObserveFill(fallback bool) {
	if m == nil {
		return
	}
	m.Fills.Inc()
	if fallback {
		m.SubstitutionFallbacks.Inc()
	}
}

// IncRejectedFill records a DrugNotStocked rejection.
func (m *Metrics) IncRejectedFill() {
	if m == nil {
		return
	}
	m.FillsRejected.Inc()
}

// IncNotificationSent records a delivered notification.
func (m *Metrics) IncNotificationSent() {
	if m == nil {
		return
	}
	m.NotificationsSent.Inc()
}

// IncNotificationFailed records an absorbed delivery failure.
func (m *Metrics) IncNotificationFailed() {
	if m == nil {
		return
	}
	m.NotificationsFailed.Inc()
}

// IncNotificationSkipped records a skip for a patient without email.
func (m *Metrics) IncNotificationSkipped() {
	if m == nil {
		return
	}
	m.NotificationsSkipped.Inc()
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
