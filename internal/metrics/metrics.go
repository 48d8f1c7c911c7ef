package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "jam3a"

// Metrics holds the collectors exported on /metrics. Each instance owns its
// registry so tests can create isolated sets.
type Metrics struct {
	Registry *prometheus.Registry

	JoinAttempts         *prometheus.CounterVec
	DealsCompleted       prometheus.Counter
	DealsExpired         *prometheus.CounterVec
	NotificationsSent    *prometheus.CounterVec
	NotificationFailures *prometheus.CounterVec
	NotificationsDropped prometheus.Counter
	HTTPRequestDuration  *prometheus.HistogramVec
}

// New creates and registers the service collectors together with the Go
// runtime and process collectors
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		JoinAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deals",
			Name:      "join_attempts_total",
			Help:      "Deal join attempts by outcome code",
		}, []string{"outcome"}),
		DealsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deals",
			Name:      "completed_total",
			Help:      "Deals completed by reaching their participant limit",
		}),
		DealsExpired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deals",
			Name:      "expired_total",
			Help:      "Active deals transitioned to expired",
		}, []string{"source"}),
		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "sent_total",
			Help:      "Notifications delivered by sink",
		}, []string{"sink"}),
		NotificationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "failures_total",
			Help:      "Notification deliveries that failed by sink",
		}, []string{"sink"}),
		NotificationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "dropped_total",
			Help:      "Notifications dropped because the queue was full",
		}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route pattern, method and status",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.JoinAttempts,
		m.DealsCompleted,
		m.DealsExpired,
		m.NotificationsSent,
		m.NotificationFailures,
		m.NotificationsDropped,
		m.HTTPRequestDuration,
	)

	return m
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}
