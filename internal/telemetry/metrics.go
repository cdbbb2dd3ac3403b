package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service counters.
type Metrics struct {
	registry *prometheus.Registry

	TxnConflicts  prometheus.Counter
	SessionStarts prometheus.Counter
	SessionEnds   prometheus.Counter
	SessionExpiry prometheus.Counter
	NotifySent    prometheus.Counter
	NotifySkipped prometheus.Counter
	TasksFired    prometheus.Counter
}

// NewMetrics registers the taplist counters on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		TxnConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "taplist_transaction_conflicts_total",
			Help: "Optimistic concurrency conflicts observed by the store.",
		}),
		SessionStarts: factory.NewCounter(prometheus.CounterOpts{
			Name: "taplist_session_starts_total",
			Help: "Sessions granted.",
		}),
		SessionEnds: factory.NewCounter(prometheus.CounterOpts{
			Name: "taplist_session_ends_total",
			Help: "Sessions ended manually.",
		}),
		SessionExpiry: factory.NewCounter(prometheus.CounterOpts{
			Name: "taplist_session_expirations_total",
			Help: "Sessions cleared by expiration.",
		}),
		NotifySent: factory.NewCounter(prometheus.CounterOpts{
			Name: "taplist_notifications_sent_total",
			Help: "Position-one notifications dispatched.",
		}),
		NotifySkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "taplist_notifications_skipped_total",
			Help: "Notifications skipped for missing tokens or empty queues.",
		}),
		TasksFired: factory.NewCounter(prometheus.CounterOpts{
			Name: "taplist_scheduler_tasks_fired_total",
			Help: "Expiration callbacks dispatched by the scheduler.",
		}),
	}
}

// Handler exposes the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
