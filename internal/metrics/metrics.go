package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's prometheus collectors
type Metrics struct {
	registry *prometheus.Registry

	MutationsTotal     *prometheus.CounterVec
	PersistFailures    prometheus.Counter
	RemindersScheduled prometheus.Counter
	RemindersCancelled prometheus.Counter
	RemindersDelivered prometheus.Counter
	Reconciliations    prometheus.Counter
}

// New creates a Metrics instance backed by its own registry
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		MutationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dosetrack",
			Name:      "store_mutations_total",
			Help:      "Treatment store mutations by operation.",
		}, []string{"op"}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dosetrack",
			Name:      "store_persist_failures_total",
			Help:      "Durability writes that failed (in-memory state kept).",
		}),
		RemindersScheduled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dosetrack",
			Name:      "reminders_scheduled_total",
			Help:      "Reminders handed to the notification gateway.",
		}),
		RemindersCancelled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dosetrack",
			Name:      "reminders_cancelled_total",
			Help:      "Pending reminders cancelled.",
		}),
		RemindersDelivered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dosetrack",
			Name:      "reminders_delivered_total",
			Help:      "Reminders that fired and were delivered.",
		}),
		Reconciliations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dosetrack",
			Name:      "reconciliations_total",
			Help:      "Reminder reconciliation passes.",
		}),
	}
}

// Handler returns an HTTP handler exposing the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
