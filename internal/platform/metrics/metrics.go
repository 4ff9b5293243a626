package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the consumption pipeline.
type Metrics struct {
	EventsConsumed     *prometheus.CounterVec
	EventsProcessed    *prometheus.CounterVec
	EventsFailed       *prometheus.CounterVec
	EventsDeadLetter   *prometheus.CounterVec
	HandleDuration     prometheus.Histogram
	InFlightDeliveries prometheus.Gauge
}

// New creates and registers all Prometheus metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers metrics on a caller-supplied registry. Tests pass a fresh
// registry so repeated construction never panics on duplicate registration.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsConsumed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_events_consumed_total",
			Help: "Total events delivered by the broker, by event domain",
		}, []string{"domain"}),
		EventsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_events_processed_total",
			Help: "Total events normalized and persisted, by event domain",
		}, []string{"domain"}),
		EventsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_events_failed_total",
			Help: "Total events that failed processing, by failure stage",
		}, []string{"stage"}),
		EventsDeadLetter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_events_dead_lettered_total",
			Help: "Total events routed to the dead-letter destination",
		}, []string{"domain"}),
		HandleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "audit_event_handle_seconds",
			Help:    "Time from delivery to ack/nack for one event",
			Buckets: prometheus.DefBuckets,
		}),
		InFlightDeliveries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "audit_in_flight_deliveries",
			Help: "Unacknowledged deliveries currently being handled",
		}),
	}
}
