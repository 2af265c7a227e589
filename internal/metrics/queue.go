package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// QueueMetrics holds metrics related to the controller event queue.
type QueueMetrics struct {
	// EventsWritten tracks events written to the queue, including
	// redeliveries written back by the dispatcher.
	EventsWritten prometheus.Counter

	// EventsConsumed tracks event deliveries taken off the queue.
	EventsConsumed prometheus.Counter

	// HandlerOutcomes tracks per-delivery handler results.
	// Labels: outcome (success, requeued)
	HandlerOutcomes *prometheus.CounterVec

	// PoisonEvents tracks deliveries dropped because their payload could
	// not be decoded.
	PoisonEvents prometheus.Counter
}

// Handler outcome label values.
const (
	HandlerSuccess  = "success"
	HandlerRequeued = "requeued"
)

// NewQueueMetrics creates and registers event queue metrics.
// Uses promauto for automatic registration with the default registry.
func NewQueueMetrics() *QueueMetrics {
	return &QueueMetrics{
		EventsWritten: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "rivulet",
				Subsystem: "queue",
				Name:      "events_written_total",
				Help:      "Total number of events written to the queue, including redeliveries.",
			},
		),
		EventsConsumed: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "rivulet",
				Subsystem: "queue",
				Name:      "events_consumed_total",
				Help:      "Total number of event deliveries taken off the queue.",
			},
		),
		HandlerOutcomes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rivulet",
				Subsystem: "queue",
				Name:      "handler_outcomes_total",
				Help:      "Per-delivery handler results, broken down by outcome.",
			},
			[]string{"outcome"},
		),
		PoisonEvents: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "rivulet",
				Subsystem: "queue",
				Name:      "poison_events_total",
				Help:      "Total number of deliveries dropped because the payload could not be decoded.",
			},
		),
	}
}

// NewQueueMetricsWithRegistry creates queue metrics registered with a custom registry.
// Useful for testing to avoid conflicts with the default registry.
func NewQueueMetricsWithRegistry(reg prometheus.Registerer) *QueueMetrics {
	eventsWritten := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rivulet",
			Subsystem: "queue",
			Name:      "events_written_total",
			Help:      "Total number of events written to the queue, including redeliveries.",
		},
	)

	eventsConsumed := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rivulet",
			Subsystem: "queue",
			Name:      "events_consumed_total",
			Help:      "Total number of event deliveries taken off the queue.",
		},
	)

	handlerOutcomes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rivulet",
			Subsystem: "queue",
			Name:      "handler_outcomes_total",
			Help:      "Per-delivery handler results, broken down by outcome.",
		},
		[]string{"outcome"},
	)

	poisonEvents := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rivulet",
			Subsystem: "queue",
			Name:      "poison_events_total",
			Help:      "Total number of deliveries dropped because the payload could not be decoded.",
		},
	)

	reg.MustRegister(eventsWritten, eventsConsumed, handlerOutcomes, poisonEvents)

	return &QueueMetrics{
		EventsWritten:   eventsWritten,
		EventsConsumed:  eventsConsumed,
		HandlerOutcomes: handlerOutcomes,
		PoisonEvents:    poisonEvents,
	}
}

// RecordWrite records one event written to the queue.
func (m *QueueMetrics) RecordWrite() {
	m.EventsWritten.Inc()
}

// RecordConsume records one delivery taken off the queue.
func (m *QueueMetrics) RecordConsume() {
	m.EventsConsumed.Inc()
}

// RecordHandlerOutcome records one per-delivery handler result.
func (m *QueueMetrics) RecordHandlerOutcome(outcome string) {
	m.HandlerOutcomes.WithLabelValues(outcome).Inc()
}

// RecordPoisonEvent records one dropped undecodable delivery.
func (m *QueueMetrics) RecordPoisonEvent() {
	m.PoisonEvents.Inc()
}
