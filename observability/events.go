package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"solirey/core/events"
)

type eventMetrics struct {
	emitted *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking emitted market events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of market events segmented by module and type.",
			}, []string{"module", "type"}),
		}
		prometheus.MustRegister(eventRegistry.emitted)
	})
	return eventRegistry
}

// Record increments the counter for the supplied event type. The module label
// is the prefix before the first dot.
func (m *eventMetrics) Record(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(strings.ToLower(eventType))
	if normalized == "" {
		normalized = "unknown"
	}
	module := normalized
	if idx := strings.IndexByte(normalized, '.'); idx > 0 {
		module = normalized[:idx]
	}
	m.emitted.WithLabelValues(module, normalized).Inc()
}

// EventCounter is an emitter that counts every event before handing it to
// Next.
type EventCounter struct {
	Next events.Emitter
}

// Emit implements events.Emitter.
func (c EventCounter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	Events().Record(evt.EventType())
	if c.Next != nil {
		c.Next.Emit(evt)
	}
}
