package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PromCollector mirrors a Sink's recorded events and latched false-matches
// count into Prometheus metrics, so that a long-running demo or benchmark
// harness can be scraped while syncs are in flight rather than only
// inspected after the fact via Sink.Events.
type PromCollector struct {
	bytesTotal    *prometheus.CounterVec
	eventDuration *prometheus.HistogramVec
	falseMatches  prometheus.Gauge
}

// NewPromCollector registers its metrics on reg under the given protocol
// label (e.g. "bloom", "buckets") so that multiple protocols can share one
// registry without colliding.
func NewPromCollector(reg prometheus.Registerer, protocol string) *PromCollector {
	c := &PromCollector{
		bytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "crdtsync",
			Subsystem:   "sync",
			Name:        "bytes_total",
			Help:        "Bytes recorded per synchronization event, by direction.",
			ConstLabels: prometheus.Labels{"protocol": protocol},
		}, []string{"direction"}),
		eventDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "crdtsync",
			Subsystem:   "sync",
			Name:        "event_duration_seconds",
			Help:        "Derived transfer duration per synchronization event.",
			ConstLabels: prometheus.Labels{"protocol": protocol},
			Buckets:     prometheus.DefBuckets,
		}, []string{"direction"}),
		falseMatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "crdtsync",
			Subsystem:   "sync",
			Name:        "false_matches",
			Help:        "Differences remaining after the most recent sync's Finish.",
			ConstLabels: prometheus.Labels{"protocol": protocol},
		}),
	}

	reg.MustRegister(c.bytesTotal, c.eventDuration, c.falseMatches)
	return c
}

// Observe mirrors one Event into the collector's metrics. Call it every time
// the corresponding Sink.Register call is made.
func (c *PromCollector) Observe(e Event) {
	label := e.Direction.String()
	c.bytesTotal.WithLabelValues(label).Add(float64(e.Bytes()))
	c.eventDuration.WithLabelValues(label).Observe(e.Duration.Seconds())
}

// Finish mirrors a Sink.Finish call's differences count into the gauge.
func (c *PromCollector) Finish(differences int) {
	c.falseMatches.Set(float64(differences))
}

// ObserveSink replays every event currently recorded in s into the
// collector; useful when wiring a collector onto a sink that already ran.
func (c *PromCollector) ObserveSink(s *Sink) {
	for _, e := range s.Events() {
		c.Observe(e)
	}
	if diffs, done := s.FalseMatches(); done {
		c.Finish(diffs)
	}
}
