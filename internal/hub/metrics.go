package hub

import (
	"time"

	metrics "github.com/rcrowley/go-metrics"
)

// Metrics counts hub activity in a private go-metrics registry.
type Metrics struct {
	registry metrics.Registry

	Published   metrics.Counter // accepted by Publish
	Filtered    metrics.Counter // nil messages rejected by Publish
	Overflow    metrics.Counter // queued messages replaced by newer ones
	Delivered   metrics.Counter // successful subscriber sends
	Dropped     metrics.Counter // subscribers removed after a failure or stall
	Subscribers metrics.Gauge
	Dispatch    metrics.Timer // time to fan one message out
}

func newMetrics() *Metrics {
	r := metrics.NewRegistry()
	return &Metrics{
		registry:    r,
		Published:   metrics.NewRegisteredCounter("hub.published", r),
		Filtered:    metrics.NewRegisteredCounter("hub.filtered", r),
		Overflow:    metrics.NewRegisteredCounter("hub.overflow", r),
		Delivered:   metrics.NewRegisteredCounter("hub.delivered", r),
		Dropped:     metrics.NewRegisteredCounter("hub.dropped", r),
		Subscribers: metrics.NewRegisteredGauge("hub.subscribers", r),
		Dispatch:    metrics.NewRegisteredTimer("hub.dispatch", r),
	}
}

// Snapshot returns the current values keyed by metric name. Counters and gauges are
// reported as int64, the dispatch timer as its count and mean in milliseconds.
func (m *Metrics) Snapshot() map[string]any {
	out := make(map[string]any)
	m.registry.Each(func(name string, i interface{}) {
		switch v := i.(type) {
		case metrics.Counter:
			out[name] = v.Count()
		case metrics.Gauge:
			out[name] = v.Value()
		case metrics.Timer:
			out[name+".count"] = v.Count()
			out[name+".mean_ms"] = v.Mean() / float64(time.Millisecond)
		}
	})
	return out
}
