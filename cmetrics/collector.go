// Package cmetrics wires a cmap.Table's lifecycle counters into Prometheus,
// the way a coordination daemon embedding the table would expose it on its
// own /metrics endpoint. Not imported by the cmap package itself -- an
// embedder opts in by constructing a Collector and passing it as
// cmap.Config.Metrics.
package cmetrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/intuitivelabs/cmap"
)

// Collector implements cmap.MetricsSink on top of a handful of Prometheus
// metrics. Register it with a prometheus.Registerer before wiring it into a
// cmap.Config; it is safe for concurrent use since the underlying
// prometheus metric types already are.
type Collector struct {
	entries           prometheus.Gauge
	notifyDispatched  *prometheus.CounterVec
	notifyAllocFailed prometheus.Counter
}

// NewCollector builds a Collector with metric names prefixed "cmap_".
func NewCollector() *Collector {
	return &Collector{
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cmap_entries",
			Help: "Current number of live entries in the table.",
		}),
		notifyDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cmap_notify_dispatched_total",
			Help: "Notifier callbacks dispatched, by event type.",
		}, []string{"event"}),
		notifyAllocFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cmap_notify_alloc_failures_total",
			Help: "Notifier dispatch snapshots dropped due to allocation failure.",
		}),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.entries.Describe(ch)
	c.notifyDispatched.Describe(ch)
	c.notifyAllocFailed.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.entries.Collect(ch)
	c.notifyDispatched.Collect(ch)
	c.notifyAllocFailed.Collect(ch)
}

// EntriesChanged implements cmap.MetricsSink.
func (c *Collector) EntriesChanged(delta int) {
	c.entries.Add(float64(delta))
}

// NotifyDispatched implements cmap.MetricsSink.
func (c *Collector) NotifyDispatched(event cmap.EventType) {
	c.notifyDispatched.WithLabelValues(event.String()).Inc()
}

// NotifyAllocFailed implements cmap.MetricsSink.
func (c *Collector) NotifyAllocFailed() {
	c.notifyAllocFailed.Inc()
}

var _ cmap.MetricsSink = (*Collector)(nil)
