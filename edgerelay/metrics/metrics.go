// Package metrics exposes agent counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "edgerelay"

// Cycle phases used as the "phase" label on cycle errors.
const (
	PhaseGather = "gather"
	PhaseStore  = "store"
	PhasePack   = "pack"
	PhaseSend   = "send"
)

// Collector is a prometheus.Collector for one agent. A nil *Collector is
// valid and records nothing.
type Collector struct {
	cycles         *prometheus.CounterVec
	cycleErrors    *prometheus.CounterVec
	deviceFailures *prometheus.CounterVec
	rowsGathered   prometheus.Counter
	rowsChanged    prometheus.Counter
	messagesSent   prometheus.Counter
	oversize       prometheus.Counter
	dropped        prometheus.Counter
	messageBytes   prometheus.Histogram
	cycleDuration  *prometheus.HistogramVec
}

func NewCollector() *Collector {
	return &Collector{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Completed collection cycles by mode.",
		}, []string{"mode"}),
		cycleErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycle_errors_total",
			Help:      "Cycles that failed, by the phase that failed.",
		}, []string{"phase"}),
		deviceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_failures_total",
			Help:      "Gathers that returned no records for a device.",
		}, []string{"device"}),
		rowsGathered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_gathered_total",
			Help:      "Flattened rows read from devices.",
		}),
		rowsChanged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_changed_total",
			Help:      "Rows reported upstream after change detection.",
		}),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Messages accepted by the transport.",
		}),
		oversize: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oversize_messages_total",
			Help:      "Single-record messages that exceed the byte limit.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_records_total",
			Help:      "Records dropped because they could not fit any message.",
		}),
		messageBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_bytes",
			Help:      "Encoded payload size of sent messages.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 7),
		}),
		cycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a collection cycle.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"mode"}),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.collectors() {
		m.Describe(ch)
	}
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, m := range c.collectors() {
		m.Collect(ch)
	}
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.cycles, c.cycleErrors, c.deviceFailures, c.rowsGathered, c.rowsChanged,
		c.messagesSent, c.oversize, c.dropped, c.messageBytes, c.cycleDuration,
	}
}

func (c *Collector) CycleDone(mode string, d time.Duration) {
	if c == nil {
		return
	}
	c.cycles.WithLabelValues(mode).Inc()
	c.cycleDuration.WithLabelValues(mode).Observe(d.Seconds())
}

func (c *Collector) CycleFailed(phase string) {
	if c == nil {
		return
	}
	c.cycleErrors.WithLabelValues(phase).Inc()
}

func (c *Collector) DeviceFailed(device string) {
	if c == nil {
		return
	}
	c.deviceFailures.WithLabelValues(device).Inc()
}

func (c *Collector) Rows(gathered, changed int) {
	if c == nil {
		return
	}
	c.rowsGathered.Add(float64(gathered))
	c.rowsChanged.Add(float64(changed))
}

func (c *Collector) MessageSent(bytes int, oversize bool) {
	if c == nil {
		return
	}
	c.messagesSent.Inc()
	c.messageBytes.Observe(float64(bytes))
	if oversize {
		c.oversize.Inc()
	}
}

func (c *Collector) Dropped(n int) {
	if c == nil || n == 0 {
		return
	}
	c.dropped.Add(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
