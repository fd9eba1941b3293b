// Package metrics provides optional Prometheus instrumentation for an S7
// session. A Collector is constructed independently of any global registry;
// callers register it with their own prometheus.Registerer if they want the
// counters exposed.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the counters and histograms a Session updates as it
// operates. The zero value is not usable; construct with New.
type Collector struct {
	RequestsTotal    *prometheus.CounterVec
	BytesSent        prometheus.Counter
	BytesReceived    prometheus.Counter
	DecodeErrors     *prometheus.CounterVec
	Timeouts         prometheus.Counter
	Connects         prometheus.Counter
	RoundTripLatency prometheus.Histogram
}

// New constructs a Collector. namespace/subsystem follow the usual
// Prometheus naming convention (e.g. "s7link", "session").
func New(namespace, subsystem string) *Collector {
	return &Collector{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "requests_total",
			Help:      "S7 requests issued, labeled by operation.",
		}, []string{"operation"}),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bytes_sent_total",
			Help:      "Bytes written to the PLC connection.",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bytes_received_total",
			Help:      "Bytes read from the PLC connection.",
		}),
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "decode_errors_total",
			Help:      "Frame decode failures, labeled by codec layer.",
		}, []string{"layer"}),
		Timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "timeouts_total",
			Help:      "Operations that exceeded their read/write timeout.",
		}),
		Connects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connects_total",
			Help:      "Sessions that completed the connect handshake.",
		}),
		RoundTripLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "round_trip_seconds",
			Help:      "Latency of one request/response exchange.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.RequestsTotal.Describe(ch)
	c.BytesSent.Describe(ch)
	c.BytesReceived.Describe(ch)
	c.DecodeErrors.Describe(ch)
	c.Timeouts.Describe(ch)
	c.Connects.Describe(ch)
	c.RoundTripLatency.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.RequestsTotal.Collect(ch)
	c.BytesSent.Collect(ch)
	c.BytesReceived.Collect(ch)
	c.DecodeErrors.Collect(ch)
	c.Timeouts.Collect(ch)
	c.Connects.Collect(ch)
	c.RoundTripLatency.Collect(ch)
}

// ObserveRoundTrip records the duration of one request/response exchange.
func (c *Collector) ObserveRoundTrip(d time.Duration) {
	c.RoundTripLatency.Observe(d.Seconds())
}
