package instrumentation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the quote server.
type Metrics struct {
	TicksReceived   prometheus.Counter
	TicksDuplicate  prometheus.Counter
	TicksUnchanged  prometheus.Counter
	TicksDropped    prometheus.Counter
	QuotesUpdated   prometheus.Counter
	ProcessLatency  prometheus.Histogram
	Reconnects      prometheus.Counter
	ConnectionState prometheus.Gauge
	SinkFailures    *prometheus.CounterVec
	SinkDropped     prometheus.Counter
	BroadcastDrops  prometheus.Counter
	Clients         prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TicksReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "quote_ticks_received_total",
			Help: "Tick pushes decoded from the upstream feed",
		}),
		TicksDuplicate: f.NewCounter(prometheus.CounterOpts{
			Name: "quote_ticks_duplicate_total",
			Help: "Ticks dropped by the dedup window",
		}),
		TicksUnchanged: f.NewCounter(prometheus.CounterOpts{
			Name: "quote_ticks_unchanged_total",
			Help: "Ticks whose price did not move past epsilon",
		}),
		TicksDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "quote_ticks_dropped_total",
			Help: "Ticks dropped because a worker queue was full",
		}),
		QuotesUpdated: f.NewCounter(prometheus.CounterOpts{
			Name: "quote_updates_total",
			Help: "Quote snapshots written to the cache",
		}),
		ProcessLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "quote_process_latency_ms",
			Help:    "Time to derive and store a quote in milliseconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250},
		}),
		Reconnects: f.NewCounter(prometheus.CounterOpts{
			Name: "quote_feed_reconnects_total",
			Help: "Reconnect attempts against the upstream feed",
		}),
		ConnectionState: f.NewGauge(prometheus.GaugeOpts{
			Name: "quote_feed_connected",
			Help: "1 when the upstream feed connection is open",
		}),
		SinkFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "quote_sink_failures_total",
			Help: "Persistence writes that failed, by record kind",
		}, []string{"kind"}),
		SinkDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "quote_sink_dropped_total",
			Help: "Persistence records dropped because the queue was full",
		}),
		BroadcastDrops: f.NewCounter(prometheus.CounterOpts{
			Name: "quote_broadcast_drops_total",
			Help: "Messages dropped for slow downstream clients",
		}),
		Clients: f.NewGauge(prometheus.GaugeOpts{
			Name: "quote_clients_connected",
			Help: "Connected downstream websocket clients",
		}),
	}
}

// NewNopMetrics returns metrics bound to a private registry.
func NewNopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
