// Package metrics declares nosqld's Prometheus instrumentation and the
// handler that serves it on its own listener.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var OpsByVerbAndResult = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "nosqld_ops_total",
		Help: "Wire protocol operations by verb and result",
	},
	[]string{"verb", "result"},
)

var OpLatencyHistogram = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "nosqld_op_latency_seconds",
		Help:    "Engine operation latency",
		Buckets: prometheus.ExponentialBuckets(0.000001, 10, 10),
	},
	[]string{"verb"},
)

var CacheHits = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "nosqld_cache_hits_total",
		Help: "Direct-mapped cache hits",
	},
)

var CacheMisses = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "nosqld_cache_misses_total",
		Help: "Direct-mapped cache misses",
	},
)

var BitmapBusySlots = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "nosqld_bitmap_busy_slots",
		Help: "Busy slots in the allocator bitmap",
	},
)

var SnapshotOps = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "nosqld_snapshot_ops_total",
		Help: "Snapshot save/load operations by result",
	},
	[]string{"op", "result"},
)

// Handler returns the HTTP handler to mount on the metrics listener.
func Handler() http.Handler {
	return promhttp.Handler()
}
