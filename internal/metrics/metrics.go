package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TileRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chartview_tile_requests_total",
		Help: "Total number of tile requests",
	})

	TileHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chartview_tile_hits_total",
		Help: "Total number of tile requests served from cache",
	})

	TilePending = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chartview_tile_pending_total",
		Help: "Total number of tile requests answered while still rendering",
	})

	TileErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chartview_tile_errors_total",
		Help: "Total number of tile requests that failed",
	})

	TileLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chartview_tile_latency_seconds",
		Help:    "Latency of tile lookups in seconds",
		Buckets: prometheus.DefBuckets,
	})
)
