package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qrdecode_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qrdecode_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	scanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qrdecode_scan_duration_seconds",
			Help:    "Time spent scanning one image",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	symbolsDecodedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "qrdecode_symbols_decoded_total",
			Help: "Total number of QR symbols decoded",
		},
	)

	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qrdecode_cache_lookups_total",
			Help: "Result cache lookups by outcome",
		},
		[]string{"result"}, // hit, miss, error
	)

	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "qrdecode_websocket_connections",
			Help: "Number of open websocket connections",
		},
	)

	websocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qrdecode_websocket_messages_total",
			Help: "Websocket frames by direction and type",
		},
		[]string{"direction", "type"},
	)
)
