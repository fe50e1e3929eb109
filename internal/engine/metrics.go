package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "obsplan_http_requests_total",
			Help: "HTTP requests by method, route, and status code.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "obsplan_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	tleIngestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "obsplan_tle_ingest_total",
			Help: "TLE ingest attempts by outcome.",
		},
		[]string{"outcome"},
	)
)
