package web

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forum_api_requests_total",
		Help: "Total number of forum API requests",
	}, []string{"route", "status"})

	latencyHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "forum_api_latency_seconds",
		Help:    "Latency of forum API requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)
