package fetcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// fetchDuration observes wall time per fetch.
	// Labels: result (success, error)
	fetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docflow",
			Subsystem: "fetcher",
			Name:      "duration_seconds",
			Help:      "Duration of document fetches in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	fetchBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "docflow",
			Subsystem: "fetcher",
			Name:      "bytes",
			Help:      "Size of fetched documents in bytes",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		},
	)
)
