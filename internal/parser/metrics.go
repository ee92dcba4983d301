package parser

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// parseDuration observes extraction time.
	// Labels: format, result (success, error)
	parseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docflow",
			Subsystem: "parser",
			Name:      "duration_seconds",
			Help:      "Duration of document parsing in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"format", "result"},
	)

	parseChunks = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docflow",
			Subsystem: "parser",
			Name:      "chunks",
			Help:      "Number of chunks produced per document",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"format"},
	)
)
