package vectorstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("docflow.vectorstore")

var (
	// opDuration observes store operations.
	// Labels: backend, op (ensure_schema, insert, query, describe), result (success, error)
	opDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docflow",
			Subsystem: "vectorstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vector store operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "op", "result"},
	)

	recordsInserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docflow",
			Subsystem: "vectorstore",
			Name:      "records_inserted_total",
			Help:      "Total number of chunk records inserted",
		},
		[]string{"backend"},
	)
)

// observe starts a span for op and returns a func that records its outcome.
func observe(span trace.Span, backend, op string) func(err error) {
	start := time.Now()
	return func(err error) {
		result := "success"
		if err != nil {
			result = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.SetAttributes(attribute.String("backend", backend))
		opDuration.WithLabelValues(backend, op, result).Observe(time.Since(start).Seconds())
	}
}
