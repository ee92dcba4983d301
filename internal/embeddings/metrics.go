package embeddings

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/docflow/internal/embeddings"

// embedDuration is the Prometheus view of Embedder.Embed, scraped from /metrics.
// Labels: result (success, error)
var embedDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "docflow",
		Subsystem: "embeddings",
		Name:      "embed_duration_seconds",
		Help:      "Duration of embedding all chunks of a document in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	},
	[]string{"result"},
)

// Metrics records per-request provider metrics through OpenTelemetry.
type Metrics struct {
	duration  metric.Float64Histogram
	batchSize metric.Int64Histogram
	errors    metric.Int64Counter
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

func defaultMetrics() *Metrics {
	metricsOnce.Do(func() { sharedMetrics = NewMetrics(otel.Meter(instrumentationName), zap.NewNop()) })
	return sharedMetrics
}

// NewMetrics creates instruments on meter. Instruments that fail to register
// are logged and skipped.
func NewMetrics(meter metric.Meter, logger *zap.Logger) *Metrics {
	m := &Metrics{}
	var err error

	m.duration, err = meter.Float64Histogram(
		"docflow.embedding.generation_duration_seconds",
		metric.WithDescription("Duration of provider embedding requests in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.batchSize, err = meter.Int64Histogram(
		"docflow.embedding.batch_size",
		metric.WithDescription("Number of texts per provider request"),
		metric.WithUnit("{text}"),
		metric.WithExplicitBucketBoundaries(1, 2, 5, 10, 25, 50, 100, 250, 500),
	)
	if err != nil {
		logger.Warn("failed to create batch size histogram", zap.Error(err))
	}

	m.errors, err = meter.Int64Counter(
		"docflow.embedding.errors_total",
		metric.WithDescription("Provider embedding request failures"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		logger.Warn("failed to create errors counter", zap.Error(err))
	}
	return m
}

// RecordGeneration records one provider request.
func (m *Metrics) RecordGeneration(ctx context.Context, model, provider string, d time.Duration, batch int, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("provider", provider),
	)
	if m.duration != nil {
		m.duration.Record(ctx, d.Seconds(), attrs)
	}
	if batch > 0 && m.batchSize != nil {
		m.batchSize.Record(ctx, int64(batch), attrs)
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}
