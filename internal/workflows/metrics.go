package workflows

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/docflow/internal/workflows"

var (
	activityDuration     metric.Float64Histogram
	activityErrorCounter metric.Int64Counter
	runsStarted          metric.Int64Counter
)

// initMetrics creates the workflow instruments on the global meter provider.
func initMetrics() {
	meter := otel.Meter(instrumentationName)

	var err error

	activityDuration, err = meter.Float64Histogram(
		"docflow.workflows.activity.duration",
		metric.WithDescription("Duration of ingestion activity executions"),
		metric.WithUnit("s"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create activity duration: %v", err))
	}

	activityErrorCounter, err = meter.Int64Counter(
		"docflow.workflows.activity.errors",
		metric.WithDescription("Number of ingestion activity failures by error type"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create activity error counter: %v", err))
	}

	runsStarted, err = meter.Int64Counter(
		"docflow.workflows.runs.started",
		metric.WithDescription("Number of ingestion runs started by triggers"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create runs counter: %v", err))
	}
}

func init() {
	initMetrics()
}

func recordActivity(ctx context.Context, stage Stage, elapsed time.Duration, err error) {
	stageAttr := attribute.String("stage", string(stage))
	activityDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		stageAttr,
		attribute.Bool("success", err == nil),
	))
	if err != nil {
		activityErrorCounter.Add(ctx, 1, metric.WithAttributes(
			stageAttr,
			attribute.String("error_type", ErrorType(classify(err))),
		))
	}
}
