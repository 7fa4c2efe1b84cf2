package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records stepflow metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordStepExecution records a step execution with its duration and
	// whether it produced a failed output.
	RecordStepExecution(ctx context.Context, stepName string, duration time.Duration, failed bool)

	// RecordWorkflowRun records a workflow run completion.
	RecordWorkflowRun(ctx context.Context, status string, duration time.Duration)

	// RecordParallelFanout records the branch count of a parallel node.
	RecordParallelFanout(ctx context.Context, name string, branches int)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	stepExecutions  metric.Int64Counter
	stepLatency     metric.Float64Histogram
	stepFailures    metric.Int64Counter
	workflowRuns    metric.Int64Counter
	workflowLatency metric.Float64Histogram
	parallelFanout  metric.Int64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("stepflow")

	stepExecutions, err := meter.Int64Counter("stepflow.step.executions",
		metric.WithDescription("Number of step executions"),
	)
	if err != nil {
		return nil, err
	}

	stepLatency, err := meter.Float64Histogram("stepflow.step.latency_ms",
		metric.WithDescription("Step execution latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	stepFailures, err := meter.Int64Counter("stepflow.step.failures",
		metric.WithDescription("Number of steps that produced failed outputs"),
	)
	if err != nil {
		return nil, err
	}

	workflowRuns, err := meter.Int64Counter("stepflow.workflow.runs",
		metric.WithDescription("Number of workflow runs"),
	)
	if err != nil {
		return nil, err
	}

	workflowLatency, err := meter.Float64Histogram("stepflow.workflow.latency_ms",
		metric.WithDescription("Workflow run latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	parallelFanout, err := meter.Int64Histogram("stepflow.parallel.fanout",
		metric.WithDescription("Branch count of parallel nodes"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		stepExecutions:  stepExecutions,
		stepLatency:     stepLatency,
		stepFailures:    stepFailures,
		workflowRuns:    workflowRuns,
		workflowLatency: workflowLatency,
		parallelFanout:  parallelFanout,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordStepExecution records a step execution.
func (m *otelMetrics) RecordStepExecution(ctx context.Context, stepName string, duration time.Duration, failed bool) {
	attrs := []attribute.KeyValue{
		attribute.String("step", stepName),
	}

	m.stepExecutions.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.stepLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if failed {
		m.stepFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordWorkflowRun records a workflow run.
func (m *otelMetrics) RecordWorkflowRun(ctx context.Context, status string, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("status", status),
	}
	m.workflowRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.workflowLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordParallelFanout records the branch count of a parallel node.
func (m *otelMetrics) RecordParallelFanout(ctx context.Context, name string, branches int) {
	attrs := []attribute.KeyValue{
		attribute.String("parallel", name),
	}
	m.parallelFanout.Record(ctx, int64(branches), metric.WithAttributes(attrs...))
}
