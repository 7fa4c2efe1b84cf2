package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// setupMetricsTest installs a manual-reader meter provider for the test.
func setupMetricsTest(t *testing.T) *sdkmetric.ManualReader {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	original := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() {
		otel.SetMeterProvider(original)
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Logf("error shutting down meter provider: %v", err)
		}
	})
	return reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	var rm metricdata.ResourceMetrics
	err := reader.Collect(context.Background(), &rm)
	require.NoError(t, err)
	return &rm
}

func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetricsRecorder(t *testing.T) {
	setupMetricsTest(t)

	recorder := NewMetricsRecorder()
	require.NotNil(t, recorder)

	_, isNoop := recorder.(NoopMetrics)
	assert.False(t, isNoop, "expected real metrics recorder, got noop")
}

func TestRecordStepExecution(t *testing.T) {
	reader := setupMetricsTest(t)

	m, err := newOtelMetrics()
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("records execution count and latency", func(t *testing.T) {
		m.RecordStepExecution(ctx, "classify", 50*time.Millisecond, false)

		rm := collectMetrics(t, reader)

		executions := findMetric(rm, "stepflow.step.executions")
		require.NotNil(t, executions)
		sum, ok := executions.Data.(metricdata.Sum[int64])
		require.True(t, ok)
		require.NotEmpty(t, sum.DataPoints)
		assert.Equal(t, int64(1), sum.DataPoints[0].Value)

		latency := findMetric(rm, "stepflow.step.latency_ms")
		require.NotNil(t, latency)
	})

	t.Run("records failures separately", func(t *testing.T) {
		m.RecordStepExecution(ctx, "classify", 10*time.Millisecond, true)

		rm := collectMetrics(t, reader)
		failures := findMetric(rm, "stepflow.step.failures")
		require.NotNil(t, failures)
		sum, ok := failures.Data.(metricdata.Sum[int64])
		require.True(t, ok)
		require.NotEmpty(t, sum.DataPoints)
		assert.Equal(t, int64(1), sum.DataPoints[0].Value)
	})
}

func TestRecordWorkflowRun(t *testing.T) {
	reader := setupMetricsTest(t)

	m, err := newOtelMetrics()
	require.NoError(t, err)

	m.RecordWorkflowRun(context.Background(), "COMPLETED", 120*time.Millisecond)

	rm := collectMetrics(t, reader)
	runs := findMetric(rm, "stepflow.workflow.runs")
	require.NotNil(t, runs)
	latency := findMetric(rm, "stepflow.workflow.latency_ms")
	require.NotNil(t, latency)
}

func TestRecordParallelFanout(t *testing.T) {
	reader := setupMetricsTest(t)

	m, err := newOtelMetrics()
	require.NoError(t, err)

	m.RecordParallelFanout(context.Background(), "gather", 3)

	rm := collectMetrics(t, reader)
	fanout := findMetric(rm, "stepflow.parallel.fanout")
	require.NotNil(t, fanout)
	hist, ok := fanout.Data.(metricdata.Histogram[int64])
	require.True(t, ok)
	require.NotEmpty(t, hist.DataPoints)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
}
