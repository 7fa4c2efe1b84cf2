// Package observability provides structured logging, metrics, and tracing
// for stepflow workflow execution.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds workflow context to a logger.
// Returns a new logger with run_id, session_id, and step fields.
func EnrichLogger(logger *slog.Logger, runID, sessionID, stepName string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("run_id", runID),
		slog.String("session_id", sessionID),
		slog.String("step", stepName),
	)
}

// LogRunStart logs the start of a workflow run.
func LogRunStart(logger *slog.Logger, workflowName, runID string) {
	if logger == nil {
		return
	}
	logger.Info("workflow run starting",
		slog.String("workflow", workflowName),
		slog.String("run_id", runID),
	)
}

// LogRunComplete logs successful workflow run completion.
func LogRunComplete(logger *slog.Logger, runID string, durationMs float64, stepCount int) {
	if logger == nil {
		return
	}
	logger.Info("workflow run completed",
		slog.String("run_id", runID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("steps_executed", stepCount),
	)
}

// LogRunError logs workflow run failure.
func LogRunError(logger *slog.Logger, runID string, err error, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Error("workflow run failed",
		slog.String("run_id", runID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogRunCancelled logs workflow run cancellation.
func LogRunCancelled(logger *slog.Logger, runID, stepName string) {
	if logger == nil {
		return
	}
	logger.Warn("workflow run cancelled",
		slog.String("run_id", runID),
		slog.String("step", stepName),
	)
}

// LogStepStart logs step execution start.
func LogStepStart(logger *slog.Logger, stepName string) {
	if logger == nil {
		return
	}
	logger.Debug("step starting",
		slog.String("step", stepName),
	)
}

// LogStepComplete logs successful step completion.
func LogStepComplete(logger *slog.Logger, stepName string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("step completed",
		slog.String("step", stepName),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogStepError logs step execution failure. Step failures become failed
// outputs rather than engine errors, so this logs at Warn.
func LogStepError(logger *slog.Logger, stepName string, err error, attempt int) {
	if logger == nil {
		return
	}
	logger.Warn("step failed",
		slog.String("step", stepName),
		slog.String("error", err.Error()),
		slog.Int("attempt", attempt),
	)
}

// LogEarlyExit logs a stop signal from a step.
func LogEarlyExit(logger *slog.Logger, stepName string) {
	if logger == nil {
		return
	}
	logger.Info("early termination requested",
		slog.String("step", stepName),
	)
}

// LogStorageError logs a session persistence failure (non-fatal).
func LogStorageError(logger *slog.Logger, sessionID, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("session storage failed",
		slog.String("session_id", sessionID),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in
// milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
