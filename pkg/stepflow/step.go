package stepflow

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/randalmurphal/stepflow/pkg/stepflow/event"
	"github.com/randalmurphal/stepflow/pkg/stepflow/observability"
)

// Step is the leaf execution unit: a named node wrapping exactly one
// executor (an agent, a team, or a plain function).
//
// A Step never decides whether a failure halts the workflow. Executor
// errors are captured as failed outputs; termination is requested only
// through the output's Stop flag.
type Step struct {
	name          string
	description   string
	id            string
	executor      Executor
	maxRetries    int
	skipOnFailure bool
}

// StepOption configures a Step.
type StepOption func(*Step)

// WithStepDescription sets a human-readable description.
func WithStepDescription(description string) StepOption {
	return func(s *Step) {
		s.description = description
	}
}

// WithMaxRetries sets how many times a failed executor is retried before
// the failure is recorded. Default: 0 (no retries).
func WithMaxRetries(n int) StepOption {
	return func(s *Step) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// WithSkipOnFailure makes the step produce a failed-but-skipped output
// instead of a plain failure once retries are exhausted. Downstream nodes
// see Success=false either way; the flag only affects the content text.
func WithSkipOnFailure() StepOption {
	return func(s *Step) {
		s.skipOnFailure = true
	}
}

// NewStep creates a leaf step bound to one executor.
func NewStep(name string, executor Executor, opts ...StepOption) *Step {
	s := &Step{
		name:     name,
		id:       uuid.New().String(),
		executor: executor,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *Step) Name() string { return s.name }

// Description returns the step description.
func (s *Step) Description() string { return s.description }

func (s *Step) validate() error {
	if s.name == "" {
		return &ConfigError{Node: "step", Err: ErrEmptyName}
	}
	if s.executor == nil {
		return &ConfigError{Node: "step " + s.name, Err: ErrNoExecutor}
	}
	return nil
}

func (s *Step) execute(ec *execContext, input StepInput) ([]StepOutput, error) {
	observability.LogStepStart(ec.logger, s.name)

	started := ec.newEvent(event.StepStarted)
	started.StepName = s.name
	ec.emit(started)

	stepCtx := ec.Context
	var span trace.Span
	if ec.tracingEnabled {
		stepCtx, span = ec.spans.StartStepSpan(ec.Context, s.name)
	}

	start := time.Now()
	output := s.run(ec, stepCtx, input)
	duration := time.Since(start)

	output.StepName = s.name
	output.StepID = s.id
	output.ExecutorType = s.executor.Type()
	output.ExecutorName = s.executor.Name()

	ec.metrics.RecordStepExecution(ec.Context, s.name, duration, !output.Success)
	if ec.tracingEnabled {
		var spanErr error
		if !output.Success {
			spanErr = fmt.Errorf("%s", output.Error)
		}
		ec.spans.EndSpanWithError(span, spanErr)
	}

	outputEvent := ec.newEvent(event.StepOutput)
	outputEvent.StepName = s.name
	outputEvent.Content = output
	ec.emit(outputEvent)

	if output.Success {
		observability.LogStepComplete(ec.logger, s.name, float64(duration.Milliseconds()))
		completed := ec.newEvent(event.StepCompleted)
		completed.StepName = s.name
		completed.Content = output.Content
		ec.emit(completed)
	} else {
		failed := ec.newEvent(event.StepError)
		failed.StepName = s.name
		failed.Content = output.Error
		ec.emit(failed)
	}

	return []StepOutput{output}, nil
}

// run invokes the executor with retries and panic recovery, converting
// any failure into a failed output.
func (s *Step) run(ec *execContext, stepCtx context.Context, input StepInput) StepOutput {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		output, err := s.tryExecute(ec, stepCtx, input)
		if err == nil {
			return output
		}
		lastErr = err
		observability.LogStepError(ec.logger, s.name, err, attempt+1)
	}

	if s.skipOnFailure {
		out := FailedOutput(lastErr)
		out.Content = fmt.Sprintf("step %s failed but was skipped: %s", s.name, lastErr)
		return out
	}
	return FailedOutput(lastErr)
}

// tryExecute performs one executor attempt with panic recovery.
func (s *Step) tryExecute(ec *execContext, stepCtx context.Context, input StepInput) (output StepOutput, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panicked: %v\n%s", r, debug.Stack())
		}
	}()

	// Streaming executors yield incremental outputs; each chunk is
	// forwarded as a StepOutput event and the chunks' content is
	// concatenated into the final output.
	if se, ok := s.executor.(StreamingExecutor); ok && ec.stream != nil {
		var (
			last    StepOutput
			content strings.Builder
			seen    bool
		)
		for chunk, chunkErr := range se.ExecuteStream(stepCtx, input) {
			if chunkErr != nil {
				return StepOutput{}, chunkErr
			}
			seen = true
			last = chunk

			partial := ec.newEvent(event.StepOutput)
			partial.StepName = s.name
			partial.Content = chunk
			ec.emit(partial)

			content.WriteString(chunk.ContentString())
		}
		if !seen {
			return NewStepOutput(""), nil
		}
		last.Content = content.String()
		return last, nil
	}

	return s.executor.Execute(stepCtx, input)
}
