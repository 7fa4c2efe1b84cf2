package stepflow

import (
	"context"
	"fmt"
	"iter"
	"strings"
)

// ExecutorType identifies which kind of collaborator backs a step.
type ExecutorType string

// Supported executor types.
const (
	ExecutorAgent    ExecutorType = "agent"
	ExecutorTeam     ExecutorType = "team"
	ExecutorFunction ExecutorType = "function"
)

// Executor is the contract a Step consumes from its collaborator: given a
// StepInput, produce a StepOutput. The engine does not inspect executor
// internals; it only requires this contract plus a name for identification
// in lookups and events.
//
// A returned error is captured as a failed StepOutput, not propagated as
// an engine-level failure. Executors request early termination of the run
// by setting Stop on their output.
type Executor interface {
	// Name identifies the executor in events and logs.
	Name() string

	// Type reports which kind of collaborator this is.
	Type() ExecutorType

	// Execute runs the executor against the step input.
	Execute(ctx context.Context, input StepInput) (StepOutput, error)
}

// StreamingExecutor is an Executor that can produce incremental outputs.
// The returned sequence is finite, forward-only, and not restartable; the
// last yielded output is the executor's final result.
type StreamingExecutor interface {
	Executor

	// ExecuteStream runs the executor, yielding partial outputs as they
	// are produced.
	ExecuteStream(ctx context.Context, input StepInput) iter.Seq2[StepOutput, error]
}

// funcExecutor adapts a plain function to the Executor interface.
type funcExecutor struct {
	name string
	fn   func(ctx context.Context, input StepInput) (StepOutput, error)
}

// NewFuncExecutor wraps a function as an executor.
func NewFuncExecutor(name string, fn func(ctx context.Context, input StepInput) (StepOutput, error)) Executor {
	return &funcExecutor{name: name, fn: fn}
}

// NewTextFuncExecutor wraps a string-producing function as an executor.
// The returned string becomes the output content.
func NewTextFuncExecutor(name string, fn func(ctx context.Context, input StepInput) (string, error)) Executor {
	return &funcExecutor{
		name: name,
		fn: func(ctx context.Context, input StepInput) (StepOutput, error) {
			content, err := fn(ctx, input)
			if err != nil {
				return StepOutput{}, err
			}
			return NewStepOutput(content), nil
		},
	}
}

func (e *funcExecutor) Name() string       { return e.name }
func (e *funcExecutor) Type() ExecutorType { return ExecutorFunction }

func (e *funcExecutor) Execute(ctx context.Context, input StepInput) (StepOutput, error) {
	return e.fn(ctx, input)
}

// streamingFuncExecutor adapts a sequence-producing function.
type streamingFuncExecutor struct {
	funcExecutor
	stream func(ctx context.Context, input StepInput) iter.Seq2[StepOutput, error]
}

// NewStreamingFuncExecutor wraps a function that yields incremental
// outputs. The non-streaming path drains the sequence and returns the
// last output with the concatenated content of all chunks.
func NewStreamingFuncExecutor(name string, fn func(ctx context.Context, input StepInput) iter.Seq2[StepOutput, error]) Executor {
	e := &streamingFuncExecutor{stream: fn}
	e.name = name
	e.fn = func(ctx context.Context, input StepInput) (StepOutput, error) {
		var (
			last    StepOutput
			content strings.Builder
			seen    bool
		)
		for out, err := range fn(ctx, input) {
			if err != nil {
				return StepOutput{}, err
			}
			seen = true
			last = out
			content.WriteString(out.ContentString())
		}
		if !seen {
			return NewStepOutput(""), nil
		}
		last.Content = content.String()
		return last, nil
	}
	return e
}

func (e *streamingFuncExecutor) ExecuteStream(ctx context.Context, input StepInput) iter.Seq2[StepOutput, error] {
	return e.stream(ctx, input)
}

// modelExecutor adapts a model-backed collaborator (an agent or a
// multi-agent team) to the Executor interface. The run function is the
// boundary to the model subsystem: it receives the prepared message and
// returns the response content.
type modelExecutor struct {
	name string
	typ  ExecutorType
	run  func(ctx context.Context, message string) (string, error)
}

// NewAgentExecutor wraps a language-model agent. The engine prepares the
// message from the step input (original message plus previous step
// content) before handing it to run.
func NewAgentExecutor(name string, run func(ctx context.Context, message string) (string, error)) Executor {
	return &modelExecutor{name: name, typ: ExecutorAgent, run: run}
}

// NewTeamExecutor wraps a multi-agent team, with the same message
// preparation as NewAgentExecutor.
func NewTeamExecutor(name string, run func(ctx context.Context, message string) (string, error)) Executor {
	return &modelExecutor{name: name, typ: ExecutorTeam, run: run}
}

func (e *modelExecutor) Name() string       { return e.name }
func (e *modelExecutor) Type() ExecutorType { return e.typ }

func (e *modelExecutor) Execute(ctx context.Context, input StepInput) (StepOutput, error) {
	content, err := e.run(ctx, prepareModelMessage(input))
	if err != nil {
		return StepOutput{}, err
	}
	return NewStepOutput(content), nil
}

// prepareModelMessage builds the message an agent or team receives: the
// original workflow message, followed by the previous step's content when
// one exists.
func prepareModelMessage(input StepInput) string {
	message := input.MessageString()
	previous := input.PreviousContentString()
	if previous == "" {
		return message
	}
	if message == "" {
		return previous
	}
	return fmt.Sprintf("%s\n\n<previous_step_output>\n%s\n</previous_step_output>", message, previous)
}
