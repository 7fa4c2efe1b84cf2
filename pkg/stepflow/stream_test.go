package stepflow

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/stepflow/pkg/stepflow/event"
)

// TestRunStream_DefaultEvents tests the default stream filter: workflow
// events and step outputs only.
func TestRunStream_DefaultEvents(t *testing.T) {
	wf := New("streamed", WithSteps(
		NewStep("a", staticExec("a", "1")),
		NewStep("b", staticExec("b", "2")),
	))

	var kinds []event.Kind
	for ev, err := range wf.RunStream(context.Background(), TextInput("x")) {
		require.NoError(t, err)
		kinds = append(kinds, ev.Kind)
	}

	assert.Equal(t, []event.Kind{
		event.WorkflowStarted,
		event.StepOutput,
		event.StepOutput,
		event.WorkflowCompleted,
	}, kinds)
}

// TestRunStream_IntermediateSteps tests the full event stream.
func TestRunStream_IntermediateSteps(t *testing.T) {
	wf := New("verbose", WithSteps(
		NewStep("a", staticExec("a", "1")),
	))

	var kinds []event.Kind
	for ev, err := range wf.RunStream(context.Background(), TextInput("x"), WithStreamIntermediateSteps()) {
		require.NoError(t, err)
		kinds = append(kinds, ev.Kind)
	}

	assert.Equal(t, []event.Kind{
		event.WorkflowStarted,
		event.StepStarted,
		event.StepOutput,
		event.StepCompleted,
		event.WorkflowCompleted,
	}, kinds)
}

// TestRunStream_TerminalLast tests that the final event is terminal.
func TestRunStream_TerminalLast(t *testing.T) {
	wf := New("terminal", WithSteps(
		NewStep("boom", failingExec("boom", errors.New("kaput"))),
	))

	var last event.Event
	for ev, err := range wf.RunStream(context.Background(), TextInput("x")) {
		require.NoError(t, err)
		last = ev
	}

	assert.Equal(t, event.WorkflowError, last.Kind)
	assert.True(t, last.Terminal())
}

// TestRunStream_EarlyBreakCancelsRun tests that abandoning the stream
// stops the underlying run.
func TestRunStream_EarlyBreakCancelsRun(t *testing.T) {
	var ran []string
	entered := make(chan struct{}, 1)
	blocking := NewTextFuncExecutor("blocking", func(ctx context.Context, in StepInput) (string, error) {
		entered <- struct{}{}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(5 * time.Second):
			return "too late", nil
		}
	})

	wf := New("abandoned", WithSteps(
		NewStep("first", staticExec("first", "1")),
		NewStep("block", blocking),
		NewStep("never", trackingExec("never", &ran)),
	))

	for ev, err := range wf.RunStream(context.Background(), TextInput("x")) {
		require.NoError(t, err)
		if ev.Kind == event.WorkflowStarted {
			continue
		}
		// First StepOutput seen; abandon the stream.
		break
	}

	select {
	case <-entered:
	case <-time.After(time.Second):
		// The run may not have reached the blocking step before
		// cancellation; either way nothing after it may run.
	}
	assert.Empty(t, ran)
}

// TestRunStream_StreamingExecutorChunks tests per-chunk StepOutput
// events and final concatenation.
func TestRunStream_StreamingExecutorChunks(t *testing.T) {
	chunky := NewStreamingFuncExecutor("chunky", func(ctx context.Context, in StepInput) iter.Seq2[StepOutput, error] {
		return func(yield func(StepOutput, error) bool) {
			for _, part := range []string{"hel", "lo ", "world"} {
				if !yield(NewStepOutput(part), nil) {
					return
				}
			}
		}
	})

	wf := New("chunked", WithSteps(NewStep("say", chunky)))

	var outputs int
	var lastContent string
	for ev, err := range wf.RunStream(context.Background(), TextInput("x")) {
		require.NoError(t, err)
		if ev.Kind == event.StepOutput {
			outputs++
		}
		if ev.Kind == event.WorkflowCompleted {
			lastContent, _ = ev.Content.(string)
		}
	}

	// Three chunk events plus the final combined output event.
	assert.Equal(t, 4, outputs)
	assert.Equal(t, "hello world", lastContent)
}

// TestRunStream_StreamingExecutionFuncChunks tests per-chunk StepOutput
// events from a streaming custom workflow body.
func TestRunStream_StreamingExecutionFuncChunks(t *testing.T) {
	wf := New("custom-chunked", WithStreamingExecutionFunc(
		func(ctx context.Context, in ExecutionInput, state map[string]any) iter.Seq2[StepOutput, error] {
			return func(yield func(StepOutput, error) bool) {
				for _, part := range []string{"draft", " v2", " final"} {
					if !yield(NewStepOutput(part), nil) {
						return
					}
				}
			}
		},
	))

	var outputs int
	var lastContent string
	for ev, err := range wf.RunStream(context.Background(), TextInput("x")) {
		require.NoError(t, err)
		if ev.Kind == event.StepOutput {
			outputs++
		}
		if ev.Kind == event.WorkflowCompleted {
			lastContent, _ = ev.Content.(string)
		}
	}

	assert.Equal(t, 3, outputs)
	assert.Equal(t, "draft v2 final", lastContent)
}

// TestRunStream_ValidationError tests that configuration errors are
// yielded, not dropped.
func TestRunStream_ValidationError(t *testing.T) {
	wf := New("invalid")

	var got error
	for _, err := range wf.RunStream(context.Background(), TextInput("x")) {
		got = err
	}

	assert.ErrorIs(t, got, ErrNoSteps)
}
