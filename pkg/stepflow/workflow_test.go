package stepflow

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/stepflow/pkg/stepflow/event"
)

// TestRun_LinearFlow tests basic two-step chaining.
func TestRun_LinearFlow(t *testing.T) {
	wf := New("linear", WithSteps(
		NewStep("first", staticExec("a", "alpha")),
		NewStep("second", chainExec("b")),
	))

	resp, err := wf.Run(context.Background(), TextInput("hello"))

	require.NoError(t, err)
	assert.Equal(t, RunCompleted, resp.Status)
	assert.Equal(t, "b(alpha)", resp.ContentString())
	require.Len(t, resp.StepOutputs, 2)
	assert.Equal(t, "first", resp.StepOutputs[0].StepName)
	assert.Equal(t, "second", resp.StepOutputs[1].StepName)
}

// TestRun_MessageVisibleToEveryStep tests that the original message is
// never replaced by chaining.
func TestRun_MessageVisibleToEveryStep(t *testing.T) {
	var seen []string
	record := func(name string) Executor {
		return NewTextFuncExecutor(name, func(ctx context.Context, in StepInput) (string, error) {
			seen = append(seen, in.MessageString())
			return name, nil
		})
	}

	wf := New("messages", WithSteps(
		NewStep("one", record("one")),
		NewStep("two", record("two")),
		NewStep("three", record("three")),
	))

	_, err := wf.Run(context.Background(), TextInput("original"))

	require.NoError(t, err)
	assert.Equal(t, []string{"original", "original", "original"}, seen)
}

// TestRun_PreviousOutputsByName tests name-keyed output lookup.
func TestRun_PreviousOutputsByName(t *testing.T) {
	inspect := NewFuncExecutor("inspect", func(ctx context.Context, in StepInput) (StepOutput, error) {
		out, ok := in.GetStepOutput("classify")
		if !ok {
			return StepOutput{}, errors.New("classify output missing")
		}
		if got := in.GetLastStepContent(); got != "draft text" {
			return StepOutput{}, fmt.Errorf("last step content = %q", got)
		}
		return NewStepOutput("saw " + out.ContentString()), nil
	})

	wf := New("lookup", WithSteps(
		NewStep("classify", staticExec("c", "billing")),
		NewStep("draft", staticExec("d", "draft text")),
		NewStep("inspect", inspect),
	))

	resp, err := wf.Run(context.Background(), TextInput("q"))

	require.NoError(t, err)
	assert.Equal(t, RunCompleted, resp.Status)
	assert.Equal(t, "saw billing", resp.ContentString())
}

// TestRun_EarlyExit tests that a stop output skips remaining steps and
// the run still completes.
func TestRun_EarlyExit(t *testing.T) {
	var ran []string

	wf := New("early", WithSteps(
		NewStep("first", trackingExec("first", &ran)),
		NewStep("gate", stopExec("gate", "stopping here")),
		NewStep("never", trackingExec("never", &ran)),
	))

	resp, err := wf.Run(context.Background(), TextInput("go"))

	require.NoError(t, err)
	assert.Equal(t, RunCompleted, resp.Status)
	assert.Equal(t, "stopping here", resp.ContentString())
	assert.Equal(t, []string{"first"}, ran)
	require.Len(t, resp.StepOutputs, 2)
	assert.True(t, resp.StepOutputs[1].Stop)
}

// TestRun_ExecutorFailure tests that a failed step marks the run FAILED
// without returning an error.
func TestRun_ExecutorFailure(t *testing.T) {
	wf := New("failing", WithSteps(
		NewStep("boom", failingExec("boom", errors.New("kaput"))),
	))

	resp, err := wf.Run(context.Background(), TextInput("go"))

	require.NoError(t, err)
	assert.Equal(t, RunFailed, resp.Status)
	assert.Contains(t, resp.Error, "kaput")
	require.Len(t, resp.StepOutputs, 1)
	assert.False(t, resp.StepOutputs[0].Success)
}

// TestRun_FailureDoesNotHaltSequence tests that later steps still run
// after a failed step, and that the run status reflects the last step:
// a recovered failure completes the run but stays visible in Error.
func TestRun_FailureDoesNotHaltSequence(t *testing.T) {
	var ran []string

	wf := New("resilient", WithSteps(
		NewStep("boom", failingExec("boom", errors.New("kaput"))),
		NewStep("after", trackingExec("after", &ran)),
	))

	resp, err := wf.Run(context.Background(), TextInput("go"))

	require.NoError(t, err)
	assert.Equal(t, RunCompleted, resp.Status)
	assert.Equal(t, []string{"after"}, ran)
	assert.Contains(t, resp.Error, "kaput")
	require.Len(t, resp.StepOutputs, 2)
	assert.False(t, resp.StepOutputs[0].Success)
	assert.True(t, resp.StepOutputs[1].Success)
}

// TestRun_TrailingFailureFailsRun tests that a failure in the final step
// marks the whole run failed.
func TestRun_TrailingFailureFailsRun(t *testing.T) {
	wf := New("trailing", WithSteps(
		NewStep("first", staticExec("a", "fine")),
		NewStep("boom", failingExec("boom", errors.New("kaput"))),
	))

	resp, err := wf.Run(context.Background(), TextInput("go"))

	require.NoError(t, err)
	assert.Equal(t, RunFailed, resp.Status)
	assert.Contains(t, resp.Error, "kaput")
}

// TestRun_SessionStateSharedAcrossRuns tests state persistence within a
// session.
func TestRun_SessionStateSharedAcrossRuns(t *testing.T) {
	counter := NewTextFuncExecutor("counter", func(ctx context.Context, in StepInput) (string, error) {
		n, _ := in.SessionState["count"].(int)
		n++
		in.SessionState["count"] = n
		return "", nil
	})

	wf := New("stateful",
		WithSteps(NewStep("count", counter)),
		WithSessionState(map[string]any{"count": 0}),
	)

	_, err := wf.Run(context.Background(), TextInput("a"), WithSessionID("s1"))
	require.NoError(t, err)
	_, err = wf.Run(context.Background(), TextInput("b"), WithSessionID("s1"))
	require.NoError(t, err)
	_, err = wf.Run(context.Background(), TextInput("c"), WithSessionID("s2"))
	require.NoError(t, err)

	assert.Equal(t, 2, wf.SessionState("s1")["count"])
	assert.Equal(t, 1, wf.SessionState("s2")["count"])
}

// TestRun_ExecutionFunc tests a custom workflow body.
func TestRun_ExecutionFunc(t *testing.T) {
	wf := New("custom", WithExecutionFunc(
		func(ctx context.Context, in ExecutionInput, state map[string]any) (StepOutput, error) {
			state["handled"] = true
			return NewStepOutput("handled " + in.MessageString()), nil
		},
	))

	resp, err := wf.Run(context.Background(), TextInput("thing"), WithSessionID("s1"))

	require.NoError(t, err)
	assert.Equal(t, RunCompleted, resp.Status)
	assert.Equal(t, "handled thing", resp.ContentString())
	assert.Equal(t, true, wf.SessionState("s1")["handled"])
}

// TestRun_CachedSupportPipeline runs the classify/respond pipeline end
// to end: respond builds on classify's content, and a caching execution
// function answers a repeated question from session state without
// re-invoking classify.
func TestRun_CachedSupportPipeline(t *testing.T) {
	classifications := 0
	classify := NewFuncExecutor("classify", func(ctx context.Context, in StepInput) (StepOutput, error) {
		classifications++
		return NewStepOutput("Category: account_access; Priority: high"), nil
	})
	respond := NewFuncExecutor("respond", func(ctx context.Context, in StepInput) (StepOutput, error) {
		return NewStepOutput("To regain access (" + in.PreviousContentString() + "): reset your password"), nil
	})
	pipeline := New("support-pipeline", WithSteps(
		NewStep("classify", classify),
		NewStep("respond", respond),
	))

	wf := New("support", WithExecutionFunc(
		func(ctx context.Context, in ExecutionInput, state map[string]any) (StepOutput, error) {
			key := "answer:" + in.MessageString()
			if cached, ok := state[key].(string); ok {
				return NewStepOutput(cached), nil
			}
			resp, err := pipeline.Run(ctx, in)
			if err != nil {
				return StepOutput{}, err
			}
			answer := resp.ContentString()
			state[key] = answer
			return NewStepOutput(answer), nil
		},
	))

	question := TextInput("I can't log into my account")

	first, err := wf.Run(context.Background(), question, WithSessionID("support-sess"))
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, first.Status)
	assert.Equal(t, "To regain access (Category: account_access; Priority: high): reset your password", first.ContentString())
	assert.Equal(t, 1, classifications)

	second, err := wf.Run(context.Background(), question, WithSessionID("support-sess"))
	require.NoError(t, err)
	assert.Equal(t, first.ContentString(), second.ContentString())
	// The cached answer short-circuits the pipeline entirely.
	assert.Equal(t, 1, classifications)
}

// TestRun_StreamingExecutionFunc tests that a streaming custom body's
// chunks are concatenated into the final content on the sync path.
func TestRun_StreamingExecutionFunc(t *testing.T) {
	wf := New("custom-stream", WithStreamingExecutionFunc(
		func(ctx context.Context, in ExecutionInput, state map[string]any) iter.Seq2[StepOutput, error] {
			return func(yield func(StepOutput, error) bool) {
				for _, part := range []string{"one ", "two ", "three"} {
					if !yield(NewStepOutput(part), nil) {
						return
					}
				}
			}
		},
	))

	resp, err := wf.Run(context.Background(), TextInput("count"))

	require.NoError(t, err)
	assert.Equal(t, RunCompleted, resp.Status)
	assert.Equal(t, "one two three", resp.ContentString())
	require.Len(t, resp.StepOutputs, 1)
	assert.Equal(t, "custom-stream", resp.StepOutputs[0].StepName)
}

// TestRun_OptionMediaAndData tests that media and metadata supplied as
// run options reach every step's input.
func TestRun_OptionMediaAndData(t *testing.T) {
	var seen StepInput
	capture := NewFuncExecutor("capture", func(ctx context.Context, in StepInput) (StepOutput, error) {
		seen = in
		return NewStepOutput("ok"), nil
	})

	wf := New("attachments", WithSteps(NewStep("capture", capture)))

	input := TextInput("describe this")
	input.Images = []Artifact{{Kind: ArtifactImage, URL: "https://example.com/a.png"}}

	resp, err := wf.Run(context.Background(), input,
		WithImages(Artifact{Kind: ArtifactImage, URL: "https://example.com/b.png"}),
		WithFiles(Artifact{Kind: ArtifactFile, Name: "notes.txt"}),
		WithAdditionalData(map[string]any{"k": "v"}),
	)

	require.NoError(t, err)
	assert.Equal(t, RunCompleted, resp.Status)
	require.Len(t, seen.Images, 2)
	assert.Equal(t, "https://example.com/a.png", seen.Images[0].URL)
	assert.Equal(t, "https://example.com/b.png", seen.Images[1].URL)
	require.Len(t, seen.Files, 1)
	assert.Equal(t, "notes.txt", seen.Files[0].Name)
	assert.Equal(t, map[string]any{"k": "v"}, seen.AdditionalData)
}

// TestRun_OptionDataReachesExecutionFunc tests that run-option metadata
// is visible to a custom workflow body too.
func TestRun_OptionDataReachesExecutionFunc(t *testing.T) {
	var seen ExecutionInput
	wf := New("custom-attachments", WithExecutionFunc(
		func(ctx context.Context, in ExecutionInput, state map[string]any) (StepOutput, error) {
			seen = in
			return NewStepOutput("ok"), nil
		},
	))

	_, err := wf.Run(context.Background(), TextInput("x"),
		WithAdditionalData(map[string]any{"tenant": "acme"}),
		WithAudio(Artifact{Kind: ArtifactAudio, Name: "clip.wav"}),
	)

	require.NoError(t, err)
	assert.Equal(t, "acme", seen.AdditionalData["tenant"])
	require.Len(t, seen.Audio, 1)
	assert.Equal(t, "clip.wav", seen.Audio[0].Name)
}

// TestRun_NilContext tests the nil-context guard.
func TestRun_NilContext(t *testing.T) {
	wf := New("guarded", WithSteps(NewStep("s", staticExec("s", "x"))))

	//nolint:staticcheck // deliberately passing nil
	_, err := wf.Run(nil, TextInput("x"))

	assert.ErrorIs(t, err, ErrNilContext)
}

// TestRun_ValidationNoSteps tests that an empty workflow fails its first
// run.
func TestRun_ValidationNoSteps(t *testing.T) {
	wf := New("empty")

	_, err := wf.Run(context.Background(), TextInput("x"))

	assert.ErrorIs(t, err, ErrNoSteps)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

// TestRun_ValidationDuplicateNames tests sibling name uniqueness.
func TestRun_ValidationDuplicateNames(t *testing.T) {
	wf := New("dupes", WithSteps(
		NewStep("same", staticExec("a", "1")),
		NewStep("same", staticExec("b", "2")),
	))

	_, err := wf.Run(context.Background(), TextInput("x"))

	assert.ErrorIs(t, err, ErrDuplicateStepName)
}

// TestRun_Cancellation tests that a cancelled context halts between
// steps and surfaces a CANCELLED response.
func TestRun_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	cancelling := NewTextFuncExecutor("cancelling", func(ctx context.Context, in StepInput) (string, error) {
		cancel()
		return "done before cancel", nil
	})
	var ran []string

	wf := New("cancellable", WithSteps(
		NewStep("first", cancelling),
		NewStep("second", trackingExec("second", &ran)),
	))

	resp, err := wf.Run(ctx, TextInput("x"))

	var cancelled *CancelledError
	require.ErrorAs(t, err, &cancelled)
	assert.Equal(t, "second", cancelled.StepName)
	assert.Equal(t, RunCancelled, resp.Status)
	assert.Empty(t, ran)
	kinds := eventKinds(kindsOf(resp.Events, event.WorkflowCancelled))
	assert.Equal(t, []event.Kind{event.WorkflowCancelled}, kinds)
}

// TestRun_EventOrdering tests the event ordering contract for a flat
// two-step workflow.
func TestRun_EventOrdering(t *testing.T) {
	wf := New("ordered", WithSteps(
		NewStep("a", staticExec("a", "1")),
		NewStep("b", staticExec("b", "2")),
	))

	resp, err := wf.Run(context.Background(), TextInput("x"))

	require.NoError(t, err)
	assert.Equal(t, []event.Kind{
		event.WorkflowStarted,
		event.StepStarted,
		event.StepOutput,
		event.StepCompleted,
		event.StepStarted,
		event.StepOutput,
		event.StepCompleted,
		event.WorkflowCompleted,
	}, eventKinds(resp.Events))
}

// TestRun_ConcurrentRuns tests that one workflow value serves concurrent
// runs.
func TestRun_ConcurrentRuns(t *testing.T) {
	wf := New("concurrent", WithSteps(
		NewStep("echo", echoExec("echo")),
	))

	const n = 16
	results := make(chan string, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			resp, err := wf.Run(context.Background(), TextInput("m"))
			if err != nil {
				errs <- err
				return
			}
			results <- resp.ContentString()
		}()
	}
	for i := 0; i < n; i++ {
		select {
		case err := <-errs:
			t.Fatal(err)
		case content := <-results:
			assert.Equal(t, "echo: m", content)
		}
	}
}

// TestRun_LastRun tests session history access.
func TestRun_LastRun(t *testing.T) {
	wf := New("history", WithSteps(NewStep("s", staticExec("s", "out"))))

	_, err := wf.Run(context.Background(), TextInput("x"), WithSessionID("s1"))
	require.NoError(t, err)

	last, err := wf.LastRun(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, string(RunCompleted), last.Status)
	assert.Equal(t, "out", last.Content)
}
