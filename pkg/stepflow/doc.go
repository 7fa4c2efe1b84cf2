/*
Package stepflow provides step-based workflow orchestration for
agentic pipelines.

# Overview

stepflow is a Go library for composing units of work into reusable
workflows. A workflow is an ordered sequence of named steps; each step
wraps an executor (an agent call, a team call, or a plain function)
and receives the output of the step before it. Control flow around the
steps is expressed with a small set of composite primitives:

  - Steps groups a sequence into one named unit
  - Loop repeats a sequence until an end condition or iteration cap
  - Parallel fans a sequence of branches out concurrently
  - Condition guards a branch behind a predicate
  - Router picks branches dynamically from a declared candidate set

Workflows run synchronously, as an event stream, or in the background
with polling, and can persist session state and run history through
pluggable storage.

# Basic Usage

Declare steps, build a workflow, and run it:

	classify := stepflow.NewStep("classify", stepflow.NewTextFuncExecutor("classifier",
	    func(ctx context.Context, message string) (string, error) {
	        return "billing", nil
	    }))
	respond := stepflow.NewStep("respond", stepflow.NewTextFuncExecutor("responder",
	    func(ctx context.Context, message string) (string, error) {
	        return "routed to billing support", nil
	    }))

	wf := stepflow.New("support", stepflow.WithSteps(classify, respond))
	resp, err := wf.Run(context.Background(), stepflow.TextInput("my invoice is wrong"))
	if err != nil {
	    log.Fatal(err)
	}
	fmt.Println(resp.ContentString())

# Chaining

Each step's input carries the original workflow message, the previous
step's content, and a name-keyed map of every prior output:

	func(ctx context.Context, in stepflow.StepInput) (stepflow.StepOutput, error) {
	    category := in.PreviousContentString()
	    draft, _ := in.GetStepOutput("draft")
	    ...
	}

# Early Exit

Any step can end the run early by returning an output with Stop set
(see StopOutput). Remaining steps are skipped and the run completes
normally with the outputs produced so far.

# Streaming

RunStream yields events as execution progresses:

	for ev, err := range wf.RunStream(ctx, stepflow.TextInput("hello")) {
	    if err != nil {
	        log.Fatal(err)
	    }
	    fmt.Println(ev.Kind, ev.StepName)
	}

# Background Runs

RunBackground returns immediately; poll until the run finishes:

	resp, _ := wf.RunBackground(ctx, stepflow.TextInput("hello"))
	for {
	    snap, _ := wf.GetRun(ctx, resp.RunID)
	    if snap.HasCompleted() {
	        break
	    }
	    time.Sleep(100 * time.Millisecond)
	}

# Sessions and Storage

Runs sharing a session ID share a mutable session-state map, visible to
every step through StepInput.SessionState. Attach a storage backend to
persist state and run history across process restarts:

	store, _ := storage.NewSQLiteStore("workflows.db")
	wf := stepflow.New("support",
	    stepflow.WithSteps(classify, respond),
	    stepflow.WithStorage(store),
	)

# Observability

Structured logging uses log/slog throughout. OpenTelemetry metrics and
tracing are opt-in:

	wf := stepflow.New("support",
	    stepflow.WithSteps(classify, respond),
	    stepflow.WithMetrics(observability.NewMetricsRecorder()),
	    stepflow.WithTracing(observability.NewSpanManager()),
	)
*/
package stepflow
