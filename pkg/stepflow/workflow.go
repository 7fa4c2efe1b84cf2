package stepflow

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/randalmurphal/stepflow/pkg/stepflow/event"
	"github.com/randalmurphal/stepflow/pkg/stepflow/observability"
	"github.com/randalmurphal/stepflow/pkg/stepflow/registry"
	"github.com/randalmurphal/stepflow/pkg/stepflow/storage"
)

// ExecutionFunc is a custom workflow body used instead of a declared
// node tree. The function receives the raw invocation input plus the
// session state map and returns the run's final output.
type ExecutionFunc func(ctx context.Context, input ExecutionInput, sessionState map[string]any) (StepOutput, error)

// StreamingExecutionFunc is a custom workflow body that yields
// incremental outputs. Each chunk is forwarded as a StepOutput event and
// the chunks' content is concatenated into the run's final content. The
// sequence is finite, forward-only, and not restartable.
type StreamingExecutionFunc func(ctx context.Context, input ExecutionInput, sessionState map[string]any) iter.Seq2[StepOutput, error]

// Workflow is a named, reusable pipeline of steps. Construct it once
// with New, then execute it any number of times with Run, RunStream, or
// RunBackground; concurrent runs are safe.
//
// Example:
//
//	wf := stepflow.New("support",
//	    stepflow.WithSteps(
//	        stepflow.NewStep("classify", classifier),
//	        stepflow.NewStep("respond", responder),
//	    ),
//	)
//	resp, err := wf.Run(ctx, stepflow.TextInput("my invoice is wrong"))
type Workflow struct {
	id          string
	name        string
	description string

	steps    []Node
	execFn   ExecutionFunc
	streamFn StreamingExecutionFunc

	store  storage.Store
	logger *slog.Logger

	metrics        observability.MetricsRecorder
	spans          observability.SpanManager
	tracingEnabled bool

	defaultSessionState map[string]any

	// sessions caches live session records so state survives across runs
	// of the same session even without a configured store.
	sessions *registry.Registry[string, *storage.SessionRecord]

	// runs holds point-in-time response snapshots for background runs.
	runs    *registry.Registry[string, RunResponse]
	cancels *registry.Registry[string, context.CancelFunc]

	validateOnce sync.Once
	validateErr  error
}

// New creates a workflow. The name is required; everything else is
// optional. Configuration errors surface on the first run, not here.
func New(name string, opts ...Option) *Workflow {
	if name == "" {
		panic("stepflow: workflow name cannot be empty")
	}
	w := &Workflow{
		id:       uuid.NewString(),
		name:     name,
		logger:   slog.Default(),
		metrics:  observability.NoopMetrics{},
		spans:    observability.NoopSpanManager{},
		sessions: registry.New[string, *storage.SessionRecord](),
		runs:     registry.New[string, RunResponse](),
		cancels:  registry.New[string, context.CancelFunc](),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// TextInput wraps a plain text message as an ExecutionInput.
func TextInput(message string) ExecutionInput {
	return ExecutionInput{Message: message}
}

// ID returns the workflow ID.
func (w *Workflow) ID() string { return w.id }

// Name returns the workflow name.
func (w *Workflow) Name() string { return w.name }

// Description returns the workflow description.
func (w *Workflow) Description() string { return w.description }

// Validate checks the workflow configuration: a body must be present
// (steps or an execution function), sibling names must be unique, and
// every node must be well-formed. Run validates implicitly on first use.
func (w *Workflow) Validate() error {
	w.validateOnce.Do(func() {
		w.validateErr = w.validate()
	})
	return w.validateErr
}

func (w *Workflow) validate() error {
	if w.execFn != nil || w.streamFn != nil {
		return nil
	}
	if len(w.steps) == 0 {
		return &ConfigError{Node: "workflow " + w.name, Err: ErrNoSteps}
	}
	return validateChildren("workflow "+w.name, w.steps)
}

// Run executes the workflow synchronously and returns the completed
// response. The returned response is terminal: COMPLETED, FAILED, or
// CANCELLED. An error is returned for configuration problems, structural
// misuse discovered mid-run, and cancellation; executor failures surface
// as a FAILED response with nil error, so callers inspect Status.
func (w *Workflow) Run(ctx context.Context, input ExecutionInput, opts ...RunOption) (*RunResponse, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	cfg := newRunConfig(opts)
	resp, err := w.executeRun(ctx, input, cfg, nil)
	return resp, err
}

// RunStream executes the workflow and yields its events as they occur.
// The final yielded event is terminal (WorkflowCompleted, WorkflowError,
// or WorkflowCancelled). Breaking out of the loop early cancels the run.
//
// By default only workflow-level events, step outputs, and step errors
// are streamed; pass WithStreamIntermediateSteps to receive node
// progress events too.
func (w *Workflow) RunStream(ctx context.Context, input ExecutionInput, opts ...RunOption) iter.Seq2[event.Event, error] {
	return func(yield func(event.Event, error) bool) {
		if ctx == nil {
			yield(event.Event{}, ErrNilContext)
			return
		}
		if err := w.Validate(); err != nil {
			yield(event.Event{}, err)
			return
		}
		cfg := newRunConfig(opts)

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		events := make(chan event.Event)
		done := make(chan error, 1)
		go func() {
			_, err := w.executeRun(runCtx, input, cfg, events)
			close(events)
			done <- err
		}()

		for ev := range events {
			if !yield(ev, nil) {
				cancel()
				for range events {
				}
				<-done
				return
			}
		}
		if err := <-done; err != nil {
			yield(event.Event{}, err)
		}
	}
}

// executeRun is the shared run core behind Run, RunStream, and
// RunBackground. A non-nil stream receives events as they are emitted.
func (w *Workflow) executeRun(ctx context.Context, input ExecutionInput, cfg runConfig, stream chan<- event.Event) (*RunResponse, error) {
	input = cfg.mergeInput(input)

	session, err := w.loadSession(ctx, cfg)
	if err != nil {
		return nil, err
	}

	info := event.RunInfo{
		RunID:        cfg.runID,
		SessionID:    cfg.sessionID,
		WorkflowID:   w.id,
		WorkflowName: w.name,
	}
	logger := observability.EnrichLogger(w.logger, cfg.runID, cfg.sessionID, "")

	var runSpan trace.Span
	if w.tracingEnabled {
		ctx, runSpan = w.spans.StartRunSpan(ctx, w.name, cfg.runID)
	}

	ec := &execContext{
		Context:        ctx,
		run:            info,
		logger:         logger,
		metrics:        w.metrics,
		spans:          w.spans,
		sessionState:   session.SessionState,
		userID:         cfg.userID,
		stream:         stream,
		intermediate:   cfg.streamIntermediate,
		tracingEnabled: w.tracingEnabled,
	}

	resp := &RunResponse{
		RunID:        cfg.runID,
		SessionID:    cfg.sessionID,
		WorkflowID:   w.id,
		WorkflowName: w.name,
		Status:       RunRunning,
		CreatedAt:    time.Now(),
	}
	w.snapshotRun(resp, ec)

	observability.LogRunStart(logger, w.name, cfg.runID)
	elapsed := observability.TimedOperation()
	ec.emit(ec.newEvent(event.WorkflowStarted))

	outputs, runErr := w.runBody(ec, input)
	if runSpan != nil {
		w.spans.EndSpanWithError(runSpan, runErr)
	}

	resp.StepOutputs = outputs
	resp.CompletedAt = time.Now()
	durationMs := elapsed()
	w.finalize(resp, outputs, runErr)

	switch resp.Status {
	case RunCancelled:
		observability.LogRunCancelled(logger, cfg.runID, cancelledStep(runErr))
		ev := ec.newEvent(event.WorkflowCancelled)
		ev.Content = resp.Error
		ec.emit(ev)
	case RunFailed:
		observability.LogRunError(logger, cfg.runID, errors.New(resp.Error), durationMs)
		ev := ec.newEvent(event.WorkflowError)
		ev.Content = resp.Error
		ec.emit(ev)
	default:
		observability.LogRunComplete(logger, cfg.runID, durationMs, len(outputs))
		ev := ec.newEvent(event.WorkflowCompleted)
		ev.Content = resp.Content
		ec.emit(ev)
	}
	w.metrics.RecordWorkflowRun(ctx, string(resp.Status), time.Duration(durationMs*float64(time.Millisecond)))

	resp.Events = ec.events()
	w.snapshotRun(resp, nil)
	w.saveSession(session, resp, cfg)

	if runErr != nil {
		return resp, runErr
	}
	return resp, nil
}

// runBody executes the custom execution function when configured,
// otherwise the declared step sequence.
func (w *Workflow) runBody(ec *execContext, input ExecutionInput) ([]StepOutput, error) {
	if w.execFn != nil || w.streamFn != nil {
		var (
			out StepOutput
			err error
		)
		if w.streamFn != nil {
			out, err = w.safeStreamFn(ec, input)
		} else {
			out, err = w.safeExecFn(ec, input)
		}
		if err != nil {
			out = FailedOutput(err)
		}
		if out.StepName == "" {
			out.StepName = w.name
		}
		return []StepOutput{out}, nil
	}

	stepInput := StepInput{
		Message:        input.Message,
		AdditionalData: input.AdditionalData,
		SessionState:   ec.sessionState,
		Images:         input.Images,
		Videos:         input.Videos,
		Audio:          input.Audio,
		Files:          input.Files,
	}
	return runSequence(ec, w.steps, stepInput)
}

// safeExecFn runs the custom execution function with panic recovery.
func (w *Workflow) safeExecFn(ec *execContext, input ExecutionInput) (out StepOutput, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("workflow %s: execution function panicked: %v", w.name, rec)
		}
	}()
	return w.execFn(ec.Context, input, ec.sessionState)
}

// safeStreamFn drains the streaming execution function with panic
// recovery. Every chunk is emitted as a StepOutput event; the chunks'
// content is concatenated into the final output.
func (w *Workflow) safeStreamFn(ec *execContext, input ExecutionInput) (out StepOutput, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("workflow %s: execution function panicked: %v", w.name, rec)
		}
	}()

	var (
		last    StepOutput
		content strings.Builder
		seen    bool
	)
	for chunk, chunkErr := range w.streamFn(ec.Context, input, ec.sessionState) {
		if chunkErr != nil {
			return StepOutput{}, chunkErr
		}
		seen = true
		last = chunk

		partial := ec.newEvent(event.StepOutput)
		partial.StepName = w.name
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

// finalize derives the terminal status bundle from the run outcome.
func (w *Workflow) finalize(resp *RunResponse, outputs []StepOutput, runErr error) {
	var cancelled *CancelledError
	switch {
	case errors.As(runErr, &cancelled):
		resp.Status = RunCancelled
		resp.Error = cancelled.Error()
	case runErr != nil:
		resp.Status = RunFailed
		resp.Error = runErr.Error()
	default:
		// The run's status reflects the last-producing node: a failure a
		// later step recovered from does not fail the run, though it stays
		// visible in StepOutputs and Error.
		resp.Status = RunCompleted
		for _, out := range outputs {
			if !out.Success && resp.Error == "" {
				resp.Error = out.Error
			}
			resp.Images = mergeArtifacts(resp.Images, out.Images)
			resp.Videos = mergeArtifacts(resp.Videos, out.Videos)
			resp.Audio = mergeArtifacts(resp.Audio, out.Audio)
			resp.Files = mergeArtifacts(resp.Files, out.Files)
		}
		if last := len(outputs) - 1; last >= 0 && !outputs[last].Success {
			resp.Status = RunFailed
			if outputs[last].Error != "" {
				resp.Error = outputs[last].Error
			}
		}
	}
	if len(outputs) > 0 {
		resp.Content = outputs[len(outputs)-1].Content
	}
}

func cancelledStep(err error) string {
	var cancelled *CancelledError
	if errors.As(err, &cancelled) {
		return cancelled.StepName
	}
	return ""
}

// snapshotRun publishes a point-in-time copy of the response for
// pollers. Terminal snapshots are never overwritten by earlier states.
func (w *Workflow) snapshotRun(resp *RunResponse, ec *execContext) {
	snap := *resp
	if ec != nil {
		snap.Events = ec.events()
	}
	w.runs.Update(resp.RunID, func(existing RunResponse) RunResponse {
		if existing.Status.Terminal() {
			return existing
		}
		return snap
	})
}

// loadSession restores the session record for this run, creating it with
// the default session state when it does not exist yet.
func (w *Workflow) loadSession(ctx context.Context, cfg runConfig) (*storage.SessionRecord, error) {
	if session, ok := w.sessions.Get(cfg.sessionID); ok {
		return session, nil
	}

	if w.store != nil {
		session, err := w.store.ReadSession(ctx, cfg.sessionID)
		switch {
		case err == nil:
			w.sessions.Register(cfg.sessionID, session)
			return session, nil
		case !errors.Is(err, storage.ErrNotFound):
			observability.LogStorageError(w.logger, cfg.sessionID, "read", err)
			return nil, fmt.Errorf("load session %s: %w", cfg.sessionID, err)
		}
	}

	session := w.newSessionRecord(cfg.sessionID, cfg.userID)
	w.sessions.Register(cfg.sessionID, session)
	return session, nil
}

func (w *Workflow) newSessionRecord(sessionID, userID string) *storage.SessionRecord {
	now := time.Now()
	state := make(map[string]any, len(w.defaultSessionState))
	maps.Copy(state, w.defaultSessionState)
	return &storage.SessionRecord{
		SessionID:    sessionID,
		WorkflowID:   w.id,
		WorkflowName: w.name,
		UserID:       userID,
		SessionState: state,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// saveSession appends the finished run to the session history and
// persists the record. Storage failures are logged, not fatal: the run
// already completed.
func (w *Workflow) saveSession(session *storage.SessionRecord, resp *RunResponse, cfg runConfig) {
	session.UpsertRun(storage.RunRecord{
		RunID:       resp.RunID,
		Status:      string(resp.Status),
		Content:     resp.ContentString(),
		Error:       resp.Error,
		CreatedAt:   resp.CreatedAt,
		CompletedAt: resp.CompletedAt,
	})
	session.UpdatedAt = time.Now()

	if w.store == nil {
		return
	}
	// Persisting happens after the run context may already be cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.store.UpsertSession(ctx, session); err != nil {
		observability.LogStorageError(w.logger, session.SessionID, "upsert", err)
	}
}

// NewSession creates and, when a store is configured, persists an empty
// session seeded with the workflow's default session state. The session
// ID may be empty, in which case one is generated.
func (w *Workflow) NewSession(ctx context.Context, sessionID string) (*storage.SessionRecord, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	session := w.newSessionRecord(sessionID, "")
	w.sessions.Register(sessionID, session)
	if w.store != nil {
		if err := w.store.UpsertSession(ctx, session); err != nil {
			return nil, fmt.Errorf("create session %s: %w", sessionID, err)
		}
	}
	return session, nil
}

// SessionState returns the live state map of a session, or nil when the
// session is unknown. Mutations are visible to subsequent runs.
func (w *Workflow) SessionState(sessionID string) map[string]any {
	if session, ok := w.sessions.Get(sessionID); ok {
		return session.SessionState
	}
	return nil
}

// LastRun returns the most recent run record of a session.
func (w *Workflow) LastRun(ctx context.Context, sessionID string) (*storage.RunRecord, error) {
	session, ok := w.sessions.Get(sessionID)
	if !ok && w.store != nil {
		var err error
		session, err = w.store.ReadSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
	}
	if session == nil || len(session.Runs) == 0 {
		return nil, storage.ErrNotFound
	}
	last := session.Runs[len(session.Runs)-1]
	return &last, nil
}
