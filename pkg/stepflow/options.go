package stepflow

import (
	"log/slog"
	"maps"

	"github.com/google/uuid"

	"github.com/randalmurphal/stepflow/pkg/stepflow/observability"
	"github.com/randalmurphal/stepflow/pkg/stepflow/storage"
)

// Option configures a Workflow at construction time.
type Option func(*Workflow)

// WithWorkflowID sets an explicit workflow ID. Default: random UUID.
func WithWorkflowID(id string) Option {
	return func(w *Workflow) {
		if id != "" {
			w.id = id
		}
	}
}

// WithDescription sets a human-readable workflow description.
func WithDescription(desc string) Option {
	return func(w *Workflow) {
		w.description = desc
	}
}

// WithSteps sets the workflow's top-level step sequence.
func WithSteps(steps ...Node) Option {
	return func(w *Workflow) {
		w.steps = steps
	}
}

// WithExecutionFunc replaces the step sequence with a single custom
// execution function. A workflow with an execution function ignores any
// configured steps.
func WithExecutionFunc(fn ExecutionFunc) Option {
	return func(w *Workflow) {
		w.execFn = fn
	}
}

// WithStreamingExecutionFunc replaces the step sequence with a custom
// body that yields incremental outputs. It takes precedence over both
// configured steps and a plain execution function.
func WithStreamingExecutionFunc(fn StreamingExecutionFunc) Option {
	return func(w *Workflow) {
		w.streamFn = fn
	}
}

// WithStorage attaches a session store. Sessions are loaded before and
// persisted after every run.
func WithStorage(store storage.Store) Option {
	return func(w *Workflow) {
		w.store = store
	}
}

// WithLogger sets the structured logger. Default: slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Workflow) {
		w.logger = logger
	}
}

// WithMetrics sets the metrics recorder. Default: no-op.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(w *Workflow) {
		if m != nil {
			w.metrics = m
		}
	}
}

// WithTracing enables span creation through the given manager.
func WithTracing(sm observability.SpanManager) Option {
	return func(w *Workflow) {
		if sm != nil {
			w.spans = sm
			w.tracingEnabled = true
		}
	}
}

// WithSessionState seeds the session state for new sessions. Existing
// sessions loaded from storage keep their persisted state.
func WithSessionState(state map[string]any) Option {
	return func(w *Workflow) {
		w.defaultSessionState = state
	}
}

// runConfig holds per-run settings collected from RunOptions.
type runConfig struct {
	runID              string
	sessionID          string
	userID             string
	additionalData     map[string]any
	images             []Artifact
	videos             []Artifact
	audio              []Artifact
	files              []Artifact
	streamIntermediate bool
}

func newRunConfig(opts []RunOption) runConfig {
	c := runConfig{runID: uuid.NewString()}
	for _, opt := range opts {
		opt(&c)
	}
	if c.sessionID == "" {
		c.sessionID = uuid.NewString()
	}
	return c
}

// mergeInput folds the run options' media and metadata into the
// invocation input, so steps and execution functions see both sources.
// Option-supplied metadata wins over keys already present on the input.
func (c runConfig) mergeInput(input ExecutionInput) ExecutionInput {
	if len(c.additionalData) > 0 {
		merged := make(map[string]any, len(input.AdditionalData)+len(c.additionalData))
		maps.Copy(merged, input.AdditionalData)
		maps.Copy(merged, c.additionalData)
		input.AdditionalData = merged
	}
	input.Images = mergeArtifacts(input.Images, c.images)
	input.Videos = mergeArtifacts(input.Videos, c.videos)
	input.Audio = mergeArtifacts(input.Audio, c.audio)
	input.Files = mergeArtifacts(input.Files, c.files)
	return input
}

// RunOption configures a single workflow run.
type RunOption func(*runConfig)

// WithSessionID targets an existing session. Runs sharing a session ID
// share session state and run history. Default: a fresh session per run.
func WithSessionID(id string) RunOption {
	return func(c *runConfig) {
		if id != "" {
			c.sessionID = id
		}
	}
}

// WithUserID associates the run with a user.
func WithUserID(id string) RunOption {
	return func(c *runConfig) {
		c.userID = id
	}
}

// WithAdditionalData attaches arbitrary metadata visible to every step
// through StepInput.AdditionalData.
func WithAdditionalData(data map[string]any) RunOption {
	return func(c *runConfig) {
		c.additionalData = data
	}
}

// WithImages attaches input images.
func WithImages(images ...Artifact) RunOption {
	return func(c *runConfig) {
		c.images = append(c.images, images...)
	}
}

// WithVideos attaches input videos.
func WithVideos(videos ...Artifact) RunOption {
	return func(c *runConfig) {
		c.videos = append(c.videos, videos...)
	}
}

// WithAudio attaches input audio.
func WithAudio(audio ...Artifact) RunOption {
	return func(c *runConfig) {
		c.audio = append(c.audio, audio...)
	}
}

// WithFiles attaches input files.
func WithFiles(files ...Artifact) RunOption {
	return func(c *runConfig) {
		c.files = append(c.files, files...)
	}
}

// WithStreamIntermediateSteps includes node progress events (step and
// composite lifecycles, loop iterations) in the event stream. Without it
// streams carry only workflow-level events, step outputs, and step
// errors. Collected run events always include everything.
func WithStreamIntermediateSteps() RunOption {
	return func(c *runConfig) {
		c.streamIntermediate = true
	}
}
