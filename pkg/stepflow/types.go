package stepflow

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ExecutionInput carries the workflow-level invocation data: the original
// message plus any media supplied by the caller. It is what a custom
// execution function receives in place of the declared node tree.
type ExecutionInput struct {
	Message        any
	AdditionalData map[string]any

	Images []Artifact
	Videos []Artifact
	Audio  []Artifact
	Files  []Artifact
}

// MessageString renders the message as a string. Structured messages are
// rendered as indented JSON.
func (in ExecutionInput) MessageString() string {
	return renderContent(in.Message)
}

// StepInput is everything a node needs to execute: the original workflow
// message (unchanged throughout a run), the content produced by the
// immediately preceding node, a name-keyed lookup of prior outputs, a
// reference to the run's shared session-state map, and input media.
type StepInput struct {
	Message             any
	PreviousStepContent any
	PreviousStepOutputs map[string]StepOutput
	AdditionalData      map[string]any

	// SessionState is the session-scoped mutable state map, shared by
	// reference across every node of the run and across runs of the same
	// session. The engine does not lock it; concurrent siblings that
	// write to it must coordinate themselves.
	SessionState map[string]any

	Images []Artifact
	Videos []Artifact
	Audio  []Artifact
	Files  []Artifact
}

// MessageString renders the workflow message as a string.
func (in StepInput) MessageString() string {
	return renderContent(in.Message)
}

// PreviousContentString renders the previous step's content as a string.
func (in StepInput) PreviousContentString() string {
	return renderContent(in.PreviousStepContent)
}

// GetStepOutput returns the output of a previous step by name.
func (in StepInput) GetStepOutput(stepName string) (StepOutput, bool) {
	out, ok := in.PreviousStepOutputs[stepName]
	return out, ok
}

// GetStepContent returns the content of a previous step by name.
//
// For a parallel step, asking for the parallel node's name returns a
// map of branch name to branch content instead of the merged content.
func (in StepInput) GetStepContent(stepName string) any {
	out, ok := in.PreviousStepOutputs[stepName]
	if !ok {
		return nil
	}
	if len(out.ParallelStepOutputs) > 0 {
		contents := make(map[string]any, len(out.ParallelStepOutputs))
		for name, sub := range out.ParallelStepOutputs {
			if sub.Content != nil {
				contents[name] = sub.Content
			}
		}
		return contents
	}
	return out.Content
}

// GetLastStepContent returns the content of the immediately preceding
// step, or "" when this is the first step of the run.
func (in StepInput) GetLastStepContent() string {
	if in.PreviousStepContent == nil {
		return ""
	}
	return in.PreviousContentString()
}

// GetAllPreviousContent returns the concatenated content of all previous
// steps, sorted by step name for deterministic output.
func (in StepInput) GetAllPreviousContent() string {
	if len(in.PreviousStepOutputs) == 0 {
		return ""
	}
	names := make([]string, 0, len(in.PreviousStepOutputs))
	for name := range in.PreviousStepOutputs {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		out := in.PreviousStepOutputs[name]
		if out.Content == nil {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "=== %s ===\n%s", name, out.ContentString())
	}
	return b.String()
}

// StepOutput is the result of executing one node.
//
// The zero value is not a valid output: use NewStepOutput (success) or
// FailedOutput (failure) so the Success flag is set consistently.
type StepOutput struct {
	StepName     string       `json:"step_name,omitempty"`
	StepID       string       `json:"step_id,omitempty"`
	ExecutorType ExecutorType `json:"executor_type,omitempty"`
	ExecutorName string       `json:"executor_name,omitempty"`

	// Content is the primary payload: a string or a structured value.
	Content any `json:"content,omitempty"`

	// ParallelStepOutputs holds the individual branch outputs of a
	// parallel node, keyed by branch step name.
	ParallelStepOutputs map[string]StepOutput `json:"parallel_step_outputs,omitempty"`

	Images []Artifact `json:"images,omitempty"`
	Videos []Artifact `json:"videos,omitempty"`
	Audio  []Artifact `json:"audio,omitempty"`
	Files  []Artifact `json:"files,omitempty"`

	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	// Stop is a hard early-exit signal: it terminates the entire run,
	// skipping all remaining siblings and ancestors' remaining children.
	Stop bool `json:"stop"`
}

// NewStepOutput creates a successful output with the given content.
func NewStepOutput(content any) StepOutput {
	return StepOutput{Content: content, Success: true}
}

// StopOutput creates a successful output that requests early termination
// of the enclosing run.
func StopOutput(content any) StepOutput {
	return StepOutput{Content: content, Success: true, Stop: true}
}

// FailedOutput creates a failed output describing err.
func FailedOutput(err error) StepOutput {
	return StepOutput{Content: err.Error(), Success: false, Error: err.Error()}
}

// ContentString renders the content as a string.
func (o StepOutput) ContentString() string {
	return renderContent(o.Content)
}

// renderContent converts an arbitrary content value to a string.
// Strings pass through; structured values render as indented JSON.
func renderContent(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case fmt.Stringer:
		return c.String()
	default:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}

// anyStop reports whether any output carries the stop signal.
func anyStop(outputs []StepOutput) bool {
	for _, out := range outputs {
		if out.Stop {
			return true
		}
	}
	return false
}
