package stepflow

import (
	"time"

	"github.com/randalmurphal/stepflow/pkg/stepflow/event"
)

// RunStatus is the lifecycle state of a workflow run.
type RunStatus string

const (
	RunPending   RunStatus = "PENDING"
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
	RunCancelled RunStatus = "CANCELLED"
)

// Terminal reports whether the status is final. A terminal run never
// transitions again.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled:
		return true
	}
	return false
}

// RunResponse is the result of a workflow run. For background runs it is
// a point-in-time snapshot; poll with Workflow.GetRun until Status is
// terminal.
type RunResponse struct {
	RunID        string        `json:"run_id"`
	SessionID    string        `json:"session_id"`
	WorkflowID   string        `json:"workflow_id"`
	WorkflowName string        `json:"workflow_name"`
	Status       RunStatus     `json:"status"`
	Content      any           `json:"content,omitempty"`
	Error        string        `json:"error,omitempty"`
	StepOutputs  []StepOutput  `json:"step_outputs,omitempty"`
	Events       []event.Event `json:"events,omitempty"`
	Images       []Artifact    `json:"images,omitempty"`
	Videos       []Artifact    `json:"videos,omitempty"`
	Audio        []Artifact    `json:"audio,omitempty"`
	Files        []Artifact    `json:"files,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	CompletedAt  time.Time     `json:"completed_at,omitzero"`
}

// ContentString renders the run content as text.
func (r *RunResponse) ContentString() string {
	return renderContent(r.Content)
}

// HasCompleted reports whether the run reached a terminal status.
func (r *RunResponse) HasCompleted() bool {
	return r.Status.Terminal()
}

// LastStepOutput returns the final step output of the run, or a zero
// output when the run produced none.
func (r *RunResponse) LastStepOutput() StepOutput {
	if len(r.StepOutputs) == 0 {
		return StepOutput{}
	}
	return r.StepOutputs[len(r.StepOutputs)-1]
}
