// Package event defines the lifecycle events emitted during workflow
// execution.
//
// Every node kind emits a Started event on entry and a Completed event on
// exit; leaf steps additionally emit a StepOutput event carrying the
// produced output. Events are strictly ordered: a node's Completed event is
// always emitted after all events of its children. Incremental consumers
// (UIs, log shippers) rely on that ordering contract.
package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the lifecycle event type.
type Kind string

// Workflow-level events bracket the whole run.
const (
	WorkflowStarted   Kind = "WorkflowStarted"
	WorkflowCompleted Kind = "WorkflowCompleted"
	WorkflowError     Kind = "WorkflowError"
	WorkflowCancelled Kind = "WorkflowCancelled"
)

// Leaf step events.
const (
	StepStarted   Kind = "StepStarted"
	StepCompleted Kind = "StepCompleted"
	StepError     Kind = "StepError"
	StepOutput    Kind = "StepOutput"
)

// Composite node events.
const (
	StepsExecutionStarted       Kind = "StepsExecutionStarted"
	StepsExecutionCompleted     Kind = "StepsExecutionCompleted"
	LoopExecutionStarted        Kind = "LoopExecutionStarted"
	LoopIterationStarted        Kind = "LoopIterationStarted"
	LoopIterationCompleted      Kind = "LoopIterationCompleted"
	LoopExecutionCompleted      Kind = "LoopExecutionCompleted"
	ParallelExecutionStarted    Kind = "ParallelExecutionStarted"
	ParallelExecutionCompleted  Kind = "ParallelExecutionCompleted"
	ConditionExecutionStarted   Kind = "ConditionExecutionStarted"
	ConditionExecutionCompleted Kind = "ConditionExecutionCompleted"
	RouterExecutionStarted      Kind = "RouterExecutionStarted"
	RouterExecutionCompleted    Kind = "RouterExecutionCompleted"
)

// Event is one lifecycle event of a workflow run.
//
// RunID, Kind, and CreatedAt are always set. The remaining fields are
// populated per kind: StepName for node events, Iteration/MaxIterations for
// loop iteration events, ConditionResult for condition events,
// SelectedSteps for router events, Content for events that carry a payload.
type Event struct {
	ID           string    `json:"id"`
	Kind         Kind      `json:"event"`
	RunID        string    `json:"run_id"`
	SessionID    string    `json:"session_id,omitempty"`
	WorkflowID   string    `json:"workflow_id,omitempty"`
	WorkflowName string    `json:"workflow_name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`

	StepName  string `json:"step_name,omitempty"`
	StepIndex int    `json:"step_index,omitempty"`

	// Loop iteration events.
	Iteration     int `json:"iteration,omitempty"`
	MaxIterations int `json:"max_iterations,omitempty"`

	// Condition events.
	ConditionResult *bool `json:"condition_result,omitempty"`

	// Router events.
	SelectedSteps []string `json:"selected_steps,omitempty"`

	// Payload for StepOutput, Completed, and Error events.
	Content any `json:"content,omitempty"`
}

// RunInfo identifies the run an event belongs to.
type RunInfo struct {
	RunID        string
	SessionID    string
	WorkflowID   string
	WorkflowName string
}

// New creates an event of the given kind for a run.
// The event ID is auto-generated and CreatedAt is set to now.
func New(kind Kind, run RunInfo) Event {
	return Event{
		ID:           uuid.New().String(),
		Kind:         kind,
		RunID:        run.RunID,
		SessionID:    run.SessionID,
		WorkflowID:   run.WorkflowID,
		WorkflowName: run.WorkflowName,
		CreatedAt:    time.Now(),
	}
}

// Terminal reports whether the event ends the run's stream.
func (e Event) Terminal() bool {
	switch e.Kind {
	case WorkflowCompleted, WorkflowError, WorkflowCancelled:
		return true
	}
	return false
}

// Intermediate reports whether the event is a composite bracketing event.
// These are suppressed when a stream is requested without intermediate
// steps; workflow-level, step output, and error events always pass through.
func (e Event) Intermediate() bool {
	switch e.Kind {
	case WorkflowStarted, WorkflowCompleted, WorkflowError, WorkflowCancelled,
		StepOutput, StepError:
		return false
	}
	return true
}

// MarshalJSON renders CreatedAt as a Unix timestamp to keep the wire shape
// stable across processes with different time zones.
func (e Event) MarshalJSON() ([]byte, error) {
	type alias Event
	return json.Marshal(struct {
		alias
		CreatedAt int64 `json:"created_at"`
	}{alias(e), e.CreatedAt.Unix()})
}
