package stepflow

import (
	"errors"
	"fmt"
)

// Sentinel errors for workflow construction and execution.
var (
	// ErrNilContext indicates Run was called with a nil context.
	ErrNilContext = errors.New("context cannot be nil")

	// ErrNoSteps indicates the workflow has neither declared steps nor a
	// custom execution function.
	ErrNoSteps = errors.New("workflow has no steps")

	// ErrDuplicateStepName indicates two siblings share a name.
	ErrDuplicateStepName = errors.New("duplicate sibling step name")

	// ErrEmptyName indicates a node was built with an empty name.
	ErrEmptyName = errors.New("node name cannot be empty")

	// ErrNoExecutor indicates a step was built without an executor.
	ErrNoExecutor = errors.New("step has no executor")

	// ErrNilSelector indicates a router was built without a selector.
	ErrNilSelector = errors.New("router selector cannot be nil")

	// ErrNilPredicate indicates a condition was built without a predicate.
	ErrNilPredicate = errors.New("condition predicate cannot be nil")

	// ErrUndeclaredChoice indicates a router selector returned a node
	// that is not among the router's declared candidates.
	ErrUndeclaredChoice = errors.New("router selected undeclared step")
)

// ConfigError is a fatal structural error in a workflow definition:
// duplicate sibling names, a step without an executor, a router selecting
// an undeclared candidate. These are surfaced immediately to the caller,
// never converted into failed step outputs.
type ConfigError struct {
	// Node names the offending node ("step classify", "router triage").
	Node string
	// Detail describes what is wrong.
	Detail string
	// Err is the underlying sentinel error.
	Err error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %v", e.Node, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Node, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// CancelledError indicates the run's context was cancelled between nodes.
type CancelledError struct {
	// StepName is the node that would have executed next.
	StepName string
	// Cause is the context error.
	Cause error
}

// Error implements the error interface.
func (e *CancelledError) Error() string {
	return fmt.Sprintf("run cancelled before step %s: %v", e.StepName, e.Cause)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CancelledError) Unwrap() error {
	return e.Cause
}
