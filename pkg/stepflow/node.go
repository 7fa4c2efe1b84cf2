package stepflow

import "fmt"

// Node is one unit in a workflow's control-flow tree: a leaf Step or one
// of the composite kinds (Steps, Loop, Parallel, Router, Condition).
//
// Nodes are constructed with NewStep, NewSteps, NewLoop, NewParallel,
// NewRouter, and NewCondition; the set of kinds is closed. Custom work
// plugs in through the Executor contract, not through new node kinds.
type Node interface {
	// Name identifies the node among its siblings. Sibling names must be
	// unique within their parent scope.
	Name() string

	// execute runs the node. Composite nodes return the outputs of all
	// descendants in execution order; a leaf returns a single output.
	// An error is returned only for structural misuse and cancellation;
	// executor failures become failed outputs.
	execute(ec *execContext, input StepInput) ([]StepOutput, error)

	// validate checks the node's own configuration and recurses into
	// children. Called once before the workflow's first run.
	validate() error
}

// checkSiblingNames verifies name uniqueness within one parent scope.
func checkSiblingNames(parent string, nodes []Node) error {
	seen := make(map[string]bool, len(nodes))
	for _, node := range nodes {
		name := node.Name()
		if seen[name] {
			return &ConfigError{
				Node:   parent,
				Detail: fmt.Sprintf("step %q declared twice", name),
				Err:    ErrDuplicateStepName,
			}
		}
		seen[name] = true
	}
	return nil
}

// validateChildren validates sibling uniqueness and recurses.
func validateChildren(parent string, nodes []Node) error {
	if err := checkSiblingNames(parent, nodes); err != nil {
		return err
	}
	for _, node := range nodes {
		if err := node.validate(); err != nil {
			return err
		}
	}
	return nil
}
