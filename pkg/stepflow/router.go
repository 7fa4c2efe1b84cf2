package stepflow

import (
	"fmt"
	"runtime/debug"

	"github.com/randalmurphal/stepflow/pkg/stepflow/event"
)

// Selector picks which of a router's declared choices should run for a
// given input. The returned nodes must be a subset of the router's
// declared choices; anything else fails the run.
type Selector func(input StepInput) []Node

// Router dynamically routes to one or more of its declared choice
// branches based on a selector. An empty selection is not an error: the
// router records the outcome and the run continues.
type Router struct {
	name     string
	selector Selector
	choices  []Node
}

// NewRouter creates a router over a fixed set of candidate branches.
func NewRouter(name string, selector Selector, choices ...Node) *Router {
	return &Router{name: name, selector: selector, choices: choices}
}

// Name returns the router node name.
func (r *Router) Name() string { return r.name }

func (r *Router) validate() error {
	if r.name == "" {
		return &ConfigError{Node: "router", Err: ErrEmptyName}
	}
	if r.selector == nil {
		return &ConfigError{Node: "router " + r.name, Err: ErrNilSelector}
	}
	return validateChildren("router "+r.name, r.choices)
}

func (r *Router) execute(ec *execContext, input StepInput) ([]StepOutput, error) {
	selected, err := r.selectChoices(input)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(selected))
	for i, node := range selected {
		names[i] = node.Name()
	}

	started := ec.newEvent(event.RouterExecutionStarted)
	started.StepName = r.name
	started.SelectedSteps = names
	ec.emit(started)

	var outputs []StepOutput
	if len(selected) == 0 {
		out := NewStepOutput(fmt.Sprintf("router %s selected no steps", r.name))
		out.StepName = r.name
		outputs = []StepOutput{out}
	} else {
		outputs, err = runSequence(ec, selected, input)
		if err != nil {
			return outputs, err
		}
	}

	completed := ec.newEvent(event.RouterExecutionCompleted)
	completed.StepName = r.name
	completed.SelectedSteps = names
	if len(outputs) > 0 {
		completed.Content = outputs[len(outputs)-1].Content
	}
	ec.emit(completed)

	return outputs, nil
}

// selectChoices runs the selector with panic recovery and verifies the
// selection against the declared choices.
func (r *Router) selectChoices(input StepInput) (selected []Node, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("router %s: selector panicked: %v\n%s", r.name, rec, debug.Stack())
		}
	}()

	declared := make(map[Node]bool, len(r.choices))
	for _, node := range r.choices {
		declared[node] = true
	}

	for _, node := range r.selector(input) {
		if node == nil {
			continue
		}
		if !declared[node] {
			return nil, &ConfigError{
				Node:   "router " + r.name,
				Detail: fmt.Sprintf("selector returned undeclared step %q", node.Name()),
				Err:    ErrUndeclaredChoice,
			}
		}
		selected = append(selected, node)
	}
	return selected, nil
}
