package stepflow

import (
	"fmt"
	"runtime/debug"

	"github.com/randalmurphal/stepflow/pkg/stepflow/event"
)

// Predicate decides whether a condition's branch should run.
type Predicate func(input StepInput) bool

// Condition guards a sequence of steps behind a boolean predicate.
// When the predicate is false the branch is skipped and the condition
// produces a no-op output, so downstream chaining still sees an entry
// for it.
type Condition struct {
	name      string
	predicate Predicate
	steps     []Node
}

// NewCondition creates a condition guarding the given nodes.
func NewCondition(name string, predicate Predicate, steps ...Node) *Condition {
	return &Condition{name: name, predicate: predicate, steps: steps}
}

// Name returns the condition node name.
func (c *Condition) Name() string { return c.name }

func (c *Condition) validate() error {
	if c.name == "" {
		return &ConfigError{Node: "condition", Err: ErrEmptyName}
	}
	if c.predicate == nil {
		return &ConfigError{Node: "condition " + c.name, Err: ErrNilPredicate}
	}
	return validateChildren("condition "+c.name, c.steps)
}

func (c *Condition) execute(ec *execContext, input StepInput) ([]StepOutput, error) {
	result, err := c.evaluate(input)
	if err != nil {
		return nil, err
	}

	started := ec.newEvent(event.ConditionExecutionStarted)
	started.StepName = c.name
	started.ConditionResult = &result
	ec.emit(started)

	var outputs []StepOutput
	if result {
		outputs, err = runSequence(ec, c.steps, input)
		if err != nil {
			return outputs, err
		}
	} else {
		out := NewStepOutput(fmt.Sprintf("condition %s not met, steps skipped", c.name))
		out.StepName = c.name
		outputs = []StepOutput{out}
	}

	completed := ec.newEvent(event.ConditionExecutionCompleted)
	completed.StepName = c.name
	completed.ConditionResult = &result
	if len(outputs) > 0 {
		completed.Content = outputs[len(outputs)-1].Content
	}
	ec.emit(completed)

	return outputs, nil
}

// evaluate runs the predicate with panic recovery. A panicking predicate
// fails the run rather than silently skipping the branch.
func (c *Condition) evaluate(input StepInput) (result bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("condition %s: predicate panicked: %v\n%s", c.name, rec, debug.Stack())
		}
	}()
	return c.predicate(input), nil
}
