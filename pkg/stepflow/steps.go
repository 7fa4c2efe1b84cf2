package stepflow

import (
	"github.com/randalmurphal/stepflow/pkg/stepflow/event"
)

// Steps is a named ordered sequence of child nodes. Each child's input is
// built from the previous child's output; the first child receives the
// sequence's input unchanged. The sequence's output is the last child's
// output, or the stopping child's output when a child requests early
// termination.
type Steps struct {
	name  string
	steps []Node
}

// NewSteps creates a named sequence of nodes.
func NewSteps(name string, steps ...Node) *Steps {
	return &Steps{name: name, steps: steps}
}

// Name returns the sequence name.
func (s *Steps) Name() string { return s.name }

func (s *Steps) validate() error {
	if s.name == "" {
		return &ConfigError{Node: "steps", Err: ErrEmptyName}
	}
	return validateChildren("steps "+s.name, s.steps)
}

func (s *Steps) execute(ec *execContext, input StepInput) ([]StepOutput, error) {
	started := ec.newEvent(event.StepsExecutionStarted)
	started.StepName = s.name
	ec.emit(started)

	if len(s.steps) == 0 {
		out := NewStepOutput("no steps to execute")
		out.StepName = s.name
		completed := ec.newEvent(event.StepsExecutionCompleted)
		completed.StepName = s.name
		ec.emit(completed)
		return []StepOutput{out}, nil
	}

	outputs, err := runSequence(ec, s.steps, input)

	completed := ec.newEvent(event.StepsExecutionCompleted)
	completed.StepName = s.name
	if len(outputs) > 0 {
		completed.Content = outputs[len(outputs)-1].Content
	}
	ec.emit(completed)

	return outputs, err
}
