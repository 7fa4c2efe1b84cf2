package stepflow

import (
	"log/slog"

	"github.com/randalmurphal/stepflow/pkg/stepflow/event"
)

// defaultMaxIterations caps a loop without an explicit bound.
const defaultMaxIterations = 3

// EndCondition decides whether a loop should stop. It receives the
// outputs produced by the iteration that just finished and returns true
// to break the loop.
type EndCondition func(iteration []StepOutput) bool

// Loop repeats its body until the end condition accepts an iteration's
// outputs or the iteration bound is reached. Termination is guaranteed:
// MaxIterations is always enforced, regardless of the condition.
type Loop struct {
	name          string
	steps         []Node
	endCondition  EndCondition
	maxIterations int
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithEndCondition sets the predicate evaluated after every iteration.
func WithEndCondition(fn EndCondition) LoopOption {
	return func(l *Loop) {
		l.endCondition = fn
	}
}

// WithMaxIterations sets the hard iteration bound. Default: 3.
func WithMaxIterations(n int) LoopOption {
	return func(l *Loop) {
		if n > 0 {
			l.maxIterations = n
		}
	}
}

// NewLoop creates a loop over the given body.
func NewLoop(name string, steps []Node, opts ...LoopOption) *Loop {
	l := &Loop{
		name:          name,
		steps:         steps,
		maxIterations: defaultMaxIterations,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name returns the loop name.
func (l *Loop) Name() string { return l.name }

func (l *Loop) validate() error {
	if l.name == "" {
		return &ConfigError{Node: "loop", Err: ErrEmptyName}
	}
	return validateChildren("loop "+l.name, l.steps)
}

func (l *Loop) execute(ec *execContext, input StepInput) ([]StepOutput, error) {
	started := ec.newEvent(event.LoopExecutionStarted)
	started.StepName = l.name
	started.MaxIterations = l.maxIterations
	ec.emit(started)

	var all []StepOutput
	current := input
	iterations := 0

	for iterations < l.maxIterations {
		iterations++

		iterStarted := ec.newEvent(event.LoopIterationStarted)
		iterStarted.StepName = l.name
		iterStarted.Iteration = iterations
		iterStarted.MaxIterations = l.maxIterations
		ec.emit(iterStarted)

		iteration, err := runSequence(ec, l.steps, current)
		all = append(all, iteration...)

		iterCompleted := ec.newEvent(event.LoopIterationCompleted)
		iterCompleted.StepName = l.name
		iterCompleted.Iteration = iterations
		iterCompleted.MaxIterations = l.maxIterations
		if len(iteration) > 0 {
			iterCompleted.Content = iteration[len(iteration)-1].Content
		}
		ec.emit(iterCompleted)

		if err != nil {
			return all, err
		}

		// A stop signal breaks both the loop and the enclosing run.
		if anyStop(iteration) {
			break
		}

		if l.shouldBreak(ec.logger, iteration) {
			break
		}

		// The iteration's final output feeds the next iteration's first
		// child.
		if len(iteration) > 0 {
			named := make(map[string]StepOutput, len(current.PreviousStepOutputs)+1)
			for k, v := range current.PreviousStepOutputs {
				named[k] = v
			}
			named[l.name] = iteration[len(iteration)-1]
			current = chainInput(current, iteration, named)
		}
	}

	completed := ec.newEvent(event.LoopExecutionCompleted)
	completed.StepName = l.name
	completed.Iteration = iterations
	completed.MaxIterations = l.maxIterations
	if len(all) > 0 {
		completed.Content = all[len(all)-1].Content
	}
	ec.emit(completed)

	return all, nil
}

// shouldBreak evaluates the end condition, treating a panic as "keep
// looping" so a buggy predicate cannot take down the run.
func (l *Loop) shouldBreak(logger *slog.Logger, iteration []StepOutput) (stop bool) {
	if l.endCondition == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			if logger != nil {
				logger.Warn("loop end condition panicked, continuing",
					slog.String("loop", l.name),
					slog.Any("panic", r),
				)
			}
			stop = false
		}
	}()
	return l.endCondition(iteration)
}
