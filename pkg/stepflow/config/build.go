package config

import (
	"fmt"

	"github.com/randalmurphal/stepflow/pkg/stepflow"
)

// Build constructs a Workflow from a definition. The executors map
// resolves the definition's executor names to code; every name the
// definition references must be present. Extra workflow options (storage,
// observability) are appended after the definition-derived ones.
func Build(def *Definition, executors map[string]stepflow.Executor, opts ...stepflow.Option) (*stepflow.Workflow, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	eng := newEngine()
	steps := make([]stepflow.Node, 0, len(def.Steps))
	for i := range def.Steps {
		node, err := buildNode(&def.Steps[i], executors, eng)
		if err != nil {
			return nil, err
		}
		steps = append(steps, node)
	}

	all := []stepflow.Option{
		stepflow.WithDescription(def.Description),
		stepflow.WithSteps(steps...),
	}
	if def.ID != "" {
		all = append(all, stepflow.WithWorkflowID(def.ID))
	}
	if len(def.SessionState) > 0 {
		all = append(all, stepflow.WithSessionState(def.SessionState))
	}
	all = append(all, opts...)

	wf := stepflow.New(def.Name, all...)
	if err := wf.Validate(); err != nil {
		return nil, err
	}
	return wf, nil
}

func buildNode(def *NodeDef, executors map[string]stepflow.Executor, eng *engine) (stepflow.Node, error) {
	switch def.Type {
	case "", TypeStep:
		return buildStep(def, executors)
	case TypeSteps:
		children, err := buildChildren(def.Steps, executors, eng)
		if err != nil {
			return nil, err
		}
		return stepflow.NewSteps(def.Name, children...), nil
	case TypeParallel:
		children, err := buildChildren(def.Steps, executors, eng)
		if err != nil {
			return nil, err
		}
		return stepflow.NewParallel(def.Name, children...), nil
	case TypeLoop:
		return buildLoop(def, executors, eng)
	case TypeCondition:
		return buildCondition(def, executors, eng)
	case TypeRouter:
		return buildRouter(def, executors, eng)
	default:
		return nil, fmt.Errorf("node %s: unknown type %q", def.Name, def.Type)
	}
}

func buildChildren(defs []NodeDef, executors map[string]stepflow.Executor, eng *engine) ([]stepflow.Node, error) {
	children := make([]stepflow.Node, 0, len(defs))
	for i := range defs {
		node, err := buildNode(&defs[i], executors, eng)
		if err != nil {
			return nil, err
		}
		children = append(children, node)
	}
	return children, nil
}

func buildStep(def *NodeDef, executors map[string]stepflow.Executor) (stepflow.Node, error) {
	exec, ok := executors[def.Executor]
	if !ok {
		return nil, fmt.Errorf("step %s: no executor registered for %q", def.Name, def.Executor)
	}
	var opts []stepflow.StepOption
	if def.Description != "" {
		opts = append(opts, stepflow.WithStepDescription(def.Description))
	}
	if def.MaxRetries > 0 {
		opts = append(opts, stepflow.WithMaxRetries(def.MaxRetries))
	}
	if def.SkipOnFailure {
		opts = append(opts, stepflow.WithSkipOnFailure())
	}
	return stepflow.NewStep(def.Name, exec, opts...), nil
}

func buildLoop(def *NodeDef, executors map[string]stepflow.Executor, eng *engine) (stepflow.Node, error) {
	children, err := buildChildren(def.Steps, executors, eng)
	if err != nil {
		return nil, err
	}

	var opts []stepflow.LoopOption
	if def.MaxIterations > 0 {
		opts = append(opts, stepflow.WithMaxIterations(def.MaxIterations))
	}
	if def.EndCondition != "" {
		prg, err := eng.compile(def.EndCondition)
		if err != nil {
			return nil, fmt.Errorf("loop %s: %w", def.Name, err)
		}
		name := def.Name
		opts = append(opts, stepflow.WithEndCondition(func(outputs []stepflow.StepOutput) bool {
			out, err := eng.eval(prg, outputsEnv(outputs))
			if err != nil {
				panic(fmt.Sprintf("loop %s: end condition: %v", name, err))
			}
			return truthy(out)
		}))
	}
	return stepflow.NewLoop(def.Name, children, opts...), nil
}

func buildCondition(def *NodeDef, executors map[string]stepflow.Executor, eng *engine) (stepflow.Node, error) {
	children, err := buildChildren(def.Steps, executors, eng)
	if err != nil {
		return nil, err
	}
	prg, err := eng.compile(def.Condition)
	if err != nil {
		return nil, fmt.Errorf("condition %s: %w", def.Name, err)
	}
	name := def.Name
	predicate := func(in stepflow.StepInput) bool {
		out, err := eng.eval(prg, inputEnv(in))
		if err != nil {
			panic(fmt.Sprintf("condition %s: %v", name, err))
		}
		return truthy(out)
	}
	return stepflow.NewCondition(def.Name, predicate, children...), nil
}

func buildRouter(def *NodeDef, executors map[string]stepflow.Executor, eng *engine) (stepflow.Node, error) {
	choices, err := buildChildren(def.Choices, executors, eng)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]stepflow.Node, len(choices))
	for _, node := range choices {
		byName[node.Name()] = node
	}

	prg, err := eng.compile(def.Selector)
	if err != nil {
		return nil, fmt.Errorf("router %s: %w", def.Name, err)
	}
	name := def.Name
	selector := func(in stepflow.StepInput) []stepflow.Node {
		out, err := eng.eval(prg, inputEnv(in))
		if err != nil {
			panic(fmt.Sprintf("router %s: selector: %v", name, err))
		}
		names, err := selectionNames(out)
		if err != nil {
			panic(fmt.Sprintf("router %s: %v", name, err))
		}
		selected := make([]stepflow.Node, 0, len(names))
		for _, choiceName := range names {
			node, ok := byName[choiceName]
			if !ok {
				panic(fmt.Sprintf("router %s: selector picked unknown choice %q", name, choiceName))
			}
			selected = append(selected, node)
		}
		return selected
	}
	return stepflow.NewRouter(def.Name, selector, choices...), nil
}
