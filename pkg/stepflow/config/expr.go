package config

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/randalmurphal/stepflow/pkg/stepflow"
)

// engine compiles and caches expr programs. Compiled *vm.Program values
// are safe for concurrent reuse, so one engine serves all runs of the
// workflows built from a definition.
type engine struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

func newEngine() *engine {
	return &engine{cache: make(map[string]*vm.Program)}
}

func (e *engine) compile(expression string) (*vm.Program, error) {
	e.mu.RLock()
	if prg, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prg, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, ok := e.cache[expression]; ok {
		return prg, nil
	}

	prg, err := expr.Compile(expression,
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, fmt.Errorf("compile expression %q: %w", expression, err)
	}
	e.cache[expression] = prg
	return prg, nil
}

func (e *engine) eval(prg *vm.Program, env map[string]any) (any, error) {
	return vm.Run(prg, env)
}

// inputEnv is the expression environment exposed for a step input.
func inputEnv(in stepflow.StepInput) map[string]any {
	outputs := make(map[string]any, len(in.PreviousStepOutputs))
	for name, out := range in.PreviousStepOutputs {
		outputs[name] = out.Content
	}
	return map[string]any{
		"message":          in.MessageString(),
		"previous_content": in.PreviousContentString(),
		"outputs":          outputs,
		"session_state":    in.SessionState,
		"additional_data":  in.AdditionalData,
	}
}

// outputsEnv is the expression environment for a loop end condition,
// reflecting the just-finished iteration.
func outputsEnv(outputs []stepflow.StepOutput) map[string]any {
	contents := make([]any, 0, len(outputs))
	named := make(map[string]any, len(outputs))
	for _, out := range outputs {
		contents = append(contents, out.Content)
		if out.StepName != "" {
			named[out.StepName] = out.Content
		}
	}
	env := map[string]any{
		"outputs":      contents,
		"named":        named,
		"last_content": "",
	}
	if len(outputs) > 0 {
		env["last_content"] = outputs[len(outputs)-1].ContentString()
	}
	return env
}

// truthy interprets an expression result as a boolean. Non-boolean
// results follow the usual conventions: empty string, zero, and nil are
// false.
func truthy(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0
	case nil:
		return false
	default:
		return true
	}
}

// selectionNames interprets a selector expression result as a list of
// choice names. A single string selects one choice.
func selectionNames(v any) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		if val == "" {
			return nil, nil
		}
		return []string{val}, nil
	case []string:
		return val, nil
	case []any:
		names := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("selector returned non-string element %T", item)
			}
			names = append(names, s)
		}
		return names, nil
	default:
		return nil, fmt.Errorf("selector returned %T, want string or list of strings", v)
	}
}
