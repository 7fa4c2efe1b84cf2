package config

import (
	"fmt"
)

// Node type discriminators accepted in a definition's "type" field.
// An empty type means a plain executor step.
const (
	TypeStep      = "step"
	TypeSteps     = "steps"
	TypeLoop      = "loop"
	TypeParallel  = "parallel"
	TypeCondition = "condition"
	TypeRouter    = "router"
)

// Definition is a declarative workflow description.
type Definition struct {
	Name         string         `yaml:"name" json:"name"`
	ID           string         `yaml:"id,omitempty" json:"id,omitempty"`
	Description  string         `yaml:"description,omitempty" json:"description,omitempty"`
	SessionState map[string]any `yaml:"session_state,omitempty" json:"session_state,omitempty"`
	Steps        []NodeDef      `yaml:"steps" json:"steps"`
}

// NodeDef is one node in the definition tree. Which fields apply depends
// on Type; Validate rejects stray fields up front so mistakes surface at
// load time instead of mid-run.
type NodeDef struct {
	Name string `yaml:"name" json:"name"`
	Type string `yaml:"type,omitempty" json:"type,omitempty"`

	// Step fields.
	Executor      string `yaml:"executor,omitempty" json:"executor,omitempty"`
	Description   string `yaml:"description,omitempty" json:"description,omitempty"`
	MaxRetries    int    `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
	SkipOnFailure bool   `yaml:"skip_on_failure,omitempty" json:"skip_on_failure,omitempty"`

	// Composite fields.
	Steps   []NodeDef `yaml:"steps,omitempty" json:"steps,omitempty"`
	Choices []NodeDef `yaml:"choices,omitempty" json:"choices,omitempty"`

	// Expressions.
	Condition     string `yaml:"condition,omitempty" json:"condition,omitempty"`
	Selector      string `yaml:"selector,omitempty" json:"selector,omitempty"`
	EndCondition  string `yaml:"end_condition,omitempty" json:"end_condition,omitempty"`
	MaxIterations int    `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty"`
}

// Validate checks the definition's shape.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("definition: workflow name is required")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("definition %s: at least one step is required", d.Name)
	}
	for i := range d.Steps {
		if err := d.Steps[i].validate(); err != nil {
			return err
		}
	}
	return nil
}

func (n *NodeDef) validate() error {
	if n.Name == "" {
		return fmt.Errorf("definition: node name is required")
	}
	switch n.Type {
	case "", TypeStep:
		if n.Executor == "" {
			return fmt.Errorf("step %s: executor is required", n.Name)
		}
		if len(n.Steps) > 0 || len(n.Choices) > 0 {
			return fmt.Errorf("step %s: a plain step cannot have children", n.Name)
		}
	case TypeSteps, TypeParallel:
		if err := n.requireChildren(); err != nil {
			return err
		}
	case TypeLoop:
		if err := n.requireChildren(); err != nil {
			return err
		}
		if n.MaxIterations < 0 {
			return fmt.Errorf("loop %s: max_iterations cannot be negative", n.Name)
		}
	case TypeCondition:
		if n.Condition == "" {
			return fmt.Errorf("condition %s: condition expression is required", n.Name)
		}
		if err := n.requireChildren(); err != nil {
			return err
		}
	case TypeRouter:
		if n.Selector == "" {
			return fmt.Errorf("router %s: selector expression is required", n.Name)
		}
		if len(n.Choices) == 0 {
			return fmt.Errorf("router %s: at least one choice is required", n.Name)
		}
		for i := range n.Choices {
			if err := n.Choices[i].validate(); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("node %s: unknown type %q", n.Name, n.Type)
	}
	for i := range n.Steps {
		if err := n.Steps[i].validate(); err != nil {
			return err
		}
	}
	return nil
}

func (n *NodeDef) requireChildren() error {
	if len(n.Steps) == 0 {
		return fmt.Errorf("%s %s: at least one child step is required", n.Type, n.Name)
	}
	return nil
}
