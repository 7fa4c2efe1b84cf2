package stepflow

import (
	"fmt"
	"strings"
	"sync"

	"github.com/randalmurphal/stepflow/pkg/stepflow/event"
)

// Parallel executes its children concurrently, each against the same
// input, and merges their outputs into a single composite output.
//
// Merge semantics: content is the children's content in declaration order
// (regardless of completion order), success is the logical AND of the
// children's success flags, and a stop signal from any child is carried
// upward once all siblings finish; in-flight siblings are never
// cancelled by a sibling's stop.
type Parallel struct {
	name  string
	steps []Node
}

// NewParallel creates a parallel fan-out over the given nodes.
func NewParallel(name string, steps ...Node) *Parallel {
	return &Parallel{name: name, steps: steps}
}

// Name returns the parallel node name.
func (p *Parallel) Name() string { return p.name }

func (p *Parallel) validate() error {
	if p.name == "" {
		return &ConfigError{Node: "parallel", Err: ErrEmptyName}
	}
	return validateChildren("parallel "+p.name, p.steps)
}

func (p *Parallel) execute(ec *execContext, input StepInput) ([]StepOutput, error) {
	started := ec.newEvent(event.ParallelExecutionStarted)
	started.StepName = p.name
	ec.emit(started)

	ec.metrics.RecordParallelFanout(ec.Context, p.name, len(p.steps))

	results := make([][]StepOutput, len(p.steps))
	errs := make([]error, len(p.steps))

	var wg sync.WaitGroup
	for i, node := range p.steps {
		wg.Add(1)
		go func(i int, node Node) {
			defer wg.Done()
			results[i], errs[i] = node.execute(ec, input)
		}(i, node)
	}
	wg.Wait()

	// Flatten in declaration order.
	var flat []StepOutput
	for _, branch := range results {
		flat = append(flat, branch...)
	}

	for _, err := range errs {
		if err != nil {
			return flat, err
		}
	}

	merged := p.mergeOutputs(flat)

	completed := ec.newEvent(event.ParallelExecutionCompleted)
	completed.StepName = p.name
	completed.Content = merged.Content
	ec.emit(completed)

	return []StepOutput{merged}, nil
}

// mergeOutputs aggregates the flattened branch outputs into one output.
func (p *Parallel) mergeOutputs(outputs []StepOutput) StepOutput {
	if len(outputs) == 0 {
		out := NewStepOutput("no parallel steps executed")
		out.StepName = p.name
		return out
	}

	branches := make(map[string]StepOutput, len(outputs))
	for i, out := range outputs {
		name := out.StepName
		if name == "" {
			name = fmt.Sprintf("step_%d", i+1)
		}
		branches[name] = out
	}

	if len(outputs) == 1 {
		single := outputs[0]
		single.StepName = p.name
		single.ParallelStepOutputs = branches
		return single
	}

	merged := StepOutput{
		StepName:            p.name,
		Content:             buildMergedContent(outputs),
		ParallelStepOutputs: branches,
		Success:             true,
		Stop:                anyStop(outputs),
	}
	for _, out := range outputs {
		merged.Images = mergeArtifacts(merged.Images, out.Images)
		merged.Videos = mergeArtifacts(merged.Videos, out.Videos)
		merged.Audio = mergeArtifacts(merged.Audio, out.Audio)
		merged.Files = mergeArtifacts(merged.Files, out.Files)
		if !out.Success {
			merged.Success = false
			if merged.Error == "" {
				merged.Error = out.Error
			}
		}
	}
	return merged
}

// buildMergedContent concatenates branch contents in declaration order,
// marking failed branches.
func buildMergedContent(outputs []StepOutput) string {
	var b strings.Builder
	for i, out := range outputs {
		name := out.StepName
		if name == "" {
			name = fmt.Sprintf("step_%d", i+1)
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		if out.Success {
			fmt.Fprintf(&b, "=== %s ===\n", name)
		} else {
			fmt.Fprintf(&b, "=== %s (failed) ===\n", name)
		}
		if content := out.ContentString(); content != "" {
			b.WriteString(content)
		} else {
			b.WriteString("(no content)")
		}
	}
	return b.String()
}
