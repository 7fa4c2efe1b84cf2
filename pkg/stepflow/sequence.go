package stepflow

import (
	"maps"

	"github.com/randalmurphal/stepflow/pkg/stepflow/observability"
)

// runSequence executes nodes in declaration order, threading each node's
// output into the next node's input. It is the shared traversal used by
// the workflow root, Steps, Loop iterations, Router selections, and
// Condition branches.
//
// Threading rules: the first node receives the incoming input unchanged;
// every later node sees the preceding node's content as
// PreviousStepContent, the accumulated name-keyed outputs in
// PreviousStepOutputs, and the union of media produced so far. A stop
// signal halts the sequence immediately; remaining nodes never execute.
func runSequence(ec *execContext, nodes []Node, input StepInput) ([]StepOutput, error) {
	var all []StepOutput
	current := input

	named := make(map[string]StepOutput, len(nodes))
	maps.Copy(named, input.PreviousStepOutputs)

	for _, node := range nodes {
		if err := ec.checkCancelled(node.Name()); err != nil {
			return all, err
		}

		outputs, err := node.execute(ec, current)
		all = append(all, outputs...)
		if err != nil {
			return all, err
		}
		if len(outputs) == 0 {
			continue
		}

		named[node.Name()] = outputs[len(outputs)-1]

		if anyStop(outputs) {
			observability.LogEarlyExit(ec.logger, node.Name())
			break
		}

		current = chainInput(current, outputs, named)
	}

	return all, nil
}

// chainInput builds the next node's input from the outputs produced so
// far. The original message and session-state reference are carried
// through unchanged.
func chainInput(prev StepInput, outputs []StepOutput, named map[string]StepOutput) StepInput {
	next := prev
	next.PreviousStepContent = outputs[len(outputs)-1].Content
	next.PreviousStepOutputs = maps.Clone(named)

	for _, out := range outputs {
		next.Images = mergeArtifacts(next.Images, out.Images)
		next.Videos = mergeArtifacts(next.Videos, out.Videos)
		next.Audio = mergeArtifacts(next.Audio, out.Audio)
		next.Files = mergeArtifacts(next.Files, out.Files)
	}
	return next
}
