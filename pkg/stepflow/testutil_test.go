package stepflow

import (
	"context"
	"fmt"
	"time"

	"github.com/randalmurphal/stepflow/pkg/stepflow/event"
)

// Executor helpers used across tests.

// staticExec returns the same text regardless of input.
func staticExec(name, text string) Executor {
	return NewTextFuncExecutor(name, func(ctx context.Context, in StepInput) (string, error) {
		return text, nil
	})
}

// echoExec returns the workflow message prefixed by the executor name.
func echoExec(name string) Executor {
	return NewTextFuncExecutor(name, func(ctx context.Context, in StepInput) (string, error) {
		return name + ": " + in.MessageString(), nil
	})
}

// chainExec returns the previous step's content wrapped in the executor
// name, making chaining order visible in the final content.
func chainExec(name string) Executor {
	return NewTextFuncExecutor(name, func(ctx context.Context, in StepInput) (string, error) {
		return fmt.Sprintf("%s(%s)", name, in.PreviousContentString()), nil
	})
}

// trackingExec records executions in order.
func trackingExec(name string, tracker *[]string) Executor {
	return NewTextFuncExecutor(name, func(ctx context.Context, in StepInput) (string, error) {
		*tracker = append(*tracker, name)
		return name, nil
	})
}

// slowExec sleeps before responding, for exercising concurrency.
func slowExec(name string, delay time.Duration) Executor {
	return NewTextFuncExecutor(name, func(ctx context.Context, in StepInput) (string, error) {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		return name, nil
	})
}

// failingExec always errors.
func failingExec(name string, err error) Executor {
	return NewTextFuncExecutor(name, func(ctx context.Context, in StepInput) (string, error) {
		return "", err
	})
}

// stopExec returns a successful output with the stop flag set.
func stopExec(name, text string) Executor {
	return NewFuncExecutor(name, func(ctx context.Context, in StepInput) (StepOutput, error) {
		return StopOutput(text), nil
	})
}

// panicExec panics with the given value.
func panicExec(name string, value any) Executor {
	return NewTextFuncExecutor(name, func(ctx context.Context, in StepInput) (string, error) {
		panic(value)
	})
}

// eventKinds extracts the kinds of the given events in order.
func eventKinds(events []event.Event) []event.Kind {
	kinds := make([]event.Kind, len(events))
	for i, ev := range events {
		kinds[i] = ev.Kind
	}
	return kinds
}

// kindsOf filters a run's events to the requested kinds, preserving
// emission order.
func kindsOf(events []event.Event, want ...event.Kind) []event.Event {
	set := make(map[event.Kind]bool, len(want))
	for _, k := range want {
		set[k] = true
	}
	var out []event.Event
	for _, ev := range events {
		if set[ev.Kind] {
			out = append(out, ev)
		}
	}
	return out
}
