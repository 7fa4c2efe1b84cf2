package stepflow

import (
	"context"
	"log/slog"
	"sync"

	"github.com/randalmurphal/stepflow/pkg/stepflow/event"
	"github.com/randalmurphal/stepflow/pkg/stepflow/observability"
)

// execContext carries the per-run execution services through the node
// tree: cancellation, logging, metrics, tracing, the event sink, and the
// shared session state. It is created once per run and shared by all
// nodes, including concurrent parallel branches.
type execContext struct {
	context.Context

	run    event.RunInfo
	logger *slog.Logger

	metrics        observability.MetricsRecorder
	spans          observability.SpanManager
	tracingEnabled bool

	sessionState map[string]any
	userID       string

	// emitMu serializes event emission; parallel branches emit
	// concurrently.
	emitMu sync.Mutex

	// collected accumulates every event of the run in emission order.
	collected []event.Event

	// stream receives events when the run is consumed as a stream.
	// nil for synchronous and background runs.
	stream chan<- event.Event

	// intermediate controls whether composite bracketing events are
	// forwarded to the stream. They are always collected.
	intermediate bool
}

// newEvent creates an event of the given kind stamped with run identity.
func (ec *execContext) newEvent(kind event.Kind) event.Event {
	return event.New(kind, ec.run)
}

// emit records an event and forwards it to the stream consumer, honoring
// the intermediate-steps filter.
func (ec *execContext) emit(ev event.Event) {
	ec.emitMu.Lock()
	ec.collected = append(ec.collected, ev)
	ec.emitMu.Unlock()

	if ec.stream == nil {
		return
	}
	if !ec.intermediate && ev.Intermediate() {
		return
	}
	select {
	case ec.stream <- ev:
	case <-ec.Done():
	}
}

// events returns a snapshot of the collected events.
func (ec *execContext) events() []event.Event {
	ec.emitMu.Lock()
	defer ec.emitMu.Unlock()
	out := make([]event.Event, len(ec.collected))
	copy(out, ec.collected)
	return out
}

// checkCancelled returns a CancelledError when the run context is done.
// Called between nodes; already-dispatched work is never interrupted.
func (ec *execContext) checkCancelled(nextStep string) error {
	select {
	case <-ec.Done():
		return &CancelledError{StepName: nextStep, Cause: ec.Err()}
	default:
		return nil
	}
}
