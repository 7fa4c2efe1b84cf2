package stepflow

import (
	"context"
	"time"

	"github.com/randalmurphal/stepflow/pkg/stepflow/storage"
)

// RunBackground starts the workflow asynchronously and immediately
// returns a PENDING response snapshot. Poll GetRun with the returned
// run ID until the status is terminal, and use CancelRun to stop the
// run early.
//
// The run detaches from the caller's context: cancelling ctx after
// RunBackground returns does not cancel the run. Only CancelRun does.
func (w *Workflow) RunBackground(ctx context.Context, input ExecutionInput, opts ...RunOption) (*RunResponse, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	cfg := newRunConfig(opts)

	pending := &RunResponse{
		RunID:        cfg.runID,
		SessionID:    cfg.sessionID,
		WorkflowID:   w.id,
		WorkflowName: w.name,
		Status:       RunPending,
		CreatedAt:    time.Now(),
	}
	w.snapshotRun(pending, nil)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w.cancels.Register(cfg.runID, cancel)

	go func() {
		defer func() {
			cancel()
			w.cancels.Delete(cfg.runID)
		}()
		w.executeRun(runCtx, input, cfg, nil)
	}()

	snapshot := *pending
	return &snapshot, nil
}

// GetRun returns the current snapshot of a run: live state for runs
// this Workflow instance executed, otherwise the persisted record from
// storage. Returns storage.ErrNotFound for unknown run IDs.
//
// Snapshots are point-in-time copies; poll until HasCompleted reports
// true.
func (w *Workflow) GetRun(ctx context.Context, runID string) (*RunResponse, error) {
	if resp, ok := w.runs.Get(runID); ok {
		return &resp, nil
	}
	// Fall back to the session run histories.
	found := findHistoricRun(w, runID)
	if found == nil {
		return nil, storage.ErrNotFound
	}
	return found, nil
}

func findHistoricRun(w *Workflow, runID string) *RunResponse {
	var found *RunResponse
	w.sessions.Range(func(_ string, session *storage.SessionRecord) bool {
		if rec := session.Run(runID); rec != nil {
			found = runRecordResponse(w, session, rec)
			return false
		}
		return true
	})
	return found
}

func runRecordResponse(w *Workflow, session *storage.SessionRecord, rec *storage.RunRecord) *RunResponse {
	return &RunResponse{
		RunID:        rec.RunID,
		SessionID:    session.SessionID,
		WorkflowID:   w.id,
		WorkflowName: w.name,
		Status:       RunStatus(rec.Status),
		Content:      rec.Content,
		Error:        rec.Error,
		CreatedAt:    rec.CreatedAt,
		CompletedAt:  rec.CompletedAt,
	}
}

// CancelRun requests cancellation of an in-flight background run.
// Returns false when the run is unknown or already terminal. The run
// transitions to CANCELLED once it observes the cancellation between
// steps; in-flight step work is allowed to finish.
func (w *Workflow) CancelRun(runID string) bool {
	cancel, ok := w.cancels.Get(runID)
	if !ok {
		return false
	}
	cancel()
	return true
}
