// Package pipeline coordinates the end-to-end NAV sync run: discovery,
// then backfill or incremental, then analytics, tracked through the
// pipeline-status singleton row (spec.md §4.7).
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"encore.app/pkg/catalog"
	"encore.app/pipelinestatus"
	"encore.app/syncstate"
)

// ErrAlreadyRunning is returned when a trigger arrives while a run is in
// flight; the control-plane endpoint maps it to 409.
var ErrAlreadyRunning = errors.New("pipeline: a run is already in progress")

// Orchestrator runs full and incremental sync passes. A process-wide mutex
// (mu.TryLock) plus the durable pipeline-status row together guard against
// concurrent runs: the mutex catches concurrent calls within this process,
// the row catches a stale "running" state left by a prior process (reset
// at startup, see initService in pipelinestatus/service.go).
type Orchestrator struct {
	mu sync.Mutex

	status         pipelinestatus.Interface
	syncStore      syncstate.Interface
	discover       func(ctx context.Context) ([]catalog.Descriptor, error)
	runBackfill    func(ctx context.Context, schemes []catalog.Descriptor, onSchemeDone func(context.Context, string)) error
	runIncremental func(ctx context.Context, onSchemeDone func(context.Context, string)) error
}

// New constructs an Orchestrator from its collaborators' package-level
// entry points, the same dependency-as-function-value shape the teacher's
// cache-manager uses for its eviction/invalidation callbacks.
func New(
	status pipelinestatus.Interface,
	syncStore syncstate.Interface,
	discover func(ctx context.Context) ([]catalog.Descriptor, error),
	runBackfill func(ctx context.Context, schemes []catalog.Descriptor, onSchemeDone func(context.Context, string)) error,
	runIncremental func(ctx context.Context, onSchemeDone func(context.Context, string)) error,
) *Orchestrator {
	return &Orchestrator{
		status:         status,
		syncStore:      syncStore,
		discover:       discover,
		runBackfill:    runBackfill,
		runIncremental: runIncremental,
	}
}

// RunFull executes discovery -> backfill -> analytics.
func (o *Orchestrator) RunFull(ctx context.Context) error {
	if !o.mu.TryLock() {
		return ErrAlreadyRunning
	}
	defer o.mu.Unlock()

	schemes, err := o.discover(ctx)
	if err != nil {
		o.status.Fail(ctx, err.Error())
		return fmt.Errorf("pipeline: discovery: %w", err)
	}

	if err := o.status.StartRun(ctx, len(schemes)); err != nil {
		return fmt.Errorf("pipeline: start run: %w", err)
	}

	if err := o.status.SetPhase(ctx, pipelinestatus.PhaseBackfill, fullBackfillStart); err != nil {
		return fmt.Errorf("pipeline: set phase backfill: %w", err)
	}

	total := len(schemes)
	onDone := o.schemeProgressHook(syncstate.Backfill, fullBackfillStart, fullAnalyticsStart, total)
	if err := o.runBackfill(ctx, schemes, onDone); err != nil {
		o.status.Fail(ctx, err.Error())
		return fmt.Errorf("pipeline: backfill: %w", err)
	}

	return o.finishWithAnalyticsPhase(ctx, fullAnalyticsStart)
}

// RunIncremental executes incremental -> analytics (analytics is a no-op
// for any scheme with zero new rows, since incremental.Run only publishes
// a completion event when it writes at least one point).
func (o *Orchestrator) RunIncremental(ctx context.Context) error {
	if !o.mu.TryLock() {
		return ErrAlreadyRunning
	}
	defer o.mu.Unlock()

	completed, err := o.syncStore.ListByStatus(ctx, syncstate.Backfill, syncstate.Completed)
	if err != nil {
		o.status.Fail(ctx, err.Error())
		return fmt.Errorf("pipeline: list completed-backfill schemes: %w", err)
	}

	if err := o.status.StartRun(ctx, len(completed)); err != nil {
		return fmt.Errorf("pipeline: start run: %w", err)
	}
	if err := o.status.SetPhase(ctx, pipelinestatus.PhaseIncremental, deltaIncrementalStart); err != nil {
		return fmt.Errorf("pipeline: set phase incremental: %w", err)
	}

	onDone := o.schemeProgressHook(syncstate.Incremental, deltaIncrementalStart, deltaAnalyticsStart, len(completed))
	if err := o.runIncremental(ctx, onDone); err != nil {
		o.status.Fail(ctx, err.Error())
		return fmt.Errorf("pipeline: incremental: %w", err)
	}

	return o.finishWithAnalyticsPhase(ctx, deltaAnalyticsStart)
}

// schemeProgressHook returns an onSchemeDone callback that linearly
// interpolates progress_percent from phaseStart up to phaseEnd (reached
// when the last of total schemes is done), and increments completed/failed counters by checking the
// scheme's sync-state outcome (the callback signature itself carries no
// success/failure flag, since backfill/incremental record that on the
// sync-state row before invoking it).
func (o *Orchestrator) schemeProgressHook(syncType syncstate.SyncType, phaseStart, phaseEnd float64, total int) func(context.Context, string) {
	var mu sync.Mutex
	done := 0

	return func(ctx context.Context, schemeCode string) {
		mu.Lock()
		done++
		pct := phaseStart
		if total > 0 {
			pct = phaseStart + (float64(done)/float64(total))*(phaseEnd-phaseStart)
		}
		mu.Unlock()

		phase := pipelinestatus.PhaseBackfill
		if syncType == syncstate.Incremental {
			phase = pipelinestatus.PhaseIncremental
		}
		o.status.SetPhase(ctx, phase, pct)

		state, err := o.syncStore.Get(ctx, schemeCode, syncType)
		if err != nil {
			return
		}
		switch state.Status {
		case syncstate.Completed:
			o.status.IncCompleted(ctx)
		case syncstate.Failed:
			o.status.IncFailed(ctx)
		}
	}
}

func (o *Orchestrator) finishWithAnalyticsPhase(ctx context.Context, analyticsStart float64) error {
	if err := o.status.SetPhase(ctx, pipelinestatus.PhaseAnalytics, analyticsStart); err != nil {
		return fmt.Errorf("pipeline: set phase analytics: %w", err)
	}
	// Analytics recomputation itself runs asynchronously off the
	// sync-completed events already published per scheme; this phase
	// marks the handoff rather than blocking on it (spec.md §4.7's
	// "decouples orchestrator from analytics").
	if err := o.status.Finish(ctx); err != nil {
		return fmt.Errorf("pipeline: finish: %w", err)
	}
	return nil
}
