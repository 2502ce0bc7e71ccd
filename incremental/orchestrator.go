// Package incremental performs the delta-fetch ingestion pass over schemes
// whose backfill has already completed (spec.md §4.5).
package incremental

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"encore.app/navstore"
	"encore.app/pkg/syncevents"
	"encore.app/syncstate"
	"encore.app/upstream"
)

// Orchestrator runs the incremental pass for every scheme with a completed
// backfill sync-state row.
type Orchestrator struct {
	upstreamClient *upstream.Client
	navStore       navstore.Interface
	syncStore      syncstate.Interface
	onSchemeDone   func(ctx context.Context, schemeCode string)
}

// New constructs an Orchestrator.
func New(upstreamClient *upstream.Client, navStore navstore.Interface, syncStore syncstate.Interface) *Orchestrator {
	return &Orchestrator{upstreamClient: upstreamClient, navStore: navStore, syncStore: syncStore}
}

// OnSchemeDone registers a callback invoked after each scheme finishes.
func (o *Orchestrator) OnSchemeDone(f func(ctx context.Context, schemeCode string)) {
	o.onSchemeDone = f
}

// Run processes every scheme with a completed backfill, sequentially, per
// spec.md §4.4's sequential-by-design rule (shared by §4.5).
func (o *Orchestrator) Run(ctx context.Context) error {
	completed, err := o.syncStore.ListByStatus(ctx, syncstate.Backfill, syncstate.Completed)
	if err != nil {
		return fmt.Errorf("incremental: list completed-backfill schemes: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(1)

	for _, state := range completed {
		schemeCode := state.SchemeCode
		g.Go(func() error {
			_ = o.processScheme(gctx, schemeCode)
			return nil
		})
	}

	return g.Wait()
}

func (o *Orchestrator) processScheme(ctx context.Context, schemeCode string) error {
	defer func() {
		if o.onSchemeDone != nil {
			o.onSchemeDone(ctx, schemeCode)
		}
	}()

	if _, err := o.syncStore.EnsurePending(ctx, schemeCode, syncstate.Incremental); err != nil {
		return fmt.Errorf("incremental: ensure sync-state for %s: %w", schemeCode, err)
	}
	if err := o.syncStore.MarkInProgress(ctx, schemeCode, syncstate.Incremental); err != nil {
		return fmt.Errorf("incremental: mark in_progress for %s: %w", schemeCode, err)
	}

	maxDate, hasMax, err := o.navStore.MaxNAVDate(ctx, schemeCode)
	if err != nil {
		o.syncStore.MarkFailed(ctx, schemeCode, syncstate.Incremental, err.Error())
		return fmt.Errorf("incremental: read max nav date for %s: %w", schemeCode, err)
	}

	history, err := o.upstreamClient.FetchScheme(ctx, schemeCode)
	if err != nil {
		o.syncStore.MarkFailed(ctx, schemeCode, syncstate.Incremental, err.Error())
		return fmt.Errorf("incremental: fetch scheme %s: %w", schemeCode, err)
	}

	var fresh []navstore.NAVPoint
	for _, h := range history.History {
		if hasMax && !h.Date.After(maxDate) {
			continue // strictly newer dates only, per spec.md §4.5
		}
		fresh = append(fresh, navstore.NAVPoint{SchemeCode: schemeCode, Date: h.Date, NAV: h.NAV})
	}

	written, err := o.navStore.UpsertNAVPoints(ctx, fresh)
	if err != nil {
		o.syncStore.MarkFailed(ctx, schemeCode, syncstate.Incremental, err.Error())
		return fmt.Errorf("incremental: upsert nav points for %s: %w", schemeCode, err)
	}

	newMax := maxDate
	if len(fresh) > 0 {
		newMax = fresh[len(fresh)-1].Date
	}
	if err := o.syncStore.MarkCompleted(ctx, schemeCode, syncstate.Incremental, newMax, written); err != nil {
		return fmt.Errorf("incremental: mark completed for %s: %w", schemeCode, err)
	}

	if written == 0 {
		return nil // no new rows: analytics recomputation is skipped (spec.md §4.7)
	}

	if _, err := syncevents.SyncCompletedTopic.Publish(ctx, &syncevents.SyncCompletedEvent{
		SchemeCode: schemeCode,
		SyncType:   string(syncstate.Incremental),
		Timestamp:  time.Now(),
		RequestID:  uuid.NewString(),
	}); err != nil {
		return fmt.Errorf("incremental: publish sync-completed for %s: %w", schemeCode, err)
	}

	return nil
}
