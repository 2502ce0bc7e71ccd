// Package backfill performs the full-history ingestion pass over the
// discovered scheme catalog (spec.md §4.4).
//
// Design Notes:
//   - Schemes are processed sequentially by design (spec.md: "with 10
//     schemes and a 300/hr ceiling, parallelism offers no throughput
//     benefit and would complicate limiter accounting"). errgroup.SetLimit(1)
//     makes that constraint explicit in code rather than a bare for loop,
//     the same task-per-unit shape as warming/worker_pool.go's task queue
//     but capped at one in-flight task.
//   - Resume semantics: completed schemes are skipped; in_progress, failed,
//     and pending schemes are reprocessed from scratch, relying on
//     navstore's idempotent upsert.
package backfill

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"encore.app/navstore"
	"encore.app/pkg/catalog"
	"encore.app/pkg/syncevents"
	"encore.app/syncstate"
	"encore.app/upstream"
)

// Orchestrator runs the backfill pass for a list of discovered schemes.
type Orchestrator struct {
	upstreamClient *upstream.Client
	navStore       navstore.Interface
	syncStore      syncstate.Interface
	onSchemeDone   func(ctx context.Context, schemeCode string) // hook for pipeline progress reporting
}

// New constructs an Orchestrator.
func New(upstreamClient *upstream.Client, navStore navstore.Interface, syncStore syncstate.Interface) *Orchestrator {
	return &Orchestrator{upstreamClient: upstreamClient, navStore: navStore, syncStore: syncStore}
}

// OnSchemeDone registers a callback invoked after each scheme finishes
// (success or failure), letting the pipeline orchestrator update
// pipeline-status progress incrementally.
func (o *Orchestrator) OnSchemeDone(f func(ctx context.Context, schemeCode string)) {
	o.onSchemeDone = f
}

// Run processes every discovered scheme sequentially per spec.md §4.4.
func (o *Orchestrator) Run(ctx context.Context, schemes []catalog.Descriptor) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(1)

	for _, scheme := range schemes {
		scheme := scheme
		g.Go(func() error {
			// processScheme already records any failure on the sync-state row;
			// a single scheme's failure must not abort the remaining schemes,
			// so its error is swallowed here by design.
			_ = o.processScheme(gctx, scheme)
			return nil
		})
	}

	return g.Wait()
}

func (o *Orchestrator) processScheme(ctx context.Context, scheme catalog.Descriptor) error {
	defer func() {
		if o.onSchemeDone != nil {
			o.onSchemeDone(ctx, scheme.SchemeCode)
		}
	}()

	if err := o.navStore.UpsertFund(ctx, navstore.Fund{
		SchemeCode: scheme.SchemeCode,
		SchemeName: scheme.SchemeName,
		AMC:        scheme.AMC,
		Category:   scheme.Category,
	}); err != nil {
		return fmt.Errorf("backfill: ensure fund row for %s: %w", scheme.SchemeCode, err)
	}

	state, err := o.syncStore.EnsurePending(ctx, scheme.SchemeCode, syncstate.Backfill)
	if err != nil {
		return fmt.Errorf("backfill: ensure sync-state for %s: %w", scheme.SchemeCode, err)
	}
	if state.Status == syncstate.Completed {
		return nil
	}

	if err := o.syncStore.MarkInProgress(ctx, scheme.SchemeCode, syncstate.Backfill); err != nil {
		return fmt.Errorf("backfill: mark in_progress for %s: %w", scheme.SchemeCode, err)
	}

	history, err := o.upstreamClient.FetchScheme(ctx, scheme.SchemeCode)
	if err != nil {
		o.syncStore.MarkFailed(ctx, scheme.SchemeCode, syncstate.Backfill, err.Error())
		return fmt.Errorf("backfill: fetch scheme %s: %w", scheme.SchemeCode, err)
	}

	if err := o.navStore.UpsertFund(ctx, navstore.Fund{
		SchemeCode: history.SchemeCode,
		SchemeName: history.SchemeName,
		AMC:        scheme.AMC,
		Category:   scheme.Category,
		SchemeType: history.SchemeType,
	}); err != nil {
		o.syncStore.MarkFailed(ctx, scheme.SchemeCode, syncstate.Backfill, err.Error())
		return fmt.Errorf("backfill: upsert authoritative fund metadata for %s: %w", scheme.SchemeCode, err)
	}

	points := make([]navstore.NAVPoint, len(history.History))
	for i, h := range history.History {
		points[i] = navstore.NAVPoint{SchemeCode: scheme.SchemeCode, Date: h.Date, NAV: h.NAV}
	}

	written, err := o.navStore.UpsertNAVPoints(ctx, points)
	if err != nil {
		o.syncStore.MarkFailed(ctx, scheme.SchemeCode, syncstate.Backfill, err.Error())
		return fmt.Errorf("backfill: upsert nav points for %s: %w", scheme.SchemeCode, err)
	}

	if len(points) == 0 {
		o.syncStore.MarkFailed(ctx, scheme.SchemeCode, syncstate.Backfill, "upstream returned no history")
		return fmt.Errorf("backfill: no history for %s", scheme.SchemeCode)
	}

	lastDate := points[len(points)-1].Date
	if err := o.syncStore.MarkCompleted(ctx, scheme.SchemeCode, syncstate.Backfill, lastDate, written); err != nil {
		return fmt.Errorf("backfill: mark completed for %s: %w", scheme.SchemeCode, err)
	}

	if _, err := syncevents.SyncCompletedTopic.Publish(ctx, &syncevents.SyncCompletedEvent{
		SchemeCode: scheme.SchemeCode,
		SyncType:   string(syncstate.Backfill),
		Timestamp:  time.Now(),
		RequestID:  uuid.NewString(),
	}); err != nil {
		return fmt.Errorf("backfill: publish sync-completed for %s: %w", scheme.SchemeCode, err)
	}

	return nil
}
