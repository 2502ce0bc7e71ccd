package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"encore.app/pipelinestatus"
	"encore.app/pkg/catalog"
	"encore.app/pkg/dateutil"
	"encore.app/syncstate"
)

type fakeSyncStore struct {
	mu   sync.Mutex
	rows map[string]*syncstate.State
}

func newFakeSyncStore() *fakeSyncStore {
	return &fakeSyncStore{rows: make(map[string]*syncstate.State)}
}

func key(schemeCode string, syncType syncstate.SyncType) string {
	return schemeCode + "/" + string(syncType)
}

func (f *fakeSyncStore) EnsurePending(ctx context.Context, schemeCode string, syncType syncstate.SyncType) (*syncstate.State, error) {
	return nil, nil
}
func (f *fakeSyncStore) Get(ctx context.Context, schemeCode string, syncType syncstate.SyncType) (*syncstate.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.rows[key(schemeCode, syncType)]
	if !ok {
		return nil, syncstate.ErrNotFound
	}
	return st, nil
}
func (f *fakeSyncStore) MarkInProgress(ctx context.Context, schemeCode string, syncType syncstate.SyncType) error {
	return nil
}
func (f *fakeSyncStore) MarkCompleted(ctx context.Context, schemeCode string, syncType syncstate.SyncType, lastSyncedDate dateutil.Date, totalRecords int) error {
	return nil
}
func (f *fakeSyncStore) MarkFailed(ctx context.Context, schemeCode string, syncType syncstate.SyncType, errMsg string) error {
	return nil
}
func (f *fakeSyncStore) ListByStatus(ctx context.Context, syncType syncstate.SyncType, status syncstate.Status) ([]syncstate.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []syncstate.State
	for _, st := range f.rows {
		if st.SyncType == syncType && st.Status == status {
			out = append(out, *st)
		}
	}
	return out, nil
}
func (f *fakeSyncStore) Histogram(ctx context.Context) (map[syncstate.Status]int, error) {
	return nil, nil
}

func (f *fakeSyncStore) setState(schemeCode string, syncType syncstate.SyncType, status syncstate.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[key(schemeCode, syncType)] = &syncstate.State{SchemeCode: schemeCode, SyncType: syncType, Status: status}
}

func TestRunFullTransitionsPhasesAndFinishes(t *testing.T) {
	status := pipelinestatus.NewMemStore()
	syncStore := newFakeSyncStore()

	discover := func(ctx context.Context) ([]catalog.Descriptor, error) {
		return []catalog.Descriptor{{SchemeCode: "A"}, {SchemeCode: "B"}}, nil
	}
	runBackfill := func(ctx context.Context, schemes []catalog.Descriptor, onDone func(context.Context, string)) error {
		for _, s := range schemes {
			syncStore.setState(s.SchemeCode, syncstate.Backfill, syncstate.Completed)
			onDone(ctx, s.SchemeCode)
		}
		return nil
	}
	runIncremental := func(ctx context.Context, onDone func(context.Context, string)) error { return nil }

	o := New(status, syncStore, discover, runBackfill, runIncremental)
	if err := o.RunFull(context.Background()); err != nil {
		t.Fatalf("RunFull: %v", err)
	}

	got, err := status.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got.RunStatus != pipelinestatus.StatusIdle {
		t.Errorf("expected idle after success, got %s", got.RunStatus)
	}
	if got.ProgressPercent != 100 {
		t.Errorf("expected 100%% progress, got %v", got.ProgressPercent)
	}
	if got.CompletedSchemes != 2 {
		t.Errorf("expected 2 completed schemes, got %d", got.CompletedSchemes)
	}
}

func TestRunFullRejectsConcurrentTrigger(t *testing.T) {
	status := pipelinestatus.NewMemStore()
	syncStore := newFakeSyncStore()

	block := make(chan struct{})
	started := make(chan struct{})
	discover := func(ctx context.Context) ([]catalog.Descriptor, error) {
		close(started)
		<-block
		return nil, nil
	}
	runBackfill := func(ctx context.Context, schemes []catalog.Descriptor, onDone func(context.Context, string)) error { return nil }
	runIncremental := func(ctx context.Context, onDone func(context.Context, string)) error { return nil }

	o := New(status, syncStore, discover, runBackfill, runIncremental)

	done := make(chan error, 1)
	go func() { done <- o.RunFull(context.Background()) }()
	<-started // the first run now holds the mutex inside discover()

	err := o.RunFull(context.Background())
	close(block)
	<-done

	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning for the concurrent trigger, got %v", err)
	}
}

func TestRunIncrementalSkipsSchemesWithoutCompletedBackfill(t *testing.T) {
	status := pipelinestatus.NewMemStore()
	syncStore := newFakeSyncStore()
	syncStore.setState("A", syncstate.Backfill, syncstate.Completed)
	syncStore.setState("B", syncstate.Backfill, syncstate.Pending)

	var sawSchemes int
	discover := func(ctx context.Context) ([]catalog.Descriptor, error) { return nil, nil }
	runBackfill := func(ctx context.Context, schemes []catalog.Descriptor, onDone func(context.Context, string)) error { return nil }
	runIncremental := func(ctx context.Context, onDone func(context.Context, string)) error {
		sawSchemes++
		onDone(ctx, "A")
		return nil
	}

	o := New(status, syncStore, discover, runBackfill, runIncremental)
	if err := o.RunIncremental(context.Background()); err != nil {
		t.Fatalf("RunIncremental: %v", err)
	}

	got, err := status.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got.TotalSchemes != 1 {
		t.Errorf("expected total_schemes=1 (only A has completed backfill), got %d", got.TotalSchemes)
	}
}
