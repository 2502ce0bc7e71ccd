package syncstate

import (
	"context"
	"sync"
	"testing"
	"time"

	"encore.app/pkg/dateutil"
)

// memStore is an in-memory Interface implementation, mirroring the
// invalidation package's MockAuditLogger test pattern.
type memStore struct {
	mu   sync.Mutex
	rows map[string]*State
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]*State)}
}

func key(schemeCode string, syncType SyncType) string {
	return schemeCode + "/" + string(syncType)
}

func (m *memStore) EnsurePending(ctx context.Context, schemeCode string, syncType SyncType) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(schemeCode, syncType)
	if st, ok := m.rows[k]; ok {
		cp := *st
		return &cp, nil
	}
	st := &State{SchemeCode: schemeCode, SyncType: syncType, Status: Pending}
	m.rows[k] = st
	cp := *st
	return &cp, nil
}

func (m *memStore) Get(ctx context.Context, schemeCode string, syncType SyncType) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.rows[key(schemeCode, syncType)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (m *memStore) MarkInProgress(ctx context.Context, schemeCode string, syncType SyncType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(schemeCode, syncType)
	st, ok := m.rows[k]
	if !ok {
		st = &State{SchemeCode: schemeCode, SyncType: syncType}
		m.rows[k] = st
	}
	st.Status = InProgress
	st.ErrorMessage = ""
	st.StartedAt = time.Now()
	st.HasCompletedAt = false
	return nil
}

func (m *memStore) MarkCompleted(ctx context.Context, schemeCode string, syncType SyncType, lastSyncedDate dateutil.Date, totalRecords int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.rows[key(schemeCode, syncType)]
	if !ok {
		return ErrNotFound
	}
	st.Status = Completed
	st.LastSyncedDate = lastSyncedDate
	st.HasLastSynced = true
	st.TotalRecords = totalRecords
	st.ErrorMessage = ""
	st.CompletedAt = time.Now()
	st.HasCompletedAt = true
	return nil
}

func (m *memStore) MarkFailed(ctx context.Context, schemeCode string, syncType SyncType, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.rows[key(schemeCode, syncType)]
	if !ok {
		return ErrNotFound
	}
	st.Status = Failed
	st.ErrorMessage = errMsg
	st.CompletedAt = time.Now()
	st.HasCompletedAt = true
	return nil
}

func (m *memStore) ListByStatus(ctx context.Context, syncType SyncType, status Status) ([]State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []State
	for _, st := range m.rows {
		if st.SyncType == syncType && st.Status == status {
			out = append(out, *st)
		}
	}
	return out, nil
}

func (m *memStore) Histogram(ctx context.Context) (map[Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[Status]int)
	for _, st := range m.rows {
		out[st.Status]++
	}
	return out, nil
}

func TestLifecycleTransitions(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	st, err := store.EnsurePending(ctx, "100001", Backfill)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != Pending {
		t.Fatalf("expected pending, got %s", st.Status)
	}

	if err := store.MarkInProgress(ctx, "100001", Backfill); err != nil {
		t.Fatal(err)
	}
	st, err = store.Get(ctx, "100001", Backfill)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != InProgress {
		t.Fatalf("expected in_progress, got %s", st.Status)
	}

	lastDate, _ := dateutil.Parse("2024-01-05")
	if err := store.MarkCompleted(ctx, "100001", Backfill, lastDate, 5); err != nil {
		t.Fatal(err)
	}
	st, err = store.Get(ctx, "100001", Backfill)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != Completed || st.TotalRecords != 5 || st.LastSyncedDate.String() != "2024-01-05" {
		t.Fatalf("unexpected completed state: %+v", st)
	}
}

func TestMarkFailedRecordsErrorMessage(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	if _, err := store.EnsurePending(ctx, "100002", Backfill); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkInProgress(ctx, "100002", Backfill); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkFailed(ctx, "100002", Backfill, "upstream timeout"); err != nil {
		t.Fatal(err)
	}

	st, err := store.Get(ctx, "100002", Backfill)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != Failed || st.ErrorMessage != "upstream timeout" {
		t.Fatalf("unexpected failed state: %+v", st)
	}
}

func TestListByStatusFiltersByTypeAndStatus(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	store.EnsurePending(ctx, "A", Backfill)
	store.EnsurePending(ctx, "B", Backfill)
	store.MarkInProgress(ctx, "B", Backfill)
	store.EnsurePending(ctx, "A", Incremental)

	pending, err := store.ListByStatus(ctx, Backfill, Pending)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].SchemeCode != "A" {
		t.Fatalf("expected only scheme A pending for backfill, got %+v", pending)
	}
}

var _ Interface = (*memStore)(nil)
