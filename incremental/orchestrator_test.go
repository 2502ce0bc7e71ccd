package incremental

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"encore.app/navstore"
	"encore.app/pkg/dateutil"
	"encore.app/pkg/money"
	"encore.app/syncstate"
	"encore.app/upstream"
)

type fakeNAVStore struct {
	mu    sync.Mutex
	navs  map[string][]navstore.NAVPoint
	funds map[string]navstore.Fund
}

func newFakeNAVStore() *fakeNAVStore {
	return &fakeNAVStore{navs: make(map[string][]navstore.NAVPoint), funds: make(map[string]navstore.Fund)}
}

func (f *fakeNAVStore) UpsertFund(ctx context.Context, fund navstore.Fund) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.funds[fund.SchemeCode] = fund
	return nil
}

func (f *fakeNAVStore) UpsertNAVPoints(ctx context.Context, points []navstore.NAVPoint) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(points) == 0 {
		return 0, nil
	}
	f.navs[points[0].SchemeCode] = append(f.navs[points[0].SchemeCode], points...)
	return len(points), nil
}

func (f *fakeNAVStore) GetFund(ctx context.Context, schemeCode string) (*navstore.Fund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fund, ok := f.funds[schemeCode]
	if !ok {
		return nil, navstore.ErrNotFound
	}
	return &fund, nil
}

func (f *fakeNAVStore) ListFunds(ctx context.Context, category, amc string) ([]navstore.Fund, error) {
	return nil, nil
}

func (f *fakeNAVStore) LatestNAV(ctx context.Context, schemeCode string) (*navstore.NAVPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	points := f.navs[schemeCode]
	if len(points) == 0 {
		return nil, navstore.ErrNotFound
	}
	last := points[len(points)-1]
	return &last, nil
}

func (f *fakeNAVStore) MaxNAVDate(ctx context.Context, schemeCode string) (dateutil.Date, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	points := f.navs[schemeCode]
	if len(points) == 0 {
		return dateutil.Date{}, false, nil
	}
	return points[len(points)-1].Date, true, nil
}

func (f *fakeNAVStore) History(ctx context.Context, schemeCode string) ([]navstore.NAVPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.navs[schemeCode], nil
}

type fakeSyncStore struct {
	mu   sync.Mutex
	rows map[string]*syncstate.State
}

func newFakeSyncStore() *fakeSyncStore {
	return &fakeSyncStore{rows: make(map[string]*syncstate.State)}
}

func syncKey(schemeCode string, syncType syncstate.SyncType) string {
	return schemeCode + "/" + string(syncType)
}

func (f *fakeSyncStore) EnsurePending(ctx context.Context, schemeCode string, syncType syncstate.SyncType) (*syncstate.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := syncKey(schemeCode, syncType)
	if st, ok := f.rows[k]; ok {
		cp := *st
		return &cp, nil
	}
	st := &syncstate.State{SchemeCode: schemeCode, SyncType: syncType, Status: syncstate.Pending}
	f.rows[k] = st
	cp := *st
	return &cp, nil
}

func (f *fakeSyncStore) Get(ctx context.Context, schemeCode string, syncType syncstate.SyncType) (*syncstate.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.rows[syncKey(schemeCode, syncType)]
	if !ok {
		return nil, syncstate.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (f *fakeSyncStore) MarkInProgress(ctx context.Context, schemeCode string, syncType syncstate.SyncType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := syncKey(schemeCode, syncType)
	st, ok := f.rows[k]
	if !ok {
		st = &syncstate.State{SchemeCode: schemeCode, SyncType: syncType}
		f.rows[k] = st
	}
	st.Status = syncstate.InProgress
	st.StartedAt = time.Now()
	return nil
}

func (f *fakeSyncStore) MarkCompleted(ctx context.Context, schemeCode string, syncType syncstate.SyncType, lastSyncedDate dateutil.Date, totalRecords int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.rows[syncKey(schemeCode, syncType)]
	if !ok {
		return syncstate.ErrNotFound
	}
	st.Status = syncstate.Completed
	st.LastSyncedDate = lastSyncedDate
	st.HasLastSynced = true
	st.TotalRecords = totalRecords
	return nil
}

func (f *fakeSyncStore) MarkFailed(ctx context.Context, schemeCode string, syncType syncstate.SyncType, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.rows[syncKey(schemeCode, syncType)]
	if !ok {
		return syncstate.ErrNotFound
	}
	st.Status = syncstate.Failed
	st.ErrorMessage = errMsg
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

func seedCompletedBackfill(t *testing.T, syncStore *fakeSyncStore, navStore *fakeNAVStore, schemeCode string, lastDate dateutil.Date) {
	t.Helper()
	ctx := context.Background()
	syncStore.EnsurePending(ctx, schemeCode, syncstate.Backfill)
	syncStore.MarkInProgress(ctx, schemeCode, syncstate.Backfill)
	syncStore.MarkCompleted(ctx, schemeCode, syncstate.Backfill, lastDate, 1)
	navStore.UpsertNAVPoints(ctx, []navstore.NAVPoint{{SchemeCode: schemeCode, Date: lastDate, NAV: mustDecimal(t, "10.0000")}})
}

func mustDecimal(t *testing.T, s string) money.Decimal {
	t.Helper()
	dec, err := money.Parse(s)
	if err != nil {
		t.Fatal(err)
	}
	return dec
}

func TestRunFetchesOnlyStrictlyNewerPoints(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{
			"meta": {"fund_house": "Example AMC", "scheme_type": "Open Ended",
				"scheme_category": "Equity Scheme - Mid Cap Fund",
				"scheme_code": "100001", "scheme_name": "Example Fund"},
			"data": [
				{"date": "03-01-2024", "nav": "12.0000"},
				{"date": "02-01-2024", "nav": "11.0000"},
				{"date": "01-01-2024", "nav": "10.0000"}
			]
		}`))
	}))
	t.Cleanup(server.Close)
	client := upstream.New(upstream.Config{BaseURL: server.URL, Timeout: 5 * time.Second})

	navStore := newFakeNAVStore()
	syncStore := newFakeSyncStore()
	lastDate, _ := dateutil.Parse("2024-01-01")
	seedCompletedBackfill(t, syncStore, navStore, "100001", lastDate)

	o := New(client, navStore, syncStore)
	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	history, err := navStore.History(context.Background(), "100001")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 3 {
		t.Fatalf("expected the pre-existing point plus 2 new points, got %d: %+v", len(history), history)
	}

	state, err := syncStore.Get(context.Background(), "100001", syncstate.Incremental)
	if err != nil {
		t.Fatal(err)
	}
	if state.Status != syncstate.Completed {
		t.Fatalf("expected completed status, got %s", state.Status)
	}
	if state.LastSyncedDate.String() != "2024-01-03" {
		t.Errorf("expected last synced date 2024-01-03, got %s", state.LastSyncedDate)
	}
}

func TestRunSkipsSchemesWithoutCompletedBackfill(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream should not be called for a scheme without completed backfill")
	}))
	t.Cleanup(server.Close)
	client := upstream.New(upstream.Config{BaseURL: server.URL, Timeout: 5 * time.Second})

	navStore := newFakeNAVStore()
	syncStore := newFakeSyncStore()
	syncStore.EnsurePending(context.Background(), "100002", syncstate.Backfill) // still pending

	o := New(client, navStore, syncStore)
	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
