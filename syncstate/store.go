// Package syncstate tracks per-(scheme_code, sync_type) ingestion progress,
// the resume checkpoint backfill and incremental orchestrators rely on
// (spec.md §3, §4.4, §4.5).
package syncstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"encore.dev/storage/sqldb"

	"encore.app/pkg/dateutil"
)

// SyncType distinguishes the two orchestrator passes.
type SyncType string

const (
	Backfill    SyncType = "backfill"
	Incremental SyncType = "incremental"
)

// Status is the sync-state lifecycle per spec.md §3: pending → in_progress
// → {completed, failed}, may re-enter in_progress.
type Status string

const (
	Pending    Status = "pending"
	InProgress Status = "in_progress"
	Completed  Status = "completed"
	Failed     Status = "failed"
)

// ErrNotFound is returned when no sync-state row exists for the key.
var ErrNotFound = errors.New("syncstate: not found")

// State is one (scheme_code, sync_type) progress row.
type State struct {
	SchemeCode     string
	SyncType       SyncType
	Status         Status
	LastSyncedDate dateutil.Date
	HasLastSynced  bool
	TotalRecords   int
	ErrorMessage   string
	StartedAt      time.Time
	CompletedAt    time.Time
	HasCompletedAt bool
}

// Interface is the narrow surface orchestrators depend on.
type Interface interface {
	EnsurePending(ctx context.Context, schemeCode string, syncType SyncType) (*State, error)
	Get(ctx context.Context, schemeCode string, syncType SyncType) (*State, error)
	MarkInProgress(ctx context.Context, schemeCode string, syncType SyncType) error
	MarkCompleted(ctx context.Context, schemeCode string, syncType SyncType, lastSyncedDate dateutil.Date, totalRecords int) error
	MarkFailed(ctx context.Context, schemeCode string, syncType SyncType, errMsg string) error
	ListByStatus(ctx context.Context, syncType SyncType, status Status) ([]State, error)
	Histogram(ctx context.Context) (map[Status]int, error)
}

// Store is the Postgres-backed implementation.
type Store struct {
	db *sqldb.Database
}

// NewStore constructs a Store and ensures its schema exists.
func NewStore(db *sqldb.Database) (*Store, error) {
	s := &Store{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("syncstate: initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS sync_state (
			scheme_code TEXT NOT NULL,
			sync_type TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			last_synced_date DATE,
			total_records INT NOT NULL DEFAULT 0,
			error_message TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			PRIMARY KEY (scheme_code, sync_type)
		);

		CREATE INDEX IF NOT EXISTS idx_sync_state_type_status
		ON sync_state(sync_type, status);
	`
	_, err := s.db.Exec(ctx, query)
	return err
}

// EnsurePending creates a pending row if absent, a no-op otherwise, and
// returns the current row (spec.md §4.4 step 1 "create if absent").
func (s *Store) EnsurePending(ctx context.Context, schemeCode string, syncType SyncType) (*State, error) {
	query := `
		INSERT INTO sync_state (scheme_code, sync_type, status)
		VALUES ($1, $2, 'pending')
		ON CONFLICT (scheme_code, sync_type) DO NOTHING
	`
	if _, err := s.db.Exec(ctx, query, schemeCode, string(syncType)); err != nil {
		return nil, fmt.Errorf("syncstate: ensure pending %s/%s: %w", schemeCode, syncType, err)
	}
	return s.Get(ctx, schemeCode, syncType)
}

// Get fetches one sync-state row.
func (s *Store) Get(ctx context.Context, schemeCode string, syncType SyncType) (*State, error) {
	query := `
		SELECT scheme_code, sync_type, status, last_synced_date, total_records,
		       error_message, started_at, completed_at
		FROM sync_state WHERE scheme_code = $1 AND sync_type = $2
	`
	row := s.db.QueryRow(ctx, query, schemeCode, string(syncType))
	return scanState(row)
}

func scanState(row interface {
	Scan(dest ...interface{}) error
}) (*State, error) {
	var st State
	var syncType, status string
	var lastSynced, startedAt, completedAt *time.Time

	err := row.Scan(&st.SchemeCode, &syncType, &status, &lastSynced, &st.TotalRecords,
		&st.ErrorMessage, &startedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("syncstate: scan: %w", err)
	}

	st.SyncType = SyncType(syncType)
	st.Status = Status(status)
	if lastSynced != nil {
		st.LastSyncedDate = dateutil.FromTime(*lastSynced)
		st.HasLastSynced = true
	}
	if startedAt != nil {
		st.StartedAt = *startedAt
	}
	if completedAt != nil {
		st.CompletedAt = *completedAt
		st.HasCompletedAt = true
	}
	return &st, nil
}

// MarkInProgress transitions the row to in_progress, clearing error fields
// (spec.md §4.4 step 3).
func (s *Store) MarkInProgress(ctx context.Context, schemeCode string, syncType SyncType) error {
	query := `
		INSERT INTO sync_state (scheme_code, sync_type, status, error_message, started_at)
		VALUES ($1, $2, 'in_progress', '', NOW())
		ON CONFLICT (scheme_code, sync_type) DO UPDATE SET
			status = 'in_progress', error_message = '', started_at = NOW(), completed_at = NULL
	`
	_, err := s.db.Exec(ctx, query, schemeCode, string(syncType))
	if err != nil {
		return fmt.Errorf("syncstate: mark in_progress %s/%s: %w", schemeCode, syncType, err)
	}
	return nil
}

// MarkCompleted transitions the row to completed with the final
// last_synced_date and total_records (spec.md §4.4 step 5).
func (s *Store) MarkCompleted(ctx context.Context, schemeCode string, syncType SyncType, lastSyncedDate dateutil.Date, totalRecords int) error {
	query := `
		UPDATE sync_state SET
			status = 'completed',
			last_synced_date = $3,
			total_records = $4,
			error_message = '',
			completed_at = NOW()
		WHERE scheme_code = $1 AND sync_type = $2
	`
	_, err := s.db.Exec(ctx, query, schemeCode, string(syncType), lastSyncedDate.Time(), totalRecords)
	if err != nil {
		return fmt.Errorf("syncstate: mark completed %s/%s: %w", schemeCode, syncType, err)
	}
	return nil
}

// MarkFailed transitions the row to failed with the error message.
func (s *Store) MarkFailed(ctx context.Context, schemeCode string, syncType SyncType, errMsg string) error {
	query := `
		UPDATE sync_state SET status = 'failed', error_message = $3, completed_at = NOW()
		WHERE scheme_code = $1 AND sync_type = $2
	`
	_, err := s.db.Exec(ctx, query, schemeCode, string(syncType), errMsg)
	if err != nil {
		return fmt.Errorf("syncstate: mark failed %s/%s: %w", schemeCode, syncType, err)
	}
	return nil
}

// ListByStatus returns every row of the given sync type in the given
// status, used to decide which schemes to (re)process on resume.
func (s *Store) ListByStatus(ctx context.Context, syncType SyncType, status Status) ([]State, error) {
	query := `
		SELECT scheme_code, sync_type, status, last_synced_date, total_records,
		       error_message, started_at, completed_at
		FROM sync_state WHERE sync_type = $1 AND status = $2
	`
	rows, err := s.db.Query(ctx, query, string(syncType), string(status))
	if err != nil {
		return nil, fmt.Errorf("syncstate: list by status: %w", err)
	}
	defer rows.Close()

	var out []State
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

// Histogram returns a count of sync-state rows per status, across both
// sync types, for the /sync/status control-plane endpoint.
func (s *Store) Histogram(ctx context.Context) (map[Status]int, error) {
	query := `SELECT status, COUNT(*) FROM sync_state GROUP BY status`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("syncstate: histogram: %w", err)
	}
	defer rows.Close()

	out := make(map[Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("syncstate: scan histogram row: %w", err)
		}
		out[Status(status)] = count
	}
	return out, rows.Err()
}
