// Package pipelinestatus tracks the single process-wide pipeline-status row
// (spec.md §3 "id = 1") that the control plane reads and the orchestrator
// updates across phase transitions.
package pipelinestatus

import (
	"context"
	"fmt"
	"time"

	"encore.dev/storage/sqldb"
)

// Phase names the pipeline's current stage.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseDiscovery   Phase = "discovery"
	PhaseBackfill    Phase = "backfill"
	PhaseIncremental Phase = "incremental"
	PhaseAnalytics   Phase = "analytics"
)

// RunStatus is the overall pipeline status.
type RunStatus string

const (
	StatusIdle    RunStatus = "idle"
	StatusRunning RunStatus = "running"
	StatusFailed  RunStatus = "failed"
)

// Status is the singleton pipeline-status row.
type Status struct {
	RunStatus        RunStatus
	CurrentPhase     Phase
	ProgressPercent  float64
	TotalSchemes     int
	CompletedSchemes int
	FailedSchemes    int
	StartedAt        time.Time
	HasStartedAt     bool
	CompletedAt      time.Time
	HasCompletedAt   bool
	LastError        string
}

// Interface is the narrow surface the pipeline orchestrator and the
// /sync/status control-plane endpoint depend on.
type Interface interface {
	Get(ctx context.Context) (*Status, error)
	StartRun(ctx context.Context, totalSchemes int) error
	SetPhase(ctx context.Context, phase Phase, progressPercent float64) error
	IncCompleted(ctx context.Context) error
	IncFailed(ctx context.Context) error
	Finish(ctx context.Context) error
	Fail(ctx context.Context, errMsg string) error
	ResetInterruptedRun(ctx context.Context) (bool, error)
}

// Store is the Postgres-backed implementation, a single row keyed on id=1.
type Store struct {
	db *sqldb.Database
}

// NewStore constructs a Store, ensures its schema exists, and seeds the
// singleton row if absent.
func NewStore(db *sqldb.Database) (*Store, error) {
	s := &Store{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("pipelinestatus: initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS pipeline_status (
			id INT PRIMARY KEY,
			status TEXT NOT NULL DEFAULT 'idle',
			current_phase TEXT NOT NULL DEFAULT 'idle',
			progress_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
			total_schemes INT NOT NULL DEFAULT 0,
			completed_schemes INT NOT NULL DEFAULT 0,
			failed_schemes INT NOT NULL DEFAULT 0,
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			last_error TEXT NOT NULL DEFAULT ''
		);

		INSERT INTO pipeline_status (id, status, current_phase)
		VALUES (1, 'idle', 'idle')
		ON CONFLICT (id) DO NOTHING;
	`
	_, err := s.db.Exec(ctx, query)
	return err
}

// Get returns the current singleton row.
func (s *Store) Get(ctx context.Context) (*Status, error) {
	query := `
		SELECT status, current_phase, progress_percent, total_schemes,
		       completed_schemes, failed_schemes, started_at, completed_at, last_error
		FROM pipeline_status WHERE id = 1
	`
	var st Status
	var runStatus, phase string
	var startedAt, completedAt *time.Time

	err := s.db.QueryRow(ctx, query).Scan(&runStatus, &phase, &st.ProgressPercent, &st.TotalSchemes,
		&st.CompletedSchemes, &st.FailedSchemes, &startedAt, &completedAt, &st.LastError)
	if err != nil {
		return nil, fmt.Errorf("pipelinestatus: get: %w", err)
	}

	st.RunStatus = RunStatus(runStatus)
	st.CurrentPhase = Phase(phase)
	if startedAt != nil {
		st.StartedAt = *startedAt
		st.HasStartedAt = true
	}
	if completedAt != nil {
		st.CompletedAt = *completedAt
		st.HasCompletedAt = true
	}
	return &st, nil
}

// StartRun resets the row to running/discovery/0% for a fresh pipeline run.
func (s *Store) StartRun(ctx context.Context, totalSchemes int) error {
	query := `
		UPDATE pipeline_status SET
			status = 'running', current_phase = 'discovery', progress_percent = 0,
			total_schemes = $1, completed_schemes = 0, failed_schemes = 0,
			started_at = NOW(), completed_at = NULL, last_error = ''
		WHERE id = 1
	`
	_, err := s.db.Exec(ctx, query, totalSchemes)
	if err != nil {
		return fmt.Errorf("pipelinestatus: start run: %w", err)
	}
	return nil
}

// SetPhase updates the current phase and progress percent, per the linear
// interpolation scheme in spec.md §4.7.
func (s *Store) SetPhase(ctx context.Context, phase Phase, progressPercent float64) error {
	query := `UPDATE pipeline_status SET current_phase = $1, progress_percent = $2 WHERE id = 1`
	_, err := s.db.Exec(ctx, query, string(phase), progressPercent)
	if err != nil {
		return fmt.Errorf("pipelinestatus: set phase: %w", err)
	}
	return nil
}

// IncCompleted increments the completed-schemes counter.
func (s *Store) IncCompleted(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `UPDATE pipeline_status SET completed_schemes = completed_schemes + 1 WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("pipelinestatus: inc completed: %w", err)
	}
	return nil
}

// IncFailed increments the failed-schemes counter.
func (s *Store) IncFailed(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `UPDATE pipeline_status SET failed_schemes = failed_schemes + 1 WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("pipelinestatus: inc failed: %w", err)
	}
	return nil
}

// Finish marks the run idle at 100% on success.
func (s *Store) Finish(ctx context.Context) error {
	query := `
		UPDATE pipeline_status SET
			status = 'idle', current_phase = 'idle', progress_percent = 100, completed_at = NOW()
		WHERE id = 1
	`
	_, err := s.db.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("pipelinestatus: finish: %w", err)
	}
	return nil
}

// Fail marks the run failed with the error string preserved.
func (s *Store) Fail(ctx context.Context, errMsg string) error {
	query := `
		UPDATE pipeline_status SET status = 'failed', completed_at = NOW(), last_error = $1
		WHERE id = 1
	`
	_, err := s.db.Exec(ctx, query, errMsg)
	if err != nil {
		return fmt.Errorf("pipelinestatus: fail: %w", err)
	}
	return nil
}

// ResetInterruptedRun detects a row left at status=running by a killed
// process (spec.md §5 "Cancellation") and resets it to idle. Returns true
// if a reset occurred.
func (s *Store) ResetInterruptedRun(ctx context.Context) (bool, error) {
	query := `
		UPDATE pipeline_status SET
			status = 'idle', current_phase = 'idle',
			last_error = 'reset after interrupted run'
		WHERE id = 1 AND status = 'running'
	`
	tag, err := s.db.Exec(ctx, query)
	if err != nil {
		return false, fmt.Errorf("pipelinestatus: reset interrupted run: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
