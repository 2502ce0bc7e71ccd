package pipelinestatus

import (
	"context"
	"sync"
	"time"
)

// MemStore is an in-memory Interface implementation, exported so other
// packages' tests (pipeline's orchestrator tests in particular) can
// exercise pipeline-status transitions without a Postgres instance.
type MemStore struct {
	mu  sync.Mutex
	row Status
}

// NewMemStore returns a MemStore seeded at idle, matching the schema's
// default row.
func NewMemStore() *MemStore {
	return &MemStore{row: Status{RunStatus: StatusIdle, CurrentPhase: PhaseIdle}}
}

func (m *MemStore) Get(ctx context.Context) (*Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := m.row
	return &cp, nil
}

func (m *MemStore) StartRun(ctx context.Context, totalSchemes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.row = Status{
		RunStatus:       StatusRunning,
		CurrentPhase:    PhaseDiscovery,
		TotalSchemes:    totalSchemes,
		StartedAt:       time.Now(),
		HasStartedAt:    true,
		ProgressPercent: 0,
	}
	return nil
}

func (m *MemStore) SetPhase(ctx context.Context, phase Phase, progressPercent float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.row.CurrentPhase = phase
	m.row.ProgressPercent = progressPercent
	return nil
}

func (m *MemStore) IncCompleted(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.row.CompletedSchemes++
	return nil
}

func (m *MemStore) IncFailed(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.row.FailedSchemes++
	return nil
}

func (m *MemStore) Finish(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.row.RunStatus = StatusIdle
	m.row.CurrentPhase = PhaseIdle
	m.row.ProgressPercent = 100
	m.row.CompletedAt = time.Now()
	m.row.HasCompletedAt = true
	return nil
}

func (m *MemStore) Fail(ctx context.Context, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.row.RunStatus = StatusFailed
	m.row.LastError = errMsg
	m.row.CompletedAt = time.Now()
	m.row.HasCompletedAt = true
	return nil
}

func (m *MemStore) ResetInterruptedRun(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.row.RunStatus != StatusRunning {
		return false, nil
	}
	m.row.RunStatus = StatusIdle
	m.row.CurrentPhase = PhaseIdle
	m.row.LastError = "reset after interrupted run"
	return true, nil
}

var _ Interface = (*MemStore)(nil)
