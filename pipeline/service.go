package pipeline

import (
	"context"
	"fmt"

	"encore.dev/beta/errs"
	"encore.dev/rlog"

	"encore.app/backfill"
	"encore.app/discovery"
	"encore.app/incremental"
	"encore.app/pipelinestatus"
	"encore.app/ratelimiter"
	"encore.app/syncstate"
)

//encore:service
type Service struct {
	orchestrator *Orchestrator
}

var svc *Service

func initService() (*Service, error) {
	orchestrator := New(
		pipelinestatus.Get(),
		syncstate.Get(),
		discovery.Discover,
		backfill.Run,
		incremental.Run,
	)
	return &Service{orchestrator: orchestrator}, nil
}

func init() {
	var err error
	svc, err = initService()
	if err != nil {
		panic(err)
	}
}

// TriggerRequest is the query payload of POST /sync/trigger.
type TriggerRequest struct {
	Mode string `query:"mode"` // "full" or "incremental"
}

// TriggerResponse acknowledges an accepted trigger.
type TriggerResponse struct {
	Accepted bool   `json:"accepted"`
	Mode     string `json:"mode"`
}

// TriggerSync starts a full or incremental sync run asynchronously,
// returning 202 immediately, 409 if a run is already in progress, and 400
// on an unrecognized mode (spec.md §6/§7).
//
//encore:api public method=POST path=/sync/trigger
func TriggerSync(ctx context.Context, req *TriggerRequest) (*TriggerResponse, error) {
	var run func(context.Context) error
	switch req.Mode {
	case "full":
		run = svc.orchestrator.RunFull
	case "incremental":
		run = svc.orchestrator.RunIncremental
	default:
		return nil, &errs.Error{Code: errs.InvalidArgument, Message: `mode must be "full" or "incremental"`}
	}

	// A synchronous TryLock probe up front lets a concurrent trigger get
	// an immediate 409 instead of a false 202 followed by a silent no-op
	// in the background goroutine.
	if !svc.orchestrator.mu.TryLock() {
		return nil, &errs.Error{Code: errs.AlreadyExists, Message: ErrAlreadyRunning.Error()}
	}
	svc.orchestrator.mu.Unlock()

	go func() {
		if err := run(context.Background()); err != nil && err != ErrAlreadyRunning {
			rlog.Error("pipeline: run failed", "mode", req.Mode, "error", err)
		}
	}()

	return &TriggerResponse{Accepted: true, Mode: req.Mode}, nil
}

// StatusResponse is the body of GET /sync/status: the pipeline row, the
// sync-state histogram, and a limiter bucket peek (spec.md §6).
type StatusResponse struct {
	Pipeline       *pipelinestatus.Status     `json:"pipeline"`
	SyncHistogram  map[syncstate.Status]int   `json:"sync_histogram"`
	LimiterBuckets []ratelimiter.BucketStatus `json:"limiter_buckets"`
}

// GetStatus reports the current pipeline row, sync-state histogram, and
// limiter bucket peek.
//
//encore:api public method=GET path=/sync/status
func GetStatus(ctx context.Context) (*StatusResponse, error) {
	status, err := pipelinestatus.Get().Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline: get status: %w", err)
	}
	histogram, err := syncstate.Get().Histogram(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline: get histogram: %w", err)
	}
	limiterStatus, err := ratelimiter.GetStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline: get limiter status: %w", err)
	}

	return &StatusResponse{Pipeline: status, SyncHistogram: histogram, LimiterBuckets: limiterStatus.Buckets}, nil
}
