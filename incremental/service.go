package incremental

import (
	"context"
	"errors"

	"encore.app/navstore"
	"encore.app/syncstate"
	"encore.app/upstream"
)

//encore:service
type Service struct {
	orchestrator *Orchestrator
}

var svc *Service

func initService() (*Service, error) {
	return &Service{
		orchestrator: New(upstream.Get(), navstore.Get(), syncstate.Get()),
	}, nil
}

func init() {
	var err error
	svc, err = initService()
	if err != nil {
		panic(err)
	}
}

// Run executes the incremental pass over every scheme with a completed
// backfill. Called by the pipeline orchestrator's delta-sync flow.
func Run(ctx context.Context, onSchemeDone func(context.Context, string)) error {
	if svc == nil {
		return errors.New("incremental: service not initialized")
	}
	svc.orchestrator.OnSchemeDone(onSchemeDone)
	return svc.orchestrator.Run(ctx)
}
