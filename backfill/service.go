package backfill

import (
	"context"
	"errors"

	"encore.app/navstore"
	"encore.app/pkg/catalog"
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

// Run executes the backfill pass for the given discovered schemes. Called
// by the pipeline orchestrator's full-sync flow.
func Run(ctx context.Context, schemes []catalog.Descriptor, onSchemeDone func(context.Context, string)) error {
	if svc == nil {
		return errors.New("backfill: service not initialized")
	}
	svc.orchestrator.OnSchemeDone(onSchemeDone)
	return svc.orchestrator.Run(ctx, schemes)
}
