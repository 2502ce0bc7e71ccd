package pipelinestatus

import (
	"context"
	"fmt"

	"encore.dev/rlog"
	"encore.dev/storage/sqldb"
)

//encore:service
type Service struct {
	store Interface
}

var statusDB = sqldb.Named("pipelinestatus_db")

var svc *Service

func initService() (*Service, error) {
	store, err := NewStore(statusDB)
	if err != nil {
		return nil, fmt.Errorf("pipelinestatus: init store: %w", err)
	}

	reset, err := store.ResetInterruptedRun(context.Background())
	if err != nil {
		return nil, fmt.Errorf("pipelinestatus: check interrupted run: %w", err)
	}
	if reset {
		rlog.Error("pipelinestatus: previous run was interrupted, reset to idle")
	}

	return &Service{store: store}, nil
}

func init() {
	var err error
	svc, err = initService()
	if err != nil {
		panic(err)
	}
}

// Get returns the package-level store for in-process Go calls.
func Get() Interface {
	return svc.store
}
