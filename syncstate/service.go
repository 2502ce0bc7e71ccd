package syncstate

import (
	"fmt"

	"encore.dev/storage/sqldb"
)

//encore:service
type Service struct {
	store Interface
}

var syncDB = sqldb.Named("syncstate_db")

var svc *Service

func initService() (*Service, error) {
	store, err := NewStore(syncDB)
	if err != nil {
		return nil, fmt.Errorf("syncstate: init store: %w", err)
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

// Get returns the package-level store for in-process Go calls from the
// orchestrator services.
func Get() Interface {
	return svc.store
}
