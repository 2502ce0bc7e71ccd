package navstore

import (
	"context"
	"fmt"

	"encore.dev/storage/sqldb"
)

//encore:service
type Service struct {
	store Interface
}

var navDB = sqldb.Named("navstore_db")

var svc *Service

func initService() (*Service, error) {
	store, err := NewStore(navDB)
	if err != nil {
		return nil, fmt.Errorf("navstore: init store: %w", err)
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

// Get returns the package-level store for in-process Go calls from other
// services (backfill, incremental, analytics, readapi), the Encore
// convention also used by ratelimiter.WaitForToken.
func Get() Interface {
	return svc.store
}
