package analytics

import (
	"context"
	"errors"
	"fmt"

	"encore.dev/pubsub"
	"encore.dev/rlog"
	"encore.dev/storage/sqldb"

	"encore.app/navstore"
	"encore.app/pkg/syncevents"
)

//encore:service
type Service struct {
	store    *Store
	navStore navstore.Interface
}

var analyticsDB = sqldb.Named("analytics_db")

var svc *Service

func initService() (*Service, error) {
	store, err := NewStore(analyticsDB)
	if err != nil {
		return nil, fmt.Errorf("analytics: init store: %w", err)
	}
	return &Service{store: store, navStore: navstore.Get()}, nil
}

func init() {
	var err error
	svc, err = initService()
	if err != nil {
		panic(err)
	}
}

// Subscribe to sync-completed events published by the backfill and
// incremental orchestrators, recomputing analytics for the affected scheme. Grounded on
// cache-manager/subscriptions.go's pubsub.NewSubscription pattern.
var _ = pubsub.NewSubscription(
	syncevents.SyncCompletedTopic,
	"analytics-recompute",
	pubsub.SubscriptionConfig[*syncevents.SyncCompletedEvent]{
		Handler: handleSyncCompleted,
	},
)

func handleSyncCompleted(ctx context.Context, event *syncevents.SyncCompletedEvent) error {
	if svc == nil {
		return nil
	}
	if err := svc.Recompute(ctx, event.SchemeCode); err != nil {
		rlog.Error("analytics: recompute failed", "scheme_code", event.SchemeCode, "error", err)
		return err
	}
	return nil
}

// Recompute reads a scheme's full NAV history and replaces its analytics
// rows, per spec.md §3 "Fully recomputed after each ingestion".
func (s *Service) Recompute(ctx context.Context, schemeCode string) error {
	history, err := s.navStore.History(ctx, schemeCode)
	if err != nil {
		return fmt.Errorf("analytics: load history for %s: %w", schemeCode, err)
	}

	results := Compute(history)
	if err := s.store.Replace(ctx, schemeCode, results); err != nil {
		return fmt.Errorf("analytics: persist results for %s: %w", schemeCode, err)
	}
	return nil
}

// GetRequest/GetResponse back the /funds/:code/analytics read endpoint.
type GetRequest struct {
	SchemeCode string
	Window     string
}

// Get returns the analytics row for one scheme/window, ErrNotFound if
// absent.
func Get(ctx context.Context, req GetRequest) (*Row, error) {
	if svc == nil {
		return nil, errors.New("analytics: service not initialized")
	}
	return svc.store.Get(ctx, req.SchemeCode, req.Window)
}

// Rank returns every scheme's row for a window, for the /funds/rank
// endpoint to sort and paginate.
func Rank(ctx context.Context, window string) ([]Row, error) {
	if svc == nil {
		return nil, errors.New("analytics: service not initialized")
	}
	return svc.store.ListByWindow(ctx, window)
}
