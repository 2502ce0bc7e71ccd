// Package syncevents defines the pub/sub event broadcast when a scheme's
// backfill or incremental sync completes, decoupling the backfill and
// incremental orchestrators from the analytics engine the same way the teacher's
// invalidation package decouples cache-manager from its subscribers.
package syncevents

import (
	"time"

	"encore.dev/pubsub"
)

// SyncCompletedEvent announces that a scheme's NAV history changed and its
// analytics should be recomputed.
type SyncCompletedEvent struct {
	SchemeCode string    `json:"scheme_code"`
	SyncType   string    `json:"sync_type"` // "backfill" or "incremental"
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id"`
}

// SyncCompletedTopic is published by the backfill orchestrator after each
// scheme's sync-state transitions to completed (and by the incremental
// orchestrator only when it wrote at least one new point), and consumed by
// the analytics service to trigger recomputation.
var SyncCompletedTopic = pubsub.NewTopic[*SyncCompletedEvent](
	"sync-completed",
	pubsub.TopicConfig{
		DeliveryGuarantee: pubsub.AtLeastOnce,
	},
)
