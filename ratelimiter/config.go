package ratelimiter

import "time"

// BucketConfig describes one named token bucket's capacity and refill rate.
type BucketConfig struct {
	Name       string
	Capacity   int64
	RefillRate int64 // tokens added per Interval
	Interval   time.Duration
}

// Config holds the full three-bucket configuration plus the shared-store
// connection settings. Field names mirror the RATE_LIMIT_PER_{SECOND,
// MINUTE,HOUR}_{CAPACITY,REFILL_RATE,INTERVAL_MS} environment keys from
// spec.md §6. initService uses DefaultConfig() as-is: those
// RATE_LIMIT_* environment keys are not read, and only the Redis
// host, port and password come from os.Getenv (see redisAddr).
type Config struct {
	PerSecond BucketConfig
	PerMinute BucketConfig
	PerHour   BucketConfig

	// KeyPrefix namespaces every bucket key in the shared store, e.g.
	// "ratelimit:mfapi".
	KeyPrefix string

	// BucketTTL is refreshed on every touch (spec.md §3: "TTL 2 hours
	// refreshed on every touch").
	BucketTTL time.Duration

	// WaitDeadline bounds WaitForToken's total sleep budget.
	WaitDeadline time.Duration

	// Jitter is added to each retry sleep in WaitForToken to avoid
	// thundering-herd retries across workers.
	Jitter time.Duration
}

// DefaultConfig returns the capacities and refill rates named in spec.md
// §4.1: 2/sec, 50/min, 300/hr.
func DefaultConfig() Config {
	return Config{
		PerSecond:    BucketConfig{Name: "per_second", Capacity: 2, RefillRate: 2, Interval: time.Second},
		PerMinute:    BucketConfig{Name: "per_minute", Capacity: 50, RefillRate: 50, Interval: time.Minute},
		PerHour:      BucketConfig{Name: "per_hour", Capacity: 300, RefillRate: 300, Interval: time.Hour},
		KeyPrefix:    "ratelimit:mfapi",
		BucketTTL:    2 * time.Hour,
		WaitDeadline: 300 * time.Second,
		Jitter:       50 * time.Millisecond,
	}
}

// buckets returns the three bucket configs in most-restrictive-first order,
// per spec.md §4.1's optional amortization hint.
func (c Config) buckets() []BucketConfig {
	return []BucketConfig{c.PerSecond, c.PerMinute, c.PerHour}
}
