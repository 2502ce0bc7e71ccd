// Package ratelimiter implements the distributed, multi-bucket token-bucket
// rate limiter shared across pipeline workers (spec.md §4.1).
//
// Design Philosophy:
//   - Three independent named buckets (per_second, per_minute, per_hour),
//     each an atomic Redis Lua script execution, enforce the upstream API's
//     layered quota.
//   - Fail-open on store errors preserves pipeline liveness over strict
//     admission control; every fail-open is logged via rlog.Error and
//     flagged as FailedOpen on its BucketResult so it's observable.
//   - No distributed locking beyond the script's own atomicity: each bucket
//     check is independently atomic, and the three-bucket sequence accepts
//     the documented partial-consumption hazard rather than paying for a
//     cross-bucket transaction.
//
// Grounded on omd02-GoRateLimiter/pkg/static_limiter/limiter.go (the
// pipelined get/refill/write token bucket shape) and the Redis-Lua atomic
// variant from the retrieval pack's fairyhunter13-ai-cv-evaluator rate
// limiter, which already solves the NOSCRIPT-reload requirement via
// redis.Script.Run's transparent EVALSHA/EVAL fallback.
package ratelimiter

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"encore.dev/rlog"
	"github.com/go-redis/redis/v8"
)

// scripter is the narrow subset of *redis.Client used here, extracted so
// unit tests can substitute an in-memory fake without a real Redis server.
type scripter interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	EvalSha(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd
	ScriptExists(ctx context.Context, hashes ...string) *redis.BoolSliceCmd
	ScriptLoad(ctx context.Context, script string) *redis.StringCmd
}

// Limiter enforces the three-bucket admission policy against a shared
// key-value store.
type Limiter struct {
	client scripter
	config Config
}

// New constructs a Limiter bound to the given Redis client and config.
func New(client *redis.Client, config Config) *Limiter {
	return &Limiter{client: client, config: config}
}

// newWithScripter is used by tests to inject a fake scripter.
func newWithScripter(client scripter, config Config) *Limiter {
	return &Limiter{client: client, config: config}
}

// BucketResult is the outcome of one bucket's consume attempt.
type BucketResult struct {
	Bucket     string
	Allowed    bool
	TokensLeft float64
	WaitMS     int64
	FailedOpen bool
}

// AcquireResult is the combined outcome across all three buckets.
type AcquireResult struct {
	Allowed   bool
	WaitMS    int64
	PerBucket []BucketResult
}

// Acquire attempts to consume one token from each of the three buckets.
// allowed is true only when every bucket yields a token; wait_ms is the
// maximum per-bucket wait among buckets that denied. Buckets are checked
// most-restrictive-first (spec.md §4.1); all three are always evaluated
// (no short-circuit) so a correct max-wait can be reported, accepting the
// documented partial-consumption hazard.
func (l *Limiter) Acquire(ctx context.Context) (AcquireResult, error) {
	result := AcquireResult{Allowed: true}

	for _, bc := range l.config.buckets() {
		br, err := l.acquireBucket(ctx, bc)
		if err != nil {
			return AcquireResult{}, err
		}
		result.PerBucket = append(result.PerBucket, br)
		if !br.Allowed {
			result.Allowed = false
		}
		if br.WaitMS > result.WaitMS {
			result.WaitMS = br.WaitMS
		}
	}

	return result, nil
}

// acquireBucket runs the atomic script for a single bucket, failing open on
// store errors.
func (l *Limiter) acquireBucket(ctx context.Context, bc BucketConfig) (BucketResult, error) {
	key := l.bucketKey(bc.Name)
	nowMS := time.Now().UnixMilli()

	res, err := bucketScript.Run(ctx, l.client,
		[]string{key},
		bc.Capacity, bc.RefillRate, bc.Interval.Milliseconds(), nowMS, l.config.BucketTTL.Milliseconds(),
	).Result()

	if err != nil {
		rlog.Error("ratelimiter: store unreachable, failing open", "bucket", bc.Name, "error", err)
		return BucketResult{Bucket: bc.Name, Allowed: true, FailedOpen: true}, nil
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 3 {
		return BucketResult{}, fmt.Errorf("ratelimiter: unexpected script result for bucket %s: %v", bc.Name, res)
	}

	allowed := toInt64(vals[0]) == 1
	tokens := toFloat64(vals[1])
	waitMS := toInt64(vals[2])

	return BucketResult{
		Bucket:     bc.Name,
		Allowed:    allowed,
		TokensLeft: tokens,
		WaitMS:     waitMS,
	}, nil
}

// WaitForToken loops Acquire with sleeps equal to the returned wait plus
// jitter until it succeeds or the deadline (default 300s) expires.
func (l *Limiter) WaitForToken(ctx context.Context) error {
	deadline := time.Now().Add(l.config.WaitDeadline)

	for {
		result, err := l.Acquire(ctx)
		if err != nil {
			return err
		}
		if result.Allowed {
			return nil
		}

		wait := time.Duration(result.WaitMS) * time.Millisecond
		jitter := time.Duration(rand.Int63n(int64(l.config.Jitter) + 1))
		sleep := wait + jitter

		if time.Now().Add(sleep).After(deadline) {
			return fmt.Errorf("ratelimiter: wait_for_token deadline exceeded after %s", l.config.WaitDeadline)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// BucketStatus is a non-consuming peek at one bucket's state.
type BucketStatus struct {
	Bucket     string  `json:"bucket"`
	Tokens     float64 `json:"tokens"`
	LastRefill int64   `json:"last_refill_ms"`
}

// Status returns per-bucket {tokens, last_refill} without consuming, for
// the health/status endpoint.
func (l *Limiter) Status(ctx context.Context) ([]BucketStatus, error) {
	out := make([]BucketStatus, 0, 3)

	for _, bc := range l.config.buckets() {
		res, err := statusScript.Run(ctx, l.client, []string{l.bucketKey(bc.Name)}, bc.Capacity).Result()
		if err != nil {
			rlog.Error("ratelimiter: status peek failed", "bucket", bc.Name, "error", err)
			out = append(out, BucketStatus{Bucket: bc.Name, Tokens: float64(bc.Capacity)})
			continue
		}

		vals, ok := res.([]interface{})
		if !ok || len(vals) != 2 {
			continue
		}

		out = append(out, BucketStatus{
			Bucket:     bc.Name,
			Tokens:     toFloat64(vals[0]),
			LastRefill: toInt64(vals[1]),
		})
	}

	return out, nil
}

func (l *Limiter) bucketKey(name string) string {
	return l.config.KeyPrefix + ":" + name
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	default:
		return 0
	}
}

func toFloat64(v interface{}) float64 {
	switch t := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	case int64:
		return float64(t)
	default:
		return 0
	}
}
