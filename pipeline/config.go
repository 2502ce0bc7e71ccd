package pipeline

// Config documents the environment-driven scheduling knob named in
// spec.md §6 (SYNC_CRON_SCHEDULE, default "0 6 * * *" Asia/Kolkata).
// Encore's cron.JobConfig requires a literal schedule string for its
// static analysis, so the actual trigger in cron.go is hardcoded to the
// UTC-converted equivalent; this struct exists to keep the documented
// key set visible next to ratelimiter.Config and upstream.Config, and to
// back an alternate external scheduler if Encore Cron is swapped out.
type Config struct {
	CronSchedule string
}

// DefaultConfig returns spec.md §6's documented default, in its original
// Asia/Kolkata cron expression.
func DefaultConfig() Config {
	return Config{CronSchedule: "0 6 * * *"}
}

// Progress-percent boundaries for phase interpolation, per spec.md §4.7's
// worked example (backfill 10-70%, analytics 70-100% for a full run).
const (
	fullBackfillStart     = 10.0
	fullAnalyticsStart    = 70.0
	deltaIncrementalStart = 0.0
	deltaAnalyticsStart   = 70.0
)
