package pipeline

import (
	"context"

	"encore.dev/cron"
)

// Encore Cron Jobs always schedule in UTC, so spec.md §6's documented
// default "0 6 * * *" Asia/Kolkata (IST = UTC+5:30) becomes "30 0 * * *"
// here. DefaultConfig().CronSchedule keeps the original IST expression
// visible for operators; cron.JobConfig requires a literal schedule
// string for Encore's static analysis, so it cannot read that value at
// runtime.
var _ = cron.NewJob("scheduled-nav-sync", cron.JobConfig{
	Title:    "Scheduled full NAV sync",
	Schedule: "30 0 * * *",
	Endpoint: TriggerScheduledSync,
})

// TriggerScheduledSync runs a full sync pass, invoked by the cron job
// above. Concurrent triggers (a manual trigger overlapping the schedule)
// are resolved the same way as the HTTP endpoint: the second caller's
// RunFull returns ErrAlreadyRunning and is swallowed here, since a cron
// firing has no caller to report 409 to.
//
//encore:api private method=POST path=/sync/scheduled-trigger
func TriggerScheduledSync(ctx context.Context) error {
	err := svc.orchestrator.RunFull(ctx)
	if err == ErrAlreadyRunning {
		return nil
	}
	return err
}
