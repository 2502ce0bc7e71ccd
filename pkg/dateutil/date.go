// Package dateutil provides an ISO-8601 calendar date type with explicit
// add/subtract-days arithmetic, replacing ad-hoc string math on "YYYY-MM-DD"
// values.
//
// Design Notes:
//   - Date wraps time.Time truncated to UTC midnight so that lexicographic
//     string ordering of Date.String() always matches calendar ordering.
//   - Upstream dates arrive as "DD-MM-YYYY" and must be reparsed with
//     ParseUpstream before use anywhere in the pipeline.
package dateutil

import (
	"fmt"
	"time"
)

const (
	isoLayout      = "2006-01-02"
	upstreamLayout = "02-01-2006"
)

// Date is a calendar day with no time-of-day or timezone component.
type Date struct {
	t time.Time
}

// Parse reads an ISO "YYYY-MM-DD" string into a Date.
func Parse(s string) (Date, error) {
	t, err := time.Parse(isoLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("dateutil: invalid ISO date %q: %w", s, err)
	}
	return Date{t: t}, nil
}

// ParseUpstream reads the upstream API's "DD-MM-YYYY" format into a Date.
func ParseUpstream(s string) (Date, error) {
	t, err := time.Parse(upstreamLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("dateutil: invalid upstream date %q: %w", s, err)
	}
	return Date{t: t}, nil
}

// FromTime truncates a time.Time to its calendar date in UTC.
func FromTime(t time.Time) Date {
	u := t.UTC()
	return Date{t: time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)}
}

// String renders the date as ISO "YYYY-MM-DD".
func (d Date) String() string {
	return d.t.Format(isoLayout)
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d.t.IsZero()
}

// AddDays returns the date n days after d (n may be negative).
func (d Date) AddDays(n int) Date {
	return Date{t: d.t.AddDate(0, 0, n)}
}

// Sub returns the number of days between d and o (d - o).
func (d Date) Sub(o Date) int {
	return int(d.t.Sub(o.t).Hours() / 24)
}

// Before reports whether d occurs strictly before o.
func (d Date) Before(o Date) bool {
	return d.t.Before(o.t)
}

// After reports whether d occurs strictly after o.
func (d Date) After(o Date) bool {
	return d.t.After(o.t)
}

// Equal reports whether d and o represent the same calendar date.
func (d Date) Equal(o Date) bool {
	return d.t.Equal(o.t)
}

// Time returns the UTC midnight time.Time backing this date, for storage
// layers that need a time.Time (e.g. database/sql scan targets).
func (d Date) Time() time.Time {
	return d.t
}
