// Package analytics computes rolling returns, rolling CAGR, and max
// drawdown for a scheme's NAV history over fixed windows (spec.md §4.6).
//
// Design Notes:
//   - Pure functions operate on navstore.NAVPoint slices so the algorithm
//     is independently testable from storage, the same separation
//     pkg/stats already establishes for percentile/drawdown primitives.
//   - Determinism: returns and CAGRs are computed independently per index,
//     then sorted by pkg/stats.Percentile, so identical inputs always
//     produce identical outputs.
package analytics

import (
	"math"

	"encore.app/navstore"
	"encore.app/pkg/stats"
)

// Window is one of the four fixed analysis windows.
type Window struct {
	Name  string
	Days  int
	Years int
}

// Windows is the closed enumeration of supported windows.
var Windows = []Window{
	{Name: "1Y", Days: 365, Years: 1},
	{Name: "3Y", Days: 365 * 3, Years: 3},
	{Name: "5Y", Days: 365 * 5, Years: 5},
	{Name: "10Y", Days: 365 * 10, Years: 10},
}

// gapProbeDays is the number of additional days probed forward when a NAV
// is absent on the exact target date (spec.md §4.6 "Gap tolerance").
const gapProbeDays = 5

// sufficiencyRatio is the minimum fraction of a window's day-count that the
// available history must span for that window to be computed.
const sufficiencyRatio = 0.9

// Result is one scheme's analytics row for a single window.
type Result struct {
	Window        string
	ReturnMin     float64
	ReturnMax     float64
	ReturnMedian  float64
	ReturnP25     float64
	ReturnP75     float64
	MaxDrawdown   float64
	CAGRMin       float64
	CAGRMax       float64
	CAGRMedian    float64
	DataStartDate string
	DataEndDate   string
}

// navIndex supports gap-tolerant lookups over a scheme's NAV history.
type navIndex struct {
	byDate map[string]navstore.NAVPoint
}

func newNavIndex(points []navstore.NAVPoint) navIndex {
	byDate := make(map[string]navstore.NAVPoint, len(points))
	for _, p := range points {
		byDate[p.Date.String()] = p
	}
	return navIndex{byDate: byDate}
}

// lookup probes date, date+1, ..., date+gapProbeDays and returns the first
// present NAV, absorbing weekends and holidays without synthesizing longer
// gaps (spec.md §4.6 "Gap tolerance").
func (idx navIndex) lookup(date navstore.NAVPoint) (navstore.NAVPoint, bool) {
	for offset := 0; offset <= gapProbeDays; offset++ {
		probe := date.Date.AddDays(offset)
		if p, ok := idx.byDate[probe.String()]; ok {
			return p, true
		}
	}
	return navstore.NAVPoint{}, false
}

// Compute returns one Result per window with sufficient history, skipping
// (not erroring on) windows that fail the sufficiency test, per spec.md
// §4.6's "Skip the window" rule.
func Compute(history []navstore.NAVPoint) []Result {
	if len(history) == 0 {
		return nil
	}

	idx := newNavIndex(history)
	first := history[0].Date
	last := history[len(history)-1].Date
	historyDays := last.Sub(first)

	drawdownSeries := make([]float64, len(history))
	for i, p := range history {
		drawdownSeries[i] = p.NAV.Float64()
	}
	maxDrawdown := stats.MaxDrawdown(drawdownSeries)

	var results []Result
	for _, w := range Windows {
		// Strict inequality per spec.md §8's boundary case: history spanning
		// exactly 0.9*W_days is insufficient, not a tie-break toward sufficient.
		if float64(historyDays) <= sufficiencyRatio*float64(w.Days) {
			continue
		}

		returns, cagrs := rollingSamples(idx, history, w)
		if len(returns) == 0 {
			continue
		}

		rMin, rMax, _ := stats.MinMax(returns)
		rMedian, _ := stats.Median(returns)
		rP25, _ := stats.Percentile(returns, 25)
		rP75, _ := stats.Percentile(returns, 75)

		cMin, cMax, _ := stats.MinMax(cagrs)
		cMedian, _ := stats.Median(cagrs)

		results = append(results, Result{
			Window:        w.Name,
			ReturnMin:     rMin,
			ReturnMax:     rMax,
			ReturnMedian:  rMedian,
			ReturnP25:     rP25,
			ReturnP75:     rP75,
			MaxDrawdown:   maxDrawdown,
			CAGRMin:       cMin,
			CAGRMax:       cMax,
			CAGRMedian:    cMedian,
			DataStartDate: first.String(),
			DataEndDate:   last.String(),
		})
	}

	return results
}

// rollingSamples computes the rolling-return and rolling-CAGR samples for
// one window, per spec.md §4.6's indexing rule: for every point i, probe
// date(i) - W_days and emit a sample when that probe resolves.
func rollingSamples(idx navIndex, history []navstore.NAVPoint, w Window) (returns, cagrs []float64) {
	for _, p := range history {
		target := p.Date.AddDays(-w.Days)
		past, ok := idx.lookup(navstore.NAVPoint{Date: target})
		if !ok {
			continue
		}
		navPast := past.NAV.Float64()
		if navPast == 0 {
			continue
		}
		navNow := p.NAV.Float64()

		returns = append(returns, (navNow-navPast)/navPast)

		ratio := navNow / navPast
		if ratio > 0 {
			cagrs = append(cagrs, math.Pow(ratio, 1.0/float64(w.Years))-1)
		}
	}
	return returns, cagrs
}
