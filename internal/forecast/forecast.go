// Package forecast produces the naive per-timeslot open-count estimate.
// The blend below is a single fixed-lookback smoothing, documented as
// such; a proper time-series model is out of scope.
package forecast

import (
	"math"
	"sort"
	"time"

	"lotwatch/internal/domain"
)

// Result holds the blended estimate and interquartile range for one
// (weekday, slot) pair. All fields are nil when no matching history exists.
type Result struct {
	Expected *int     `json:"expected"`
	P25      *float64 `json:"p25"`
	P75      *float64 `json:"p75"`
}

// Estimate filters history to observations matching exactly (weekday,
// slot) — slot is an exact string match, never a range — and returns:
//
//	p25/p75:  linear-interpolation quantiles over the open counts
//	expected: round(0.6*latest + 0.4*median), where latest is the open
//	          count of the most recent matching observation; either term
//	          falls back to the other when unavailable
func Estimate(history []domain.SlotObservation, weekday time.Weekday, slot string) Result {
	var values []float64
	var latest *domain.SlotObservation
	for i := range history {
		obs := &history[i]
		if obs.Weekday != weekday || obs.Slot != slot {
			continue
		}
		values = append(values, float64(obs.OpenCount))
		if latest == nil || obs.ObservedAt.After(latest.ObservedAt) {
			latest = obs
		}
	}
	if len(values) == 0 {
		return Result{}
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	p25 := quantile(sorted, 0.25)
	p75 := quantile(sorted, 0.75)
	median := quantile(sorted, 0.5)

	var expected float64
	switch {
	case latest != nil:
		expected = 0.6*float64(latest.OpenCount) + 0.4*median
	default:
		expected = median
	}
	rounded := int(math.Round(expected))

	return Result{Expected: &rounded, P25: &p25, P75: &p75}
}

// quantile computes the interpolated-rank quantile over a sorted slice.
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
