// Package pipeline filters an opportunity snapshot, summarises the filtered
// set and serialises it for export. Every function is a pure transform.
package pipeline

import (
	"time"

	"arb-explorer/internal/opportunity"
)

// DateRange selects whole calendar days, inclusive at both ends. Day
// boundaries are taken in the location of each endpoint.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Bounds returns the first and last instant covered by the range.
func (r DateRange) Bounds() (time.Time, time.Time) {
	return startOfDay(r.Start), endOfDay(r.End)
}

// Contains reports whether ts falls inside the range.
func (r DateRange) Contains(ts time.Time) bool {
	from, to := r.Bounds()
	return !ts.Before(from) && !ts.After(to)
}

// FilterState is the conjunction of user filters. Zero values mean no constraint.
type FilterState struct {
	Direction opportunity.Direction
	DateRange *DateRange
}

// Active reports whether any constraint is set.
func (s FilterState) Active() bool {
	return s.Direction != opportunity.DirectionNone || s.DateRange != nil
}

// Matches applies the conjunction to a single record.
func (s FilterState) Matches(rec opportunity.Record) bool {
	if s.Direction != opportunity.DirectionNone && rec.Direction != s.Direction {
		return false
	}
	if s.DateRange != nil && !s.DateRange.Contains(rec.Timestamp) {
		return false
	}
	return true
}

// Filter returns the records passing state, in input order. The input is not modified.
func Filter(records []opportunity.Record, state FilterState) []opportunity.Record {
	out := make([]opportunity.Record, 0, len(records))
	for _, rec := range records {
		if state.Matches(rec) {
			out = append(out, rec)
		}
	}
	return out
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}
