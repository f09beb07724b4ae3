// Package ranking collapses same-timestamp opportunities to their most
// profitable representative and orders the survivors by net profit.
package ranking

import (
	"slices"
	"time"

	"arb-explorer/internal/opportunity"
)

// DefaultTopN is the size of the bounded table view.
const DefaultTopN = 20

// Ranking is the deduplicated, profit-ordered view of one input sequence.
// It is immutable once built.
type Ranking struct {
	rows     []opportunity.Record
	excluded int
}

// Rank groups records by exact timestamp, keeps the record with the highest
// NetProfit in each group and sorts the result by NetProfit descending.
//
// A later record replaces the kept one only when strictly more profitable, so
// among ties the first record in input order survives. Invalid records are
// skipped and counted in Excluded.
func Rank(records []opportunity.Record) Ranking {
	index := make(map[time.Time]int, len(records))
	rows := make([]opportunity.Record, 0, len(records))
	excluded := 0

	for _, rec := range records {
		if !rec.Valid() {
			excluded++
			continue
		}
		key := rec.Timestamp.UTC()
		pos, seen := index[key]
		if !seen {
			index[key] = len(rows)
			rows = append(rows, rec)
			continue
		}
		if rec.NetProfit > rows[pos].NetProfit {
			rows[pos] = rec
		}
	}

	// rows holds groups in first-seen order; a stable sort keeps that order
	// between groups of equal profit.
	slices.SortStableFunc(rows, func(a, b opportunity.Record) int {
		switch {
		case a.NetProfit > b.NetProfit:
			return -1
		case a.NetProfit < b.NetProfit:
			return 1
		default:
			return 0
		}
	})

	return Ranking{rows: rows, excluded: excluded}
}

// Len is the number of distinct timestamps.
func (r Ranking) Len() int {
	return len(r.rows)
}

// Excluded is the number of malformed input records that were skipped.
func (r Ranking) Excluded() int {
	return r.excluded
}

// Top returns at most n leading rows. n <= 0 falls back to DefaultTopN.
// The returned slice is a copy.
func (r Ranking) Top(n int) []opportunity.Record {
	if n <= 0 {
		n = DefaultTopN
	}
	if n > len(r.rows) {
		n = len(r.rows)
	}
	return slices.Clone(r.rows[:n])
}

// All returns a copy of the full deduplicated sequence.
func (r Ranking) All() []opportunity.Record {
	return slices.Clone(r.rows)
}

// Position returns the zero-based rank of the row at ts, or -1.
func (r Ranking) Position(ts time.Time) int {
	for i, rec := range r.rows {
		if rec.Timestamp.Equal(ts) {
			return i
		}
	}
	return -1
}
