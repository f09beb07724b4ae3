package ranking

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arb-explorer/internal/opportunity"
)

var base = time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

func rec(offset time.Duration, profit float64, block int64) opportunity.Record {
	b := block
	return opportunity.Record{
		Timestamp:   base.Add(offset),
		BlockNumber: &b,
		Direction:   opportunity.BuyLeftSellRight,
		PriceLeft:   4300,
		PriceRight:  4290,
		NetProfit:   profit,
		RoiPct:      profit / 100,
	}
}

func TestRankKeepsFirstOfTiedMaximum(t *testing.T) {
	in := []opportunity.Record{
		rec(0, 5, 1),
		rec(0, 12, 2),
		rec(0, 12, 3),
	}

	r := Rank(in)
	require.Equal(t, 1, r.Len())
	top := r.Top(0)
	require.Len(t, top, 1)
	assert.Equal(t, 12.0, top[0].NetProfit)
	assert.Equal(t, int64(2), *top[0].BlockNumber)
}

func TestRankEmpty(t *testing.T) {
	r := Rank(nil)
	assert.Zero(t, r.Len())
	assert.Empty(t, r.Top(5))
	assert.Empty(t, r.All())
}

func TestRankSortsDescendingAcrossGroups(t *testing.T) {
	in := []opportunity.Record{
		rec(time.Minute, 3, 1),
		rec(2*time.Minute, 30, 2),
		rec(time.Minute, 8, 3),
		rec(3*time.Minute, 15, 4),
	}
	all := Rank(in).All()
	require.Len(t, all, 3)
	assert.Equal(t, []float64{30, 15, 8}, profits(all))
}

func TestTopDoesNotTruncateFullSet(t *testing.T) {
	in := make([]opportunity.Record, 0, 30)
	for i := 0; i < 30; i++ {
		in = append(in, rec(time.Duration(i)*time.Second, float64(i), int64(i)))
	}
	r := Rank(in)

	top := r.Top(DefaultTopN)
	assert.Len(t, top, 20)
	assert.Equal(t, 29.0, top[0].NetProfit)

	top[0].NetProfit = -1
	assert.Len(t, r.All(), 30)
	assert.Equal(t, 29.0, r.All()[0].NetProfit)
	assert.Len(t, r.Top(100), 30)
}

func TestRankSkipsInvalidRecords(t *testing.T) {
	bad := rec(time.Second, math.NaN(), 9)
	r := Rank([]opportunity.Record{rec(0, 1, 1), bad})
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, 1, r.Excluded())
}

func TestRankProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	in := make([]opportunity.Record, 0, 500)
	for i := 0; i < 500; i++ {
		in = append(in, rec(time.Duration(rng.Intn(60))*time.Second, float64(rng.Intn(40)), int64(i)))
	}

	out := Rank(in).All()

	best := map[time.Time]opportunity.Record{}
	for _, r := range in {
		cur, ok := best[r.Timestamp]
		if !ok || r.NetProfit > cur.NetProfit {
			best[r.Timestamp] = r
		}
	}
	require.Len(t, out, len(best))

	seen := map[time.Time]bool{}
	for i, r := range out {
		assert.False(t, seen[r.Timestamp], "duplicate timestamp %s", r.Timestamp)
		seen[r.Timestamp] = true
		assert.Equal(t, *best[r.Timestamp].BlockNumber, *r.BlockNumber)
		if i > 0 {
			assert.GreaterOrEqual(t, out[i-1].NetProfit, r.NetProfit)
		}
	}

	again := Rank(in).All()
	assert.Equal(t, out, again)
}

func TestPosition(t *testing.T) {
	r := Rank([]opportunity.Record{rec(0, 1, 1), rec(time.Second, 9, 2)})
	assert.Equal(t, 0, r.Position(base.Add(time.Second)))
	assert.Equal(t, 1, r.Position(base))
	assert.Equal(t, -1, r.Position(base.Add(time.Hour)))
}

func profits(records []opportunity.Record) []float64 {
	out := make([]float64, 0, len(records))
	for _, r := range records {
		out = append(out, r.NetProfit)
	}
	return out
}
