package pipeline

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arb-explorer/internal/opportunity"
)

var day = time.Date(2025, 9, 10, 12, 0, 0, 0, time.UTC)

func mixed() []opportunity.Record {
	dirs := []opportunity.Direction{
		opportunity.BuyLeftSellRight, opportunity.BuyRightSellLeft, opportunity.BuyRightSellLeft,
		opportunity.BuyLeftSellRight, opportunity.BuyRightSellLeft, opportunity.BuyRightSellLeft,
		opportunity.BuyLeftSellRight, opportunity.BuyRightSellLeft, opportunity.BuyLeftSellRight,
		opportunity.BuyRightSellLeft,
	}
	out := make([]opportunity.Record, 0, len(dirs))
	for i, d := range dirs {
		out = append(out, opportunity.Record{
			Timestamp:  day.Add(time.Duration(i-5) * 6 * time.Hour),
			Direction:  d,
			PriceLeft:  4300,
			PriceRight: 4280,
			NetProfit:  float64(10 + i),
			RoiPct:     float64(i) / 10,
		})
	}
	return out
}

func TestFilterByDirectionAndAggregate(t *testing.T) {
	state := FilterState{Direction: opportunity.BuyLeftSellRight}
	got := Filter(mixed(), state)
	require.Len(t, got, 4)
	for _, r := range got {
		assert.Equal(t, opportunity.BuyLeftSellRight, r.Direction)
	}

	// indices 0, 3, 6, 8
	stats := Aggregate(got)
	assert.Equal(t, 4, stats.Count)
	assert.InDelta(t, 10.0+13+16+18, stats.TotalProfit, 1e-9)
	assert.InDelta(t, (0.0+0.3+0.6+0.8)/4, stats.AvgROI, 1e-9)
	assert.Equal(t, 18.0, stats.MaxProfit)
}

func TestFilterIsIdempotent(t *testing.T) {
	from := day.AddDate(0, 0, -1)
	states := []FilterState{
		{},
		{Direction: opportunity.BuyRightSellLeft},
		{DateRange: &DateRange{Start: from, End: day}},
		{Direction: opportunity.BuyLeftSellRight, DateRange: &DateRange{Start: day, End: day}},
	}
	for _, s := range states {
		once := Filter(mixed(), s)
		assert.Equal(t, once, Filter(once, s))
	}
}

func TestFilterDateRangeUsesWholeDays(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	start := time.Date(2025, 9, 10, 15, 30, 0, 0, loc)
	r := DateRange{Start: start, End: start}

	from, to := r.Bounds()
	assert.Equal(t, time.Date(2025, 9, 10, 0, 0, 0, 0, loc), from)
	assert.True(t, r.Contains(from))
	assert.True(t, r.Contains(to))
	assert.True(t, r.Contains(time.Date(2025, 9, 10, 15, 59, 59, 999_000_000, time.UTC)))
	assert.False(t, r.Contains(time.Date(2025, 9, 10, 16, 0, 0, 0, time.UTC)))
	assert.False(t, r.Contains(from.Add(-time.Millisecond)))
}

func TestFilterEmptyStatePassesEverything(t *testing.T) {
	in := mixed()
	assert.False(t, FilterState{}.Active())
	assert.Equal(t, in, Filter(in, FilterState{}))
	assert.Empty(t, Filter(nil, FilterState{Direction: opportunity.BuyLeftSellRight}))
}

func TestAggregateEmpty(t *testing.T) {
	assert.Equal(t, opportunity.Summary{}, Aggregate(nil))
	assert.Equal(t, opportunity.Summary{}, Aggregate([]opportunity.Record{}))
}

func TestAggregateNegativeMax(t *testing.T) {
	recs := mixed()[:2]
	recs[0].NetProfit = -4
	recs[1].NetProfit = -2
	assert.Equal(t, -2.0, Aggregate(recs).MaxProfit)
}

func TestSerialize(t *testing.T) {
	block := int64(23270001)
	vol := 1.23456789
	recs := []opportunity.Record{{
		Timestamp:     time.Date(2025, 9, 1, 10, 0, 0, 5_000_000, time.UTC),
		BlockNumber:   &block,
		Direction:     opportunity.BuyRightSellLeft,
		PriceLeft:     4310.456,
		PriceRight:    4300.1,
		SpreadPct:     0.241234,
		Volatility:    &vol,
		OptimalAmount: 5,
		NetProfit:     42.555,
		RoiPct:        0.19,
		Details:       opportunity.Details{GasCostUSD: 3.4, SlippageLeftPct: 0.02, SlippageRightPct: 0.01},
	}, {
		Timestamp: time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC),
		Direction: opportunity.BuyLeftSellRight,
		NetProfit: 11,
	}}

	out, err := Serialize(recs)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "timestamp,block_number,direction,price_left,price_right,spread_pct,volatility,"+
		"optimal_amount,gas_cost_usd,slippage_right_pct,slippage_left_pct,net_profit_usd,roi_pct", lines[0])
	assert.Equal(t, "2025-09-01T10:00:00.005Z,23270001,Buy_Uni_Sell_Bin,4310.46,4300.10,0.2412,1.234568,"+
		"5.0000,3.40,0.0100,0.0200,42.56,0.1900", lines[1])
	assert.Equal(t, "2025-09-01T09:00:00.000Z,,Buy_Bin_Sell_Uni,0.00,0.00,0.0000,,0.0000,0.00,0.0000,0.0000,11.00,0.0000", lines[2])
}

func TestSerializeQuotesStrayDelimiters(t *testing.T) {
	recs := []opportunity.Record{{Timestamp: day, Direction: opportunity.Direction("Buy,odd")}}
	out, err := Serialize(recs)
	require.NoError(t, err)
	assert.Contains(t, out, `,"Buy,odd",`)

	var sb strings.Builder
	require.NoError(t, Write(&sb, recs, ExportOptions{Comma: ';'}))
	assert.Contains(t, sb.String(), ";Buy,odd;")
}

func TestSerializeRefusesEmpty(t *testing.T) {
	_, err := Serialize(nil)
	assert.True(t, errors.Is(err, ErrNothingToExport))
}

func TestExportFilename(t *testing.T) {
	now := time.Date(2025, 9, 1, 7, 5, 0, 0, time.UTC)
	assert.Equal(t, "arbitrage_opportunities_2025-09-01_07-05.csv", ExportFilename(now))
}
