package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arb-explorer/internal/opportunity"
)

var base = time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)

func testSnapshot(id string, fetched time.Time) opportunity.Snapshot {
	block := int64(23270001)
	vol := 0.42
	return opportunity.Snapshot{
		ID:        id,
		FetchedAt: fetched,
		Timeframe: opportunity.Timeframe4H,
		MinProfit: 10,
		Samples: []opportunity.PriceSample{
			{Timestamp: base, PriceLeft: 4300.5, PriceRight: 4298.25, SpreadPct: 0.05},
			{Timestamp: base.Add(time.Hour), PriceLeft: 4302, PriceRight: 4297, SpreadPct: 0.12},
		},
		Records: []opportunity.Record{{
			Timestamp:     base.Add(30 * time.Minute),
			BlockNumber:   &block,
			Direction:     opportunity.BuyRightSellLeft,
			PriceLeft:     4310,
			PriceRight:    4300,
			SpreadPct:     0.23,
			Volatility:    &vol,
			OptimalAmount: 4.5,
			CostGas:       2.5,
			NetProfit:     38.75,
			RoiPct:        0.2,
			Details:       opportunity.Details{GasCostUSD: 2.5, SlippageLeftPct: 0.01, SlippageRightPct: 0.02},
		}},
		Summary:  &opportunity.Summary{Count: 1, TotalProfit: 38.75, MaxProfit: 38.75, AvgROI: 0.2},
		Excluded: 3,
	}
}

// exerciseArchive runs the behaviour every backend must share.
func exerciseArchive(t *testing.T, store Archive) {
	t.Helper()
	ctx := context.Background()

	_, err := store.LatestSnapshot(ctx)
	require.True(t, errors.Is(err, ErrNoSnapshot), "empty archive: %v", err)

	older := testSnapshot("snap-old", base)
	newer := testSnapshot("snap-new", base.Add(time.Hour))
	newer.Summary = nil
	require.NoError(t, store.SaveSnapshot(ctx, newer))
	require.NoError(t, store.SaveSnapshot(ctx, older))
	require.NoError(t, store.SaveSnapshot(ctx, older), "saving twice is a no-op")

	latest, err := store.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "snap-new", latest.ID)
	assert.Nil(t, latest.Summary)

	loaded, err := store.LoadSnapshot(ctx, "snap-old")
	require.NoError(t, err)
	assert.True(t, base.Equal(loaded.FetchedAt))
	assert.Equal(t, opportunity.Timeframe4H, loaded.Timeframe)
	assert.Equal(t, 3, loaded.Excluded)
	require.NotNil(t, loaded.Summary)
	assert.Equal(t, *older.Summary, *loaded.Summary)
	require.Len(t, loaded.Samples, 2)
	assert.True(t, older.Samples[1].Timestamp.Equal(loaded.Samples[1].Timestamp))
	assert.Equal(t, older.Samples[1].PriceRight, loaded.Samples[1].PriceRight)
	require.Len(t, loaded.Records, 1)
	rec := loaded.Records[0]
	assert.Equal(t, opportunity.BuyRightSellLeft, rec.Direction)
	assert.Equal(t, 38.75, rec.NetProfit)
	require.NotNil(t, rec.BlockNumber)
	assert.Equal(t, int64(23270001), *rec.BlockNumber)
	assert.Equal(t, older.Records[0].Details, rec.Details)

	_, err = store.LoadSnapshot(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNoSnapshot))

	metas, err := store.ListSnapshots(ctx, 10)
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, "snap-new", metas[0].ID)
	assert.Equal(t, 1, metas[0].RecordCount)
	assert.Equal(t, 2, metas[0].SampleCount)

	deleted, err := store.DeleteSnapshotsBefore(ctx, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	metas, err = store.ListSnapshots(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, metas, 1)

	alert := AlertRecord{
		OpportunityTS: base,
		Direction:     opportunity.BuyLeftSellRight,
		NetProfit:     decimal.RequireFromString("61.25"),
		Threshold:     decimal.NewFromInt(50),
		Channels:      []string{"telegram"},
	}
	inserted, err := store.RecordAlert(ctx, alert)
	require.NoError(t, err)
	assert.True(t, inserted)
	inserted, err = store.RecordAlert(ctx, alert)
	require.NoError(t, err)
	assert.False(t, inserted, "duplicate opportunity must not alert twice")

	alerts, err := store.ListRecentAlerts(ctx, 5)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.True(t, alerts[0].NetProfit.Equal(alert.NetProfit))
	assert.Equal(t, []string{"telegram"}, alerts[0].Channels)
	assert.True(t, base.Equal(alerts[0].OpportunityTS))

	require.NoError(t, store.DeleteAlertsBefore(ctx, time.Now().Add(time.Hour)))
	alerts, err = store.ListRecentAlerts(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}
