package fetcher

import (
	"context"

	"arb-explorer/internal/opportunity"
)

// Request selects what one snapshot covers.
type Request struct {
	Timeframe opportunity.Timeframe
	MinProfit float64
}

// SnapshotFetcher retrieves one consistent copy of the upstream dataset.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context, req Request) (opportunity.Snapshot, error)
}
