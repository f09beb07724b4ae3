package opportunity

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Direction identifies which venue is bought and which is sold.
// The left venue is the centralised exchange, the right venue the on-chain pool.
type Direction string

const (
	// DirectionNone means no constraint when used in a filter.
	DirectionNone Direction = ""
	// BuyLeftSellRight buys on the left venue and sells on the right one.
	BuyLeftSellRight Direction = "Buy_Bin_Sell_Uni"
	// BuyRightSellLeft buys on the right venue and sells on the left one.
	BuyRightSellLeft Direction = "Buy_Uni_Sell_Bin"
)

// ParseDirection accepts the wire value or a short alias.
func ParseDirection(v string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "":
		return DirectionNone, nil
	case strings.ToLower(string(BuyLeftSellRight)), "left-right", "bin-uni", "buy-left-sell-right":
		return BuyLeftSellRight, nil
	case strings.ToLower(string(BuyRightSellLeft)), "right-left", "uni-bin", "buy-right-sell-left":
		return BuyRightSellLeft, nil
	default:
		return DirectionNone, fmt.Errorf("unknown direction %q", v)
	}
}

// Known reports whether d is one of the two trade directions.
func (d Direction) Known() bool {
	return d == BuyLeftSellRight || d == BuyRightSellLeft
}

// Label renders the direction for humans.
func (d Direction) Label() string {
	switch d {
	case BuyLeftSellRight:
		return "Bin -> Uni"
	case BuyRightSellLeft:
		return "Uni -> Bin"
	default:
		return "-"
	}
}

// Details carries venue specific cost estimates.
type Details struct {
	GasCostUSD       float64
	SlippageLeftPct  float64
	SlippageRightPct float64
}

// Record is one detected arbitrage opportunity at an instant.
type Record struct {
	Timestamp     time.Time
	BlockNumber   *int64
	Direction     Direction
	PriceLeft     float64
	PriceRight    float64
	SpreadPct     float64
	Volatility    *float64
	OptimalAmount float64
	CostGas       float64
	NetProfit     float64
	RoiPct        float64
	RiskScore     float64
	Details       Details
}

// Valid reports whether the record can take part in ranking and aggregation.
func (r Record) Valid() bool {
	if r.Timestamp.IsZero() || !r.Direction.Known() {
		return false
	}
	if r.Volatility != nil && !finite(*r.Volatility) {
		return false
	}
	return finite(
		r.PriceLeft, r.PriceRight, r.SpreadPct, r.OptimalAmount, r.CostGas,
		r.NetProfit, r.RoiPct, r.RiskScore,
		r.Details.GasCostUSD, r.Details.SlippageLeftPct, r.Details.SlippageRightPct,
	)
}

// PriceSample is one chart point.
type PriceSample struct {
	Timestamp  time.Time
	PriceLeft  float64
	PriceRight float64
	SpreadPct  float64
}

// PriceDiff is the left price minus the right price.
func (s PriceSample) PriceDiff() float64 {
	return s.PriceLeft - s.PriceRight
}

// Valid reports whether the sample has a timestamp and finite prices.
func (s PriceSample) Valid() bool {
	return !s.Timestamp.IsZero() && finite(s.PriceLeft, s.PriceRight, s.SpreadPct)
}

// Summary holds the four headline numbers of a set of opportunities.
type Summary struct {
	Count       int     `json:"total_opportunities"`
	TotalProfit float64 `json:"total_potential_profit"`
	MaxProfit   float64 `json:"max_single_profit"`
	AvgROI      float64 `json:"avg_roi"`
}

// Snapshot is one immutable, atomically replaced copy of the upstream dataset.
type Snapshot struct {
	ID        string
	FetchedAt time.Time
	Timeframe Timeframe
	MinProfit float64
	Samples   []PriceSample
	Records   []Record
	// Summary is the upstream pre-aggregated view, nil when unavailable.
	Summary *Summary
	// Excluded counts malformed records and samples dropped while decoding.
	Excluded int
}

// Sanitize drops invalid records, returning the survivors in input order
// and the number of records removed.
func Sanitize(records []Record) ([]Record, int) {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if r.Valid() {
			out = append(out, r)
		}
	}
	return out, len(records) - len(out)
}

// SanitizeSamples drops invalid samples, keeping order.
func SanitizeSamples(samples []PriceSample) ([]PriceSample, int) {
	out := make([]PriceSample, 0, len(samples))
	for _, s := range samples {
		if s.Valid() {
			out = append(out, s)
		}
	}
	return out, len(samples) - len(out)
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
