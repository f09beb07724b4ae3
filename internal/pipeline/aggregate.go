package pipeline

import (
	"github.com/shopspring/decimal"

	"arb-explorer/internal/opportunity"
)

// Aggregate summarises a filtered set. An empty set yields the zero Summary.
// Sums are accumulated in decimal so the totals do not depend on input order.
// Malformed records are left out of every figure.
func Aggregate(filtered []opportunity.Record) opportunity.Summary {
	total := decimal.Zero
	roi := decimal.Zero
	count := 0
	var maxProfit float64

	for _, rec := range filtered {
		if !rec.Valid() {
			continue
		}
		if count == 0 || rec.NetProfit > maxProfit {
			maxProfit = rec.NetProfit
		}
		total = total.Add(decimal.NewFromFloat(rec.NetProfit))
		roi = roi.Add(decimal.NewFromFloat(rec.RoiPct))
		count++
	}

	if count == 0 {
		return opportunity.Summary{}
	}
	return opportunity.Summary{
		Count:       count,
		TotalProfit: total.InexactFloat64(),
		MaxProfit:   maxProfit,
		AvgROI:      roi.Div(decimal.NewFromInt(int64(count))).InexactFloat64(),
	}
}
