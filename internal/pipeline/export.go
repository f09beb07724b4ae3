package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"arb-explorer/internal/opportunity"
)

// ErrNothingToExport is returned instead of writing a header-only file.
var ErrNothingToExport = errors.New("pipeline: nothing to export")

// TimestampLayout is the export rendering of record timestamps (UTC, milliseconds).
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Column describes one exported field.
type Column struct {
	Name string
	// Places is the fixed decimal precision, or -1 for non-numeric columns.
	Places int32
	value  func(opportunity.Record) string
}

// Columns is the stable export layout. Callers may depend on the order and precision.
var Columns = []Column{
	{Name: "timestamp", Places: -1, value: func(r opportunity.Record) string {
		return r.Timestamp.UTC().Format(TimestampLayout)
	}},
	{Name: "block_number", Places: -1, value: func(r opportunity.Record) string {
		if r.BlockNumber == nil {
			return ""
		}
		return strconv.FormatInt(*r.BlockNumber, 10)
	}},
	{Name: "direction", Places: -1, value: func(r opportunity.Record) string { return string(r.Direction) }},
	fixed("price_left", 2, func(r opportunity.Record) float64 { return r.PriceLeft }),
	fixed("price_right", 2, func(r opportunity.Record) float64 { return r.PriceRight }),
	fixed("spread_pct", 4, func(r opportunity.Record) float64 { return r.SpreadPct }),
	{Name: "volatility", Places: 6, value: func(r opportunity.Record) string {
		if r.Volatility == nil {
			return ""
		}
		return formatFixed(*r.Volatility, 6)
	}},
	fixed("optimal_amount", 4, func(r opportunity.Record) float64 { return r.OptimalAmount }),
	fixed("gas_cost_usd", 2, func(r opportunity.Record) float64 { return r.Details.GasCostUSD }),
	fixed("slippage_right_pct", 4, func(r opportunity.Record) float64 { return r.Details.SlippageRightPct }),
	fixed("slippage_left_pct", 4, func(r opportunity.Record) float64 { return r.Details.SlippageLeftPct }),
	fixed("net_profit_usd", 2, func(r opportunity.Record) float64 { return r.NetProfit }),
	fixed("roi_pct", 4, func(r opportunity.Record) float64 { return r.RoiPct }),
}

// ExportOptions tune the delimited rendering.
type ExportOptions struct {
	// Comma is the field delimiter, ',' when zero.
	Comma rune
}

// Serialize renders filtered as delimited text: a header line, then one line
// per record in the given order. Fields holding the delimiter, quotes or line
// breaks are quoted.
func Serialize(filtered []opportunity.Record) (string, error) {
	var sb strings.Builder
	if err := Write(&sb, filtered, ExportOptions{}); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Write streams the Serialize output to w.
func Write(w io.Writer, filtered []opportunity.Record, opts ExportOptions) error {
	if len(filtered) == 0 {
		return ErrNothingToExport
	}

	writer := csv.NewWriter(w)
	if opts.Comma != 0 {
		writer.Comma = opts.Comma
	}

	header := make([]string, len(Columns))
	for i, col := range Columns {
		header[i] = col.Name
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	row := make([]string, len(Columns))
	for _, rec := range filtered {
		for i, col := range Columns {
			row[i] = col.value(rec)
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// ExportFilename suggests a file name stamped with now.
func ExportFilename(now time.Time) string {
	return fmt.Sprintf("arbitrage_opportunities_%s.csv", now.Format("2006-01-02_15-04"))
}

func fixed(name string, places int32, get func(opportunity.Record) float64) Column {
	return Column{Name: name, Places: places, value: func(r opportunity.Record) string {
		return formatFixed(get(r), places)
	}}
}

func formatFixed(v float64, places int32) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return decimal.NewFromFloat(v).StringFixed(places)
}
