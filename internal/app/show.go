package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"arb-explorer/internal/opportunity"
	"arb-explorer/internal/ranking"
	"arb-explorer/internal/session"
)

// Show prints the ranked opportunity table and summary for one snapshot.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	snap, err := a.loadSnapshot(ctx, opts.Source)
	if err != nil {
		return err
	}

	sess := a.newSession(opts.View)
	view, err := a.prepare(sess, snap, opts.View)
	if err != nil {
		return err
	}

	if opts.All {
		view.Top = ranking.Rank(view.Filtered).All()
	}
	return renderRanked(a.Out, view)
}

// History lists archived snapshots, newest first.
func (a *App) History(ctx context.Context, limit int) error {
	archive, closeArchive, err := a.openArchive(ctx)
	if err != nil {
		return err
	}
	if archive == nil {
		return errors.New("database not configured; cannot list snapshots")
	}
	defer closeArchive()

	metas, err := archive.ListSnapshots(ctx, limit)
	if err != nil {
		return err
	}
	if len(metas) == 0 {
		fmt.Fprintln(a.Out, "no snapshots found")
		return nil
	}

	table := tablewriter.NewWriter(a.Out)
	table.Header("ID", "Fetched (UTC)", "TF", "Min profit", "Records", "Samples", "Excluded")
	for _, m := range metas {
		table.Append(
			m.ID,
			m.FetchedAt.UTC().Format(time.RFC3339),
			string(m.Timeframe),
			money(m.MinProfit),
			strconv.Itoa(m.RecordCount),
			strconv.Itoa(m.SampleCount),
			strconv.Itoa(m.Excluded),
		)
	}
	return table.Render()
}

func renderRanked(w io.Writer, v session.View) error {
	s := v.Stats
	fmt.Fprintf(w, "Opportunities: %d  Total profit: $%s  Max profit: $%s  Avg ROI: %s%%\n",
		s.Count, money(s.TotalProfit), money(s.MaxProfit), fixed(s.AvgROI, 4))
	if v.Filter.Active() {
		fmt.Fprintf(w, "Filter: %s\n", describeFilter(v))
	}
	if v.HasWindow {
		fmt.Fprintf(w, "Chart window: %d..%d (%d samples)", v.Window.Start, v.Window.End, v.Window.Len())
		if v.HasDomain {
			fmt.Fprintf(w, "  price axis %s..%s  diff axis %s..%s",
				fixed(v.PriceDomain.Min, 2), fixed(v.PriceDomain.Max, 2),
				fixed(v.SpreadDomain.Min, 2), fixed(v.SpreadDomain.Max, 2))
		}
		fmt.Fprintln(w)
	}
	if v.Excluded > 0 {
		fmt.Fprintf(w, "Excluded malformed entries: %d\n", v.Excluded)
	}

	if len(v.Top) == 0 {
		fmt.Fprintln(w, "no opportunities")
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.Header("#", "Time (UTC)", "Block", "Direction", "Left", "Right", "Spread%", "Amount", "Gas$", "Net profit$", "ROI%")
	for i, r := range v.Top {
		table.Append(
			strconv.Itoa(i+1),
			r.Timestamp.UTC().Format("2006-01-02 15:04:05"),
			block(r.BlockNumber),
			r.Direction.Label(),
			fixed(r.PriceLeft, 2),
			fixed(r.PriceRight, 2),
			fixed(r.SpreadPct, 4),
			fixed(r.OptimalAmount, 4),
			money(r.Details.GasCostUSD),
			money(r.NetProfit),
			fixed(r.RoiPct, 4),
		)
	}
	if err := table.Render(); err != nil {
		return err
	}
	if v.Distinct > len(v.Top) {
		fmt.Fprintf(w, "showing %d of %d distinct opportunities\n", len(v.Top), v.Distinct)
	}
	return nil
}

func describeFilter(v session.View) string {
	out := ""
	if v.Filter.Direction != opportunity.DirectionNone {
		out = "direction " + v.Filter.Direction.Label()
	}
	if r := v.Filter.DateRange; r != nil {
		if out != "" {
			out += ", "
		}
		out += fmt.Sprintf("dates %s..%s", r.Start.Format(time.DateOnly), r.End.Format(time.DateOnly))
	}
	return out
}

func block(n *int64) string {
	if n == nil {
		return "-"
	}
	return strconv.FormatInt(*n, 10)
}

func money(v float64) string {
	return fixed(v, 2)
}

func fixed(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}

// Alerts lists the most recently dispatched alerts.
func (a *App) Alerts(ctx context.Context, limit int) error {
	archive, closeArchive, err := a.openArchive(ctx)
	if err != nil {
		return err
	}
	if archive == nil {
		return errors.New("database not configured; cannot list alerts")
	}
	defer closeArchive()

	alerts, err := archive.ListRecentAlerts(ctx, limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(a.Out, "no alerts found")
		return nil
	}

	table := tablewriter.NewWriter(a.Out)
	table.Header("Sent (UTC)", "Opportunity (UTC)", "Direction", "Net profit$", "Threshold$", "Channels")
	for _, rec := range alerts {
		table.Append(
			rec.CreatedAt.UTC().Format(time.RFC3339),
			rec.OpportunityTS.UTC().Format(time.RFC3339),
			rec.Direction.Label(),
			rec.NetProfit.StringFixed(2),
			rec.Threshold.StringFixed(2),
			strings.Join(rec.Channels, ","),
		)
	}
	return table.Render()
}
