package app

import (
	"context"
	"fmt"
	"time"

	"arb-explorer/internal/ranking"
)

// Locate centres the chart on the sample nearest opts.At and prints the
// resulting window and the ranked rows inside it.
func (a *App) Locate(ctx context.Context, opts LocateOptions) error {
	snap, err := a.loadSnapshot(ctx, opts.Source)
	if err != nil {
		return err
	}

	view := opts.View
	view.Select = &opts.At
	view.Window = nil

	sess := a.newSession(view)
	v, err := a.prepare(sess, snap, view)
	if err != nil {
		return err
	}

	if v.Center < 0 || len(v.Chart) == 0 {
		return fmt.Errorf("no chart samples near %s", opts.At.UTC().Format(time.RFC3339))
	}
	center := v.Chart[v.Center-v.Window.Start]
	fmt.Fprintf(a.Out, "Nearest sample: #%d at %s (requested %s)\n",
		v.Center, center.Timestamp.UTC().Format(time.RFC3339), opts.At.UTC().Format(time.RFC3339))
	if gap := center.Timestamp.Sub(opts.At).Abs(); snap.Timeframe != "" && gap > snap.Timeframe.Duration() {
		a.Logger.Warn().Dur("gap", gap).Str("timeframe", string(snap.Timeframe)).Msg("nearest sample is more than one bucket away")
	}
	fmt.Fprintf(a.Out, "Left %s  Right %s  Difference %s\n",
		fixed(center.PriceLeft, 2), fixed(center.PriceRight, 2), fixed(center.PriceDiff(), 2))

	if pos := ranking.Rank(v.Filtered).Position(center.Timestamp); pos >= 0 {
		fmt.Fprintf(a.Out, "Opportunity at this sample ranks #%d\n", pos+1)
	}

	first, last := v.Chart[0].Timestamp, v.Chart[len(v.Chart)-1].Timestamp
	fmt.Fprintf(a.Out, "Window %d..%d covers %s .. %s\n", v.Window.Start, v.Window.End,
		first.UTC().Format(time.RFC3339), last.UTC().Format(time.RFC3339))

	inWindow := v.Top[:0:0]
	for _, r := range v.Top {
		if !r.Timestamp.Before(first) && !r.Timestamp.After(last) {
			inWindow = append(inWindow, r)
		}
	}
	v.Top = inWindow
	return renderRanked(a.Out, v)
}
