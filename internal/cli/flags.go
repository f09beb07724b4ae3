package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"arb-explorer/internal/app"
	"arb-explorer/internal/opportunity"
	"arb-explorer/internal/viewport"
)

// sourceFlags pick the snapshot a command works on.
type sourceFlags struct {
	timeframe  string
	minProfit  float64
	stored     bool
	snapshotID string
}

func (f *sourceFlags) bind(cmd *cobra.Command) {
	f.bindRequest(cmd)
	cmd.Flags().BoolVar(&f.stored, "stored", false, "Use the latest archived snapshot instead of fetching")
	cmd.Flags().StringVar(&f.snapshotID, "snapshot", "", "Use the archived snapshot with this ID")
}

// bindRequest registers only the upstream request flags.
func (f *sourceFlags) bindRequest(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.timeframe, "timeframe", "", "Chart timeframe: 1H, 4H or 1D (defaults to config)")
	cmd.Flags().Float64Var(&f.minProfit, "min-profit", 0, "Minimum net profit in USD requested from upstream (defaults to config)")
}

func (f *sourceFlags) options(cmd *cobra.Command) app.SourceOptions {
	opts := app.SourceOptions{
		Timeframe:  f.timeframe,
		Stored:     f.stored,
		SnapshotID: f.snapshotID,
	}
	if cmd.Flags().Changed("min-profit") {
		v := f.minProfit
		opts.MinProfit = &v
	}
	return opts
}

// viewFlags replay the filter and viewport actions.
type viewFlags struct {
	direction string
	from      string
	to        string
	selectAt  string
	window    []int
	top       int
	autoscale bool
}

func (f *viewFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.direction, "direction", "", "Only Buy_Bin_Sell_Uni or Buy_Uni_Sell_Bin opportunities")
	cmd.Flags().StringVar(&f.from, "from", "", "First calendar day, YYYY-MM-DD (UTC)")
	cmd.Flags().StringVar(&f.to, "to", "", "Last calendar day, YYYY-MM-DD (UTC); requires --from")
	cmd.Flags().StringVar(&f.selectAt, "select", "", "Centre the chart window on the sample nearest this timestamp")
	cmd.Flags().IntSliceVar(&f.window, "window", nil, "Explicit chart window as start,end sample indices")
	cmd.Flags().IntVar(&f.top, "top", 0, "Number of ranked rows to show (defaults to config)")
	cmd.Flags().BoolVar(&f.autoscale, "autoscale", true, "Fit the price axis to the visible window")
	cmd.MarkFlagsMutuallyExclusive("select", "window")
}

func (f *viewFlags) options(cmd *cobra.Command) (app.ViewOptions, error) {
	var (
		opts app.ViewOptions
		err  error
	)
	if opts.Direction, err = opportunity.ParseDirection(f.direction); err != nil {
		return opts, err
	}
	if opts.From, err = parseDay("--from", f.from); err != nil {
		return opts, err
	}
	if opts.To, err = parseDay("--to", f.to); err != nil {
		return opts, err
	}
	if f.selectAt != "" {
		at, err := parseInstant("--select", f.selectAt)
		if err != nil {
			return opts, err
		}
		opts.Select = &at
	}
	if len(f.window) > 0 {
		if len(f.window) != 2 {
			return opts, fmt.Errorf("--window expects start,end")
		}
		opts.Window = &viewport.Window{Start: f.window[0], End: f.window[1]}
	}
	if f.top < 0 {
		return opts, fmt.Errorf("--top must not be negative")
	}
	opts.Top = f.top
	if cmd.Flags().Changed("autoscale") {
		v := f.autoscale
		opts.Autoscale = &v
	}
	return opts, nil
}

func parseDay(flag, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	day, err := time.ParseInLocation(time.DateOnly, value, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value: %w", flag, err)
	}
	return &day, nil
}

// parseInstant accepts RFC3339, the upstream timestamp variants or a bare day.
func parseInstant(flag, value string) (time.Time, error) {
	if ts, err := opportunity.ParseTimestamp(value); err == nil {
		return ts, nil
	}
	if day, err := time.ParseInLocation(time.DateOnly, value, time.UTC); err == nil {
		return day, nil
	}
	return time.Time{}, fmt.Errorf("invalid %s value %q", flag, value)
}
