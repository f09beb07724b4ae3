package cli

import (
	"testing"
	"time"

	"github.com/spf13/cobra"

	"arb-explorer/internal/opportunity"
)

func newFlagCmd(t *testing.T, args ...string) (*cobra.Command, *sourceFlags, *viewFlags) {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	src, view := &sourceFlags{}, &viewFlags{}
	src.bind(cmd)
	view.bind(cmd)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return cmd, src, view
}

func TestViewFlags(t *testing.T) {
	cmd, src, view := newFlagCmd(t,
		"--direction", "bin-uni", "--from", "2025-09-01", "--to", "2025-09-03",
		"--select", "2025-09-02T06:10:00Z", "--top", "5", "--autoscale=false", "--min-profit", "0")

	opts, err := view.options(cmd)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.Direction != opportunity.BuyLeftSellRight {
		t.Fatalf("unexpected direction %q", opts.Direction)
	}
	if !opts.From.Equal(time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)) || opts.To.Day() != 3 {
		t.Fatalf("unexpected range %s..%s", opts.From, opts.To)
	}
	if opts.Select == nil || opts.Select.Hour() != 6 || opts.Select.Minute() != 10 {
		t.Fatalf("unexpected select %v", opts.Select)
	}
	if opts.Top != 5 || opts.Autoscale == nil || *opts.Autoscale {
		t.Fatalf("unexpected top/autoscale %d %v", opts.Top, opts.Autoscale)
	}

	source := src.options(cmd)
	if source.MinProfit == nil || *source.MinProfit != 0 {
		t.Fatal("explicit --min-profit 0 应覆盖配置")
	}
}

func TestViewFlagsDefaults(t *testing.T) {
	cmd, src, view := newFlagCmd(t)
	opts, err := view.options(cmd)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.Autoscale != nil || opts.From != nil || opts.Select != nil || opts.Window != nil {
		t.Fatalf("unset flags should stay nil: %+v", opts)
	}
	if src.options(cmd).MinProfit != nil {
		t.Fatal("unset --min-profit should defer to config")
	}
}

func TestViewFlagsRejects(t *testing.T) {
	cases := [][]string{
		{"--direction", "sideways"},
		{"--from", "01/09/2025"},
		{"--select", "yesterday"},
		{"--window", "1,2,3"},
		{"--top", "-1"},
	}
	for _, args := range cases {
		cmd, _, view := newFlagCmd(t, args...)
		if _, err := view.options(cmd); err == nil {
			t.Fatalf("%v 应返回错误", args)
		}
	}
}

func TestParseInstantAcceptsDay(t *testing.T) {
	ts, err := parseInstant("--at", "2025-09-02")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !ts.Equal(time.Date(2025, 9, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected %s", ts)
	}
}

func TestWatchFlagsOmitStoredSource(t *testing.T) {
	for _, name := range []string{"stored", "snapshot"} {
		if watchCmd.Flags().Lookup(name) != nil {
			t.Fatalf("watch 不应接受 --%s", name)
		}
		if showCmd.Flags().Lookup(name) == nil {
			t.Fatalf("show 缺少 --%s", name)
		}
	}
	if watchCmd.Flags().Lookup("window") == nil || watchCmd.Flags().Lookup("timeframe") == nil {
		t.Fatal("watch should keep view and request flags")
	}
}
