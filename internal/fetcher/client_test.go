package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"arb-explorer/internal/opportunity"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

const chartBody = `[
	{"timestamp":"2025-09-01T00:00:00","bin_vwap":4300.5,"uni_price":4298.1,"spread_pct":0.05},
	{"timestamp":"2025-09-01T01:00:00","bin_vwap":4301.0,"uni_price":4297.9,"spread_pct":0.07},
	{"timestamp":"bogus","bin_vwap":1,"uni_price":1}
]`

const opportunitiesBody = `[
	{"timestamp":"2025-09-01 00:30:00","block_number":23270001,"direction":"Buy_Bin_Sell_Uni",
	 "price_bin":4300.5,"price_uni":4310.1,"spread_pct":0.22,"volatility":0.8,"optimal_amount_eth":5,
	 "net_profit_usd":35.2,"roi_pct":0.16,
	 "details":{"est_uni_slippage_pct":0.01,"est_bin_slippage_pct":0.02,"gas_cost_usd":3.1}},
	{"timestamp":"2025-09-01 00:45:00","direction":"Buy_Uni_Sell_Bin"}
]`

const summaryBody = `{"total_opportunities":1,"total_potential_profit":35.2,"max_single_profit":35.2,"avg_roi":0.16}`

func newUpstream(t *testing.T, summaryStatus int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case chartPath:
			if r.URL.Query().Get("timeframe") != "4H" {
				t.Errorf("timeframe 参数错误: %q", r.URL.RawQuery)
			}
			_, _ = w.Write([]byte(chartBody))
		case opportunitiesPath:
			if r.URL.Query().Get("min_profit") != "12.5" {
				t.Errorf("min_profit 参数错误: %q", r.URL.RawQuery)
			}
			_, _ = w.Write([]byte(opportunitiesBody))
		case summaryPath:
			w.WriteHeader(summaryStatus)
			if summaryStatus == http.StatusOK {
				_, _ = w.Write([]byte(summaryBody))
				return
			}
			_, _ = w.Write([]byte(`{"detail":"summary offline"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchSnapshot(t *testing.T) {
	srv := newUpstream(t, http.StatusOK)
	c := NewClient(Options{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())

	snap, err := c.FetchSnapshot(context.Background(), Request{Timeframe: opportunity.Timeframe4H, MinProfit: 12.5})
	if err != nil {
		t.Fatalf("快照获取不应报错: %v", err)
	}
	if snap.ID == "" {
		t.Fatal("snapshot id should be assigned")
	}
	if len(snap.Samples) != 2 || len(snap.Records) != 1 {
		t.Fatalf("unexpected sizes: %d samples, %d records", len(snap.Samples), len(snap.Records))
	}
	if snap.Excluded != 2 {
		t.Fatalf("expected 2 excluded entries, got %d", snap.Excluded)
	}
	if snap.Summary == nil || snap.Summary.Count != 1 {
		t.Fatalf("summary not decoded: %+v", snap.Summary)
	}
	rec := snap.Records[0]
	if rec.Direction != opportunity.BuyLeftSellRight || rec.Details.SlippageLeftPct != 0.02 {
		t.Fatalf("record mapped incorrectly: %+v", rec)
	}
	if snap.Timeframe != opportunity.Timeframe4H || snap.MinProfit != 12.5 {
		t.Fatalf("request parameters not recorded: %s %v", snap.Timeframe, snap.MinProfit)
	}
}

func TestFetchSnapshotWithoutSummary(t *testing.T) {
	srv := newUpstream(t, http.StatusServiceUnavailable)
	c := NewClient(Options{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())

	snap, err := c.FetchSnapshot(context.Background(), Request{Timeframe: opportunity.Timeframe4H, MinProfit: 12.5})
	if err != nil {
		t.Fatalf("summary 失败不应影响快照: %v", err)
	}
	if snap.Summary != nil {
		t.Fatal("summary should be nil when upstream fails")
	}
}

func TestFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"bad timeframe"}`))
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Timeout: time.Second, MaxRetries: 2}, noopLogger())
	_, _, err := c.FetchChart(context.Background(), opportunity.Timeframe1D)
	if err == nil {
		t.Fatal("HTTP 400 应返回错误")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "bad timeframe" {
		t.Fatalf("unexpected error: %v", err)
	}
	if !IsStatus(err, http.StatusBadRequest) {
		t.Fatal("IsStatus should match 400")
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(summaryBody))
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Timeout: time.Second, MaxRetries: 1}, noopLogger())
	summary, err := c.FetchSummary(context.Background(), 10)
	if err != nil {
		t.Fatalf("retry should recover: %v", err)
	}
	if summary.MaxProfit != 35.2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestFetchRejectsNonArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not":"an array"}`))
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, _, err := c.FetchOpportunities(context.Background(), 10); !errors.Is(err, opportunity.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
