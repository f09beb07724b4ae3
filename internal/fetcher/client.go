package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"arb-explorer/internal/opportunity"
)

const (
	chartPath         = "/api/chart"
	opportunitiesPath = "/api/opportunities"
	summaryPath       = "/api/summary"

	defaultBaseURL   = "http://localhost:8000"
	defaultUserAgent = "arbexplorer/1.0"
	maxBodyBytes     = 32 << 20
	baseRetryWait    = 250 * time.Millisecond
)

// Options parameterise the upstream client.
type Options struct {
	BaseURL           string
	Timeout           time.Duration
	UserAgent         string
	RequestsPerSecond float64
	Burst             int
	MaxRetries        int
}

// Client talks to the opportunity backend.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
	now     func() time.Time
}

// NewClient constructs an upstream client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 3
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "upstream_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		limiter: rate.NewLimiter(limit, burst),
		now:     time.Now,
	}
}

// FetchChart returns the price series for tf in the order received, plus the
// number of malformed points dropped.
func (c *Client) FetchChart(ctx context.Context, tf opportunity.Timeframe) ([]opportunity.PriceSample, int, error) {
	if tf == "" {
		tf = opportunity.Timeframe1H
	}
	payload, err := c.get(ctx, chartPath, url.Values{"timeframe": {string(tf)}})
	if err != nil {
		return nil, 0, fmt.Errorf("fetch chart: %w", err)
	}
	samples, excluded, err := opportunity.DecodeSamples(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("decode chart: %w", err)
	}
	return samples, excluded, nil
}

// FetchOpportunities returns detected opportunities above minProfit, plus the
// number of malformed records dropped.
func (c *Client) FetchOpportunities(ctx context.Context, minProfit float64) ([]opportunity.Record, int, error) {
	payload, err := c.get(ctx, opportunitiesPath, profitQuery(minProfit))
	if err != nil {
		return nil, 0, fmt.Errorf("fetch opportunities: %w", err)
	}
	records, excluded, err := opportunity.DecodeRecords(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("decode opportunities: %w", err)
	}
	return records, excluded, nil
}

// FetchSummary returns the upstream pre-aggregated statistics.
func (c *Client) FetchSummary(ctx context.Context, minProfit float64) (opportunity.Summary, error) {
	payload, err := c.get(ctx, summaryPath, profitQuery(minProfit))
	if err != nil {
		return opportunity.Summary{}, fmt.Errorf("fetch summary: %w", err)
	}
	return opportunity.DecodeSummary(payload)
}

// FetchSnapshot fetches chart, opportunities and summary concurrently and
// returns them as one snapshot. A failing summary leaves Summary nil; the
// other two are required.
func (c *Client) FetchSnapshot(ctx context.Context, req Request) (opportunity.Snapshot, error) {
	tf := req.Timeframe
	if tf == "" {
		tf = opportunity.Timeframe1H
	}

	var (
		samples    []opportunity.PriceSample
		records    []opportunity.Record
		summary    opportunity.Summary
		summaryErr error
		badSamples int
		badRecords int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		samples, badSamples, err = c.FetchChart(gctx, tf)
		return err
	})
	g.Go(func() error {
		var err error
		records, badRecords, err = c.FetchOpportunities(gctx, req.MinProfit)
		return err
	})
	g.Go(func() error {
		summary, summaryErr = c.FetchSummary(gctx, req.MinProfit)
		return nil
	})
	if err := g.Wait(); err != nil {
		return opportunity.Snapshot{}, err
	}

	snap := opportunity.Snapshot{
		ID:        uuid.NewString(),
		FetchedAt: c.now().UTC(),
		Timeframe: tf,
		MinProfit: req.MinProfit,
		Samples:   samples,
		Records:   records,
		Excluded:  badSamples + badRecords,
	}
	if summaryErr != nil {
		c.logger.Warn().Err(summaryErr).Msg("upstream summary unavailable")
	} else {
		snap.Summary = &summary
	}

	if snap.Excluded > 0 {
		c.logger.Warn().
			Int("samples_dropped", badSamples).
			Int("records_dropped", badRecords).
			Msg("malformed upstream entries excluded")
	}
	return snap, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		payload, retry, err := c.do(ctx, endpoint)
		if err == nil {
			return payload, nil
		}
		lastErr = err
		if !retry {
			break
		}
		c.logger.Debug().Err(err).Str("path", path).Int("attempt", attempt+1).Msg("upstream request failed, retrying")
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, endpoint string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", defaultUserAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, true, err
	}

	if resp.StatusCode != http.StatusOK {
		retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, retry, parseHTTPError(resp.StatusCode, payload)
	}
	return payload, false, nil
}

func (c *Client) backoff(ctx context.Context, attempt int) error {
	wait := time.Duration(math.Pow(2, float64(attempt-1))) * baseRetryWait
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func profitQuery(minProfit float64) url.Values {
	return url.Values{"min_profit": {strconv.FormatFloat(minProfit, 'f', -1, 64)}}
}

// APIError is a non-200 upstream response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream api error (%d)", e.Status)
	}
	return fmt.Sprintf("upstream api error (%d): %s", e.Status, e.Message)
}

type errorResponse struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

func parseHTTPError(status int, payload []byte) error {
	apiErr := &APIError{Status: status}

	var body errorResponse
	if err := json.Unmarshal(payload, &body); err == nil {
		var detail string
		if len(body.Detail) > 0 && json.Unmarshal(body.Detail, &detail) != nil {
			detail = string(body.Detail)
		}
		switch {
		case detail != "":
			apiErr.Message = detail
		case body.Message != "":
			apiErr.Message = body.Message
		case body.Error != "":
			apiErr.Message = body.Error
		}
	}
	if apiErr.Message == "" && len(payload) > 0 {
		apiErr.Message = strings.TrimSpace(string(payload))
	}
	return apiErr
}

// IsStatus reports whether err is an upstream error with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

var _ SnapshotFetcher = (*Client)(nil)
