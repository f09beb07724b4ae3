package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"arb-explorer/internal/alerting"
	"arb-explorer/internal/fetcher"
	"arb-explorer/internal/metrics"
	"arb-explorer/internal/opportunity"
	"arb-explorer/internal/pipeline"
	"arb-explorer/internal/scheduler"
	"arb-explorer/internal/session"
	"arb-explorer/internal/storage"
)

// summaryTolerance is the absolute USD difference tolerated between the
// upstream summary and local aggregation.
const summaryTolerance = 0.01

// Options tune the refresher.
type Options struct {
	Request        fetcher.Request
	AlertsEnabled  bool
	AlertMinProfit float64
	Channels       []string
	// Retention prunes archived snapshots older than this; zero keeps all.
	Retention time.Duration
}

// Deps are the collaborators of a Service. Only Fetcher is required.
type Deps struct {
	Scheduler *scheduler.Scheduler
	Fetcher   fetcher.SnapshotFetcher
	Archive   storage.SnapshotStore
	Alerts    storage.AlertStore
	Notifier  alerting.Notifier
	Metrics   *metrics.Collectors
	// OnView receives every applied view, in order.
	OnView func(session.View)
}

// Service refreshes the session from upstream and fans each applied
// snapshot out to the archive, alerting and metrics.
type Service struct {
	deps   Deps
	opts   Options
	logger zerolog.Logger
	now    func() time.Time

	issued atomic.Uint64

	mu      sync.Mutex
	applied uint64
	session *session.Session
	alerted map[alertKey]struct{}
}

type alertKey struct {
	ts        int64
	direction opportunity.Direction
}

// New constructs the refresher around sess. The service owns sess from
// here on; use Update and View to touch it.
func New(opts Options, sess *session.Session, deps Deps, logger zerolog.Logger) (*Service, error) {
	if deps.Fetcher == nil {
		return nil, errors.New("service: fetcher is required")
	}
	if sess == nil {
		sess = session.New(session.DefaultOptions())
	}
	return &Service{
		deps:    deps,
		opts:    opts,
		logger:  logger.With().Str("component", "refresher").Logger(),
		now:     time.Now,
		session: sess,
		alerted: make(map[alertKey]struct{}),
	}, nil
}

// Run begins the refresh loop.
func (s *Service) Run(ctx context.Context) error {
	if s.deps.Scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.deps.Scheduler.Run(ctx, func(ctx context.Context, _ time.Time) error {
		_, _, err := s.Refresh(ctx)
		return err
	})
}

// Refresh fetches one snapshot and applies it unless a snapshot requested
// later has already been applied. applied is false for such stale results.
func (s *Service) Refresh(ctx context.Context) (view session.View, applied bool, err error) {
	seq := s.issued.Add(1)

	start := s.now()
	snap, err := s.deps.Fetcher.FetchSnapshot(ctx, s.opts.Request)
	if m := s.deps.Metrics; m != nil {
		m.FetchLatency.Observe(s.now().Sub(start).Seconds())
	}
	if err != nil {
		if fetcher.IsStatus(err, http.StatusTooManyRequests) {
			s.count("throttled")
		} else {
			s.count("failed")
		}
		return session.View{}, false, fmt.Errorf("fetch snapshot: %w", err)
	}

	view, applied = s.apply(seq, snap)
	if !applied {
		s.count("stale")
		if m := s.deps.Metrics; m != nil {
			m.StaleDropped.Inc()
		}
		s.logger.Debug().Uint64("seq", seq).Str("snapshot_id", snap.ID).Msg("dropped stale snapshot")
		return view, false, nil
	}
	s.count("applied")

	s.archive(ctx, snap)
	s.crossCheck(snap)
	s.alert(ctx, view)
	return view, true, nil
}

// Update applies a user action to the session and returns the new view.
func (s *Service) Update(fn func(*session.Session)) session.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.session)
	view := s.session.View()
	s.publish(view)
	return view
}

// View returns the current view.
func (s *Service) View() session.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.View()
}

func (s *Service) apply(seq uint64, snap opportunity.Snapshot) (session.View, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq <= s.applied {
		return s.session.View(), false
	}
	s.applied = seq
	s.session.NewSnapshotArrived(snap)
	view := s.session.View()

	if m := s.deps.Metrics; m != nil {
		m.Excluded.Add(float64(view.Excluded))
		m.Opportunities.Set(float64(view.Stats.Count))
		m.TotalProfit.Set(view.Stats.TotalProfit)
		m.MaxProfit.Set(view.Stats.MaxProfit)
	}
	if view.Excluded > 0 {
		s.logger.Warn().Int("excluded", view.Excluded).Str("snapshot_id", snap.ID).Msg("malformed entries excluded from view")
	}
	s.logger.Info().
		Str("snapshot_id", snap.ID).
		Int("records", len(snap.Records)).
		Int("samples", len(snap.Samples)).
		Int("working_set", view.Stats.Count).
		Str("total_profit_usd", decimal.NewFromFloat(view.Stats.TotalProfit).StringFixed(2)).
		Msg("snapshot applied")

	s.publish(view)
	return view, true
}

func (s *Service) publish(view session.View) {
	if s.deps.OnView != nil {
		s.deps.OnView(view)
	}
}

func (s *Service) archive(ctx context.Context, snap opportunity.Snapshot) {
	store := s.deps.Archive
	if store == nil {
		return
	}
	if err := store.SaveSnapshot(ctx, snap); err != nil {
		s.logger.Error().Err(err).Str("snapshot_id", snap.ID).Msg("failed to archive snapshot")
		return
	}
	if s.opts.Retention > 0 {
		s.prune(ctx, s.now().Add(-s.opts.Retention))
	}
}

func (s *Service) prune(ctx context.Context, cutoff time.Time) {
	pruned, err := s.deps.Archive.DeleteSnapshotsBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to prune archived snapshots")
	} else if pruned > 0 {
		s.logger.Debug().Int64("pruned", pruned).Time("cutoff", cutoff).Msg("pruned archived snapshots")
	}

	if s.deps.Alerts == nil {
		return
	}
	if err := s.deps.Alerts.DeleteAlertsBefore(ctx, cutoff); err != nil {
		s.logger.Error().Err(err).Msg("failed to prune alert records")
	}
}

// crossCheck compares the upstream summary with local aggregation over the
// unfiltered snapshot.
func (s *Service) crossCheck(snap opportunity.Snapshot) bool {
	if snap.Summary == nil {
		return true
	}
	local := pipeline.Aggregate(snap.Records)
	remote := *snap.Summary
	if local.Count == remote.Count &&
		math.Abs(local.TotalProfit-remote.TotalProfit) <= summaryTolerance &&
		math.Abs(local.MaxProfit-remote.MaxProfit) <= summaryTolerance {
		return true
	}

	if m := s.deps.Metrics; m != nil {
		m.SummaryMismatch.Inc()
	}
	s.logger.Warn().
		Str("snapshot_id", snap.ID).
		Int("local_count", local.Count).
		Int("upstream_count", remote.Count).
		Float64("local_total_usd", local.TotalProfit).
		Float64("upstream_total_usd", remote.TotalProfit).
		Msg("upstream summary disagrees with local aggregation")
	return false
}

// alert notifies once per ranked opportunity at or above the threshold.
func (s *Service) alert(ctx context.Context, view session.View) {
	if !s.opts.AlertsEnabled || s.deps.Notifier == nil {
		return
	}
	threshold := decimal.NewFromFloat(s.opts.AlertMinProfit)

	for i, rec := range view.Top {
		if rec.NetProfit < s.opts.AlertMinProfit {
			// Top is sorted by profit
			break
		}
		fresh, err := s.markAlerted(ctx, rec, threshold)
		if err != nil {
			s.logger.Error().Err(err).Time("opportunity_ts", rec.Timestamp).Msg("failed to persist alert record")
			continue
		}
		if !fresh {
			continue
		}

		note := alerting.Notification{
			Opportunity: rec,
			Rank:        i + 1,
			Threshold:   threshold,
			SnapshotID:  view.SnapshotID,
			Channels:    s.opts.Channels,
		}
		if err := s.deps.Notifier.Notify(ctx, note); err != nil {
			s.logger.Error().Err(err).Time("opportunity_ts", rec.Timestamp).Msg("failed to dispatch alert")
			continue
		}
		if m := s.deps.Metrics; m != nil {
			m.AlertsSent.Inc()
		}
	}
}

func (s *Service) markAlerted(ctx context.Context, rec opportunity.Record, threshold decimal.Decimal) (bool, error) {
	if s.deps.Alerts != nil {
		return s.deps.Alerts.RecordAlert(ctx, storage.AlertRecord{
			OpportunityTS: rec.Timestamp,
			Direction:     rec.Direction,
			NetProfit:     decimal.NewFromFloat(rec.NetProfit),
			Threshold:     threshold,
			Channels:      s.opts.Channels,
		})
	}

	key := alertKey{ts: rec.Timestamp.UnixMilli(), direction: rec.Direction}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.alerted[key]; seen {
		return false, nil
	}
	s.alerted[key] = struct{}{}
	return true, nil
}

func (s *Service) count(outcome string) {
	if m := s.deps.Metrics; m != nil {
		m.Refreshes.WithLabelValues(outcome).Inc()
	}
}
