package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"arb-explorer/internal/alerting"
	"arb-explorer/internal/config"
	"arb-explorer/internal/fetcher"
	"arb-explorer/internal/metrics"
	"arb-explorer/internal/opportunity"
	"arb-explorer/internal/scheduler"
	"arb-explorer/internal/service"
	"arb-explorer/internal/session"
	"arb-explorer/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer

	// fetcher overrides the upstream client; tests use it.
	fetcher fetcher.SnapshotFetcher
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config: cfg,
		Logger: logger.With().Str("component", "app").Logger(),
		Out:    os.Stdout,
	}
}

func (a *App) newFetcher() fetcher.SnapshotFetcher {
	if a.fetcher != nil {
		return a.fetcher
	}
	up := a.Config.Upstream
	return fetcher.NewClient(fetcher.Options{
		BaseURL:           up.BaseURL,
		Timeout:           up.Timeout,
		UserAgent:         up.UserAgent,
		RequestsPerSecond: up.RequestsPerSecond,
		Burst:             up.Burst,
		MaxRetries:        up.MaxRetries,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return alerting.NewLogNotifier(a.Logger)
}

func (a *App) channels() []string {
	if a.Config.Alerting.Telegram.Enabled {
		return []string{"telegram"}
	}
	return []string{"log"}
}

// openArchive returns nil without error when no database is configured.
func (a *App) openArchive(ctx context.Context) (storage.Archive, func(), error) {
	archive, err := storage.Open(ctx, a.Config.Database)
	if errors.Is(err, storage.ErrNotConfigured) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		if err := archive.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("close archive")
		}
	}
	return archive, closer, nil
}

func (a *App) request(src SourceOptions) (fetcher.Request, error) {
	tfValue := src.Timeframe
	if tfValue == "" {
		tfValue = a.Config.Upstream.Timeframe
	}
	tf, err := opportunity.ParseTimeframe(tfValue)
	if err != nil {
		return fetcher.Request{}, err
	}
	minProfit := a.Config.Upstream.MinProfit
	if src.MinProfit != nil {
		minProfit = *src.MinProfit
	}
	return fetcher.Request{Timeframe: tf, MinProfit: minProfit}, nil
}

// loadSnapshot fetches a fresh snapshot or reads one from the archive.
func (a *App) loadSnapshot(ctx context.Context, src SourceOptions) (opportunity.Snapshot, error) {
	if !src.Stored && src.SnapshotID == "" {
		req, err := a.request(src)
		if err != nil {
			return opportunity.Snapshot{}, err
		}
		snap, err := a.newFetcher().FetchSnapshot(ctx, req)
		if err != nil {
			return opportunity.Snapshot{}, err
		}
		if snap.Excluded > 0 {
			a.Logger.Warn().Int("excluded", snap.Excluded).Msg("malformed upstream entries excluded")
		}
		return snap, nil
	}

	archive, closeArchive, err := a.openArchive(ctx)
	if err != nil {
		return opportunity.Snapshot{}, err
	}
	if archive == nil {
		return opportunity.Snapshot{}, errors.New("database not configured; cannot read stored snapshots")
	}
	defer closeArchive()

	if src.SnapshotID != "" {
		return archive.LoadSnapshot(ctx, src.SnapshotID)
	}
	return archive.LatestSnapshot(ctx)
}

func (a *App) newSession(view ViewOptions) *session.Session {
	opts := session.Options{
		TopN:      a.Config.ResolveTopN(view.Top),
		HalfWidth: a.Config.View.HalfWidth,
		Margin:    a.Config.View.Margin,
		Autoscale: a.Config.View.Autoscale,
	}
	return session.New(opts)
}

// Watch refreshes the snapshot on the scheduler interval and prints the
// ranked table after every applied refresh.
func (a *App) Watch(ctx context.Context, opts WatchOptions) error {
	if opts.Source.Stored || opts.Source.SnapshotID != "" {
		return errors.New("watch always fetches from upstream; stored snapshots are read by show, export and locate")
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	req, err := a.request(opts.Source)
	if err != nil {
		return err
	}

	archive, closeArchive, err := a.openArchive(ctx)
	if err != nil {
		return err
	}
	if archive == nil {
		a.Logger.Warn().Msg("database.driver not configured; snapshot archive disabled")
	} else {
		defer closeArchive()
	}

	sched, err := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		Immediate:    a.Config.Scheduler.Immediate,
	}, a.Logger)
	if err != nil {
		return err
	}

	var instruments *metrics.Collectors
	if a.Config.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		instruments = metrics.New(reg)
		metrics.Serve(ctx, a.Config.Metrics.Addr, reg, a.Logger)
	}

	deps := service.Deps{
		Scheduler: sched,
		Fetcher:   a.newFetcher(),
		Metrics:   instruments,
		OnView: func(v session.View) {
			if v.SnapshotID == "" {
				// nothing fetched yet
				return
			}
			if err := a.renderView(v); err != nil {
				a.Logger.Error().Err(err).Msg("render view")
			}
		},
	}
	if archive != nil {
		deps.Archive = archive
		deps.Alerts = archive
	}
	if a.Config.Alerting.Enabled {
		deps.Notifier = a.newNotifier()
	}

	svc, err := service.New(service.Options{
		Request:        req,
		AlertsEnabled:  a.Config.Alerting.Enabled,
		AlertMinProfit: a.Config.Alerting.MinProfit,
		Channels:       a.channels(),
		Retention:      a.Config.Database.Retention,
	}, a.newSession(opts.View), deps, a.Logger)
	if err != nil {
		return err
	}

	// selection and window are located once the first snapshot arrives
	svc.Update(func(sess *session.Session) {
		err = applyView(sess, opts.View)
		switch {
		case opts.View.Select != nil:
			sess.SelectTimestamp(*opts.View.Select)
		case opts.View.Window != nil:
			sess.SetWindow(*opts.View.Window)
		}
	})
	if err != nil {
		return err
	}

	a.Logger.Info().
		Str("timeframe", string(req.Timeframe)).
		Float64("min_profit", req.MinProfit).
		Dur("interval", a.Config.Scheduler.Interval).
		Msg("starting watch")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("watch terminated with error")
		return err
	}

	a.Logger.Info().Msg("watch stopped")
	return nil
}

func (a *App) renderView(v session.View) error {
	fmt.Fprintf(a.Out, "\n== snapshot %s (rev %d) ==\n", v.SnapshotID, v.Revision)
	return renderRanked(a.Out, v)
}
