package app

import (
	"fmt"
	"time"

	"arb-explorer/internal/opportunity"
	"arb-explorer/internal/pipeline"
	"arb-explorer/internal/session"
	"arb-explorer/internal/viewport"
)

// SourceOptions choose where a snapshot comes from.
type SourceOptions struct {
	Timeframe string
	MinProfit *float64
	// Stored reads the latest archived snapshot instead of fetching.
	Stored bool
	// SnapshotID reads one archived snapshot.
	SnapshotID string
}

// ViewOptions are the user actions replayed onto a fresh session.
type ViewOptions struct {
	Direction opportunity.Direction
	From      *time.Time
	To        *time.Time
	Select    *time.Time
	Window    *viewport.Window
	Top       int
	Autoscale *bool
}

// WatchOptions configure the watch command.
type WatchOptions struct {
	Source SourceOptions
	View   ViewOptions
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Source SourceOptions
	View   ViewOptions
	// All prints every deduplicated row instead of the top page.
	All bool
}

// ExportOptions configure the export command.
type ExportOptions struct {
	Source  SourceOptions
	View    ViewOptions
	CSVPath string
	PNGPath string
	// Stdout writes the CSV to the app output instead of a file.
	Stdout bool
}

// LocateOptions configure the locate command.
type LocateOptions struct {
	Source SourceOptions
	At     time.Time
	View   ViewOptions
}

// applyView replays opts onto sess in the order a user would.
func applyView(sess *session.Session, opts ViewOptions) error {
	if opts.Direction != opportunity.DirectionNone {
		sess.SetDirection(opts.Direction)
	}
	if opts.Autoscale != nil {
		sess.SetAutoscale(*opts.Autoscale)
	}
	if opts.From != nil || opts.To != nil {
		r, err := dateRange(opts.From, opts.To)
		if err != nil {
			return err
		}
		sess.SetDateRange(&r)
	}
	return nil
}

// applyWindow runs after the snapshot is in place since both depend on samples.
func applyWindow(sess *session.Session, opts ViewOptions) error {
	switch {
	case opts.Select != nil:
		if _, ok := sess.SelectTimestamp(*opts.Select); !ok {
			return fmt.Errorf("no chart samples to locate %s", opts.Select.Format(time.RFC3339))
		}
	case opts.Window != nil:
		if _, ok := sess.SetWindow(*opts.Window); !ok {
			return fmt.Errorf("window %d..%d does not fit the chart", opts.Window.Start, opts.Window.End)
		}
	}
	return nil
}

func dateRange(from, to *time.Time) (pipeline.DateRange, error) {
	switch {
	case from != nil && to != nil:
		if to.Before(*from) {
			return pipeline.DateRange{}, fmt.Errorf("--to must not be before --from")
		}
		return pipeline.DateRange{Start: *from, End: *to}, nil
	case from != nil:
		return pipeline.DateRange{Start: *from, End: *from}, nil
	default:
		return pipeline.DateRange{}, fmt.Errorf("--to requires --from")
	}
}

// prepare loads a snapshot and derives the view described by opts.
func (a *App) prepare(sess *session.Session, snap opportunity.Snapshot, opts ViewOptions) (session.View, error) {
	if err := applyView(sess, opts); err != nil {
		return session.View{}, err
	}
	sess.NewSnapshotArrived(snap)
	if err := applyWindow(sess, opts); err != nil {
		return session.View{}, err
	}
	return sess.View(), nil
}
