// Package session holds the analyst's working state (filters, chart selection
// and the current snapshot) and derives one consistent view from it.
//
// A Session is owned by a single goroutine; it does no locking.
package session

import (
	"time"

	"arb-explorer/internal/opportunity"
	"arb-explorer/internal/pipeline"
	"arb-explorer/internal/ranking"
	"arb-explorer/internal/viewport"
)

// Options configure derived views.
type Options struct {
	TopN      int
	HalfWidth int
	Margin    float64
	Autoscale bool
}

// DefaultOptions mirror the dashboard defaults.
func DefaultOptions() Options {
	return Options{
		TopN:      ranking.DefaultTopN,
		HalfWidth: viewport.DefaultHalfWidth,
		Margin:    viewport.DefaultMargin,
		Autoscale: true,
	}
}

type windowMode int

const (
	windowFull windowMode = iota
	windowSelected
	windowManual
)

// Session is the mutable state driven by user actions.
type Session struct {
	opts     Options
	snapshot opportunity.Snapshot
	filter   pipeline.FilterState
	selected time.Time
	mode     windowMode
	window   viewport.Window
	center   int
	revision uint64
	cached   *View

	// requested is the manual window as asked for, before clamping.
	requested viewport.Window
}

// New returns an empty session.
func New(opts Options) *Session {
	if opts.TopN <= 0 {
		opts.TopN = ranking.DefaultTopN
	}
	if opts.HalfWidth < 0 {
		opts.HalfWidth = viewport.DefaultHalfWidth
	}
	return &Session{opts: opts, center: -1}
}

// Revision increases on every state change. Interactive callers compare it,
// or use Current, to drop views computed before their latest action.
func (s *Session) Revision() uint64 {
	return s.revision
}

// Snapshot returns the snapshot currently in use.
func (s *Session) Snapshot() opportunity.Snapshot {
	return s.snapshot
}

// FilterState returns the active filters.
func (s *Session) FilterState() pipeline.FilterState {
	return s.filter
}

// SetDirection constrains the working set to one direction; DirectionNone clears it.
func (s *Session) SetDirection(d opportunity.Direction) {
	s.filter.Direction = d
	s.bump()
}

// SetDateRange constrains the working set to whole days; nil clears it.
func (s *Session) SetDateRange(r *pipeline.DateRange) {
	if r != nil {
		cp := *r
		r = &cp
	}
	s.filter.DateRange = r
	s.bump()
}

// SetAutoscale toggles the price axis between fitted and zero-based.
func (s *Session) SetAutoscale(on bool) {
	s.opts.Autoscale = on
	s.bump()
}

// SelectTimestamp focuses the chart on the sample nearest ts. When the
// snapshot holds no samples the selection is remembered but ok is false and
// the view falls back to the full range.
func (s *Session) SelectTimestamp(ts time.Time) (viewport.Window, bool) {
	s.selected = ts
	s.mode = windowSelected
	s.relocate()
	s.bump()
	return s.window, s.center >= 0
}

// SetWindow applies a manually dragged window, clamped to the samples. With
// no samples yet ok is false and the window is applied once samples arrive.
func (s *Session) SetWindow(w viewport.Window) (viewport.Window, bool) {
	clamped, ok := w.Clamp(len(s.snapshot.Samples))
	s.mode = windowManual
	s.requested = w
	s.selected = time.Time{}
	s.center = -1
	s.window = clamped
	s.bump()
	return clamped, ok
}

// ClearSelection forgets the selected instant. A manual window is kept.
// Interactive callers use it to deselect a table row.
func (s *Session) ClearSelection() {
	if s.mode != windowSelected {
		return
	}
	s.ResetWindow()
}

// ResetWindow drops any selection and shows every sample.
func (s *Session) ResetWindow() {
	s.mode = windowFull
	s.selected = time.Time{}
	s.center = -1
	s.window, _ = viewport.FullWindow(s.snapshot.Samples)
	s.bump()
}

// NewSnapshotArrived replaces the dataset atomically. Filters carry over and
// are applied to the new records. The window is derived again from the new
// samples: a selection is located anew, a manual window is clamped, and the
// default stays the full range.
// Malformed records and samples are dropped here and counted in Excluded.
func (s *Session) NewSnapshotArrived(snap opportunity.Snapshot) {
	var badRecords, badSamples int
	snap.Records, badRecords = opportunity.Sanitize(snap.Records)
	snap.Samples, badSamples = opportunity.SanitizeSamples(snap.Samples)
	snap.Excluded += badRecords + badSamples
	s.snapshot = snap
	switch s.mode {
	case windowSelected:
		s.relocate()
	case windowManual:
		s.window, _ = s.requested.Clamp(len(snap.Samples))
	default:
		s.window, _ = viewport.FullWindow(snap.Samples)
	}
	s.bump()
}

// Current reports whether v still reflects the latest state. Views computed
// before a later change must be discarded, not merged.
func (s *Session) Current(v View) bool {
	return v.Revision == s.revision
}

func (s *Session) relocate() {
	w, idx, ok := viewport.Locate(s.snapshot.Samples, s.selected, s.opts.HalfWidth)
	if !ok {
		s.window = viewport.Window{}
		s.center = -1
		return
	}
	s.window = w
	s.center = idx
}

func (s *Session) bump() {
	s.revision++
	s.cached = nil
}
