package session

import (
	"time"

	"arb-explorer/internal/opportunity"
	"arb-explorer/internal/pipeline"
	"arb-explorer/internal/ranking"
	"arb-explorer/internal/viewport"
)

// View is everything the table, chart and summary render for one revision.
// All three are derived from the same filtered working set.
type View struct {
	Revision   uint64
	SnapshotID string
	Filter     pipeline.FilterState

	// Filtered is the working set in snapshot order.
	Filtered []opportunity.Record
	// Top is the ranked, deduplicated table page of the working set.
	Top []opportunity.Record
	// Distinct counts deduplicated rows before truncation to Top.
	Distinct int
	Stats    opportunity.Summary
	// Excluded counts malformed records and samples dropped from this view.
	Excluded int

	HasWindow bool
	Window    viewport.Window
	// Selected is the focused instant; zero when nothing is selected.
	Selected time.Time
	// Center is the sample index nearest Selected, or -1.
	Center int
	// Chart is the visible slice of samples.
	Chart []opportunity.PriceSample

	HasDomain    bool
	PriceDomain  viewport.Domain
	SpreadDomain viewport.Domain
}

// View derives the current view. Repeated calls without an intervening
// change return the same result.
func (s *Session) View() View {
	if s.cached != nil && s.cached.Revision == s.revision {
		return *s.cached
	}

	filtered := pipeline.Filter(s.snapshot.Records, s.filter)
	ranked := ranking.Rank(filtered)

	v := View{
		Revision:   s.revision,
		SnapshotID: s.snapshot.ID,
		Filter:     s.filter,
		Filtered:   filtered,
		Top:        ranked.Top(s.opts.TopN),
		Distinct:   ranked.Len(),
		Stats:      pipeline.Aggregate(filtered),
		Excluded:   s.snapshot.Excluded + ranked.Excluded(),
		Center:     s.center,
	}
	if s.mode == windowSelected {
		v.Selected = s.selected
	}

	window, ok := s.window, s.window.ValidFor(len(s.snapshot.Samples))
	if !ok {
		// no selection result or a stale window: fall back to the full range
		window, ok = viewport.FullWindow(s.snapshot.Samples)
	}
	if ok {
		v.HasWindow = true
		v.Window = window
		v.Chart = viewport.Slice(s.snapshot.Samples, window)
		price, okPrice := viewport.PriceDomain(v.Chart, s.opts.Autoscale, s.opts.Margin)
		spread, okSpread := viewport.SpreadDomain(v.Chart)
		if okPrice && okSpread {
			v.HasDomain = true
			v.PriceDomain = price
			v.SpreadDomain = spread
		}
	}

	s.cached = &v
	return v
}
