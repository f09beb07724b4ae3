// Package viewport maps a selected instant onto a bounded index window of a
// time-ordered sample sequence and derives the plotted value ranges.
package viewport

import (
	"math"
	"slices"
	"time"

	"arb-explorer/internal/opportunity"
)

const (
	// DefaultHalfWidth is the number of samples shown on each side of a selection.
	DefaultHalfWidth = 20
	// DefaultMargin pads an auto-scaled price range.
	DefaultMargin = 5.0
)

// Window is an inclusive index range into a sample sequence.
type Window struct {
	Start int
	End   int
}

// Len is the number of samples covered.
func (w Window) Len() int {
	return w.End - w.Start + 1
}

// Contains reports whether idx lies inside the window.
func (w Window) Contains(idx int) bool {
	return idx >= w.Start && idx <= w.End
}

// ValidFor reports whether the window addresses a sequence of length n.
func (w Window) ValidFor(n int) bool {
	return n > 0 && w.Start >= 0 && w.Start <= w.End && w.End <= n-1
}

// Clamp fits the window to a sequence of length n. A window starting past
// the end collapses to the full range. ok is false when n is zero.
func (w Window) Clamp(n int) (Window, bool) {
	if n <= 0 {
		return Window{}, false
	}
	last := n - 1
	if w.Start < 0 {
		w.Start = 0
	}
	if w.Start > last || w.End < w.Start {
		return Window{Start: 0, End: last}, true
	}
	if w.End > last {
		w.End = last
	}
	return w, true
}

// FullWindow covers every sample. ok is false for an empty sequence.
func FullWindow(samples []opportunity.PriceSample) (Window, bool) {
	if len(samples) == 0 {
		return Window{}, false
	}
	return Window{Start: 0, End: len(samples) - 1}, true
}

// Locate finds the sample nearest to target and returns the window of
// halfWidth samples on each side of it, clamped to the sequence bounds.
// ok is false when there are no samples.
func Locate(samples []opportunity.PriceSample, target time.Time, halfWidth int) (Window, int, bool) {
	idx, ok := Nearest(samples, target)
	if !ok {
		return Window{}, -1, false
	}
	if halfWidth < 0 {
		halfWidth = DefaultHalfWidth
	}
	w := Window{
		Start: max(0, idx-halfWidth),
		End:   min(len(samples)-1, idx+halfWidth),
	}
	return w, idx, true
}

// Nearest returns the index with the smallest absolute distance to target.
// On equal distance the lower index wins. Ascending input is searched by
// bisection; anything else falls back to a linear scan with the same rule.
func Nearest(samples []opportunity.PriceSample, target time.Time) (int, bool) {
	if len(samples) == 0 {
		return -1, false
	}
	if !slices.IsSortedFunc(samples, compareSamples) {
		return nearestLinear(samples, target), true
	}

	hi, _ := slices.BinarySearchFunc(samples, target, func(s opportunity.PriceSample, t time.Time) int {
		return s.Timestamp.Compare(t)
	})
	if hi == len(samples) {
		return firstWithTimestamp(samples, len(samples)-1), true
	}
	if hi == 0 {
		return 0, true
	}
	lo := hi - 1
	if !distance(samples[hi].Timestamp, target).less(distance(samples[lo].Timestamp, target)) {
		return firstWithTimestamp(samples, lo), true
	}
	return hi, true
}

// Slice returns the samples covered by w. An out-of-range window is clamped.
func Slice(samples []opportunity.PriceSample, w Window) []opportunity.PriceSample {
	w, ok := w.Clamp(len(samples))
	if !ok {
		return nil
	}
	return samples[w.Start : w.End+1]
}

// Domain is a numeric axis range.
type Domain struct {
	Min float64
	Max float64
}

// PriceDomain derives the price axis from both venue prices of the visible
// slice. With autoscale it spans [min-margin, max+margin], otherwise [0, max].
// ok is false when the slice holds no finite price.
func PriceDomain(visible []opportunity.PriceSample, autoscale bool, margin float64) (Domain, bool) {
	series := make([]float64, 0, 2*len(visible))
	for _, s := range visible {
		series = append(series, s.PriceLeft, s.PriceRight)
	}
	return SeriesDomain(series, autoscale, margin)
}

// SpreadDomain derives the price difference axis of the visible slice,
// always fitted to the data.
func SpreadDomain(visible []opportunity.PriceSample) (Domain, bool) {
	series := make([]float64, 0, len(visible))
	for _, s := range visible {
		series = append(series, s.PriceDiff())
	}
	return SeriesDomain(series, true, 0)
}

// SeriesDomain is the single-series form of PriceDomain.
func SeriesDomain(series []float64, autoscale bool, margin float64) (Domain, bool) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if math.IsInf(lo, 1) {
		return Domain{}, false
	}
	if !autoscale {
		return Domain{Min: 0, Max: hi}, true
	}
	return Domain{Min: lo - margin, Max: hi + margin}, true
}

func nearestLinear(samples []opportunity.PriceSample, target time.Time) int {
	best := 0
	bestDist := distance(samples[0].Timestamp, target)
	for i := 1; i < len(samples); i++ {
		if d := distance(samples[i].Timestamp, target); d.less(bestDist) {
			best, bestDist = i, d
		}
	}
	return best
}

func firstWithTimestamp(samples []opportunity.PriceSample, idx int) int {
	for idx > 0 && samples[idx-1].Timestamp.Equal(samples[idx].Timestamp) {
		idx--
	}
	return idx
}

func compareSamples(a, b opportunity.PriceSample) int {
	return a.Timestamp.Compare(b.Timestamp)
}

// gap is an absolute time distance; unlike time.Duration it does not
// saturate past 292 years.
type gap struct {
	sec  int64
	nsec int64
}

func (g gap) less(o gap) bool {
	return g.sec < o.sec || (g.sec == o.sec && g.nsec < o.nsec)
}

func distance(a, b time.Time) gap {
	if a.Before(b) {
		a, b = b, a
	}
	g := gap{sec: a.Unix() - b.Unix(), nsec: int64(a.Nanosecond()) - int64(b.Nanosecond())}
	if g.nsec < 0 {
		g.sec--
		g.nsec += int64(time.Second)
	}
	return g
}
