package viewport

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arb-explorer/internal/opportunity"
)

var t0 = time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

func series(n int) []opportunity.PriceSample {
	out := make([]opportunity.PriceSample, n)
	for i := range out {
		out[i] = opportunity.PriceSample{
			Timestamp:  t0.Add(time.Duration(i) * time.Minute),
			PriceLeft:  4300 + float64(i),
			PriceRight: 4290 + float64(i),
		}
	}
	return out
}

func TestLocateBetweenSamplesPicksCloser(t *testing.T) {
	samples := series(100)
	target := t0.Add(47*time.Minute + 40*time.Second)

	w, center, ok := Locate(samples, target, DefaultHalfWidth)
	require.True(t, ok)
	assert.Equal(t, 48, center)
	assert.Equal(t, Window{Start: 28, End: 68}, w)
	assert.True(t, w.Contains(center))
}

func TestLocateClampsAtEdges(t *testing.T) {
	samples := series(100)

	w, center, ok := Locate(samples, t0.Add(-time.Hour), DefaultHalfWidth)
	require.True(t, ok)
	assert.Equal(t, 0, center)
	assert.Equal(t, Window{Start: 0, End: 20}, w)

	w, center, ok = Locate(samples, t0.Add(10*time.Hour), DefaultHalfWidth)
	require.True(t, ok)
	assert.Equal(t, 99, center)
	assert.Equal(t, Window{Start: 79, End: 99}, w)
}

func TestLocateEmpty(t *testing.T) {
	_, center, ok := Locate(nil, t0, DefaultHalfWidth)
	assert.False(t, ok)
	assert.Equal(t, -1, center)

	_, ok = FullWindow(nil)
	assert.False(t, ok)
}

func TestNearestTieGoesToEarlierIndex(t *testing.T) {
	samples := series(3)
	idx, ok := Nearest(samples, t0.Add(30*time.Second))
	require.True(t, ok)
	assert.Equal(t, 0, idx)
}

func TestNearestDuplicateTimestampsPickFirst(t *testing.T) {
	samples := []opportunity.PriceSample{
		{Timestamp: t0},
		{Timestamp: t0.Add(time.Minute)},
		{Timestamp: t0.Add(time.Minute)},
		{Timestamp: t0.Add(time.Minute)},
	}
	idx, _ := Nearest(samples, t0.Add(59*time.Second))
	assert.Equal(t, 1, idx)
	idx, _ = Nearest(samples, t0.Add(time.Hour))
	assert.Equal(t, 1, idx)
}

func TestNearestUnsortedMatchesLinearRule(t *testing.T) {
	samples := []opportunity.PriceSample{
		{Timestamp: t0.Add(5 * time.Minute)},
		{Timestamp: t0},
		{Timestamp: t0.Add(2 * time.Minute)},
		{Timestamp: t0.Add(4 * time.Minute)},
	}
	idx, _ := Nearest(samples, t0.Add(3*time.Minute))
	assert.Equal(t, 2, idx)
}

func TestNearestFarTargetBeyondDurationRange(t *testing.T) {
	samples := []opportunity.PriceSample{
		{Timestamp: t0.Add(5 * time.Minute)},
		{Timestamp: t0.Add(time.Minute)},
		{Timestamp: t0.Add(9 * time.Minute)},
	}
	future := time.Date(9000, 1, 1, 0, 0, 0, 0, time.UTC)
	past := time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC)

	idx, ok := Nearest(samples, future)
	require.True(t, ok)
	assert.Equal(t, 2, idx)
	idx, _ = Nearest(samples, past)
	assert.Equal(t, 1, idx)

	sorted := series(3)
	idx, _ = Nearest(sorted, future)
	assert.Equal(t, 2, idx)
	idx, _ = Nearest(sorted, past)
	assert.Equal(t, 0, idx)
}

func TestLocateWindowInvariant(t *testing.T) {
	for _, n := range []int{1, 2, 5, 41, 100} {
		samples := series(n)
		for offset := -5; offset < n+5; offset++ {
			target := t0.Add(time.Duration(offset) * time.Minute)
			w, center, ok := Locate(samples, target, DefaultHalfWidth)
			require.True(t, ok)
			assert.True(t, w.ValidFor(n), "n=%d offset=%d window=%+v", n, offset, w)
			assert.True(t, w.Contains(center))
		}
	}
}

func TestClamp(t *testing.T) {
	w, ok := Window{Start: 28, End: 68}.Clamp(50)
	require.True(t, ok)
	assert.Equal(t, Window{Start: 28, End: 49}, w)

	w, ok = Window{Start: 60, End: 80}.Clamp(50)
	require.True(t, ok)
	assert.Equal(t, Window{Start: 0, End: 49}, w)

	_, ok = Window{Start: 0, End: 3}.Clamp(0)
	assert.False(t, ok)
}

func TestSliceAndDomain(t *testing.T) {
	samples := series(100)
	visible := Slice(samples, Window{Start: 10, End: 12})
	require.Len(t, visible, 3)

	d, ok := PriceDomain(visible, true, DefaultMargin)
	require.True(t, ok)
	assert.Equal(t, Domain{Min: 4300 - 5, Max: 4312 + 5}, d)

	d, ok = PriceDomain(visible, false, DefaultMargin)
	require.True(t, ok)
	assert.Equal(t, Domain{Min: 0, Max: 4312}, d)

	full, _ := PriceDomain(samples, true, DefaultMargin)
	assert.NotEqual(t, full, d)

	spread, ok := SpreadDomain(visible)
	require.True(t, ok)
	assert.Equal(t, Domain{Min: 10, Max: 10}, spread)

	_, ok = SeriesDomain([]float64{math.NaN()}, true, 1)
	assert.False(t, ok)
}
