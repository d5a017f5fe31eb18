package motion

import "gonum.org/v1/gonum/stat"

// TrendWindow keeps the most recent smoothed amplitudes and classifies their
// short-term direction with a two-half mean comparison.
type TrendWindow struct {
	values     *ring[float64]
	minSamples int
	threshold  float64
}

// NewTrendWindow returns an empty window of the given capacity.
func NewTrendWindow(capacity, minSamples int, threshold float64) *TrendWindow {
	return &TrendWindow{
		values:     newRing[float64](capacity),
		minSamples: minSamples,
		threshold:  threshold,
	}
}

// Observe appends an amplitude, evicting the oldest beyond capacity.
func (w *TrendWindow) Observe(amplitude float64) { w.values.push(amplitude) }

// Len returns the number of retained observations.
func (w *TrendWindow) Len() int { return w.values.len() }

// Clear drops all observations.
func (w *TrendWindow) Clear() { w.values.clear() }

// Classify compares the mean of the newer half of the window against the
// older half. An odd count puts the extra element in the newer half. Values
// within the threshold, and windows with too few samples, are stable.
func (w *TrendWindow) Classify() Trend {
	n := w.values.len()
	if n < w.minSamples || n < 2 {
		return TrendStable
	}
	vals := w.values.values()
	split := n / 2
	diff := stat.Mean(vals[split:], nil) - stat.Mean(vals[:split], nil)
	switch {
	case diff > w.threshold:
		return TrendIncreasing
	case diff < -w.threshold:
		return TrendDecreasing
	default:
		return TrendStable
	}
}
