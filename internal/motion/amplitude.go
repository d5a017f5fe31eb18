package motion

import "math"

// SmoothAmplitude converts a channel variance into a normalized amplitude and
// blends it into the previous smoothed amplitude:
//
//	raw      = min(v*AmplitudeScale, 1)
//	smoothed = raw*SmoothingAlpha + prev*(1-SmoothingAlpha)
//
// It is pure; callers keep prev.
func SmoothAmplitude(v, prev float64) float64 {
	return smoothAmplitude(v, prev, AmplitudeScale, SmoothingAlpha)
}

func smoothAmplitude(v, prev, scale, alpha float64) float64 {
	raw := math.Min(v*scale, 1.0)
	return ema(raw, prev, alpha)
}

// ema blends sample into prev with weight alpha on the sample.
func ema(sample, prev, alpha float64) float64 {
	return sample*alpha + prev*(1-alpha)
}

// stabilityFromAmplitude derives the gait stability index from the smoothed
// tremor amplitude. This is a fixed inverse relation, not an independent
// measurement.
func stabilityFromAmplitude(amplitude, coupling float64) float64 {
	return math.Max(1.0-amplitude*coupling, 0)
}
