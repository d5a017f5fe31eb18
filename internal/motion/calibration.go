package motion

import "github.com/banshee-data/motion.report/internal/config"

// Calibration parameters. None of these are derived from first principles;
// they were tuned against clinical recordings and are open to retuning.
const (
	// WindowSize is the per-joint history length (about 1s at 60 Hz).
	WindowSize = 60
	// TrendWindowSize is the number of smoothed amplitudes kept for trend
	// classification.
	TrendWindowSize = 30
	// TrendMinSamples is the number of observations needed before a trend
	// other than stable is reported.
	TrendMinSamples = 10
	// TrendThreshold is the half-window mean difference that counts as a
	// direction change.
	TrendThreshold = 0.02

	// ConfidenceThreshold is the minimum keypoint confidence (exclusive).
	ConfidenceThreshold = 0.3
	// AmplitudeScale maps normalized keypoint spread into [0,1].
	AmplitudeScale = 500.0
	// SmoothingAlpha is the EMA weight of the newest sample.
	SmoothingAlpha = 0.2
	// SymmetryFloor bounds both variances from below in the symmetry ratio.
	SymmetryFloor = 0.001
	// StabilityCoupling scales amplitude into the stability penalty.
	StabilityCoupling = 0.5
	// StepHysteresis is the vertical ankle separation needed to switch the
	// leading foot.
	StepHysteresis = 0.02

	// HapticAmplitudeThreshold triggers corrective haptic feedback.
	HapticAmplitudeThreshold = 0.3
	// GuidePathStabilityThreshold shows the visual guide path.
	GuidePathStabilityThreshold = 0.8
)

// Calibration bundles the tunable engine parameters.
type Calibration struct {
	WindowSize          int
	TrendWindowSize     int
	TrendMinSamples     int
	TrendThreshold      float64
	ConfidenceThreshold float64
	AmplitudeScale      float64
	SmoothingAlpha      float64
	SymmetryFloor       float64
	StabilityCoupling   float64
	StepHysteresis      float64
}

// DefaultCalibration returns the shipped calibration.
func DefaultCalibration() Calibration {
	return Calibration{
		WindowSize:          WindowSize,
		TrendWindowSize:     TrendWindowSize,
		TrendMinSamples:     TrendMinSamples,
		TrendThreshold:      TrendThreshold,
		ConfidenceThreshold: ConfidenceThreshold,
		AmplitudeScale:      AmplitudeScale,
		SmoothingAlpha:      SmoothingAlpha,
		SymmetryFloor:       SymmetryFloor,
		StabilityCoupling:   StabilityCoupling,
		StepHysteresis:      StepHysteresis,
	}
}

// CalibrationFromTuning applies the tuning file on top of the defaults.
// Unset fields keep their default value.
func CalibrationFromTuning(t *config.TuningConfig) Calibration {
	if t == nil {
		return DefaultCalibration()
	}
	return Calibration{
		WindowSize:          t.GetWindowSize(),
		TrendWindowSize:     t.GetTrendWindowSize(),
		TrendMinSamples:     t.GetTrendMinSamples(),
		TrendThreshold:      t.GetTrendThreshold(),
		ConfidenceThreshold: t.GetConfidenceThreshold(),
		AmplitudeScale:      t.GetAmplitudeScale(),
		SmoothingAlpha:      t.GetSmoothingAlpha(),
		SymmetryFloor:       t.GetSymmetryFloor(),
		StabilityCoupling:   t.GetStabilityCoupling(),
		StepHysteresis:      t.GetStepHysteresis(),
	}
}
