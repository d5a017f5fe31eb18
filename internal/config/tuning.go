package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default calibration values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig holds the engine calibration and service timing parameters.
// Every field is optional; the Get* accessors supply the shipped defaults for
// anything the JSON leaves out, so partial files are safe.
type TuningConfig struct {
	// Channel and trend windows
	WindowSize      *int     `json:"window_size,omitempty"`
	TrendWindowSize *int     `json:"trend_window_size,omitempty"`
	TrendMinSamples *int     `json:"trend_min_samples,omitempty"`
	TrendThreshold  *float64 `json:"trend_threshold,omitempty"`

	// Amplitude and symmetry estimation
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
	AmplitudeScale      *float64 `json:"amplitude_scale,omitempty"`
	SmoothingAlpha      *float64 `json:"smoothing_alpha,omitempty"`
	SymmetryFloor       *float64 `json:"symmetry_floor,omitempty"`
	StabilityCoupling   *float64 `json:"stability_coupling,omitempty"`
	StepHysteresis      *float64 `json:"step_hysteresis,omitempty"`

	// Service timing
	AdmissionInterval *string `json:"admission_interval,omitempty"` // duration string like "100ms"
	RecordInterval    *string `json:"record_interval,omitempty"`    // duration string like "1s"
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents up to the repository root.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	for name, v := range map[string]*int{
		"window_size":       c.WindowSize,
		"trend_window_size": c.TrendWindowSize,
	} {
		if v != nil && *v < 2 {
			return fmt.Errorf("%s must be at least 2, got %d", name, *v)
		}
	}

	if c.TrendMinSamples != nil && *c.TrendMinSamples < 0 {
		return fmt.Errorf("trend_min_samples must be non-negative, got %d", *c.TrendMinSamples)
	}

	for name, v := range map[string]*float64{
		"confidence_threshold": c.ConfidenceThreshold,
		"smoothing_alpha":      c.SmoothingAlpha,
	} {
		if v != nil && (*v < 0 || *v > 1) {
			return fmt.Errorf("%s must be between 0 and 1, got %f", name, *v)
		}
	}

	for name, v := range map[string]*float64{
		"amplitude_scale":    c.AmplitudeScale,
		"symmetry_floor":     c.SymmetryFloor,
		"trend_threshold":    c.TrendThreshold,
		"stability_coupling": c.StabilityCoupling,
		"step_hysteresis":    c.StepHysteresis,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", name, *v)
		}
	}
	if c.SymmetryFloor != nil && *c.SymmetryFloor == 0 {
		return fmt.Errorf("symmetry_floor must be positive")
	}

	if c.AdmissionInterval != nil && *c.AdmissionInterval != "" {
		if _, err := time.ParseDuration(*c.AdmissionInterval); err != nil {
			return fmt.Errorf("invalid admission_interval '%s': %w", *c.AdmissionInterval, err)
		}
	}
	if c.RecordInterval != nil && *c.RecordInterval != "" {
		d, err := time.ParseDuration(*c.RecordInterval)
		if err != nil {
			return fmt.Errorf("invalid record_interval '%s': %w", *c.RecordInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("record_interval must be positive, got %s", d)
		}
	}

	return nil
}

// GetWindowSize returns the window_size value or the default.
func (c *TuningConfig) GetWindowSize() int {
	if c.WindowSize == nil {
		return 60
	}
	return *c.WindowSize
}

// GetTrendWindowSize returns the trend_window_size value or the default.
func (c *TuningConfig) GetTrendWindowSize() int {
	if c.TrendWindowSize == nil {
		return 30
	}
	return *c.TrendWindowSize
}

// GetTrendMinSamples returns the trend_min_samples value or the default.
func (c *TuningConfig) GetTrendMinSamples() int {
	if c.TrendMinSamples == nil {
		return 10
	}
	return *c.TrendMinSamples
}

// GetTrendThreshold returns the trend_threshold value or the default.
func (c *TuningConfig) GetTrendThreshold() float64 {
	if c.TrendThreshold == nil {
		return 0.02
	}
	return *c.TrendThreshold
}

// GetConfidenceThreshold returns the confidence_threshold value or the default.
func (c *TuningConfig) GetConfidenceThreshold() float64 {
	if c.ConfidenceThreshold == nil {
		return 0.3
	}
	return *c.ConfidenceThreshold
}

// GetAmplitudeScale returns the amplitude_scale value or the default.
func (c *TuningConfig) GetAmplitudeScale() float64 {
	if c.AmplitudeScale == nil {
		return 500
	}
	return *c.AmplitudeScale
}

// GetSmoothingAlpha returns the smoothing_alpha value or the default.
func (c *TuningConfig) GetSmoothingAlpha() float64 {
	if c.SmoothingAlpha == nil {
		return 0.2
	}
	return *c.SmoothingAlpha
}

// GetSymmetryFloor returns the symmetry_floor value or the default.
func (c *TuningConfig) GetSymmetryFloor() float64 {
	if c.SymmetryFloor == nil {
		return 0.001
	}
	return *c.SymmetryFloor
}

// GetStabilityCoupling returns the stability_coupling value or the default.
func (c *TuningConfig) GetStabilityCoupling() float64 {
	if c.StabilityCoupling == nil {
		return 0.5
	}
	return *c.StabilityCoupling
}

// GetStepHysteresis returns the step_hysteresis value or the default.
func (c *TuningConfig) GetStepHysteresis() float64 {
	if c.StepHysteresis == nil {
		return 0.02
	}
	return *c.StepHysteresis
}

// GetAdmissionInterval returns the minimum spacing between processed frames.
// Zero disables throttling.
func (c *TuningConfig) GetAdmissionInterval() time.Duration {
	if c.AdmissionInterval == nil || *c.AdmissionInterval == "" {
		return 100 * time.Millisecond // 10 Hz
	}
	d, err := time.ParseDuration(*c.AdmissionInterval)
	if err != nil {
		return 100 * time.Millisecond // default on parse error
	}
	return d
}

// GetRecordInterval returns how often the session recorder samples metrics.
func (c *TuningConfig) GetRecordInterval() time.Duration {
	if c.RecordInterval == nil || *c.RecordInterval == "" {
		return time.Second
	}
	d, err := time.ParseDuration(*c.RecordInterval)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}
