package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestEmptyTuningConfig_Defaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	ints := []struct {
		name string
		got  int
		want int
	}{
		{"window_size", cfg.GetWindowSize(), 60},
		{"trend_window_size", cfg.GetTrendWindowSize(), 30},
		{"trend_min_samples", cfg.GetTrendMinSamples(), 10},
	}
	for _, c := range ints {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}

	floats := []struct {
		name string
		got  float64
		want float64
	}{
		{"trend_threshold", cfg.GetTrendThreshold(), 0.02},
		{"confidence_threshold", cfg.GetConfidenceThreshold(), 0.3},
		{"amplitude_scale", cfg.GetAmplitudeScale(), 500},
		{"smoothing_alpha", cfg.GetSmoothingAlpha(), 0.2},
		{"symmetry_floor", cfg.GetSymmetryFloor(), 0.001},
		{"stability_coupling", cfg.GetStabilityCoupling(), 0.5},
		{"step_hysteresis", cfg.GetStepHysteresis(), 0.02},
	}
	for _, c := range floats {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}

	if got := cfg.GetAdmissionInterval(); got != 100*time.Millisecond {
		t.Errorf("admission_interval = %v, want 100ms", got)
	}
	if got := cfg.GetRecordInterval(); got != time.Second {
		t.Errorf("record_interval = %v, want 1s", got)
	}
}

func TestLoadTuningConfig(t *testing.T) {
	path := writeConfig(t, "tuning.json", `{
  "window_size": 90,
  "smoothing_alpha": 0.35,
  "admission_interval": "50ms"
}`)

	cfg, err := LoadTuningConfig(path)
	if err != nil {
		t.Fatalf("LoadTuningConfig() error: %v", err)
	}

	if got := cfg.GetWindowSize(); got != 90 {
		t.Errorf("window_size = %d, want 90", got)
	}
	if got := cfg.GetSmoothingAlpha(); got != 0.35 {
		t.Errorf("smoothing_alpha = %v, want 0.35", got)
	}
	if got := cfg.GetAdmissionInterval(); got != 50*time.Millisecond {
		t.Errorf("admission_interval = %v, want 50ms", got)
	}

	// Omitted fields fall back to defaults
	if cfg.AmplitudeScale != nil {
		t.Errorf("amplitude_scale = %v, want unset", *cfg.AmplitudeScale)
	}
	if got := cfg.GetAmplitudeScale(); got != 500 {
		t.Errorf("GetAmplitudeScale() = %v, want 500", got)
	}
}

func TestLoadTuningConfig_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"wrong extension", "tuning.yaml", `{}`, ".json extension"},
		{"bad json", "tuning.json", `{"window_size":`, "failed to parse config JSON"},
		{"window too small", "tuning.json", `{"window_size": 1}`, "window_size must be at least 2"},
		{"alpha out of range", "tuning.json", `{"smoothing_alpha": 1.5}`, "smoothing_alpha must be between 0 and 1"},
		{"negative scale", "tuning.json", `{"amplitude_scale": -1}`, "amplitude_scale must be non-negative"},
		{"zero floor", "tuning.json", `{"symmetry_floor": 0}`, "symmetry_floor must be positive"},
		{"bad interval", "tuning.json", `{"admission_interval": "soon"}`, "invalid admission_interval"},
		{"zero record interval", "tuning.json", `{"record_interval": "0s"}`, "record_interval must be positive"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := writeConfig(t, tt.file, tt.body)
			_, err := LoadTuningConfig(path)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadTuningConfig_MissingFile(t *testing.T) {
	_, err := LoadTuningConfig(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil || !strings.Contains(err.Error(), "failed to stat config file") {
		t.Errorf("error = %v, want stat failure", err)
	}
}

func TestLoadTuningConfig_TooLarge(t *testing.T) {
	body := `{"window_size": 60` + strings.Repeat(" ", 1024*1024) + `}`
	path := writeConfig(t, "big.json", body)
	_, err := LoadTuningConfig(path)
	if err == nil || !strings.Contains(err.Error(), "config file too large") {
		t.Errorf("error = %v, want size limit", err)
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if cfg == nil {
		t.Fatal("MustLoadDefaultConfig() returned nil")
	}

	// The shipped file spells out every default explicitly.
	if cfg.WindowSize == nil {
		t.Fatal("window_size missing from the defaults file")
	}
	defaults := EmptyTuningConfig()
	if got, want := cfg.GetWindowSize(), defaults.GetWindowSize(); got != want {
		t.Errorf("window_size = %d, want %d", got, want)
	}
	if got, want := cfg.GetAmplitudeScale(), defaults.GetAmplitudeScale(); got != want {
		t.Errorf("amplitude_scale = %v, want %v", got, want)
	}
	if got, want := cfg.GetAdmissionInterval(), defaults.GetAdmissionInterval(); got != want {
		t.Errorf("admission_interval = %v, want %v", got, want)
	}
}

func TestGetDurations_FallbackOnParseError(t *testing.T) {
	bad := "not-a-duration"
	cfg := &TuningConfig{AdmissionInterval: &bad, RecordInterval: &bad}
	if got := cfg.GetAdmissionInterval(); got != 100*time.Millisecond {
		t.Errorf("GetAdmissionInterval() = %v, want 100ms", got)
	}
	if got := cfg.GetRecordInterval(); got != time.Second {
		t.Errorf("GetRecordInterval() = %v, want 1s", got)
	}

	zero := "0s"
	cfg.AdmissionInterval = &zero
	if got := cfg.GetAdmissionInterval(); got != 0 {
		t.Errorf("GetAdmissionInterval() = %v, want 0", got)
	}
}
