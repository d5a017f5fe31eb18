// Package report renders recorded motion sessions as PNG plots and text
// summaries.
package report

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/motion.report/internal/db"
)

// ErrNoSamples is returned when a session has nothing to render.
var ErrNoSamples = errors.New("session has no samples")

// Default plot size.
const (
	DefaultWidth  = 12 * vg.Inch
	DefaultHeight = 5 * vg.Inch
)

var (
	amplitudeColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	stabilityColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	symmetryColor  = color.RGBA{R: 44, G: 160, B: 44, A: 255}
)

// Summary condenses a session's samples.
type Summary struct {
	Samples       int           `json:"samples"`
	Duration      time.Duration `json:"duration_ns"`
	MeanAmplitude float64       `json:"mean_tremor_amplitude"`
	PeakAmplitude float64       `json:"peak_tremor_amplitude"`
	MinStability  float64       `json:"min_gait_stability_index"`
	MeanSymmetry  float64       `json:"mean_gait_symmetry_index"`
	Steps         uint          `json:"step_count"`
}

// Summarize computes a Summary. An empty sample set yields a zero Summary.
func Summarize(samples []db.MetricSample) Summary {
	if len(samples) == 0 {
		return Summary{}
	}
	amp := make([]float64, len(samples))
	stab := make([]float64, len(samples))
	sym := make([]float64, len(samples))
	for i, m := range samples {
		amp[i] = m.TremorAmplitude
		stab[i] = m.GaitStabilityIndex
		sym[i] = m.GaitSymmetryIndex
	}
	last := samples[len(samples)-1]
	return Summary{
		Samples:       len(samples),
		Duration:      last.SampledAt.Sub(samples[0].SampledAt),
		MeanAmplitude: stat.Mean(amp, nil),
		PeakAmplitude: floats.Max(amp),
		MinStability:  floats.Min(stab),
		MeanSymmetry:  stat.Mean(sym, nil),
		Steps:         last.StepCount,
	}
}

// NewSessionPlot builds a plot of amplitude, stability and symmetry against
// seconds since the session started.
func NewSessionPlot(sess db.Session, samples []db.MetricSample) (*plot.Plot, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Session %s (%s) %s", sess.ID, sess.Mode, sess.StartedAt.Format("2006-01-02 15:04"))
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Index"
	p.Y.Min = 0
	p.Y.Max = 1
	p.Add(plotter.NewGrid())

	amp := make(plotter.XYs, len(samples))
	stab := make(plotter.XYs, len(samples))
	sym := make(plotter.XYs, len(samples))
	for i, m := range samples {
		x := m.SampledAt.Sub(sess.StartedAt).Seconds()
		amp[i] = plotter.XY{X: x, Y: m.TremorAmplitude}
		stab[i] = plotter.XY{X: x, Y: m.GaitStabilityIndex}
		sym[i] = plotter.XY{X: x, Y: m.GaitSymmetryIndex}
	}

	series := []struct {
		name string
		pts  plotter.XYs
		c    color.Color
	}{
		{"tremor amplitude", amp, amplitudeColor},
		{"gait stability", stab, stabilityColor},
		{"gait symmetry", sym, symmetryColor},
	}
	for _, s := range series {
		line, err := plotter.NewLine(s.pts)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.name, err)
		}
		line.Color = s.c
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(s.name, line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// SavePNG renders the session plot to path.
func SavePNG(path string, sess db.Session, samples []db.MetricSample) error {
	p, err := NewSessionPlot(sess, samples)
	if err != nil {
		return err
	}
	if err := p.Save(DefaultWidth, DefaultHeight, path); err != nil {
		return fmt.Errorf("failed to save plot %s: %w", path, err)
	}
	return nil
}

// WritePNG renders the session plot to w.
func WritePNG(w io.Writer, sess db.Session, samples []db.MetricSample) error {
	p, err := NewSessionPlot(sess, samples)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(DefaultWidth, DefaultHeight, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}
