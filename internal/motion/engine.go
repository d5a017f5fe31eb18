package motion

import (
	"sync"
	"sync/atomic"

	"github.com/banshee-data/motion.report/internal/monitoring"
)

// Engine routes frames to the active mode's pipeline and owns every channel
// and derived metric.
//
// ProcessFrame and the lifecycle methods are serialized by an internal
// mutex. Snapshot is lock-free and always returns a fully published state.
type Engine struct {
	cal Calibration

	mu       sync.Mutex
	active   bool
	mode     Mode
	channels map[JointRole]*Channel
	trend    *TrendWindow
	steps    stepCounter
	metrics  Snapshot // working copy, guarded by mu

	published atomic.Pointer[Snapshot]
}

// NewEngine returns an inactive engine in tremor mode with empty history.
func NewEngine(cal Calibration) *Engine {
	e := &Engine{
		cal:      cal,
		mode:     ModeTremor,
		channels: make(map[JointRole]*Channel, len(TrackedJoints)),
		trend:    NewTrendWindow(cal.TrendWindowSize, cal.TrendMinSamples, cal.TrendThreshold),
		steps:    stepCounter{hysteresis: cal.StepHysteresis},
		metrics:  DefaultSnapshot(),
	}
	for _, role := range TrackedJoints {
		e.channels[role] = NewChannel(role, cal.WindowSize)
	}
	e.publishLocked()
	return e
}

// Snapshot returns the most recently published metrics.
func (e *Engine) Snapshot() Snapshot {
	return *e.published.Load()
}

// Start activates the session and clears any recorded error.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		monitoring.Logf("motion: session started (mode=%s)", e.mode)
	}
	e.active = true
	e.metrics.LastError = nil
	e.publishLocked()
}

// Stop deactivates the session. History and metrics are kept. Once Stop
// returns, every subsequent ProcessFrame call is discarded.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active {
		monitoring.Logf("motion: session stopped after %d frames", e.metrics.FramesProcessed)
	}
	e.active = false
	e.publishLocked()
}

// Reset clears all history and restores default metrics. The active state
// is unchanged.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ch := range e.channels {
		ch.Clear()
	}
	e.trend.Clear()
	e.steps.reset()
	e.metrics = DefaultSnapshot()
	e.publishLocked()
}

// SetMode switches the active pipeline. Channel history is kept; channels
// the new mode does not read simply stop receiving samples.
func (e *Engine) SetMode(m Mode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if m != e.mode {
		monitoring.Logf("motion: mode %s -> %s", e.mode, m)
	}
	e.mode = m
	e.publishLocked()
}

// Mode returns the active mode.
func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// ChannelLen returns the number of points held for role.
func (e *Engine) ChannelLen(role JointRole) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, ok := e.channels[role]
	if !ok {
		return 0
	}
	return ch.Len()
}

// ProcessFrame runs one frame through the active pipeline and publishes the
// result. Frames are discarded while the session is inactive. A frame that
// carries a pose estimation error is recorded in LastError and does not
// update any metric.
func (e *Engine) ProcessFrame(f Frame) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.active {
		return
	}

	if f.Err != nil {
		e.metrics.LastError = asSessionError(f.Err)
		e.publishLocked()
		return
	}

	switch e.mode {
	case ModeTremor:
		e.processTremor(f)
	case ModeGait:
		e.processGait(f)
	}
	e.metrics.FramesProcessed++
	e.publishLocked()
}

func (e *Engine) processTremor(f Frame) {
	right := e.channels[RightWrist]
	left := e.channels[LeftWrist]
	e.accept(right, f)
	e.accept(left, f)

	avg := (right.Variance() + left.Variance()) / 2
	e.updateTremor(avg)
}

func (e *Engine) processGait(f Frame) {
	leftAnkle := e.channels[LeftAnkle]
	rightAnkle := e.channels[RightAnkle]
	lp, lok := e.accept(leftAnkle, f)
	rp, rok := e.accept(rightAnkle, f)

	ratio := symmetryRatio(leftAnkle.Variance(), rightAnkle.Variance(), e.cal.SymmetryFloor)
	e.metrics.GaitSymmetryIndex = ema(ratio, e.metrics.GaitSymmetryIndex, e.cal.SmoothingAlpha)

	if lok && rok {
		e.steps.observe(lp, rp)
		e.metrics.SessionStepCount = e.steps.count
	}

	wrist := e.channels[RightWrist]
	e.accept(wrist, f)
	e.updateTremor(wrist.Variance())
}

// updateTremor is the amplitude, stability and trend pipeline shared by
// both modes.
func (e *Engine) updateTremor(variance float64) {
	amp := smoothAmplitude(variance, e.metrics.TremorAmplitude, e.cal.AmplitudeScale, e.cal.SmoothingAlpha)
	e.metrics.TremorAmplitude = amp
	e.metrics.GaitStabilityIndex = stabilityFromAmplitude(amp, e.cal.StabilityCoupling)
	e.trend.Observe(amp)
	e.metrics.TremorTrend = e.trend.Classify()
}

// accept pushes the frame's sample for ch if it clears the confidence
// threshold. Missing and low-confidence samples leave the channel untouched.
// The comparison is done in float32 so a sample of exactly 0.3 is rejected.
func (e *Engine) accept(ch *Channel, f Frame) (Point, bool) {
	kp, ok := f.Keypoints[ch.Role()]
	if !ok || kp.Confidence <= float32(e.cal.ConfidenceThreshold) {
		return Point{}, false
	}
	p := kp.Point()
	ch.Push(p)
	return p, true
}

func (e *Engine) publishLocked() {
	s := e.metrics
	s.IsActive = e.active
	s.Mode = e.mode
	e.published.Store(&s)
}
