// Package motion turns per-frame body keypoints into smoothed motion metrics:
// tremor amplitude, gait stability, bilateral gait symmetry and a short-term
// tremor trend.
//
// The Engine owns all per-joint history and publishes an immutable Snapshot
// after every processed frame. Frames must reach ProcessFrame from a single
// worker; see the admission package for the drop-oldest mailbox that does
// this in the daemon.
package motion

import (
	"encoding/json"
	"fmt"
	"strings"
)

// JointRole identifies a tracked anatomical landmark.
type JointRole string

const (
	RightWrist JointRole = "right_wrist"
	LeftWrist  JointRole = "left_wrist"
	RightAnkle JointRole = "right_ankle"
	LeftAnkle  JointRole = "left_ankle"
)

// TrackedJoints lists every role the pipelines read.
var TrackedJoints = []JointRole{RightWrist, LeftWrist, RightAnkle, LeftAnkle}

// Keypoint is a single pose-estimation sample in normalized image
// coordinates.
type Keypoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float32 `json:"c"`
}

// Point returns the position part of the sample.
func (k Keypoint) Point() Point { return Point{X: k.X, Y: k.Y} }

// Point is a 2D position.
type Point struct {
	X float64
	Y float64
}

// Frame is the set of keypoints detected in one captured frame. Roles absent
// from Keypoints are treated as undetected. Err is set when the pose
// estimator failed for this frame.
type Frame struct {
	Seq       uint64
	Keypoints map[JointRole]Keypoint
	Err       error
}

// Mode selects which joints feed which metrics.
type Mode int

const (
	ModeTremor Mode = iota
	ModeGait
)

func (m Mode) String() string {
	switch m {
	case ModeTremor:
		return "tremor"
	case ModeGait:
		return "gait"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "tremor" or "gait", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tremor":
		return ModeTremor, nil
	case "gait":
		return ModeGait, nil
	default:
		return 0, fmt.Errorf("unknown mode %q: expected tremor or gait", s)
	}
}

func (m Mode) MarshalJSON() ([]byte, error) { return json.Marshal(m.String()) }

func (m *Mode) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Trend is the short-term direction of the tremor amplitude.
type Trend int

const (
	TrendStable Trend = iota
	TrendIncreasing
	TrendDecreasing
)

func (t Trend) String() string {
	switch t {
	case TrendStable:
		return "stable"
	case TrendIncreasing:
		return "increasing"
	case TrendDecreasing:
		return "decreasing"
	default:
		return fmt.Sprintf("Trend(%d)", int(t))
	}
}

func (t Trend) MarshalJSON() ([]byte, error) { return json.Marshal(t.String()) }

// Snapshot is the published metric state. Values are immutable once
// published; the engine replaces the whole snapshot on every update.
type Snapshot struct {
	TremorAmplitude    float64       `json:"tremor_amplitude"`
	GaitStabilityIndex float64       `json:"gait_stability_index"`
	GaitSymmetryIndex  float64       `json:"gait_symmetry_index"`
	TremorTrend        Trend         `json:"tremor_trend"`
	SessionStepCount   uint          `json:"session_step_count"`
	IsActive           bool          `json:"is_active"`
	LastError          *SessionError `json:"last_error,omitempty"`
	Mode               Mode          `json:"mode"`
	FramesProcessed    uint64        `json:"frames_processed"`
}

// DefaultSnapshot returns the metric values of a fresh or reset session.
func DefaultSnapshot() Snapshot {
	return Snapshot{
		TremorAmplitude:    0,
		GaitStabilityIndex: 1,
		GaitSymmetryIndex:  1,
		TremorTrend:        TrendStable,
	}
}
