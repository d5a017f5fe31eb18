package motion

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorKind classifies session-level problems recorded in Snapshot.LastError.
type ErrorKind int

const (
	// PoseEstimationFailed means the detector produced no usable result for a
	// frame. Transient: the next frame is processed normally.
	PoseEstimationFailed ErrorKind = iota + 1
	// LowConfidence marks a keypoint below the acceptance threshold. It only
	// causes the sample to be dropped and is never recorded on the session.
	LowConfidence
	// CaptureUnavailable is reported by frame sources when the capture
	// device cannot deliver frames.
	CaptureUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case PoseEstimationFailed:
		return "pose_estimation_failed"
	case LowConfidence:
		return "low_confidence"
	case CaptureUnavailable:
		return "capture_unavailable"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

var (
	ErrPoseEstimation     = errors.New("pose estimation failed")
	ErrCaptureUnavailable = errors.New("capture unavailable")
)

// SessionError is an error absorbed by the engine and surfaced to consumers.
type SessionError struct {
	Kind  ErrorKind
	Cause error
}

func (e *SessionError) Error() string {
	if e.Cause == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *SessionError) Unwrap() error { return e.Cause }

// Is lets errors.Is match a SessionError against the kind sentinels.
func (e *SessionError) Is(target error) bool {
	switch target {
	case ErrPoseEstimation:
		return e.Kind == PoseEstimationFailed
	case ErrCaptureUnavailable:
		return e.Kind == CaptureUnavailable
	}
	return false
}

func (e *SessionError) MarshalJSON() ([]byte, error) {
	out := struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	}{Kind: e.Kind.String(), Message: e.Error()}
	return json.Marshal(out)
}

// PoseError wraps cause as a PoseEstimationFailed session error.
func PoseError(cause error) *SessionError {
	return &SessionError{Kind: PoseEstimationFailed, Cause: cause}
}

// CaptureError wraps cause as a CaptureUnavailable session error.
func CaptureError(cause error) *SessionError {
	return &SessionError{Kind: CaptureUnavailable, Cause: cause}
}

// asSessionError classifies an arbitrary frame error. Errors that are not
// already session errors are treated as pose estimation failures.
func asSessionError(err error) *SessionError {
	var se *SessionError
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, ErrCaptureUnavailable) {
		return CaptureError(err)
	}
	return PoseError(err)
}
