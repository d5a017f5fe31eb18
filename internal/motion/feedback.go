package motion

// Feedback is the cue set a rendering layer should present for a snapshot.
type Feedback struct {
	// Haptic requests a corrective pulse.
	Haptic bool `json:"haptic"`
	// GuidePath requests the visual walking guide.
	GuidePath bool `json:"guide_path"`
}

// EvaluateFeedback applies the fixed cue thresholds to a snapshot. Inactive
// sessions never produce cues.
func EvaluateFeedback(s Snapshot) Feedback {
	if !s.IsActive {
		return Feedback{}
	}
	return Feedback{
		Haptic:    s.TremorAmplitude > HapticAmplitudeThreshold,
		GuidePath: s.GaitStabilityIndex < GuidePathStabilityThreshold,
	}
}
