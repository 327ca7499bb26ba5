// Package measure converts calibrated keypoint frames into named physical
// body measurements according to a configured measurement plan.
package measure

import (
	"time"

	"github.com/bodymorph/bodymorph/internal/pose"
)

// Value is one named measurement inside a set.
type Value struct {
	// Centimeters is the physical value.
	Centimeters float64 `json:"cm"`
	// Confidence is the minimum joint confidence used in the computation,
	// reduced for circumferences estimated from a front view alone.
	Confidence float64 `json:"confidence"`
	// AxisCm is the calibrated body axis observed by the contributing view
	// for circumference measurements: the frontal width in a front view,
	// the sagittal depth in a side view. Zero for linear measurements.
	AxisCm float64 `json:"axis_cm,omitempty"`
	// AxisConfidence is the unreduced minimum joint confidence of the
	// observed axis. Aggregation combines axes from this, so a front-only
	// estimation penalty on Confidence does not leak into a proper
	// two-view circumference.
	AxisConfidence float64 `json:"axis_confidence,omitempty"`
	// EstimatedFromFrontOnly marks a circumference computed without
	// side-view depth, using the assumed depth ratio.
	EstimatedFromFrontOnly bool `json:"estimated_from_front_only,omitempty"`
	// Conflicting marks a field where two authoritative views disagreed
	// beyond the configured tolerance during aggregation.
	Conflicting bool `json:"conflicting,omitempty"`
	// Sources lists the views that contributed this value.
	Sources []pose.View `json:"sources,omitempty"`
}

// Set is a measurement set produced from one view, or from aggregation
// when View is combined. A set with VerifiedByUser and IsAccurate both
// true is immutable; corrections require a new capture session.
type Set struct {
	UserID           string           `json:"user_id"`
	CaptureSessionID string           `json:"capture_session_id"`
	View             pose.View        `json:"pose_type"`
	CalibrationRatio float64          `json:"calibration_ratio"`
	Values           map[string]Value `json:"values"`
	IsAccurate       bool             `json:"is_accurate"`
	VerifiedByUser   bool             `json:"verified_by_user"`
	CreatedAt        time.Time        `json:"created_at"`
}

// Clone returns a deep copy of the set.
func (s *Set) Clone() *Set {
	values := make(map[string]Value, len(s.Values))
	for name, v := range s.Values {
		if len(v.Sources) > 0 {
			sources := make([]pose.View, len(v.Sources))
			copy(sources, v.Sources)
			v.Sources = sources
		}
		values[name] = v
	}
	out := *s
	out.Values = values
	return &out
}

// Vector returns the plan-ordered measurement values as a float32 vector,
// suitable for similarity search. Fields missing from the set are zero.
func (s *Set) Vector(plan *Plan) []float32 {
	vec := make([]float32, len(plan.Measurements))
	for i, entry := range plan.Measurements {
		if v, ok := s.Values[entry.Name]; ok {
			vec[i] = float32(v.Centimeters)
		}
	}
	return vec
}
