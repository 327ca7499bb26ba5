package pose

import "fmt"

// RejectionReason classifies why a frame failed validation.
type RejectionReason string

// Rejection reasons reported by the validator.
const (
	RejectMissingJoint  RejectionReason = "missing_joint"
	RejectLowConfidence RejectionReason = "low_confidence"
	RejectOutOfBounds   RejectionReason = "out_of_bounds"
)

// ValidationError reports the first validation failure found in a frame.
// It carries the offending joint name so the caller can prompt a targeted
// re-capture.
type ValidationError struct {
	Reason RejectionReason
	Joint  string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("frame rejected (%s): joint %q: %s", e.Reason, e.Joint, e.Detail)
	}
	return fmt.Sprintf("frame rejected (%s): joint %q", e.Reason, e.Joint)
}

// Validator checks detection frames for completeness before they are used
// for measurement. It has no side effects and never retries; re-capture is
// a verification-workflow decision.
type Validator struct {
	// MinConfidence is the minimum per-joint confidence, default 0.5.
	MinConfidence float64
}

// NewValidator creates a validator with the given confidence threshold.
// A non-positive threshold falls back to the 0.5 default.
func NewValidator(minConfidence float64) *Validator {
	if minConfidence <= 0 {
		minConfidence = 0.5
	}
	return &Validator{MinConfidence: minConfidence}
}

// Validate checks that every required joint is present, confident enough,
// and inside the frame bounds. Returns nil on success or a *ValidationError
// describing the first failure.
func (v *Validator) Validate(frame *Frame, required []string) error {
	for _, name := range required {
		kp, ok := frame.Joints[name]
		if !ok {
			return &ValidationError{Reason: RejectMissingJoint, Joint: name}
		}
		if kp.Confidence < v.MinConfidence {
			return &ValidationError{
				Reason: RejectLowConfidence,
				Joint:  name,
				Detail: fmt.Sprintf("confidence %.2f below threshold %.2f", kp.Confidence, v.MinConfidence),
			}
		}
		if kp.X < 0 || kp.Y < 0 || kp.X > frame.Width || kp.Y > frame.Height {
			return &ValidationError{
				Reason: RejectOutOfBounds,
				Joint:  name,
				Detail: fmt.Sprintf("(%.1f, %.1f) outside %gx%g frame", kp.X, kp.Y, frame.Width, frame.Height),
			}
		}
	}
	return nil
}
