package measure

import (
	"fmt"
	"time"

	"github.com/bodymorph/bodymorph/internal/pose"
)

// Computer converts validated, calibrated frames into measurement sets.
// It is a pure function of (frame, calibration, plan); it never mutates
// its inputs and carries no state between calls.
type Computer struct {
	Plan *Plan
	// MinConfidence is the per-field confidence threshold that gates
	// the is_accurate flag.
	MinConfidence float64
	// DepthRatio is the assumed depth/width ratio for front-only
	// circumference estimates.
	DepthRatio float64
}

// NewComputer creates a computer with defaults applied for zero-valued
// thresholds.
func NewComputer(plan *Plan, minConfidence, depthRatio float64) *Computer {
	if minConfidence <= 0 {
		minConfidence = 0.5
	}
	if depthRatio <= 0 {
		depthRatio = DefaultDepthRatio
	}
	return &Computer{Plan: plan, MinConfidence: minConfidence, DepthRatio: depthRatio}
}

// Compute produces a per-view measurement set from a validated frame and
// its calibration. Recomputing with the same inputs yields the same set.
func (c *Computer) Compute(frame *pose.Frame, calib Calibration) (*Set, error) {
	if calib.ScaleFactor <= 0 {
		return nil, fmt.Errorf("%w: scale factor must be positive", ErrInvalidCalibration)
	}

	set := &Set{
		View:             frame.View,
		CalibrationRatio: calib.ScaleFactor,
		Values:           make(map[string]Value),
		CreatedAt:        time.Now().UTC(),
	}

	for _, entry := range c.Plan.ForView(frame.View) {
		var v Value
		var err error
		switch entry.Model {
		case ModelLinear:
			v, err = c.linear(frame, calib, entry)
		case ModelCircumference:
			v, err = c.circumference(frame, calib, entry)
		}
		if err != nil {
			return nil, fmt.Errorf("computing %s: %w", entry.Name, err)
		}
		set.Values[entry.Name] = v
	}

	set.IsAccurate = c.accurate(set)
	return set, nil
}

// linear computes a straight joint-to-joint distance in centimeters.
func (c *Computer) linear(frame *pose.Frame, calib Calibration, entry *Entry) (Value, error) {
	dist, err := frame.PixelDistance(entry.Joints[0], entry.Joints[1])
	if err != nil {
		return Value{}, err
	}
	return Value{
		Centimeters: dist * calib.ScaleFactor,
		Confidence:  frame.MinConfidence(entry.Joints...),
		Sources:     []pose.View{frame.View},
	}, nil
}

// circumference computes an elliptical circumference estimate from the
// body axis visible in this view. A front view observes the width axis and
// estimates depth via the configured ratio; a side view observes the depth
// axis and estimates width the same way. The observed axis is kept on the
// value so aggregation can combine both views into a proper ellipse.
func (c *Computer) circumference(frame *pose.Frame, calib Calibration, entry *Entry) (Value, error) {
	var joints []string
	if frame.View == pose.ViewFront {
		joints = entry.WidthJoints
	} else {
		joints = entry.DepthJoints
	}

	dist, err := frame.PixelDistance(joints[0], joints[1])
	if err != nil {
		return Value{}, err
	}
	axis := dist * calib.ScaleFactor
	conf := frame.MinConfidence(joints...)

	var a, b float64
	if frame.View == pose.ViewFront {
		a = axis / 2
		b = a * c.DepthRatio
	} else {
		b = axis / 2
		a = b / c.DepthRatio
	}

	v := Value{
		Centimeters:            EllipseCircumference(a, b),
		Confidence:             conf,
		AxisCm:                 axis,
		AxisConfidence:         conf,
		EstimatedFromFrontOnly: frame.View == pose.ViewFront,
		Sources:                []pose.View{frame.View},
	}
	// Only a front-only estimate carries reduced confidence; the raw axis
	// confidence stays on the value for multi-view reconciliation.
	if v.EstimatedFromFrontOnly {
		v.Confidence = conf * frontOnlyConfidencePenalty
	}
	return v, nil
}

// accurate reports whether every field clears the confidence threshold and
// none is a front-only estimate.
func (c *Computer) accurate(set *Set) bool {
	for _, v := range set.Values {
		if v.Confidence < c.MinConfidence || v.EstimatedFromFrontOnly || v.Conflicting {
			return false
		}
	}
	return len(set.Values) > 0
}
