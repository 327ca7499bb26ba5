// Package aggregate reconciles per-view measurement sets sharing a
// capture session into one combined set with per-field provenance.
package aggregate

import (
	"errors"
	"fmt"
	"time"

	"github.com/bodymorph/bodymorph/internal/measure"
	"github.com/bodymorph/bodymorph/internal/pose"
)

// DefaultTolerance is the maximum relative difference two authoritative
// views may report for the same field before it is flagged conflicting.
const DefaultTolerance = 0.08

var (
	// ErrNoSets is returned when reconciliation is attempted with no input.
	ErrNoSets = errors.New("no measurement sets to reconcile")
	// ErrSessionMismatch is returned when the inputs do not share one
	// capture session and owner.
	ErrSessionMismatch = errors.New("measurement sets belong to different sessions")
)

// Aggregator merges per-view measurement sets into a reconciled set.
type Aggregator struct {
	Plan *measure.Plan
	// Tolerance is the relative conflict tolerance, default 8%.
	Tolerance float64
	// MinConfidence gates the reconciled set's is_accurate flag.
	MinConfidence float64
}

// NewAggregator creates an aggregator with defaults applied.
func NewAggregator(plan *measure.Plan, tolerance, minConfidence float64) *Aggregator {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if minConfidence <= 0 {
		minConfidence = 0.5
	}
	return &Aggregator{Plan: plan, Tolerance: tolerance, MinConfidence: minConfidence}
}

// Reconcile merges the given per-view sets into one combined set. All
// inputs must share the same capture session and owner. The inputs are
// not mutated.
func (a *Aggregator) Reconcile(sets []*measure.Set) (*measure.Set, error) {
	if len(sets) == 0 {
		return nil, ErrNoSets
	}
	for _, s := range sets[1:] {
		if s.CaptureSessionID != sets[0].CaptureSessionID || s.UserID != sets[0].UserID {
			return nil, fmt.Errorf("%w: %s/%s vs %s/%s", ErrSessionMismatch,
				sets[0].UserID, sets[0].CaptureSessionID, s.UserID, s.CaptureSessionID)
		}
	}

	byView := make(map[pose.View]*measure.Set, len(sets))
	for _, s := range sets {
		byView[s.View] = s
	}

	out := &measure.Set{
		UserID:           sets[0].UserID,
		CaptureSessionID: sets[0].CaptureSessionID,
		View:             pose.ViewCombined,
		CalibrationRatio: a.calibrationRatio(byView, sets),
		Values:           make(map[string]measure.Value),
		CreatedAt:        time.Now().UTC(),
	}

	for i := range a.Plan.Measurements {
		entry := &a.Plan.Measurements[i]
		if v, ok := a.reconcileField(entry, byView); ok {
			out.Values[entry.Name] = v
		}
	}

	out.IsAccurate = a.accurate(out)
	return out, nil
}

// calibrationRatio picks the front view's scale factor when present; the
// views calibrate independently, so there is no single session ratio.
func (a *Aggregator) calibrationRatio(byView map[pose.View]*measure.Set, sets []*measure.Set) float64 {
	if front, ok := byView[pose.ViewFront]; ok {
		return front.CalibrationRatio
	}
	return sets[0].CalibrationRatio
}

// reconcileField merges the candidates for one plan entry. Returns false
// when no view supplied the field.
func (a *Aggregator) reconcileField(entry *measure.Entry, byView map[pose.View]*measure.Set) (measure.Value, bool) {
	var candidates []measure.Value
	var views []pose.View
	for _, view := range []pose.View{pose.ViewFront, pose.ViewSide} {
		set, ok := byView[view]
		if !ok {
			continue
		}
		if v, ok := set.Values[entry.Name]; ok {
			candidates = append(candidates, v)
			views = append(views, view)
		}
	}

	switch len(candidates) {
	case 0:
		return measure.Value{}, false
	case 1:
		// Single view: pass through unchanged with its original confidence.
		return candidates[0], true
	}

	if entry.Model == measure.ModelCircumference {
		return a.combineCircumference(candidates, views), true
	}
	return a.resolveLinear(candidates, views), true
}

// combineCircumference builds the combined front+side ellipse from the
// per-view axes. The single-view estimates are cross-checked against the
// tolerance; views that fundamentally disagree flag the field conflicting
// even though the combined value is still surfaced for review.
func (a *Aggregator) combineCircumference(candidates []measure.Value, views []pose.View) measure.Value {
	var width, depth float64
	conf := 1.0
	for i, v := range candidates {
		if views[i] == pose.ViewFront {
			width = v.AxisCm
		} else {
			depth = v.AxisCm
		}
		// The combined value uses the unreduced axis confidences; any
		// front-only estimation penalty on a candidate does not apply
		// once both axes were observed.
		c := v.Confidence
		if v.AxisConfidence > 0 {
			c = v.AxisConfidence
		}
		if c < conf {
			conf = c
		}
	}

	out := measure.Value{
		Confidence: conf,
		Sources:    views,
	}
	if width > 0 && depth > 0 {
		out.Centimeters = measure.EllipseCircumference(width/2, depth/2)
	} else {
		// Axes from the same side; fall back to the better estimate.
		out = candidates[0]
		out.Sources = views
	}

	if conflicting(candidates[0].Centimeters, candidates[1].Centimeters, a.Tolerance) {
		out.Conflicting = true
	}
	return out
}

// resolveLinear picks the authoritative value for a field two views both
// measured directly, flagging a conflict when equally authoritative
// values disagree beyond the tolerance.
func (a *Aggregator) resolveLinear(candidates []measure.Value, views []pose.View) measure.Value {
	best := 0
	for i := 1; i < len(candidates); i++ {
		if candidates[i].Confidence > candidates[best].Confidence {
			best = i
		}
	}

	out := candidates[best]
	out.Sources = views
	if conflicting(candidates[0].Centimeters, candidates[1].Centimeters, a.Tolerance) {
		out.Conflicting = true
	}
	return out
}

// conflicting reports whether two values differ by more than the relative
// tolerance, measured against the smaller value.
func conflicting(x, y, tolerance float64) bool {
	if x > y {
		x, y = y, x
	}
	if x <= 0 {
		return y > 0
	}
	return (y-x)/x > tolerance
}

// accurate reports session-level accuracy: every field confident enough,
// no conflicts, no front-only estimates.
func (a *Aggregator) accurate(set *measure.Set) bool {
	for _, v := range set.Values {
		if v.Conflicting || v.EstimatedFromFrontOnly || v.Confidence < a.MinConfidence {
			return false
		}
	}
	return len(set.Values) > 0
}
