package measure

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/bodymorph/bodymorph/internal/pose"
)

// Model identifies the physical model used to compute a measurement.
type Model string

// Supported physical models.
const (
	// ModelLinear is a straight pixel distance between two joints,
	// scaled to centimeters.
	ModelLinear Model = "linear"
	// ModelCircumference is an elliptical estimate built from a
	// front-view width axis and a side-view depth axis.
	ModelCircumference Model = "circumference"
)

// Entry describes how one named measurement is computed.
type Entry struct {
	Name  string `yaml:"name"`
	Model Model  `yaml:"model"`

	// View is the view a linear measurement is taken from.
	View pose.View `yaml:"view,omitempty"`
	// Joints is the joint pair for linear measurements.
	Joints []string `yaml:"joints,omitempty"`

	// WidthJoints is the front-view pair spanning the body width axis
	// for circumference measurements.
	WidthJoints []string `yaml:"width_joints,omitempty"`
	// DepthJoints is the side-view pair spanning the body depth axis.
	DepthJoints []string `yaml:"depth_joints,omitempty"`
}

// Plan enumerates the measurements the pipeline computes and the joints
// each one needs. Plans come from static configuration and are immutable
// at runtime.
type Plan struct {
	Measurements []Entry `yaml:"measurements"`

	byName map[string]*Entry
}

// ParsePlan decodes and validates a YAML measurement plan.
func ParsePlan(data []byte) (*Plan, error) {
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parsing measurement plan: %w", err)
	}
	if err := plan.init(); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (p *Plan) init() error {
	if len(p.Measurements) == 0 {
		return fmt.Errorf("measurement plan has no measurements")
	}

	p.byName = make(map[string]*Entry, len(p.Measurements))
	for i := range p.Measurements {
		e := &p.Measurements[i]
		if e.Name == "" {
			return fmt.Errorf("measurement plan entry %d has no name", i)
		}
		key := NormalizeName(e.Name)
		if _, dup := p.byName[key]; dup {
			return fmt.Errorf("duplicate measurement %q in plan", e.Name)
		}

		switch e.Model {
		case ModelLinear:
			if len(e.Joints) != 2 {
				return fmt.Errorf("linear measurement %q needs exactly 2 joints, got %d", e.Name, len(e.Joints))
			}
			if e.View == "" {
				e.View = pose.ViewFront
			}
		case ModelCircumference:
			if len(e.WidthJoints) != 2 {
				return fmt.Errorf("circumference measurement %q needs exactly 2 width joints", e.Name)
			}
			if len(e.DepthJoints) != 2 {
				return fmt.Errorf("circumference measurement %q needs exactly 2 depth joints", e.Name)
			}
		default:
			return fmt.Errorf("measurement %q has unknown model %q", e.Name, e.Model)
		}

		p.byName[key] = e
	}
	return nil
}

// Entry looks up a plan entry by name. The lookup is tolerant of case and
// diacritic variants supplied by external collaborators.
func (p *Plan) Entry(name string) (*Entry, bool) {
	e, ok := p.byName[NormalizeName(name)]
	return e, ok
}

// ForView returns the plan entries measurable from the given view.
// Circumference entries appear for both front (width axis) and side
// (depth axis) views.
func (p *Plan) ForView(view pose.View) []*Entry {
	var out []*Entry
	for i := range p.Measurements {
		e := &p.Measurements[i]
		switch e.Model {
		case ModelLinear:
			if e.View == view {
				out = append(out, e)
			}
		case ModelCircumference:
			if view == pose.ViewFront || view == pose.ViewSide {
				out = append(out, e)
			}
		}
	}
	return out
}

// RequiredJoints returns the sorted set of joints the plan needs in a
// frame of the given view, including the calibration reference joints.
func (p *Plan) RequiredJoints(view pose.View, ref Reference) []string {
	seen := map[string]struct{}{
		ref.TopJoint:    {},
		ref.BottomJoint: {},
	}
	for _, e := range p.ForView(view) {
		var joints []string
		switch {
		case e.Model == ModelLinear:
			joints = e.Joints
		case view == pose.ViewFront:
			joints = e.WidthJoints
		default:
			joints = e.DepthJoints
		}
		for _, j := range joints {
			seen[j] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for j := range seen {
		out = append(out, j)
	}
	sort.Strings(out)
	return out
}
