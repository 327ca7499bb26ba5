package measure

import (
	"slices"
	"testing"

	"github.com/bodymorph/bodymorph/internal/pose"
)

func TestParsePlanRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty plan", `measurements: []`},
		{"missing name", `
measurements:
  - model: linear
    joints: [left_shoulder, right_shoulder]
`},
		{"unknown model", `
measurements:
  - name: x
    model: volumetric
`},
		{"linear with one joint", `
measurements:
  - name: x
    model: linear
    joints: [left_shoulder]
`},
		{"circumference without depth joints", `
measurements:
  - name: x
    model: circumference
    width_joints: [left_hip, right_hip]
`},
		{"duplicate name", `
measurements:
  - name: x
    model: linear
    joints: [left_shoulder, right_shoulder]
  - name: X
    model: linear
    joints: [left_hip, right_hip]
`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParsePlan([]byte(tc.yaml)); err == nil {
				t.Error("ParsePlan() = nil error; want failure")
			}
		})
	}
}

func TestPlanEntryLookupIsNormalized(t *testing.T) {
	plan := testPlan(t)

	for _, name := range []string{"shoulder_width", "Shoulder Width", "SHOULDER-WIDTH"} {
		if _, ok := plan.Entry(name); !ok {
			t.Errorf("Entry(%q) not found; want normalized match", name)
		}
	}
	if _, ok := plan.Entry("inseam"); ok {
		t.Error("Entry(inseam) found; want miss")
	}
}

func TestPlanRequiredJoints(t *testing.T) {
	plan := testPlan(t)
	ref := DefaultReference(170)

	front := plan.RequiredJoints(pose.ViewFront, ref)
	for _, j := range []string{pose.JointHeadTop, pose.JointLeftAnkle, pose.JointLeftShoulder, pose.JointRightShoulder, pose.JointLeftHip, pose.JointRightHip} {
		if !slices.Contains(front, j) {
			t.Errorf("front required joints missing %s", j)
		}
	}
	if slices.Contains(front, pose.JointWaistFront) {
		t.Error("front required joints should not include side contour points")
	}

	side := plan.RequiredJoints(pose.ViewSide, ref)
	for _, j := range []string{pose.JointWaistFront, pose.JointWaistBack, pose.JointHeadTop} {
		if !slices.Contains(side, j) {
			t.Errorf("side required joints missing %s", j)
		}
	}
}

func TestPlanForView(t *testing.T) {
	plan := testPlan(t)

	front := plan.ForView(pose.ViewFront)
	if len(front) != 2 {
		t.Errorf("ForView(front) = %d entries; want 2", len(front))
	}
	side := plan.ForView(pose.ViewSide)
	if len(side) != 1 || side[0].Name != "waist" {
		t.Errorf("ForView(side) = %v; want only waist", side)
	}
}
