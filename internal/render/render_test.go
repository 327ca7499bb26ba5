package render

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/bodymorph/bodymorph/internal/pose"
)

func testFrame() *pose.Frame {
	return &pose.Frame{
		View:   pose.ViewFront,
		Width:  200,
		Height: 300,
		Joints: map[string]pose.Keypoint{
			pose.JointHeadTop:       {X: 100, Y: 20, Confidence: 0.9},
			pose.JointLeftShoulder:  {X: 70, Y: 80, Confidence: 0.9},
			pose.JointRightShoulder: {X: 130, Y: 80, Confidence: 0.3},
			pose.JointLeftAnkle:     {X: 90, Y: 280, Confidence: 0.9},
		},
	}
}

func TestFrameRendersJointsAndBones(t *testing.T) {
	img, err := Frame(testFrame(), 0.5, Options{})
	if err != nil {
		t.Fatalf("Frame() error = %v", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() != 200 || bounds.Dy() != 300 {
		t.Errorf("bounds = %v; want 200x300", bounds)
	}

	// Joint markers land where the keypoints are: a confident joint in
	// the OK color, a low-confidence one in the warning color.
	if got := img.RGBAAt(70, 80); got != colorJointOK {
		t.Errorf("confident joint color = %v; want %v", got, colorJointOK)
	}
	if got := img.RGBAAt(130, 80); got != colorJointLow {
		t.Errorf("low-confidence joint color = %v; want %v", got, colorJointLow)
	}

	// The shoulder bone runs between the two shoulders.
	if got := img.RGBAAt(100, 80); got != colorBone {
		t.Errorf("bone midpoint color = %v; want %v", got, colorBone)
	}

	// Pixels away from the skeleton keep the background.
	if got := img.RGBAAt(5, 295); got != colorBackground {
		t.Errorf("background color = %v; want %v", got, colorBackground)
	}
}

func TestFrameScale(t *testing.T) {
	img, err := Frame(testFrame(), 0.5, Options{Scale: 0.5})
	if err != nil {
		t.Fatalf("Frame() error = %v", err)
	}
	if img.Bounds().Dx() != 100 || img.Bounds().Dy() != 150 {
		t.Errorf("scaled bounds = %v; want 100x150", img.Bounds())
	}
}

func TestFrameRejectsEmptyDimensions(t *testing.T) {
	frame := &pose.Frame{View: pose.ViewFront}
	if _, err := Frame(frame, 0.5, Options{}); err == nil {
		t.Error("Frame() without dimensions should fail")
	}
}

func TestWritePNG(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePNG(&buf, testFrame(), 0.5, Options{}); err != nil {
		t.Fatalf("WritePNG() error = %v", err)
	}

	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("output is not valid PNG: %v", err)
	}
	if img.Bounds().Dx() != 200 {
		t.Errorf("decoded width = %d; want 200", img.Bounds().Dx())
	}
}
