package pose

import (
	"math"
	"testing"
)

func TestPixelDistance(t *testing.T) {
	frame := &Frame{
		View: ViewFront, Width: 640, Height: 800,
		Joints: map[string]Keypoint{
			JointLeftShoulder:  {X: 0, Y: 0, Confidence: 0.9},
			JointRightShoulder: {X: 3, Y: 4, Confidence: 0.8},
		},
	}

	d, err := frame.PixelDistance(JointLeftShoulder, JointRightShoulder)
	if err != nil {
		t.Fatalf("PixelDistance() error = %v", err)
	}
	if math.Abs(d-5) > 1e-9 {
		t.Errorf("PixelDistance() = %v; want 5", d)
	}

	if _, err := frame.PixelDistance(JointLeftShoulder, JointLeftAnkle); err == nil {
		t.Error("PixelDistance() with missing joint should fail")
	}
}

func TestMinConfidence(t *testing.T) {
	frame := &Frame{
		Joints: map[string]Keypoint{
			"a": {Confidence: 0.9},
			"b": {Confidence: 0.6},
		},
	}

	if got := frame.MinConfidence("a", "b"); got != 0.6 {
		t.Errorf("MinConfidence(a, b) = %v; want 0.6", got)
	}
	if got := frame.MinConfidence("a", "missing"); got != 0 {
		t.Errorf("MinConfidence with missing joint = %v; want 0", got)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	frame := testFrame()
	clone := frame.Clone()

	kp := clone.Joints[JointHeadTop]
	kp.X = 999
	clone.Joints[JointHeadTop] = kp

	if frame.Joints[JointHeadTop].X == 999 {
		t.Error("mutating clone changed the original frame")
	}
}

func TestParseView(t *testing.T) {
	tests := []struct {
		in      string
		want    View
		wantErr bool
	}{
		{"front", ViewFront, false},
		{"side", ViewSide, false},
		{"combined", ViewCombined, false},
		{"back", "", true},
		{"", "", true},
	}

	for _, tc := range tests {
		got, err := ParseView(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseView(%q) error = %v; wantErr %v", tc.in, err, tc.wantErr)
		}
		if got != tc.want {
			t.Errorf("ParseView(%q) = %v; want %v", tc.in, got, tc.want)
		}
	}
}
