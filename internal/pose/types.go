// Package pose defines keypoint frame types produced by the external
// pose-detection collaborator and the validation applied before any
// frame enters the measurement pipeline.
package pose

import (
	"fmt"
	"math"
	"time"
)

// View identifies the capture view a frame or measurement set belongs to.
type View string

// Capture views supported by the pipeline.
const (
	ViewFront    View = "front"
	ViewSide     View = "side"
	ViewCombined View = "combined"
)

// ParseView converts a string into a View.
func ParseView(s string) (View, error) {
	switch View(s) {
	case ViewFront, ViewSide, ViewCombined:
		return View(s), nil
	default:
		return "", fmt.Errorf("unknown view %q", s)
	}
}

// Keypoint is a single detected anatomical landmark in frame pixel
// coordinates. Z is optional depth information passed through for
// collaborators; the measurement core works in the X/Y pixel plane.
type Keypoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Frame is one immutable detection frame: a named-joint mapping plus the
// pixel bounds it was detected in. Frames are owned by the capture session
// that produced them and are never mutated by the pipeline.
type Frame struct {
	View       View                `json:"view"`
	Width      float64             `json:"width"`
	Height     float64             `json:"height"`
	Joints     map[string]Keypoint `json:"joints"`
	CapturedAt time.Time           `json:"captured_at,omitempty"`
}

// Joint returns the named keypoint and whether it is present.
func (f *Frame) Joint(name string) (Keypoint, bool) {
	kp, ok := f.Joints[name]
	return kp, ok
}

// PixelDistance returns the 2D pixel distance between two named joints.
// Returns an error if either joint is missing from the frame.
func (f *Frame) PixelDistance(a, b string) (float64, error) {
	ka, ok := f.Joints[a]
	if !ok {
		return 0, fmt.Errorf("joint %q not present in frame", a)
	}
	kb, ok := f.Joints[b]
	if !ok {
		return 0, fmt.Errorf("joint %q not present in frame", b)
	}
	dx := ka.X - kb.X
	dy := ka.Y - kb.Y
	return math.Hypot(dx, dy), nil
}

// MinConfidence returns the lowest confidence among the named joints.
// Missing joints count as zero confidence.
func (f *Frame) MinConfidence(names ...string) float64 {
	min := 1.0
	for _, n := range names {
		kp, ok := f.Joints[n]
		if !ok {
			return 0
		}
		if kp.Confidence < min {
			min = kp.Confidence
		}
	}
	return min
}

// Clone returns a deep copy of the frame. Callers that need to hold on to
// a frame beyond the ingest call copy it instead of sharing the map.
func (f *Frame) Clone() *Frame {
	joints := make(map[string]Keypoint, len(f.Joints))
	for name, kp := range f.Joints {
		joints[name] = kp
	}
	return &Frame{
		View:       f.View,
		Width:      f.Width,
		Height:     f.Height,
		Joints:     joints,
		CapturedAt: f.CapturedAt,
	}
}
