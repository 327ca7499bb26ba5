package measure

import (
	"errors"
	"fmt"

	"github.com/bodymorph/bodymorph/internal/pose"
)

// ErrInvalidCalibration is returned when the calibration joint pair is
// degenerate: missing, coincident, or closer than the minimum pixel
// distance.
var ErrInvalidCalibration = errors.New("invalid calibration")

// DefaultMinCalibrationPixels is the minimum pixel distance between the
// calibration joints. Anything shorter indicates a degenerate detection
// and would blow up the scale factor.
const DefaultMinCalibrationPixels = 10.0

// Reference is the known physical quantity used to derive the
// pixel-to-centimeter scale, typically the user's height between the
// head-top and ankle keypoints.
type Reference struct {
	// HeightCm is the user-entered physical length in centimeters.
	HeightCm float64 `json:"height_cm"`
	// TopJoint and BottomJoint are the joints whose pixel distance
	// approximates HeightCm in the frame.
	TopJoint    string `json:"top_joint"`
	BottomJoint string `json:"bottom_joint"`
}

// DefaultReference returns the standard head-top-to-ankle reference for
// the given height.
func DefaultReference(heightCm float64) Reference {
	return Reference{
		HeightCm:    heightCm,
		TopJoint:    pose.JointHeadTop,
		BottomJoint: pose.JointLeftAnkle,
	}
}

// Calibration carries the derived scale factor for a single frame.
// It is per-frame and never reused across sessions because camera
// distance and zoom can change between captures.
type Calibration struct {
	// ScaleFactor is centimeters per pixel, always > 0.
	ScaleFactor float64 `json:"scale_factor"`
	// PixelDistance is the measured pixel distance between the
	// reference joints.
	PixelDistance float64   `json:"pixel_distance"`
	Reference     Reference `json:"reference"`
}

// Calibrate derives the pixel-to-centimeter scale factor from a validated
// frame and a reference. minPixels guards against degenerate detections;
// pass 0 to use DefaultMinCalibrationPixels.
func Calibrate(frame *pose.Frame, ref Reference, minPixels float64) (Calibration, error) {
	if minPixels <= 0 {
		minPixels = DefaultMinCalibrationPixels
	}
	if ref.HeightCm <= 0 {
		return Calibration{}, fmt.Errorf("%w: reference height %.1fcm must be positive", ErrInvalidCalibration, ref.HeightCm)
	}

	dist, err := frame.PixelDistance(ref.TopJoint, ref.BottomJoint)
	if err != nil {
		return Calibration{}, fmt.Errorf("%w: %v", ErrInvalidCalibration, err)
	}
	if dist < minPixels {
		return Calibration{}, fmt.Errorf("%w: pixel distance %.1f below minimum %.1f", ErrInvalidCalibration, dist, minPixels)
	}

	return Calibration{
		ScaleFactor:   ref.HeightCm / dist,
		PixelDistance: dist,
		Reference:     ref,
	}, nil
}
