package measure

import "math"

// DefaultDepthRatio is the assumed sagittal-depth to frontal-width ratio
// used when a circumference must be estimated from a front view alone.
const DefaultDepthRatio = 0.75

// frontOnlyConfidencePenalty scales down the confidence of circumference
// values estimated without side-view depth.
const frontOnlyConfidencePenalty = 0.6

// EllipseCircumference returns Ramanujan's first approximation of the
// circumference of an ellipse with half-axes a and b.
func EllipseCircumference(a, b float64) float64 {
	if a <= 0 || b <= 0 {
		return 0
	}
	return math.Pi * (3*(a+b) - math.Sqrt((3*a+b)*(a+3*b)))
}
