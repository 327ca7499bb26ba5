// Package render draws keypoint frames as skeleton overlay images for
// capture debugging and review screens.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"golang.org/x/image/draw"

	"github.com/bodymorph/bodymorph/internal/pose"
)

// Options controls the overlay output.
type Options struct {
	// Scale shrinks or enlarges the output relative to the frame
	// dimensions. Zero means 1.0.
	Scale float64
	// JointRadius in output pixels. Zero means 4.
	JointRadius int
	// Background is drawn under the skeleton when set, scaled to the
	// output size.
	Background image.Image
}

var (
	colorBackground = color.RGBA{R: 24, G: 24, B: 28, A: 255}
	colorBone       = color.RGBA{R: 90, G: 200, B: 250, A: 255}
	colorJointOK    = color.RGBA{R: 80, G: 220, B: 100, A: 255}
	colorJointLow   = color.RGBA{R: 240, G: 80, B: 80, A: 255}
)

// Frame renders the detected pose of a frame. Joints below the given
// confidence threshold are drawn in the warning color; bones are drawn
// only when both endpoints are present.
func Frame(frame *pose.Frame, minConfidence float64, opts Options) (*image.RGBA, error) {
	if frame.Width <= 0 || frame.Height <= 0 {
		return nil, fmt.Errorf("frame has no dimensions: %gx%g", frame.Width, frame.Height)
	}

	scale := opts.Scale
	if scale <= 0 {
		scale = 1.0
	}
	radius := opts.JointRadius
	if radius <= 0 {
		radius = 4
	}

	w := int(math.Round(frame.Width * scale))
	h := int(math.Round(frame.Height * scale))
	img := image.NewRGBA(image.Rect(0, 0, w, h))

	if opts.Background != nil {
		draw.BiLinear.Scale(img, img.Bounds(), opts.Background, opts.Background.Bounds(), draw.Over, nil)
	} else {
		draw.Draw(img, img.Bounds(), image.NewUniform(colorBackground), image.Point{}, draw.Src)
	}

	for _, bone := range pose.Skeleton {
		a, okA := frame.Joints[bone[0]]
		b, okB := frame.Joints[bone[1]]
		if !okA || !okB {
			continue
		}
		drawLine(img,
			int(math.Round(a.X*scale)), int(math.Round(a.Y*scale)),
			int(math.Round(b.X*scale)), int(math.Round(b.Y*scale)),
			colorBone)
	}

	for _, kp := range frame.Joints {
		c := colorJointOK
		if kp.Confidence < minConfidence {
			c = colorJointLow
		}
		drawCircle(img, int(math.Round(kp.X*scale)), int(math.Round(kp.Y*scale)), radius, c)
	}

	return img, nil
}

// WritePNG renders a frame and encodes it as PNG.
func WritePNG(w io.Writer, frame *pose.Frame, minConfidence float64, opts Options) error {
	img, err := Frame(frame, minConfidence, opts)
	if err != nil {
		return err
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encoding overlay: %w", err)
	}
	return nil
}

// drawLine draws a 1px line using Bresenham's algorithm.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx := 1
	if x0 > x1 {
		sx = -1
	}
	sy := 1
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy

	for {
		img.SetRGBA(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

// drawCircle draws a filled disc clipped to the image bounds.
func drawCircle(img *image.RGBA, cx, cy, r int, c color.RGBA) {
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy <= r*r {
				img.SetRGBA(cx+dx, cy+dy, c)
			}
		}
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
