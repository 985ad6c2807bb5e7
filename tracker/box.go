package tracker

import (
	"math"
)

// Box is an axis aligned rectangle in top, left, width, height form
type Box struct {
	X float64
	Y float64
	W float64
	H float64
}

// BoxFromCorners creates a Box from its top left and bottom right corners
func BoxFromCorners(x1, y1, x2, y2 float64) Box {
	return Box{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}
}

// boxFromXYAH creates a Box from center x, center y, aspect ratio and height
func boxFromXYAH(xyah [4]float64) Box {
	w := xyah[2] * xyah[3]
	return Box{
		X: xyah[0] - w/2,
		Y: xyah[1] - xyah[3]/2,
		W: w,
		H: xyah[3],
	}
}

// X2 returns the right edge of the box
func (b Box) X2() float64 {
	return b.X + b.W
}

// Y2 returns the bottom edge of the box
func (b Box) Y2() float64 {
	return b.Y + b.H
}

// XYAH returns the box as center x, center y, aspect ratio and height which
// is the measurement space of the Kalman filter
func (b Box) XYAH() [4]float64 {

	aspect := 0.0

	if b.H > 0 {
		aspect = b.W / b.H
	}

	return [4]float64{b.X + b.W/2, b.Y + b.H/2, aspect, b.H}
}

// Area returns the area of the box, zero for degenerate boxes
func (b Box) Area() float64 {
	return math.Max(b.W, 0) * math.Max(b.H, 0)
}

// IoU returns the intersection over union of two boxes
func (b Box) IoU(o Box) float64 {

	iw := math.Min(b.X2(), o.X2()) - math.Max(b.X, o.X)
	ih := math.Min(b.Y2(), o.Y2()) - math.Max(b.Y, o.Y)

	if iw <= 0 || ih <= 0 {
		return 0
	}

	inter := iw * ih
	union := b.Area() + o.Area() - inter

	if union <= 0 {
		return 0
	}

	return inter / union
}
