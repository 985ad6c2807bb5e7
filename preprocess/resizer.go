// Package preprocess prepares captured frames for the detector by scaling
// them to the square inference resolution.
package preprocess

import (
	"gocv.io/x/gocv"
	"image"
)

// Scale holds the per axis factors that map a point in inference space back
// onto the original frame
type Scale struct {
	X float64
	Y float64
}

// Apply maps an inference space coordinate into original frame space
func (s Scale) Apply(x, y float64) (float64, float64) {
	return x * s.X, y * s.Y
}

// Resizer stretches frames of any size to a fixed square resolution without
// preserving aspect, so each axis carries its own scale factor
type Resizer struct {
	// size is the width and height of the inference resolution
	size int
	// interp is the interpolation used when scaling
	interp gocv.InterpolationFlags
}

// NewResizer returns a resizer used for scaling frames to the given square
// inference size
func NewResizer(size int) *Resizer {
	return &Resizer{
		size:   size,
		interp: gocv.InterpolationLinear,
	}
}

// Size returns the inference resolution
func (r *Resizer) Size() int {
	return r.size
}

// Resize scales src to size x size and writes the result to dest
func (r *Resizer) Resize(src gocv.Mat, dest *gocv.Mat) {
	gocv.Resize(src, dest, image.Pt(r.size, r.size), 0, 0, r.interp)
}

// ScaleFactor returns the factors needed to map inference coordinates back to
// an original frame of the given width and height
func (r *Resizer) ScaleFactor(width, height int) Scale {
	return ScaleFactor(r.size, width, height)
}

// ScaleFactor returns origWidth/size and origHeight/size
func ScaleFactor(size, width, height int) Scale {

	if size <= 0 {
		return Scale{X: 1, Y: 1}
	}

	return Scale{
		X: float64(width) / float64(size),
		Y: float64(height) / float64(size),
	}
}
