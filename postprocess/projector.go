// Package postprocess turns raw detector output into per junction traffic
// state, rescaling boxes to the original frame and classifying them into the
// traffic taxonomy.
package postprocess

import (
	"image"
	"image/color"
	"math"

	"github.com/swdee/go-trafficvision/detector"
	"github.com/swdee/go-trafficvision/preprocess"
)

// DetectionBox is a detection mapped onto the original frame
type DetectionBox struct {
	X1 float64
	Y1 float64
	X2 float64
	Y2 float64
	// TrackID is the stable identity or detector.NoTrackID
	TrackID int
	// Category assigned to the detection, None when unmatched
	Category Category
	// Color the box is drawn with
	Color color.RGBA
}

// Rect returns the box truncated to integer pixel coordinates.  Coordinates
// outside the frame are kept as is.
func (b DetectionBox) Rect() image.Rectangle {
	return image.Rect(int(math.Trunc(b.X1)), int(math.Trunc(b.Y1)),
		int(math.Trunc(b.X2)), int(math.Trunc(b.Y2)))
}

// JunctionResult is the traffic state computed from one inference of a
// junction
type JunctionResult struct {
	Boxes     []DetectionBox
	Counts    Counts
	Emergency bool
}

// Params configures how detections are classified
type Params struct {
	// InferenceSize is the square resolution detections are expressed in
	InferenceSize int
	// ClassMap maps numeric detector classes to categories
	ClassMap map[int]Category
	// AutoClass is the class name counted as autos
	AutoClass string
	// EmergencyClass is the class name that raises the emergency flag
	EmergencyClass string
}

// DefaultParams returns the COCO based mapping with 640 inference size
func DefaultParams() Params {
	return Params{
		InferenceSize: 640,
		ClassMap: map[int]Category{
			2: Cars,
			3: Bikes,
			5: Buses,
			7: Trucks,
		},
		AutoClass:      "auto",
		EmergencyClass: "ambulance",
	}
}

// Projector rescales and classifies detections
type Projector struct {
	params Params
}

// NewProjector returns a Projector for the given parameters
func NewProjector(params Params) *Projector {
	return &Projector{params: params}
}

// Classify returns the category of a detection.  The numeric class mapping
// takes precedence over the name based auto and emergency classes.
func (p *Projector) Classify(d detector.Detection) Category {

	if c, ok := p.params.ClassMap[d.ClassID]; ok {
		return c
	}

	if p.params.AutoClass != "" && d.ClassName == p.params.AutoClass {
		return Autos
	}

	if p.params.EmergencyClass != "" && d.ClassName == p.params.EmergencyClass {
		return Emergency
	}

	return None
}

// Project builds the result of one junction from detections made on its
// frame of the given original size
func (p *Projector) Project(dets []detector.Detection, width, height int) *JunctionResult {

	scale := preprocess.ScaleFactor(p.params.InferenceSize, width, height)

	res := &JunctionResult{
		Boxes: make([]DetectionBox, 0, len(dets)),
	}

	for _, d := range dets {

		cat := p.Classify(d)

		switch cat {
		case Emergency:
			res.Emergency = true
		default:
			res.Counts.Add(cat)
		}

		x1, y1 := scale.Apply(float64(d.Box.X1), float64(d.Box.Y1))
		x2, y2 := scale.Apply(float64(d.Box.X2), float64(d.Box.Y2))

		res.Boxes = append(res.Boxes, DetectionBox{
			X1:       x1,
			Y1:       y1,
			X2:       x2,
			Y2:       y2,
			TrackID:  d.TrackID,
			Category: cat,
			Color:    cat.Color(),
		})
	}

	return res
}
