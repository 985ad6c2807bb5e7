package render

import (
	"github.com/swdee/go-trafficvision/postprocess"
	"gocv.io/x/gocv"
	"image"
	"strconv"
)

// emergencyText is drawn on junctions where an emergency vehicle is present
const emergencyText = "EMERGENCY"

// DetectionBoxes draws every box of a junction result in its category color
// with the track id above the top left corner when the box has one
func DetectionBoxes(img *gocv.Mat, boxes []postprocess.DetectionBox,
	font Font, lineThickness int) {

	for _, b := range boxes {

		rect := b.Rect()
		gocv.Rectangle(img, rect, b.Color, lineThickness)

		if b.TrackID < 0 {
			continue
		}

		font.WithColor(b.Color).Draw(img, strconv.Itoa(b.TrackID),
			image.Pt(rect.Min.X, rect.Min.Y-5))
	}
}

// EmergencyLabel draws the emergency warning in the top left of the frame
func EmergencyLabel(img *gocv.Mat, font Font) {
	font.WithColor(Red).Draw(img, emergencyText, image.Pt(20, 80))
}

// JunctionOverlay draws a stored junction result onto its frame
func JunctionOverlay(img *gocv.Mat, res *postprocess.JunctionResult, font Font) {

	if res == nil {
		return
	}

	DetectionBoxes(img, res.Boxes, font.WithScale(0.6, 2), 2)

	if res.Emergency {
		EmergencyLabel(img, font.WithScale(1.2, 3))
	}
}
