package render

import (
	"fmt"
	"github.com/swdee/go-trafficvision/metrics"
	"gocv.io/x/gocv"
	"image"
)

const (
	// headerHeight is the height of the title banner
	headerHeight = 50
	// footerHeight is the height of the status banner
	footerHeight = 60
)

// Header fills the top banner and centres the title in it
func Header(img *gocv.Mat, title string, font Font) {

	w := img.Cols()

	gocv.Rectangle(img, image.Rect(0, 0, w, headerHeight), headerFill, -1)

	font.WithScale(1.0, 2).WithColor(Yellow).Draw(img, title, image.Pt(w/2-350, 35))
}

// Footer fills the bottom banner with latency on the left and the inference
// and display rates on the right.  device prefixes the latency when set.
func Footer(img *gocv.Mat, m metrics.Metrics, device string, font Font) {

	w, h := img.Cols(), img.Rows()

	gocv.Rectangle(img, image.Rect(0, h-footerHeight, w, h), footerFill, -1)

	f := font.WithScale(0.8, 2)

	f.WithColor(LightGray).Draw(img, LatencyText(m, device), image.Pt(20, h-20))
	f.WithColor(Green).Draw(img, RateText(m), image.Pt(w-750, h-20))
}

// LatencyText formats the footer latency label
func LatencyText(m metrics.Metrics, device string) string {

	text := fmt.Sprintf("LATENCY: %.1fms", m.LatencyMs)

	if device != "" {
		text = device + " | " + text
	}

	return text
}

// RateText formats the footer rates label
func RateText(m metrics.Metrics) string {
	return fmt.Sprintf("INF FPS: %.0f | DISPLAY FPS: %.1f", m.InferenceFPS, m.DisplayFPS)
}
