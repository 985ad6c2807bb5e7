// Package render draws junction results over live frames and composes them
// into the multi pane display grid with its header and status banners.
package render

import (
	"time"

	"github.com/swdee/go-trafficvision/metrics"
	"github.com/swdee/go-trafficvision/postprocess"
	"gocv.io/x/gocv"
)

// Config controls the layout and refresh rate of the display
type Config struct {
	// TargetFPS is the display refresh rate the compositor aims for
	TargetFPS float64
	// TileWidth and TileHeight are the size every junction is resized to
	TileWidth  int
	TileHeight int
	// Rows and Cols define the grid layout
	Rows int
	Cols int
	// Title is written in the header banner
	Title string
	// Device prefixes the footer latency, eg: the accelerator name
	Device string
}

// DefaultConfig returns a 2x2 grid of 960x540 tiles refreshed at 12 FPS
func DefaultConfig() Config {
	return Config{
		TargetFPS:  12,
		TileWidth:  960,
		TileHeight: 540,
		Rows:       2,
		Cols:       2,
		Title:      "DEMO MODE ACTIVE - VISUAL ANALYSIS PRIORITY",
	}
}

// Interval returns the time between display refreshes
func (c Config) Interval() time.Duration {

	if c.TargetFPS <= 0 {
		return 0
	}

	return time.Duration(float64(time.Second) / c.TargetFPS)
}

// Compositor is throttled independently of capture and inference.  It draws
// the last known results of each junction onto the latest frames.
type Compositor struct {
	cfg       Config
	interval  time.Duration
	lastShown time.Time
	grid      *Grid
	font      Font
}

// NewCompositor returns a compositor that is due immediately at now
func NewCompositor(cfg Config, now time.Time) *Compositor {
	return &Compositor{
		cfg:       cfg,
		interval:  cfg.Interval(),
		lastShown: now.Add(-time.Second),
		grid:      NewGrid(cfg.Rows, cfg.Cols, cfg.TileWidth, cfg.TileHeight),
		font:      DefaultFont(),
	}
}

// Due reports whether a refresh interval has passed since the last display
func (c *Compositor) Due(now time.Time) bool {
	return now.Sub(c.lastShown) >= c.interval
}

// Elapsed returns the actual time since the last display
func (c *Compositor) Elapsed(now time.Time) time.Duration {
	return now.Sub(c.lastShown)
}

// MarkShown records that a frame was displayed at now
func (c *Compositor) MarkShown(now time.Time) {
	c.lastShown = now
}

// Compose draws results onto frames and lays them out in the grid.  Frames
// are drawn on in place, empty frames become placeholder tiles.  The
// returned image is owned by the compositor and valid until the next call.
func (c *Compositor) Compose(frames []gocv.Mat, results []*postprocess.JunctionResult,
	m metrics.Metrics) *gocv.Mat {

	c.grid.Reset()

	for i := range frames {

		if i >= c.grid.Slots() {
			break
		}

		if frames[i].Empty() {
			continue
		}

		if i < len(results) {
			JunctionOverlay(&frames[i], results[i], c.font)
		}

		c.grid.Place(i, frames[i])
	}

	canvas := c.grid.Canvas()

	Header(canvas, c.cfg.Title, c.font)
	Footer(canvas, m, c.cfg.Device, c.font)

	return canvas
}

// Close frees the compositor memory
func (c *Compositor) Close() error {
	return c.grid.Close()
}
