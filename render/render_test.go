package render

import (
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-trafficvision/metrics"
	"github.com/swdee/go-trafficvision/postprocess"
	"gocv.io/x/gocv"
)

// testConfig returns a small 2x2 layout
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.TileWidth = 320
	cfg.TileHeight = 240
	return cfg
}

// solidFrame returns a frame filled with a BGR color
func solidFrame(w, h int, b, g, r float64) gocv.Mat {
	m := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC3)
	m.SetTo(gocv.NewScalar(b, g, r, 0))
	return m
}

// pixel returns the BGR value at x, y
func pixel(m *gocv.Mat, x, y int) [3]uint8 {
	v := m.GetVecbAt(y, x)
	return [3]uint8{v[0], v[1], v[2]}
}

func TestConfigInterval(t *testing.T) {

	assert.Equal(t, time.Second/12, DefaultConfig().Interval())
	assert.Equal(t, time.Duration(0), Config{}.Interval())
}

func TestCompositorDue(t *testing.T) {

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := testConfig()
	cfg.TargetFPS = 10

	c := NewCompositor(cfg, now)
	defer c.Close()

	assert.True(t, c.Due(now))
	assert.Equal(t, time.Second, c.Elapsed(now))

	c.MarkShown(now)
	assert.False(t, c.Due(now.Add(50*time.Millisecond)))
	assert.True(t, c.Due(now.Add(100*time.Millisecond)))
	assert.Equal(t, 150*time.Millisecond, c.Elapsed(now.Add(150*time.Millisecond)))
}

func TestComposeGridWithPlaceholders(t *testing.T) {

	c := NewCompositor(testConfig(), time.Now())
	defer c.Close()

	// junction 0 larger than a tile, junction 2 exactly tile sized
	f0 := solidFrame(640, 480, 255, 0, 0)
	defer f0.Close()
	f1 := gocv.NewMat()
	defer f1.Close()
	f2 := solidFrame(320, 240, 0, 0, 255)
	defer f2.Close()

	frames := []gocv.Mat{f0, f1, f2}
	grid := c.Compose(frames, make([]*postprocess.JunctionResult, 3), metrics.Metrics{})

	require.Equal(t, 640, grid.Cols())
	require.Equal(t, 480, grid.Rows())

	assert.Equal(t, [3]uint8{255, 0, 0}, pixel(grid, 160, 120))
	assert.Equal(t, [3]uint8{0, 0, 0}, pixel(grid, 480, 120))
	assert.Equal(t, [3]uint8{0, 0, 255}, pixel(grid, 160, 360))
	// padding slot for the missing fourth junction
	assert.Equal(t, [3]uint8{0, 0, 0}, pixel(grid, 480, 360))

	// header and footer banners
	assert.Equal(t, [3]uint8{0, 0, 50}, pixel(grid, 5, 5))
	assert.Equal(t, [3]uint8{20, 20, 20}, pixel(grid, 5, 475))
}

func TestComposeDrawsBoxes(t *testing.T) {

	c := NewCompositor(testConfig(), time.Now())
	defer c.Close()

	f0 := solidFrame(320, 240, 0, 0, 0)
	defer f0.Close()

	res := &postprocess.JunctionResult{
		Boxes: []postprocess.DetectionBox{
			{X1: 100, Y1: 80, X2: 200, Y2: 180, TrackID: 3, Category: postprocess.Trucks,
				Color: postprocess.Trucks.Color()},
		},
	}

	grid := c.Compose([]gocv.Mat{f0}, []*postprocess.JunctionResult{res}, metrics.Metrics{})

	// truck orange in BGR order on the left edge of the box
	assert.Equal(t, [3]uint8{0, 165, 255}, pixel(grid, 100, 130))
	// inside the box stays untouched
	assert.Equal(t, [3]uint8{0, 0, 0}, pixel(grid, 150, 130))
}

func TestComposeSkipsFramesBeyondGrid(t *testing.T) {

	cfg := testConfig()
	cfg.Rows = 1
	cfg.Cols = 1

	c := NewCompositor(cfg, time.Now())
	defer c.Close()

	f0 := solidFrame(320, 240, 0, 255, 0)
	defer f0.Close()
	f1 := solidFrame(320, 240, 0, 0, 255)
	defer f1.Close()

	grid := c.Compose([]gocv.Mat{f0, f1}, nil, metrics.Metrics{})

	require.Equal(t, 320, grid.Cols())
	assert.Equal(t, [3]uint8{0, 255, 0}, pixel(grid, 160, 120))
}

func TestGridTileRect(t *testing.T) {

	g := NewGrid(2, 2, 960, 540)
	defer g.Close()

	assert.Equal(t, 4, g.Slots())
	assert.Equal(t, image.Rect(0, 0, 960, 540), g.TileRect(0))
	assert.Equal(t, image.Rect(960, 0, 1920, 540), g.TileRect(1))
	assert.Equal(t, image.Rect(0, 540, 960, 1080), g.TileRect(2))
	assert.Equal(t, image.Rect(960, 540, 1920, 1080), g.TileRect(3))
}

func TestFooterText(t *testing.T) {

	m := metrics.Metrics{LatencyMs: 23.456, InferenceFPS: 41.6, DisplayFPS: 11.96}

	assert.Equal(t, "LATENCY: 23.5ms", LatencyText(m, ""))
	assert.Equal(t, "RTX 4050 | LATENCY: 23.5ms", LatencyText(m, "RTX 4050"))
	assert.Equal(t, "INF FPS: 42 | DISPLAY FPS: 12.0", RateText(m))
}

func TestNullSink(t *testing.T) {

	s := &NullSink{}
	img := gocv.NewMat()
	defer img.Close()

	require.NoError(t, s.Show(img))
	require.NoError(t, s.Show(img))
	assert.Equal(t, 2, s.Frames)
	assert.NoError(t, s.Close())
}
