package trafficvision

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-trafficvision/detector"
	"github.com/swdee/go-trafficvision/internal/clock"
	"github.com/swdee/go-trafficvision/postprocess"
	"github.com/swdee/go-trafficvision/render"
	"github.com/swdee/go-trafficvision/stream"
	"github.com/swdee/go-trafficvision/telemetry"
	"gocv.io/x/gocv"
)

// solidFrame returns a frame filled with a BGR color
func solidFrame(w, h int, b, g, r float64) gocv.Mat {
	m := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC3)
	m.SetTo(gocv.NewScalar(b, g, r, 0))
	return m
}

// fakeSource always returns a copy of the same frame
type fakeSource struct {
	frame    gocv.Mat
	started  bool
	released bool
}

func (f *fakeSource) Start() {
	f.started = true
}

func (f *fakeSource) Read() (bool, gocv.Mat) {
	return true, f.frame.Clone()
}

func (f *fakeSource) Release() error {
	if !f.released {
		f.released = true
		return f.frame.Close()
	}
	return nil
}

// fakeOpener opens the locators it has sources for and fails the rest
type fakeOpener map[string]*fakeSource

func (o fakeOpener) open(locator string) (FrameSource, error) {
	if src, ok := o[locator]; ok {
		return src, nil
	}
	return nil, fmt.Errorf("%w: %s", stream.ErrUnavailable, locator)
}

// fakeTransport records delivered reports
type fakeTransport struct {
	mu      sync.Mutex
	fail    bool
	reports []telemetry.Report
	closed  bool
}

func (f *fakeTransport) Send(ctx context.Context, r telemetry.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail {
		return telemetry.ErrDelivery
	}

	f.reports = append(f.reports, r)
	return nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

// captureSink keeps a copy of the last shown frame
type captureSink struct {
	shown  int
	last   gocv.Mat
	err    error
	closed bool
}

func (c *captureSink) Show(img gocv.Mat) error {
	if c.err != nil {
		return c.err
	}
	c.shown++
	c.last.Close()
	c.last = img.Clone()
	return nil
}

func (c *captureSink) Close() error {
	c.closed = true
	return c.last.Close()
}

// pixel returns the BGR value at x, y
func pixel(m gocv.Mat, x, y int) [3]uint8 {
	v := m.GetVecbAt(y, x)
	return [3]uint8{v[0], v[1], v[2]}
}

var epoch = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

// testConfig has four junctions, the last two without a working source
func testConfig() Config {

	cfg := DefaultConfig()
	cfg.Junctions = []Junction{
		{ID: "Vyttila", Source: "a.mp4"},
		{ID: "Edappally", Source: "b.mp4"},
		{ID: "Palarivattom", Source: "missing-c.mp4"},
		{ID: "Kakkanad", Source: "missing-d.mp4"},
	}
	cfg.Telemetry.Transport = TransportNone
	cfg.Display.Sink = SinkNone
	cfg.Display.TileWidth = 320
	cfg.Display.TileHeight = 240

	return cfg
}

// harness bundles a pipeline with its fakes
type harness struct {
	p         *Pipeline
	clk       *clock.Manual
	sources   fakeOpener
	transport *fakeTransport
	sink      *captureSink
}

func newHarness(t *testing.T, cfg Config, det detector.Detector) *harness {

	h := &harness{
		clk: clock.NewManual(epoch),
		sources: fakeOpener{
			"a.mp4": {frame: solidFrame(640, 480, 200, 100, 50)},
			"b.mp4": {frame: solidFrame(640, 480, 200, 100, 50)},
		},
		transport: &fakeTransport{},
		sink:      &captureSink{last: gocv.NewMat()},
	}

	p, err := New(cfg, det,
		WithClock(h.clk),
		WithOpener(h.sources.open),
		WithTransport(h.transport),
		WithSink(h.sink),
	)
	require.NoError(t, err)

	h.p = p
	t.Cleanup(func() { p.Close() })

	return h
}

// step runs n ticks advancing the clock by d after each
func (h *harness) step(t *testing.T, n int, d time.Duration) {
	for i := 0; i < n; i++ {
		require.NoError(t, h.p.Step(context.Background()))
		h.clk.Advance(d)
	}
}

// junctionDetector reports a car and an ambulance on junction 0 and nothing
// elsewhere
func junctionDetector() detector.Detector {
	return detector.Func(func(ctx context.Context, b *detector.Batch) ([][]detector.Detection, error) {

		out := make([][]detector.Detection, b.Len())

		for i, e := range b.Entries() {

			out[i] = []detector.Detection{}

			if e.Index != 0 {
				continue
			}

			out[i] = []detector.Detection{
				{
					ClassID:    2,
					ClassName:  "car",
					Confidence: 0.9,
					TrackID:    detector.NoTrackID,
					Box:        detector.Box{X1: 100, Y1: 100, X2: 200, Y2: 200},
				},
				{
					ClassID:    80,
					ClassName:  "ambulance",
					Confidence: 0.8,
					TrackID:    detector.NoTrackID,
					Box:        detector.Box{X1: 500, Y1: 500, X2: 600, Y2: 600},
				},
			}
		}

		return out, nil
	})
}

func TestPipelineFourJunctions(t *testing.T) {

	h := newHarness(t, testConfig(), junctionDetector())

	feeds := h.p.Feeds()
	require.Len(t, feeds, 4)
	assert.True(t, feeds[0].Available())
	assert.True(t, feeds[1].Available())
	assert.False(t, feeds[2].Available())
	assert.False(t, feeds[3].Available())
	assert.True(t, h.sources["a.mp4"].started)
	assertNoFrame(t, feeds[2])
	assertNoFrame(t, feeds[3])

	h.step(t, 1, 10*time.Millisecond)

	results := h.p.Results()
	require.Len(t, results, 4)
	require.NotNil(t, results[0])
	require.NotNil(t, results[1])
	assert.Nil(t, results[2])
	assert.Nil(t, results[3])

	assert.Equal(t, postprocess.Counts{Cars: 1}, results[0].Counts)
	assert.True(t, results[0].Emergency)
	assert.Equal(t, postprocess.Counts{}, results[1].Counts)
	assert.False(t, results[1].Emergency)

	// boxes are rescaled from 640x640 to the 640x480 frame
	box := results[0].Boxes[0]
	assert.InDelta(t, 100, box.X1, 1e-9)
	assert.InDelta(t, 75, box.Y1, 1e-9)
	assert.InDelta(t, 150, box.Y2, 1e-9)

	// only junctions with a result are reported
	require.Len(t, h.transport.reports, 2)
	assert.Equal(t, telemetry.Report{
		JunctionID:        "Vyttila",
		VehicleCount:      postprocess.Counts{Cars: 1},
		AmbulanceDetected: true,
	}, h.transport.reports[0])
	assert.Equal(t, "Edappally", h.transport.reports[1].JunctionID)

	// first tick is always displayed, unavailable junctions are black tiles
	require.Equal(t, 1, h.sink.shown)
	grid := h.sink.last
	require.Equal(t, 640, grid.Cols())
	require.Equal(t, 480, grid.Rows())
	assert.Equal(t, [3]uint8{200, 100, 50}, pixel(grid, 160, 120))
	assert.Equal(t, [3]uint8{200, 100, 50}, pixel(grid, 480, 120))
	assert.Equal(t, [3]uint8{0, 0, 0}, pixel(grid, 160, 360))
	assert.Equal(t, [3]uint8{0, 0, 0}, pixel(grid, 480, 360))

	assert.Equal(t, uint64(1), h.p.Tick())
	assert.Greater(t, h.p.Metrics().Snapshot().InferenceFPS, 0.0)

	// unavailable junctions never produce a frame
	h.step(t, 5, 10*time.Millisecond)
	assertNoFrame(t, feeds[2])
	assertNoFrame(t, feeds[3])

	ok, frame := feeds[0].Read()
	defer frame.Close()
	assert.True(t, ok)
	assert.False(t, frame.Empty())
}

// assertNoFrame checks a feed reports failure with an empty frame
func assertNoFrame(t *testing.T, feed *JunctionFeed) {
	t.Helper()

	ok, frame := feed.Read()
	defer frame.Close()

	assert.False(t, ok, feed.ID)
	assert.True(t, frame.Empty(), feed.ID)
}

func TestPipelineFrameSkip(t *testing.T) {

	for _, tc := range []struct {
		skip int
		want []uint64
	}{
		{3, []uint64{0, 3, 6, 9}},
		{1, []uint64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}},
	} {
		t.Run(fmt.Sprintf("skip %d", tc.skip), func(t *testing.T) {

			cfg := testConfig()
			cfg.FrameSkip = tc.skip

			var (
				p     *Pipeline
				ticks []uint64
			)

			det := detector.Func(func(ctx context.Context, b *detector.Batch) ([][]detector.Detection, error) {
				ticks = append(ticks, p.Tick())
				return make([][]detector.Detection, b.Len()), nil
			})

			h := newHarness(t, cfg, det)
			p = h.p

			h.step(t, 10, 10*time.Millisecond)

			assert.Equal(t, tc.want, ticks)
		})
	}
}

func TestPipelineBatchHoldsAvailableJunctions(t *testing.T) {

	var indexes []int

	det := detector.Func(func(ctx context.Context, b *detector.Batch) ([][]detector.Detection, error) {
		for _, e := range b.Entries() {
			indexes = append(indexes, e.Index)
			assert.Equal(t, 640, e.Image.Cols())
			assert.Equal(t, 640, e.Image.Rows())
		}
		return make([][]detector.Detection, b.Len()), nil
	})

	h := newHarness(t, testConfig(), det)
	h.step(t, 1, 0)

	assert.Equal(t, []int{0, 1}, indexes)
}

func TestPipelineKeepsResultsOnFailure(t *testing.T) {

	calls := 0
	good := junctionDetector()

	det := detector.Func(func(ctx context.Context, b *detector.Batch) ([][]detector.Detection, error) {
		calls++
		if calls == 1 {
			return good.Detect(ctx, b)
		}
		return nil, errors.New("inference service unreachable")
	})

	h := newHarness(t, testConfig(), det)

	h.step(t, 1, 10*time.Millisecond)
	first := h.p.Results()[0]
	require.NotNil(t, first)

	// ticks 3 and 6 fail
	h.step(t, 7, 10*time.Millisecond)
	assert.Equal(t, 3, calls)
	assert.Same(t, first, h.p.Results()[0])
	assert.Len(t, h.transport.reports, 2)

	// the stale result is reported again once the interval has passed
	h.clk.Advance(3 * time.Second)
	h.step(t, 1, 10*time.Millisecond)

	require.Len(t, h.transport.reports, 4)
	assert.Equal(t, "Vyttila", h.transport.reports[2].JunctionID)
	assert.Equal(t, postprocess.Counts{Cars: 1}, h.transport.reports[2].VehicleCount)
	assert.True(t, h.transport.reports[2].AmbulanceDetected)
}

func TestPipelineSurvivesPanickingDetector(t *testing.T) {

	det := detector.Func(func(ctx context.Context, b *detector.Batch) ([][]detector.Detection, error) {
		panic("model crashed")
	})

	h := newHarness(t, testConfig(), det)
	h.step(t, 4, 10*time.Millisecond)

	assert.Equal(t, uint64(4), h.p.Tick())
	assert.Nil(t, h.p.Results()[0])
	assert.Empty(t, h.transport.reports)
	assert.Equal(t, 1, h.sink.shown)
}

func TestPipelineTelemetryRetriesNextTick(t *testing.T) {

	h := newHarness(t, testConfig(), junctionDetector())
	h.transport.fail = true

	h.step(t, 1, 10*time.Millisecond)
	assert.Empty(t, h.transport.reports)

	h.transport.fail = false
	h.step(t, 1, 10*time.Millisecond)
	assert.Len(t, h.transport.reports, 2)
}

func TestPipelineDisplayCadence(t *testing.T) {

	for _, tc := range []struct {
		fps   float64
		shown int
	}{
		{25, 5},
		{50, 10},
	} {
		t.Run(fmt.Sprintf("%v fps", tc.fps), func(t *testing.T) {

			cfg := testConfig()
			cfg.Display.TargetFPS = tc.fps

			calls := 0
			det := detector.Func(func(ctx context.Context, b *detector.Batch) ([][]detector.Detection, error) {
				calls++
				return make([][]detector.Detection, b.Len()), nil
			})

			h := newHarness(t, cfg, det)
			h.step(t, 20, 10*time.Millisecond)

			assert.Equal(t, tc.shown, h.sink.shown)
			// inference cadence does not depend on the display
			assert.Equal(t, 7, calls)
		})
	}
}

func TestPipelineNoSources(t *testing.T) {

	calls := 0
	det := detector.Func(func(ctx context.Context, b *detector.Batch) ([][]detector.Detection, error) {
		calls++
		return make([][]detector.Detection, b.Len()), nil
	})

	cfg := testConfig()
	cfg.Junctions[0].Source = "gone.mp4"
	cfg.Junctions[1].Source = "gone-too.mp4"

	h := newHarness(t, cfg, det)
	h.step(t, 3, 10*time.Millisecond)

	assert.Zero(t, calls)
	assert.Equal(t, 1, h.sink.shown)
	assert.Equal(t, [3]uint8{0, 0, 0}, pixel(h.sink.last, 160, 120))
}

func TestRunStopsOnCancel(t *testing.T) {

	h := newHarness(t, testConfig(), junctionDetector())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, h.p.Run(ctx))

	assert.True(t, h.sources["a.mp4"].released)
	assert.True(t, h.sources["b.mp4"].released)
	assert.True(t, h.transport.closed)
	assert.True(t, h.sink.closed)

	// closing again is harmless
	assert.NoError(t, h.p.Close())
}

func TestRunReturnsSinkError(t *testing.T) {

	h := newHarness(t, testConfig(), junctionDetector())
	h.sink.err = render.ErrSinkClosed

	err := h.p.Run(context.Background())

	assert.ErrorIs(t, err, render.ErrSinkClosed)
	assert.Equal(t, uint64(0), h.p.Tick())
	assert.True(t, h.sources["a.mp4"].released)
}

func TestNewRejectsInvalidConfig(t *testing.T) {

	cfg := testConfig()
	cfg.FrameSkip = 0

	_, err := New(cfg, junctionDetector())
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(testConfig(), nil)
	assert.Error(t, err)
}
