package detector

import (
	"context"
	"fmt"
	"sync"

	"github.com/swdee/go-trafficvision/tracker"
)

// TrackerFactory creates the tracker used for a single junction
type TrackerFactory func() *tracker.ByteTrack

// DefaultTrackerFactory returns a factory creating ByteTrack trackers with the
// standard thresholds.  frameRate is the rate detections arrive at, which is
// the capture rate divided by the frame skip.
func DefaultTrackerFactory(frameRate, trackBuffer int) TrackerFactory {
	return func() *tracker.ByteTrack {
		return tracker.NewByteTrack(frameRate, trackBuffer, 0.5, 0.6, 0.8)
	}
}

// Tracking wraps a Detector and assigns track ids with a ByteTrack tracker
// per junction.  Detections that no confirmed track claims keep NoTrackID.
type Tracking struct {
	inner   Detector
	factory TrackerFactory

	mu       sync.Mutex
	trackers map[int]*tracker.ByteTrack
}

// NewTracking returns a tracking decorator around inner
func NewTracking(inner Detector, factory TrackerFactory) *Tracking {
	return &Tracking{
		inner:    inner,
		factory:  factory,
		trackers: make(map[int]*tracker.ByteTrack),
	}
}

// Detect runs the inner detector then the per junction trackers
func (t *Tracking) Detect(ctx context.Context, batch *Batch) ([][]Detection, error) {

	dets, err := t.inner.Detect(ctx, batch)

	if err != nil {
		return nil, err
	}

	if len(dets) != batch.Len() {
		return nil, fmt.Errorf("got %d results for batch of %d", len(dets), batch.Len())
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([][]Detection, len(dets))

	for i, frame := range dets {
		junction := batch.Entry(i).Index

		tracked, err := t.track(junction, frame)

		if err != nil {
			return nil, fmt.Errorf("tracking junction %d: %w", junction, err)
		}

		out[i] = tracked
	}

	return out, nil
}

// track runs the junction's tracker over one frame of detections
func (t *Tracking) track(junction int, dets []Detection) ([]Detection, error) {

	bt, ok := t.trackers[junction]

	if !ok {
		bt = t.factory()
		t.trackers[junction] = bt
	}

	objects := make([]tracker.Object, len(dets))
	out := make([]Detection, len(dets))

	for i, d := range dets {
		objects[i] = tracker.Object{
			ID: int64(i),
			Box: tracker.BoxFromCorners(float64(d.Box.X1), float64(d.Box.Y1),
				float64(d.Box.X2), float64(d.Box.Y2)),
			Label: d.ClassID,
			Score: float64(d.Confidence),
		}

		out[i] = d
		out[i].TrackID = NoTrackID
	}

	tracks, err := bt.Update(objects)

	if err != nil {
		// drop the tracker so the junction starts clean next batch
		delete(t.trackers, junction)
		return nil, err
	}

	for _, tr := range tracks {
		idx := tr.DetectionID()

		if idx >= 0 && int(idx) < len(out) {
			out[idx].TrackID = tr.ID()
		}
	}

	return out, nil
}
