package trafficvision

import (
	"fmt"

	"github.com/swdee/go-trafficvision/detector"
	"gocv.io/x/gocv"
)

// BatchScheduler decides on which ticks inference runs and assembles the
// batch of frames submitted to the detector
type BatchScheduler struct {
	skip uint64
}

// NewBatchScheduler returns a scheduler running inference every skip ticks
func NewBatchScheduler(skip int) *BatchScheduler {

	if skip < 1 {
		skip = 1
	}

	return &BatchScheduler{skip: uint64(skip)}
}

// ShouldInfer reports whether inference runs on the given tick
func (s *BatchScheduler) ShouldInfer(tick uint64) bool {
	return tick%s.skip == 0
}

// Assemble clears the batch and adds every non empty frame in junction
// order.  Each entry keeps the index of the junction it came from.
func (s *BatchScheduler) Assemble(frames []gocv.Mat, batch *detector.Batch) error {

	batch.Clear()

	for i, frame := range frames {

		if frame.Empty() {
			continue
		}

		if err := batch.Add(i, frame); err != nil {
			return fmt.Errorf("junction %d: %w", i, err)
		}
	}

	return nil
}
