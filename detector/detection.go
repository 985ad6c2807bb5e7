// Package detector defines the boundary to the object detection and tracking
// capability used by the pipeline, along with its implementations.
package detector

import (
	"context"
	"errors"
	"fmt"
)

// NoTrackID marks a detection without a stable identity
const NoTrackID = -1

// ErrInference is returned when a batched detection call fails as a whole
var ErrInference = errors.New("inference failed")

// Box is a bounding box in the inference resolution coordinate frame
type Box struct {
	X1 float32
	Y1 float32
	X2 float32
	Y2 float32
}

// Detection is a single object found in an image
type Detection struct {
	// ClassID is the numeric class of the detector model
	ClassID int
	// ClassName is the label of the class, may be empty if unknown
	ClassName string
	// Confidence is the detection score
	Confidence float32
	// TrackID is stable across calls for the same object, or NoTrackID
	TrackID int
	// Box is the object location in inference coordinates
	Box Box
}

// HasTrack reports whether the detection carries a track id
func (d Detection) HasTrack() bool {
	return d.TrackID >= 0
}

// Detector runs detection over a batch of images, returning one slice of
// detections per image in batch order
type Detector interface {
	Detect(ctx context.Context, batch *Batch) ([][]Detection, error)
}

// Func adapts a function to the Detector interface
type Func func(ctx context.Context, batch *Batch) ([][]Detection, error)

// Detect calls f
func (f Func) Detect(ctx context.Context, batch *Batch) ([][]Detection, error) {
	return f(ctx, batch)
}

// Infer calls the detector for the batch and validates the result.  Any
// error, panic or result count that does not match the batch is reported as
// ErrInference.
func Infer(ctx context.Context, d Detector, batch *Batch) (dets [][]Detection, err error) {

	defer func() {
		if r := recover(); r != nil {
			dets = nil
			err = fmt.Errorf("%w: detector panic: %v", ErrInference, r)
		}
	}()

	dets, err = d.Detect(ctx, batch)

	if err != nil {
		if errors.Is(err, ErrInference) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}

	if len(dets) != batch.Len() {
		return nil, fmt.Errorf("%w: got %d results for batch of %d",
			ErrInference, len(dets), batch.Len())
	}

	return dets, nil
}
