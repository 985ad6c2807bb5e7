package trafficvision

import (
	"time"

	"github.com/swdee/go-trafficvision/stream"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// FrameSource is a latest frame video source
type FrameSource interface {
	// Start begins background capture
	Start()
	// Read returns a copy of the latest frame, ok is false until a frame
	// has been captured
	Read() (bool, gocv.Mat)
	// Release stops capture and frees the source
	Release() error
}

// Opener opens the video source for a locator
type Opener func(locator string) (FrameSource, error)

// StreamOpener returns an Opener backed by the stream package
func StreamOpener(yield time.Duration, log *zap.Logger) Opener {
	return func(locator string) (FrameSource, error) {

		src, err := stream.Open(locator,
			stream.WithYield(yield),
			stream.WithLogger(log),
		)

		if err != nil {
			return nil, err
		}

		return src, nil
	}
}

// JunctionFeed pairs a junction with its video source.  A junction whose
// source could not be opened stays in the pipeline as unavailable and is
// displayed as a placeholder.
type JunctionFeed struct {
	ID      string
	Locator string
	source  FrameSource
}

// Available reports whether the feed has an open source
func (f *JunctionFeed) Available() bool {
	return f.source != nil
}

// Read returns the latest frame of the feed.  Unavailable feeds, and feeds
// that have not captured yet, return false and an empty Mat.  The caller
// owns the returned Mat.
func (f *JunctionFeed) Read() (bool, gocv.Mat) {

	if f.source == nil {
		return false, gocv.NewMat()
	}

	return f.source.Read()
}

// Release closes the feed's source
func (f *JunctionFeed) Release() error {

	if f.source == nil {
		return nil
	}

	return f.source.Release()
}
