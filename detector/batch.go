package detector

import (
	"errors"
	"fmt"
	"github.com/swdee/go-trafficvision/preprocess"
	"gocv.io/x/gocv"
)

// ErrBatchFull is returned when adding more frames than the batch capacity
var ErrBatchFull = errors.New("batch full")

// Entry describes one image of a batch
type Entry struct {
	// Index is the junction the frame was captured from
	Index int
	// Width of the original frame
	Width int
	// Height of the original frame
	Height int
	// Image is the frame resized to the inference resolution
	Image gocv.Mat
}

// Scale returns the factors that map inference coordinates of this entry
// back to its original frame
func (e Entry) Scale(size int) preprocess.Scale {
	return preprocess.ScaleFactor(size, e.Width, e.Height)
}

// Batch holds frames resized to the square inference resolution along with
// the junction and original size they came from.  The resized Mats are
// allocated once and reused across ticks.
type Batch struct {
	resizer *preprocess.Resizer
	mats    []gocv.Mat
	entries []Entry
}

// NewBatch creates a batch holding up to capacity frames resized to size
func NewBatch(capacity, size int) *Batch {

	mats := make([]gocv.Mat, capacity)

	for i := range mats {
		mats[i] = gocv.NewMat()
	}

	return &Batch{
		resizer: preprocess.NewResizer(size),
		mats:    mats,
		entries: make([]Entry, 0, capacity),
	}
}

// Add resizes a frame captured from the given junction index into the batch
func (b *Batch) Add(index int, frame gocv.Mat) error {

	// check if batch is full
	if len(b.entries) >= len(b.mats) {
		return ErrBatchFull
	}

	if frame.Empty() {
		return fmt.Errorf("empty frame for junction %d", index)
	}

	slot := len(b.entries)
	b.resizer.Resize(frame, &b.mats[slot])

	b.entries = append(b.entries, Entry{
		Index:  index,
		Width:  frame.Cols(),
		Height: frame.Rows(),
		Image:  b.mats[slot],
	})

	return nil
}

// Len returns the number of frames in the batch
func (b *Batch) Len() int {
	return len(b.entries)
}

// Cap returns the maximum number of frames the batch can hold
func (b *Batch) Cap() int {
	return len(b.mats)
}

// Size returns the square inference resolution
func (b *Batch) Size() int {
	return b.resizer.Size()
}

// Entry returns the i'th entry of the batch
func (b *Batch) Entry(i int) Entry {
	return b.entries[i]
}

// Entries returns all entries of the batch in order
func (b *Batch) Entries() []Entry {
	return b.entries
}

// Clear the batch so it can be reused again
func (b *Batch) Clear() {
	// the resized Mats are overwritten on the next Add
	b.entries = b.entries[:0]
}

// Close the batch and free allocated memory
func (b *Batch) Close() error {

	var errs []error

	for _, m := range b.mats {
		if err := m.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	b.entries = nil

	return errors.Join(errs...)
}
