package render

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

// ErrSinkClosed is returned by Show once the display has been closed by the
// operator
var ErrSinkClosed = errors.New("display closed")

// Sink is the local rendering target of composed frames
type Sink interface {
	Show(img gocv.Mat) error
	Close() error
}

// WindowSink shows frames in a resizable desktop window
type WindowSink struct {
	window *gocv.Window
}

// NewWindowSink opens a window with the given title and initial size
func NewWindowSink(title string, width, height int) *WindowSink {

	window := gocv.NewWindow(title)
	window.ResizeWindow(width, height)

	return &WindowSink{window: window}
}

// Show displays the frame and services window events.  Pressing q or Esc,
// or closing the window, ends the display.
func (w *WindowSink) Show(img gocv.Mat) error {

	if !w.window.IsOpen() {
		return ErrSinkClosed
	}

	w.window.IMShow(img)

	switch w.window.WaitKey(1) {
	case 'q', 27:
		return ErrSinkClosed
	}

	return nil
}

// Close destroys the window
func (w *WindowSink) Close() error {
	return w.window.Close()
}

// RecorderSink writes frames to a video file.  The writer is opened on the
// first frame so its size matches the composed grid.
type RecorderSink struct {
	path   string
	codec  string
	fps    float64
	writer *gocv.VideoWriter
}

// NewRecorderSink returns a sink recording to path at fps
func NewRecorderSink(path string, fps float64) *RecorderSink {
	return &RecorderSink{
		path:  path,
		codec: "MJPG",
		fps:   fps,
	}
}

// Show appends the frame to the recording
func (r *RecorderSink) Show(img gocv.Mat) error {

	if r.writer == nil {
		writer, err := gocv.VideoWriterFile(r.path, r.codec, r.fps, img.Cols(), img.Rows(), true)

		if err != nil {
			return fmt.Errorf("error opening recorder %s: %w", r.path, err)
		}

		r.writer = writer
	}

	if err := r.writer.Write(img); err != nil {
		return fmt.Errorf("error writing frame: %w", err)
	}

	return nil
}

// Close finalises the recording
func (r *RecorderSink) Close() error {

	if r.writer == nil {
		return nil
	}

	return r.writer.Close()
}

// NullSink discards frames, used when running headless
type NullSink struct {
	// Frames is the number of frames shown
	Frames int
}

// Show counts the frame
func (n *NullSink) Show(img gocv.Mat) error {
	n.Frames++
	return nil
}

// Close does nothing
func (n *NullSink) Close() error {
	return nil
}
