// Package stream reads video sources in the background and keeps only the
// most recent frame of each, so consumers never wait on capture.
package stream

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// DefaultYield is the pause between capture iterations
const DefaultYield = 5 * time.Millisecond

// ErrUnavailable is returned when a source can not be opened
var ErrUnavailable = errors.New("source unavailable")

// Capture is a frame producing device such as a video file or camera
type Capture interface {
	Read(m *gocv.Mat) bool
	Set(prop gocv.VideoCaptureProperties, value float64)
	Close() error
}

// videoCapture adapts gocv.VideoCapture to Capture
type videoCapture struct {
	vc *gocv.VideoCapture
}

func (v videoCapture) Read(m *gocv.Mat) bool {
	return v.vc.Read(m)
}

func (v videoCapture) Set(prop gocv.VideoCaptureProperties, value float64) {
	v.vc.Set(prop, value)
}

func (v videoCapture) Close() error {
	return v.vc.Close()
}

// Stats are counters of a running source
type Stats struct {
	// Captured is the number of frames read
	Captured uint64
	// Rewinds is the number of times the source was looped to the start
	Rewinds uint64
}

// Option configures a Source
type Option func(*Source)

// WithYield sets the pause between capture iterations
func WithYield(d time.Duration) Option {
	return func(s *Source) {
		s.yield = d
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Source) {
		s.log = l
	}
}

// Source captures frames in a background goroutine into a single slot
// holding the latest frame.  The slot is the only state shared with readers.
type Source struct {
	capture Capture
	yield   time.Duration
	log     *zap.Logger

	// mu guards frame and ok
	mu    sync.Mutex
	frame gocv.Mat
	ok    bool

	// buf is only touched by the producer
	buf gocv.Mat

	started  atomic.Bool
	stop     chan struct{}
	done     chan struct{}
	release  sync.Once
	captured atomic.Uint64
	rewinds  atomic.Uint64
}

// Open opens a video file, stream URL or numeric camera index
func Open(locator string, opts ...Option) (*Source, error) {

	var device interface{} = locator

	if idx, err := strconv.Atoi(locator); err == nil {
		device = idx
	}

	vc, err := gocv.OpenVideoCapture(device)

	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, locator, err)
	}

	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: %s: not opened", ErrUnavailable, locator)
	}

	return New(videoCapture{vc: vc}, opts...), nil
}

// New wraps an already opened capture
func New(capture Capture, opts ...Option) *Source {

	s := &Source{
		capture: capture,
		yield:   DefaultYield,
		log:     zap.NewNop(),
		frame:   gocv.NewMat(),
		buf:     gocv.NewMat(),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	for _, o := range opts {
		o(s)
	}

	return s
}

// Start begins capturing in the background.  Calling it again has no effect.
func (s *Source) Start() {

	if !s.started.CompareAndSwap(false, true) {
		return
	}

	go s.loop()
}

// loop is the producer, on end of stream it seeks back to the first frame
func (s *Source) loop() {

	defer close(s.done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		if !s.capture.Read(&s.buf) || s.buf.Empty() {
			s.capture.Set(gocv.VideoCapturePosFrames, 0)
			n := s.rewinds.Add(1)
			s.log.Debug("Source rewound", zap.Uint64("rewinds", n))
		} else {
			// swap so the slot is replaced without copying pixels
			s.mu.Lock()
			s.frame, s.buf = s.buf, s.frame
			s.ok = true
			s.mu.Unlock()

			s.captured.Add(1)
		}

		timer.Reset(s.yield)

		select {
		case <-s.stop:
			return
		case <-timer.C:
		}
	}
}

// Read returns a copy of the latest frame without waiting for capture.  It
// reports false before the first frame was captured.  The caller owns the
// returned Mat and must Close it.
func (s *Source) Read() (bool, gocv.Mat) {

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ok {
		return false, gocv.NewMat()
	}

	return true, s.frame.Clone()
}

// Stats returns the capture counters
func (s *Source) Stats() Stats {
	return Stats{
		Captured: s.captured.Load(),
		Rewinds:  s.rewinds.Load(),
	}
}

// Release stops the producer and frees the capture and frame memory.  It is
// safe to call more than once.
func (s *Source) Release() error {

	var err error

	s.release.Do(func() {

		close(s.stop)

		if s.started.Load() {
			<-s.done
		}

		err = s.capture.Close()

		s.mu.Lock()
		s.ok = false
		s.frame.Close()
		s.mu.Unlock()

		s.buf.Close()
	})

	return err
}
