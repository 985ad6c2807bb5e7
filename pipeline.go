package trafficvision

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/swdee/go-trafficvision/detector"
	"github.com/swdee/go-trafficvision/internal/clock"
	"github.com/swdee/go-trafficvision/metrics"
	"github.com/swdee/go-trafficvision/postprocess"
	"github.com/swdee/go-trafficvision/render"
	"github.com/swdee/go-trafficvision/telemetry"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		p.log = l
	}
}

// WithClock replaces the wall clock
func WithClock(c clock.Clock) Option {
	return func(p *Pipeline) {
		p.clock = c
	}
}

// WithSink sets the display sink instead of building it from the config
func WithSink(s render.Sink) Option {
	return func(p *Pipeline) {
		p.sink = s
	}
}

// WithTransport sets the telemetry transport instead of building it from
// the config
func WithTransport(t telemetry.Transport) Option {
	return func(p *Pipeline) {
		p.transport = t
	}
}

// WithOpener sets how junction sources are opened
func WithOpener(o Opener) Option {
	return func(p *Pipeline) {
		p.opener = o
	}
}

// WithMetrics sets the metrics tracker
func WithMetrics(m *metrics.Tracker) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// Pipeline is the single loop driving capture, inference, telemetry and
// display for all junctions.  It is not safe for concurrent use, only the
// frame sources run in their own goroutines.
type Pipeline struct {
	cfg   Config
	log   *zap.Logger
	clock clock.Clock

	opener    Opener
	feeds     []*JunctionFeed
	ids       []string
	frames    []gocv.Mat
	detector  detector.Detector
	scheduler *BatchScheduler
	batch     *detector.Batch
	projector *postprocess.Projector
	store     *postprocess.Store

	transport  telemetry.Transport
	publisher  *telemetry.Publisher
	compositor *render.Compositor
	sink       render.Sink
	metrics    *metrics.Tracker

	tick      uint64
	closeOnce sync.Once
	closeErr  error
}

// New opens every junction source and builds the pipeline.  Junctions whose
// source can not be opened are kept as unavailable.
func New(cfg Config, det detector.Detector, opts ...Option) (*Pipeline, error) {

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if det == nil {
		return nil, errors.New("detector is required")
	}

	p := &Pipeline{
		cfg:       cfg,
		detector:  det,
		scheduler: NewBatchScheduler(cfg.FrameSkip),
		projector: postprocess.NewProjector(cfg.ProjectorParams()),
		store:     postprocess.NewStore(len(cfg.Junctions)),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.log == nil {
		p.log = zap.NewNop()
	}
	if p.clock == nil {
		p.clock = clock.Real{}
	}
	if p.metrics == nil {
		p.metrics = metrics.New()
	}
	if p.opener == nil {
		p.opener = StreamOpener(cfg.CaptureYield.Std(), p.log)
	}
	if p.transport == nil {
		p.transport = newTransport(cfg.Telemetry, p.log)
	}
	if p.sink == nil {
		p.sink = newSink(cfg.Display)
	}

	p.publisher = telemetry.NewPublisher(p.transport, len(cfg.Junctions),
		cfg.Telemetry.Interval.Std(),
		telemetry.WithClock(p.clock),
		telemetry.WithObserver(p.metrics),
		telemetry.WithLogger(p.log),
	)

	p.compositor = render.NewCompositor(cfg.RenderConfig(), p.clock.Now())
	p.batch = detector.NewBatch(len(cfg.Junctions), cfg.Detector.InferenceSize)
	p.frames = make([]gocv.Mat, len(cfg.Junctions))

	for i := range p.frames {
		p.frames[i] = gocv.NewMat()
	}

	p.openFeeds()

	return p, nil
}

// newTransport builds the configured telemetry transport
func newTransport(cfg TelemetryConfig, log *zap.Logger) telemetry.Transport {
	switch cfg.Transport {
	case TransportHTTP:
		return telemetry.NewHTTPTransport(cfg.URL, cfg.Timeout.Std())
	case TransportMQTT:
		return telemetry.NewMQTTTransport(cfg.MQTTBroker, cfg.TopicPrefix,
			cfg.Timeout.Std(), log)
	default:
		return telemetry.NopTransport{}
	}
}

// newSink builds the configured display sink
func newSink(cfg DisplayConfig) render.Sink {
	switch cfg.Sink {
	case SinkWindow:
		return render.NewWindowSink(cfg.Title, cfg.WindowWidth, cfg.WindowHeight)
	case SinkRecorder:
		return render.NewRecorderSink(cfg.RecordPath, cfg.TargetFPS)
	default:
		return &render.NullSink{}
	}
}

// openFeeds opens and starts the source of every junction
func (p *Pipeline) openFeeds() {

	p.feeds = make([]*JunctionFeed, len(p.cfg.Junctions))
	p.ids = make([]string, len(p.cfg.Junctions))

	for i, j := range p.cfg.Junctions {

		feed := &JunctionFeed{ID: j.ID, Locator: j.Source}
		p.feeds[i] = feed
		p.ids[i] = j.ID

		src, err := p.opener(j.Source)

		if err != nil {
			p.log.Warn("Junction source unavailable",
				zap.String("junction_id", j.ID),
				zap.String("source", j.Source),
				zap.Error(err),
			)
			continue
		}

		feed.source = src
		src.Start()

		p.log.Info("Junction source opened",
			zap.String("junction_id", j.ID),
			zap.String("source", j.Source),
		)
	}
}

// Feeds returns the junction feeds in configuration order
func (p *Pipeline) Feeds() []*JunctionFeed {
	return p.feeds
}

// Results returns the latest result of every junction, nil where no
// inference has succeeded yet
func (p *Pipeline) Results() []*postprocess.JunctionResult {
	return p.store.All()
}

// Tick returns the number of completed ticks
func (p *Pipeline) Tick() uint64 {
	return p.tick
}

// Metrics returns the pipeline's metrics tracker
func (p *Pipeline) Metrics() *metrics.Tracker {
	return p.metrics
}

// Step runs one tick of the loop.  Inference and telemetry failures are
// absorbed, only a failing display sink returns an error.
func (p *Pipeline) Step(ctx context.Context) error {

	p.readFrames()

	if p.scheduler.ShouldInfer(p.tick) {
		p.infer(ctx)
	}

	p.publisher.Publish(ctx, p.ids, p.store.All())

	if err := p.display(); err != nil {
		return err
	}

	p.metrics.IncTick()
	p.tick++

	return nil
}

// readFrames replaces the previous tick's frames with the latest frame of
// every junction
func (p *Pipeline) readFrames() {

	for i, feed := range p.feeds {

		p.frames[i].Close()

		_, frame := feed.Read()
		p.frames[i] = frame
	}
}

// infer runs the detector on the current frames and stores the projected
// results
func (p *Pipeline) infer(ctx context.Context) {

	if err := p.scheduler.Assemble(p.frames, p.batch); err != nil {
		p.log.Warn("Failed to assemble batch", zap.Error(err))
		return
	}

	if p.batch.Len() == 0 {
		return
	}

	start := p.clock.Now()
	dets, err := detector.Infer(ctx, p.detector, p.batch)
	p.metrics.ObserveInference(p.clock.Now().Sub(start))

	if err != nil {
		p.metrics.InferenceFailed()
		p.log.Debug("Inference failed, keeping previous results",
			zap.Uint64("tick", p.tick),
			zap.Error(err),
		)
		return
	}

	if err := p.store.Apply(p.projector, p.batch, dets); err != nil {
		p.metrics.InferenceFailed()
		p.log.Warn("Discarding inference results", zap.Error(err))
	}
}

// display composes and shows the grid when the display interval has passed
func (p *Pipeline) display() error {

	now := p.clock.Now()

	if !p.compositor.Due(now) {
		return nil
	}

	p.metrics.ObserveDisplay(p.compositor.Elapsed(now))

	canvas := p.compositor.Compose(p.frames, p.store.All(), p.metrics.Snapshot())

	if err := p.sink.Show(*canvas); err != nil {
		return fmt.Errorf("display: %w", err)
	}

	p.compositor.MarkShown(now)

	return nil
}

// Run drives ticks until ctx is cancelled or the display sink fails, then
// releases all resources.  Cancellation returns nil.
func (p *Pipeline) Run(ctx context.Context) error {

	defer p.Close()

	p.log.Info("Pipeline started",
		zap.Int("junctions", len(p.feeds)),
		zap.Int("frame_skip", p.cfg.FrameSkip),
		zap.Duration("display_interval", p.cfg.DisplayInterval()),
		zap.Duration("telemetry_interval", p.cfg.Telemetry.Interval.Std()),
	)

	interval := p.cfg.TickInterval.Std()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("Pipeline stopped", zap.Uint64("ticks", p.tick))
			return nil
		default:
		}

		started := time.Now()

		if err := p.Step(ctx); err != nil {
			return err
		}

		if interval <= 0 {
			continue
		}

		if wait := interval - time.Since(started); wait > 0 {
			timer := time.NewTimer(wait)

			select {
			case <-ctx.Done():
				timer.Stop()
			case <-timer.C:
			}
		}
	}
}

// Close releases every source, the display sink, the telemetry transport
// and all image memory.  It is safe to call more than once.
func (p *Pipeline) Close() error {

	p.closeOnce.Do(func() {

		var errs []error

		for _, feed := range p.feeds {
			if err := feed.Release(); err != nil {
				errs = append(errs, fmt.Errorf("junction %s: %w", feed.ID, err))
			}
		}

		if err := p.sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sink: %w", err))
		}

		if err := p.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("telemetry: %w", err))
		}

		for i := range p.frames {
			p.frames[i].Close()
		}

		errs = append(errs, p.compositor.Close(), p.batch.Close())

		p.closeErr = errors.Join(errs...)
	})

	return p.closeErr
}
