package telemetry

import (
	"context"
	"time"

	"github.com/swdee/go-trafficvision/internal/clock"
	"github.com/swdee/go-trafficvision/postprocess"
	"go.uber.org/zap"
)

// Observer is notified of each delivery attempt outcome
type Observer interface {
	TelemetrySent()
	TelemetryFailed()
}

// Publisher sends the stored result of each junction at most once per
// interval.  A failed send does not advance the junction's last sent time so
// it is retried on the next call.
type Publisher struct {
	transport Transport
	interval  time.Duration
	lastSent  []time.Time
	clock     clock.Clock
	observer  Observer
	log       *zap.Logger
}

// Option configures a Publisher
type Option func(*Publisher)

// WithClock sets the time source
func WithClock(c clock.Clock) Option {
	return func(p *Publisher) {
		p.clock = c
	}
}

// WithObserver sets the delivery observer
func WithObserver(o Observer) Option {
	return func(p *Publisher) {
		p.observer = o
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(p *Publisher) {
		p.log = l
	}
}

// NewPublisher returns a publisher for n junctions
func NewPublisher(t Transport, n int, interval time.Duration, opts ...Option) *Publisher {

	p := &Publisher{
		transport: t,
		interval:  interval,
		lastSent:  make([]time.Time, n),
		clock:     clock.Real{},
		log:       zap.NewNop(),
	}

	for _, o := range opts {
		o(p)
	}

	return p
}

// LastSent returns the time of the last successful send for junction i, zero
// if nothing was delivered yet
func (p *Publisher) LastSent(i int) time.Time {
	return p.lastSent[i]
}

// Publish sends the results that are due and returns how many were delivered
func (p *Publisher) Publish(ctx context.Context, ids []string,
	results []*postprocess.JunctionResult) int {

	sent := 0

	for i, res := range results {

		if res == nil || i >= len(p.lastSent) || i >= len(ids) {
			continue
		}

		now := p.clock.Now()

		if now.Sub(p.lastSent[i]) <= p.interval {
			continue
		}

		err := p.transport.Send(ctx, NewReport(ids[i], res))

		if err != nil {
			p.log.Debug("Telemetry not delivered",
				zap.String("junction_id", ids[i]),
				zap.Error(err),
			)

			if p.observer != nil {
				p.observer.TelemetryFailed()
			}
			continue
		}

		p.lastSent[i] = now
		sent++

		if p.observer != nil {
			p.observer.TelemetrySent()
		}
	}

	return sent
}

// Close closes the transport
func (p *Publisher) Close() error {
	return p.transport.Close()
}
