// Package metrics tracks smoothed inference and display rates for the
// pipeline and exposes them, along with loop counters, to Prometheus.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// smoothing is the weight given to a new sample in the moving averages
	smoothing = 0.1
	// maxRate is reported when a measured duration is zero or negative
	maxRate = 999.0
)

// Metrics is a point in time copy of the tracked values
type Metrics struct {
	// LatencyMs is the duration of the most recent detector call
	LatencyMs float64
	// InferenceFPS is the moving average of detector call rate
	InferenceFPS float64
	// DisplayFPS is the moving average of achieved display refresh rate
	DisplayFPS float64
}

// Tracker holds the moving averages and counters of a running pipeline
type Tracker struct {
	mu      sync.Mutex
	current Metrics

	ticks             atomic.Uint64
	inferences        atomic.Uint64
	inferenceFailures atomic.Uint64
	telemetrySent     atomic.Uint64
	telemetryFailed   atomic.Uint64
	displayFrames     atomic.Uint64

	registry *prometheus.Registry
}

// New returns a Tracker with its Prometheus collectors registered
func New() *Tracker {

	t := &Tracker{
		registry: prometheus.NewRegistry(),
	}

	t.register()

	return t
}

// register adds all collectors to the tracker's registry
func (t *Tracker) register() {

	// smoothed values
	t.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "trafficvision_inference_latency_ms",
			Help: "Duration of the most recent batched detector call in milliseconds",
		},
		func() float64 { return t.Snapshot().LatencyMs },
	))

	t.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "trafficvision_inference_fps",
			Help: "Moving average of detector calls per second",
		},
		func() float64 { return t.Snapshot().InferenceFPS },
	))

	t.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "trafficvision_display_fps",
			Help: "Moving average of achieved display refreshes per second",
		},
		func() float64 { return t.Snapshot().DisplayFPS },
	))

	// loop counters
	t.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "trafficvision_ticks_total",
			Help: "Total driving loop iterations",
		},
		func() float64 { return float64(t.ticks.Load()) },
	))

	t.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "trafficvision_inferences_total",
			Help: "Total batched detector calls",
		},
		func() float64 { return float64(t.inferences.Load()) },
	))

	t.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "trafficvision_inference_failures_total",
			Help: "Total detector calls that failed and were discarded",
		},
		func() float64 { return float64(t.inferenceFailures.Load()) },
	))

	t.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "trafficvision_telemetry_sent_total",
			Help: "Total telemetry reports delivered",
		},
		func() float64 { return float64(t.telemetrySent.Load()) },
	))

	t.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "trafficvision_telemetry_failed_total",
			Help: "Total telemetry reports that could not be delivered",
		},
		func() float64 { return float64(t.telemetryFailed.Load()) },
	))

	t.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "trafficvision_display_frames_total",
			Help: "Total composed frames handed to the display sink",
		},
		func() float64 { return float64(t.displayFrames.Load()) },
	))
}

// rate returns the reciprocal of d in seconds
func rate(d time.Duration) float64 {

	if d <= 0 {
		return maxRate
	}

	return 1.0 / d.Seconds()
}

// ema blends a new sample into the previous average
func ema(old, sample float64) float64 {
	return (1-smoothing)*old + smoothing*sample
}

// ObserveInference records the duration of one detector call
func (t *Tracker) ObserveInference(d time.Duration) {

	t.inferences.Add(1)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.current.LatencyMs = float64(d) / float64(time.Millisecond)
	t.current.InferenceFPS = ema(t.current.InferenceFPS, rate(d))
}

// ObserveDisplay records the actual time elapsed since the previous display
// refresh
func (t *Tracker) ObserveDisplay(elapsed time.Duration) {

	t.displayFrames.Add(1)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.current.DisplayFPS = ema(t.current.DisplayFPS, rate(elapsed))
}

// Snapshot returns a copy of the current values
func (t *Tracker) Snapshot() Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// IncTick counts one driving loop iteration
func (t *Tracker) IncTick() {
	t.ticks.Add(1)
}

// InferenceFailed counts a detector call whose results were discarded
func (t *Tracker) InferenceFailed() {
	t.inferenceFailures.Add(1)
}

// TelemetrySent counts a delivered telemetry report
func (t *Tracker) TelemetrySent() {
	t.telemetrySent.Add(1)
}

// TelemetryFailed counts an undelivered telemetry report
func (t *Tracker) TelemetryFailed() {
	t.telemetryFailed.Add(1)
}

// Registry returns the Prometheus registry holding the tracker's collectors
func (t *Tracker) Registry() *prometheus.Registry {
	return t.registry
}

// Handler returns an HTTP handler serving the registry in Prometheus format
func (t *Tracker) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}
