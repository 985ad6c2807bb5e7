package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveInference(t *testing.T) {

	tr := New()

	tr.ObserveInference(100 * time.Millisecond)

	snap := tr.Snapshot()
	assert.InDelta(t, 100.0, snap.LatencyMs, 1e-9)
	// 0.9*0 + 0.1*10
	assert.InDelta(t, 1.0, snap.InferenceFPS, 1e-9)

	tr.ObserveInference(50 * time.Millisecond)

	snap = tr.Snapshot()
	assert.InDelta(t, 50.0, snap.LatencyMs, 1e-9)
	// 0.9*1 + 0.1*20
	assert.InDelta(t, 2.9, snap.InferenceFPS, 1e-9)

	// display average is untouched by inference samples
	assert.Equal(t, 0.0, snap.DisplayFPS)
}

func TestObserveZeroDuration(t *testing.T) {

	tr := New()

	tr.ObserveInference(0)
	assert.InDelta(t, 99.9, tr.Snapshot().InferenceFPS, 1e-9)

	tr.ObserveDisplay(0)
	assert.InDelta(t, 99.9, tr.Snapshot().DisplayFPS, 1e-9)
}

func TestObserveDisplayUsesActualElapsed(t *testing.T) {

	tr := New()

	for i := 0; i < 200; i++ {
		tr.ObserveDisplay(250 * time.Millisecond)
	}

	// converges on the achieved rate of 4 per second
	assert.InDelta(t, 4.0, tr.Snapshot().DisplayFPS, 1e-3)
	assert.InDelta(t, 0.0, tr.Snapshot().InferenceFPS, 1e-9)
}

func TestCountersExported(t *testing.T) {

	tr := New()

	tr.IncTick()
	tr.IncTick()
	tr.ObserveInference(10 * time.Millisecond)
	tr.InferenceFailed()
	tr.TelemetrySent()
	tr.TelemetryFailed()
	tr.TelemetryFailed()

	count, err := testutil.GatherAndCount(tr.Registry())
	require.NoError(t, err)
	assert.Equal(t, 9, count)

	expected := `
# HELP trafficvision_telemetry_failed_total Total telemetry reports that could not be delivered
# TYPE trafficvision_telemetry_failed_total counter
trafficvision_telemetry_failed_total 2
# HELP trafficvision_ticks_total Total driving loop iterations
# TYPE trafficvision_ticks_total counter
trafficvision_ticks_total 2
`
	err = testutil.GatherAndCompare(tr.Registry(), strings.NewReader(expected),
		"trafficvision_ticks_total", "trafficvision_telemetry_failed_total")
	assert.NoError(t, err)
}

func TestHandlerServesMetrics(t *testing.T) {

	tr := New()
	tr.ObserveInference(20 * time.Millisecond)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	tr.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "trafficvision_inference_latency_ms 20")
}
