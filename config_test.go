package trafficvision

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-trafficvision/postprocess"
)

func TestDefaultConfigValid(t *testing.T) {

	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Len(t, cfg.Junctions, 4)
	assert.Equal(t, 3, cfg.FrameSkip)
	assert.Equal(t, 2*time.Second, cfg.Telemetry.Interval.Std())
	assert.Equal(t, 20*time.Millisecond, cfg.Telemetry.Timeout.Std())
	assert.Equal(t, time.Second/12, cfg.DisplayInterval())

	// the tracker sees one frame in FrameSkip of a 30fps capture
	assert.Equal(t, 10, cfg.Detector.TrackFrameRate)
	assert.Equal(t, 30, cfg.Detector.TrackFrameRate*cfg.FrameSkip)
}

func TestLoadConfig(t *testing.T) {

	path := filepath.Join(t.TempDir(), "config.json")

	data := `{
		"junctions": [{"id": "North", "source": "north.mp4"}],
		"class_map": {"2": "cars", "7": "trucks"},
		"frame_skip": 2,
		"telemetry": {"interval": "500ms"},
		"display": {"sink": "none"}
	}`

	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, []Junction{{ID: "North", Source: "north.mp4"}}, cfg.Junctions)
	assert.Equal(t, map[int]string{2: "cars", 7: "trucks"}, cfg.ClassMap)
	assert.Equal(t, 2, cfg.FrameSkip)
	assert.Equal(t, 500*time.Millisecond, cfg.Telemetry.Interval.Std())
	assert.Equal(t, SinkNone, cfg.Display.Sink)

	// untouched fields keep their defaults
	assert.Equal(t, 640, cfg.Detector.InferenceSize)
	assert.Equal(t, TransportHTTP, cfg.Telemetry.Transport)
	assert.Equal(t, 20*time.Millisecond, cfg.Telemetry.Timeout.Std())
	assert.Equal(t, 12.0, cfg.Display.TargetFPS)
}

func TestLoadConfigErrors(t *testing.T) {

	dir := t.TempDir()

	_, err := LoadConfig(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"frame_skip": "x"}`), 0o600))
	_, err = LoadConfig(bad)
	assert.Error(t, err)

	invalidFile := filepath.Join(dir, "invalid.json")
	require.NoError(t, os.WriteFile(invalidFile, []byte(`{"frame_skip": 0}`), 0o600))
	_, err = LoadConfig(invalidFile)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {

	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"no junctions", func(c *Config) { c.Junctions = nil }},
		{"empty id", func(c *Config) { c.Junctions[1].ID = "" }},
		{"duplicate id", func(c *Config) { c.Junctions[1].ID = c.Junctions[0].ID }},
		{"frame skip", func(c *Config) { c.FrameSkip = 0 }},
		{"unknown class", func(c *Config) { c.ClassMap[9] = "boats" }},
		{"emergency class mapped", func(c *Config) { c.ClassMap[9] = "emergency" }},
		{"inference size", func(c *Config) { c.Detector.InferenceSize = 0 }},
		{"confidence", func(c *Config) { c.Detector.ConfThreshold = 1.5 }},
		{"max detections", func(c *Config) { c.Detector.MaxDetections = 0 }},
		{"tracker", func(c *Config) { c.Detector.Tracker = "sort" }},
		{"track buffer", func(c *Config) { c.Detector.TrackBuffer = 0 }},
		{"http url", func(c *Config) { c.Telemetry.URL = "" }},
		{"mqtt broker", func(c *Config) { c.Telemetry.Transport = TransportMQTT }},
		{"transport", func(c *Config) { c.Telemetry.Transport = "kafka" }},
		{"interval", func(c *Config) { c.Telemetry.Interval = Duration(-time.Second) }},
		{"target fps", func(c *Config) { c.Display.TargetFPS = 0 }},
		{"tile size", func(c *Config) { c.Display.TileWidth = 0 }},
		{"grid", func(c *Config) { c.Display.Rows = 0 }},
		{"grid capacity", func(c *Config) {
			c.Junctions = append(c.Junctions, Junction{ID: "Aluva", Source: "aluva.mp4"})
		}},
		{"recorder path", func(c *Config) { c.Display.Sink = SinkRecorder }},
		{"sink", func(c *Config) { c.Display.Sink = "vnc" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestDurationJSON(t *testing.T) {

	var d Duration

	require.NoError(t, json.Unmarshal([]byte(`"20ms"`), &d))
	assert.Equal(t, 20*time.Millisecond, d.Std())

	require.NoError(t, json.Unmarshal([]byte(`1000000`), &d))
	assert.Equal(t, time.Millisecond, d.Std())

	assert.Error(t, json.Unmarshal([]byte(`"soon"`), &d))
	assert.Error(t, json.Unmarshal([]byte(`true`), &d))

	out, err := json.Marshal(Duration(2 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"2s"`, string(out))
}

func TestProjectorParams(t *testing.T) {

	params := DefaultConfig().ProjectorParams()

	assert.Equal(t, 640, params.InferenceSize)
	assert.Equal(t, map[int]postprocess.Category{
		2: postprocess.Cars,
		3: postprocess.Bikes,
		5: postprocess.Buses,
		7: postprocess.Trucks,
	}, params.ClassMap)
	assert.Equal(t, "auto", params.AutoClass)
	assert.Equal(t, "ambulance", params.EmergencyClass)
}

func TestRemoteConfigTracker(t *testing.T) {

	cfg := DefaultConfig()
	assert.Empty(t, cfg.RemoteConfig().Tracker)

	cfg.Detector.Tracker = TrackerRemote
	rc := cfg.RemoteConfig()
	assert.Equal(t, "bytetrack.yaml", rc.Tracker)
	assert.Equal(t, 300, rc.MaxDetections)
	assert.Equal(t, float32(0.35), rc.ConfThreshold)
	assert.Equal(t, 5*time.Second, rc.Timeout)
}
