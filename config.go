package trafficvision

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/swdee/go-trafficvision/detector"
	"github.com/swdee/go-trafficvision/postprocess"
	"github.com/swdee/go-trafficvision/render"
)

// Tracker selectors
const (
	// TrackerLocal assigns track ids in process with ByteTrack
	TrackerLocal = "bytetrack"
	// TrackerRemote asks the inference service to track
	TrackerRemote = "remote"
	// TrackerNone disables tracking, every detection has no track id
	TrackerNone = "none"
)

// Telemetry transports
const (
	TransportHTTP = "http"
	TransportMQTT = "mqtt"
	TransportNone = "none"
)

// Display sinks
const (
	SinkWindow   = "window"
	SinkRecorder = "recorder"
	SinkNone     = "none"
)

// Duration is a time.Duration encoded in JSON as a string such as "2s"
type Duration time.Duration

// MarshalJSON encodes the duration as a string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string or a number of nanoseconds
func (d *Duration) UnmarshalJSON(data []byte) error {

	var v interface{}

	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	switch val := v.(type) {
	case float64:
		*d = Duration(time.Duration(val))
	case string:
		parsed, err := time.ParseDuration(val)

		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", val, err)
		}

		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration %s", string(data))
	}

	return nil
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Junction identifies one monitored location and its video source
type Junction struct {
	ID     string `json:"id"`
	Source string `json:"source"`
}

// DetectorConfig configures the detection capability
type DetectorConfig struct {
	// URL of the inference service
	URL string `json:"url"`
	// ConfThreshold is the minimum detection confidence
	ConfThreshold float32 `json:"conf_threshold"`
	// InferenceSize is the square resolution frames are resized to
	InferenceSize int `json:"inference_size"`
	// MaxDetections per image
	MaxDetections int `json:"max_detections"`
	// Tracker is one of bytetrack, remote or none
	Tracker string `json:"tracker"`
	// RemoteTracker is the tracker configuration passed to the service when
	// Tracker is remote
	RemoteTracker string `json:"remote_tracker"`
	// Timeout bounds each inference request
	Timeout Duration `json:"timeout"`
	// LabelsFile optionally overrides the class names of the model
	LabelsFile string `json:"labels_file"`
	// TrackFrameRate is the rate detections reach the local tracker, the
	// capture rate divided by FrameSkip.  With TrackBuffer it sizes the
	// tracker's memory of lost objects.
	TrackFrameRate int `json:"track_frame_rate"`
	TrackBuffer    int `json:"track_buffer"`
}

// TelemetryConfig configures the reporting of junction state
type TelemetryConfig struct {
	// Transport is one of http, mqtt or none
	Transport string `json:"transport"`
	// URL is the HTTP endpoint
	URL string `json:"url"`
	// Interval is the minimum time between reports of a junction
	Interval Duration `json:"interval"`
	// Timeout bounds a single delivery
	Timeout Duration `json:"timeout"`
	// MQTTBroker is the broker address, eg: tcp://localhost:1883
	MQTTBroker string `json:"mqtt_broker"`
	// TopicPrefix is prepended to the junction id to form the MQTT topic
	TopicPrefix string `json:"topic_prefix"`
}

// DisplayConfig configures the composed display
type DisplayConfig struct {
	TargetFPS  float64 `json:"target_fps"`
	TileWidth  int     `json:"tile_width"`
	TileHeight int     `json:"tile_height"`
	Rows       int     `json:"rows"`
	Cols       int     `json:"cols"`
	Title      string  `json:"title"`
	Device     string  `json:"device"`
	// Sink is one of window, recorder or none
	Sink         string `json:"sink"`
	RecordPath   string `json:"record_path"`
	WindowWidth  int    `json:"window_width"`
	WindowHeight int    `json:"window_height"`
}

// Config is the immutable configuration of a pipeline run
type Config struct {
	Junctions []Junction `json:"junctions"`
	// ClassMap maps numeric detector classes to category names
	ClassMap map[int]string `json:"class_map"`
	// AutoClass is the class name counted as autos
	AutoClass string `json:"auto_class"`
	// EmergencyClass is the class name that raises the emergency flag
	EmergencyClass string `json:"emergency_class"`
	// FrameSkip runs inference every FrameSkip ticks
	FrameSkip int `json:"frame_skip"`

	Detector  DetectorConfig  `json:"detector"`
	Telemetry TelemetryConfig `json:"telemetry"`
	Display   DisplayConfig   `json:"display"`

	// CaptureYield is the pause between frame captures of each source
	CaptureYield Duration `json:"capture_yield"`
	// TickInterval is the minimum duration of a tick, zero runs flat out
	TickInterval Duration `json:"tick_interval"`
	// MetricsAddr is the listen address of the Prometheus endpoint, empty
	// disables it
	MetricsAddr string `json:"metrics_addr"`
	LogLevel    string `json:"log_level"`
	LogFormat   string `json:"log_format"`
	// CPUCores pins the process to the given cores when set
	CPUCores []int `json:"cpu_cores"`
}

// DefaultConfig returns the reference four junction configuration
func DefaultConfig() Config {

	display := render.DefaultConfig()

	return Config{
		Junctions: []Junction{
			{ID: "Vyttila", Source: "vyttila.mp4"},
			{ID: "Edappally", Source: "edappally.mp4"},
			{ID: "Palarivattom", Source: "palarivattom.mp4"},
			{ID: "Kakkanad", Source: "kakkanad.mp4"},
		},
		ClassMap: map[int]string{
			2: "cars",
			3: "bikes",
			5: "buses",
			7: "trucks",
		},
		AutoClass:      "auto",
		EmergencyClass: "ambulance",
		FrameSkip:      3,
		Detector: DetectorConfig{
			URL:            "http://localhost:8000",
			ConfThreshold:  0.35,
			InferenceSize:  640,
			MaxDetections:  300,
			Tracker:        TrackerLocal,
			RemoteTracker:  "bytetrack.yaml",
			Timeout:        Duration(5 * time.Second),
			TrackFrameRate: 10,
			TrackBuffer:    30,
		},
		Telemetry: TelemetryConfig{
			Transport:   TransportHTTP,
			URL:         "http://localhost:3000/api/analyze-traffic",
			Interval:    Duration(2 * time.Second),
			Timeout:     Duration(20 * time.Millisecond),
			TopicPrefix: "trafficvision/junctions",
		},
		Display: DisplayConfig{
			TargetFPS:    display.TargetFPS,
			TileWidth:    display.TileWidth,
			TileHeight:   display.TileHeight,
			Rows:         display.Rows,
			Cols:         display.Cols,
			Title:        display.Title,
			Sink:         SinkWindow,
			WindowWidth:  1280,
			WindowHeight: 720,
		},
		CaptureYield: Duration(5 * time.Millisecond),
		LogLevel:     "info",
		LogFormat:    "json",
	}
}

// LoadConfig reads a JSON configuration file over the defaults
func LoadConfig(path string) (Config, error) {

	data, err := os.ReadFile(path)

	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	// a class map in the file replaces the default one instead of merging
	defaults := cfg.ClassMap
	cfg.ClassMap = nil

	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.ClassMap == nil {
		cfg.ClassMap = defaults
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// invalid wraps a validation failure
func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Validate checks the configuration is usable
func (c Config) Validate() error {

	if len(c.Junctions) == 0 {
		return invalid("no junctions configured")
	}

	seen := make(map[string]bool, len(c.Junctions))

	for i, j := range c.Junctions {
		if j.ID == "" {
			return invalid("junction %d has no id", i)
		}
		if seen[j.ID] {
			return invalid("duplicate junction id %q", j.ID)
		}
		seen[j.ID] = true
	}

	if c.FrameSkip < 1 {
		return invalid("frame_skip must be at least 1, got %d", c.FrameSkip)
	}

	if _, err := c.classMap(); err != nil {
		return invalid("%v", err)
	}

	d := c.Detector

	if d.InferenceSize <= 0 {
		return invalid("inference_size must be positive")
	}
	if d.ConfThreshold < 0 || d.ConfThreshold > 1 {
		return invalid("conf_threshold must be within [0,1]")
	}
	if d.MaxDetections <= 0 {
		return invalid("max_detections must be positive")
	}

	switch d.Tracker {
	case TrackerLocal:
		if d.TrackFrameRate <= 0 || d.TrackBuffer <= 0 {
			return invalid("track_frame_rate and track_buffer must be positive")
		}
	case TrackerRemote, TrackerNone:
	default:
		return invalid("unknown tracker %q", d.Tracker)
	}

	t := c.Telemetry

	switch t.Transport {
	case TransportHTTP:
		if t.URL == "" {
			return invalid("telemetry url required for http transport")
		}
	case TransportMQTT:
		if t.MQTTBroker == "" {
			return invalid("mqtt_broker required for mqtt transport")
		}
	case TransportNone:
	default:
		return invalid("unknown telemetry transport %q", t.Transport)
	}

	if t.Interval < 0 {
		return invalid("telemetry interval must not be negative")
	}

	s := c.Display

	if s.TargetFPS <= 0 {
		return invalid("display target_fps must be positive")
	}
	if s.TileWidth <= 0 || s.TileHeight <= 0 {
		return invalid("display tile size must be positive")
	}
	if s.Rows <= 0 || s.Cols <= 0 {
		return invalid("display grid must have at least one row and column")
	}
	if len(c.Junctions) > s.Rows*s.Cols {
		return invalid("%d junctions do not fit a %dx%d display grid",
			len(c.Junctions), s.Rows, s.Cols)
	}

	switch s.Sink {
	case SinkWindow, SinkNone:
	case SinkRecorder:
		if s.RecordPath == "" {
			return invalid("record_path required for recorder sink")
		}
	default:
		return invalid("unknown display sink %q", s.Sink)
	}

	return nil
}

// classMap converts the configured class names to categories
func (c Config) classMap() (map[int]postprocess.Category, error) {

	out := make(map[int]postprocess.Category, len(c.ClassMap))

	for id, name := range c.ClassMap {

		cat, err := postprocess.ParseCategory(name)

		if err != nil {
			return nil, fmt.Errorf("class %d: %w", id, err)
		}

		if cat == postprocess.None || cat == postprocess.Emergency {
			return nil, fmt.Errorf("class %d: %s is not a counted category", id, name)
		}

		out[id] = cat
	}

	return out, nil
}

// ProjectorParams returns the classification parameters
func (c Config) ProjectorParams() postprocess.Params {

	// validated beforehand
	classes, _ := c.classMap()

	return postprocess.Params{
		InferenceSize:  c.Detector.InferenceSize,
		ClassMap:       classes,
		AutoClass:      c.AutoClass,
		EmergencyClass: c.EmergencyClass,
	}
}

// RemoteConfig returns the inference service client configuration
func (c Config) RemoteConfig() detector.RemoteConfig {

	remoteTracker := ""

	if c.Detector.Tracker == TrackerRemote {
		remoteTracker = c.Detector.RemoteTracker
	}

	return detector.RemoteConfig{
		URL:           c.Detector.URL,
		ConfThreshold: c.Detector.ConfThreshold,
		ImageSize:     c.Detector.InferenceSize,
		MaxDetections: c.Detector.MaxDetections,
		Tracker:       remoteTracker,
		Timeout:       c.Detector.Timeout.Std(),
		LabelsFile:    c.Detector.LabelsFile,
	}
}

// RenderConfig returns the compositor layout
func (c Config) RenderConfig() render.Config {
	return render.Config{
		TargetFPS:  c.Display.TargetFPS,
		TileWidth:  c.Display.TileWidth,
		TileHeight: c.Display.TileHeight,
		Rows:       c.Display.Rows,
		Cols:       c.Display.Cols,
		Title:      c.Display.Title,
		Device:     c.Display.Device,
	}
}

// DisplayInterval returns the time between display refreshes
func (c Config) DisplayInterval() time.Duration {
	return c.RenderConfig().Interval()
}
