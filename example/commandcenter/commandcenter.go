package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/swdee/go-trafficvision"
	"github.com/swdee/go-trafficvision/logger"
	"github.com/swdee/go-trafficvision/render"
	"go.uber.org/zap"
)

func main() {
	// disable logging timestamps
	log.SetFlags(0)

	// read in cli flags
	configFile := flag.String("c", "", "JSON configuration file, defaults are used when empty")
	detectorURL := flag.String("u", "", "URL of the inference service, overrides the config")
	frameSkip := flag.Int("k", 0, "Run inference every k ticks, overrides the config")
	sink := flag.String("s", "", "Display sink [window|recorder|none], overrides the config")
	recordPath := flag.String("r", "", "Video file to record the display to, implies the recorder sink")
	metricsAddr := flag.String("a", "", "HTTP address to serve Prometheus metrics on, format address:port")
	logLevel := flag.String("log-level", "", "Log level [debug|info|warn|error]")
	logFormat := flag.String("log-format", "", "Log format [json|console]")
	videos := flag.String("v", "", "Comma delimited list of id=source junctions, overrides the config")

	flag.Parse()

	cfg := trafficvision.DefaultConfig()

	if *configFile != "" {
		var err error
		cfg, err = trafficvision.LoadConfig(*configFile)

		if err != nil {
			log.Fatalf("Error loading config: %v", err)
		}
	}

	if err := applyFlags(&cfg, *detectorURL, *frameSkip, *sink, *recordPath,
		*metricsAddr, *logLevel, *logFormat, *videos); err != nil {
		log.Fatalf("Invalid flags: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel, cfg.LogFormat, "trafficvision")

	if err != nil {
		log.Fatalf("Error creating logger: %v", err)
	}

	defer zl.Sync()

	zl = zl.With(zap.String("run_id", uuid.NewString()))

	if err := trafficvision.PinCores(cfg.CPUCores); err != nil {
		zl.Warn("Failed to set CPU affinity", zap.Ints("cores", cfg.CPUCores), zap.Error(err))
	}

	if mask, err := trafficvision.GetCPUAffinity(); err == nil {
		zl.Info("CPU affinity", zap.String("mask", fmt.Sprintf("%#b", mask)))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	det, err := trafficvision.NewDetector(initCtx, cfg, zl)
	cancel()

	if err != nil {
		zl.Fatal("Detector unavailable", zap.Error(err))
	}

	pipeline, err := trafficvision.New(cfg, det, trafficvision.WithLogger(zl))

	if err != nil {
		zl.Fatal("Error creating pipeline", zap.Error(err))
	}

	logStartup(zl, cfg, pipeline)

	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, pipeline, zl)
		defer srv.Close()
	}

	err = pipeline.Run(ctx)

	switch {
	case err == nil:
	case errors.Is(err, render.ErrSinkClosed):
		zl.Info("Display closed by operator")
	default:
		zl.Error("Pipeline stopped", zap.Error(err))
		zl.Sync()
		os.Exit(1)
	}
}

// applyFlags overrides configuration values with the non empty flags
func applyFlags(cfg *trafficvision.Config, detectorURL string, frameSkip int,
	sink, recordPath, metricsAddr, logLevel, logFormat, videos string) error {

	if detectorURL != "" {
		cfg.Detector.URL = detectorURL
	}
	if frameSkip > 0 {
		cfg.FrameSkip = frameSkip
	}
	if sink != "" {
		cfg.Display.Sink = sink
	}
	if recordPath != "" {
		cfg.Display.Sink = trafficvision.SinkRecorder
		cfg.Display.RecordPath = recordPath
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}

	if videos == "" {
		return nil
	}

	var junctions []trafficvision.Junction

	for _, item := range strings.Split(videos, ",") {

		id, source, ok := strings.Cut(strings.TrimSpace(item), "=")

		if !ok || id == "" || source == "" {
			return fmt.Errorf("junction %q is not in id=source format", item)
		}

		junctions = append(junctions, trafficvision.Junction{ID: id, Source: source})
	}

	cfg.Junctions = junctions

	return nil
}

// logStartup records the configuration and which junctions are live
func logStartup(zl *zap.Logger, cfg trafficvision.Config, p *trafficvision.Pipeline) {

	var live, unavailable []string

	for _, feed := range p.Feeds() {
		if feed.Available() {
			live = append(live, feed.ID)
		} else {
			unavailable = append(unavailable, feed.ID)
		}
	}

	zl.Info("Traffic command center started",
		zap.String("device", cfg.Display.Device),
		zap.String("detector", cfg.Detector.URL),
		zap.String("tracker", cfg.Detector.Tracker),
		zap.Strings("live", live),
		zap.Strings("unavailable", unavailable),
		zap.Int("frame_skip", cfg.FrameSkip),
		zap.Float64("display_fps", cfg.Display.TargetFPS),
		zap.String("telemetry", cfg.Telemetry.Transport),
		zap.Duration("telemetry_interval", cfg.Telemetry.Interval.Std()),
	)
}

// serveMetrics starts the Prometheus endpoint in the background
func serveMetrics(addr string, p *trafficvision.Pipeline, zl *zap.Logger) *http.Server {

	mux := http.NewServeMux()
	mux.Handle("/metrics", p.Metrics().Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		zl.Info("Serving metrics", zap.String("addr", "http://"+addr+"/metrics"))

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Error("Metrics server failed", zap.Error(err))
		}
	}()

	return srv
}
