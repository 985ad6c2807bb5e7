package trafficvision

import (
	"context"
	"fmt"

	"github.com/swdee/go-trafficvision/detector"
	"go.uber.org/zap"
)

// NewDetector connects to the inference service configured in cfg and wraps
// it with the local tracker when selected.  An error here is fatal to the run.
func NewDetector(ctx context.Context, cfg Config, log *zap.Logger) (detector.Detector, error) {

	if log == nil {
		log = zap.NewNop()
	}

	remote := detector.NewRemote(cfg.RemoteConfig(), log)

	if err := remote.Init(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDetectorInit, err)
	}

	log.Info("Detector ready",
		zap.String("url", cfg.Detector.URL),
		zap.Int("classes", len(remote.Labels())),
		zap.String("tracker", cfg.Detector.Tracker),
	)

	if cfg.Detector.Tracker == TrackerLocal {
		return detector.NewTracking(remote, detector.DefaultTrackerFactory(
			cfg.Detector.TrackFrameRate, cfg.Detector.TrackBuffer)), nil
	}

	return remote, nil
}
