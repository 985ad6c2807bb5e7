package trafficvision

import "errors"

var (
	// ErrDetectorInit is returned when the detection capability can not be
	// initialised at startup.  It is the only fatal error of a run.
	ErrDetectorInit = errors.New("detector initialisation failed")
	// ErrInvalidConfig is returned by Config.Validate
	ErrInvalidConfig = errors.New("invalid configuration")
)
