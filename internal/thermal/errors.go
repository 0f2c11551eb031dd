package thermal

import "errors"

var (
	ErrInvalidIntervalBounds = errors.New("min interval must be positive and below max interval")
	ErrInvalidChangeBounds   = errors.New("min temp change must be positive and below max temp change")
	ErrInvalidMinSamples     = errors.New("min samples must be at least 1")
	ErrInvalidWindow         = errors.New("rolling window must be positive")
	ErrInvalidCapacity       = errors.New("history capacity must be at least 1")
)
