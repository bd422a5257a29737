package similarity

import "errors"

// Sentinel errors for classification; callers branch with errors.Is.
var (
	ErrDimensionMismatch = errors.New("image dimensions differ")
	ErrInvalidImage      = errors.New("invalid image")
	ErrInvalidThreshold  = errors.New("threshold must be in (0,1)")
)
