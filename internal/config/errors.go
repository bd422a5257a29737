package config

import (
	"errors"
)

// Sentinel errors for configuration loading; callers branch with errors.Is.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)
