package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound     = errors.New("entity not found")
	ErrInvalidLimit = errors.New("invalid leaderboard limit")
	ErrInvalidKey   = errors.New("invalid entity key")
	// ErrStoreUnavailable marks backend failures; replaying the same
	// observation is safe.
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrUnknownDriver    = errors.New("unknown store driver")
)
