package tracking

import (
	"time"

	"github.com/axelofwar/be-community-gamification/pkg/logger"
)

// Option configures a Tracker.
type Option func(*Tracker)

// WithShardCount sizes the per-key lock array to n*64 stripes.
func WithShardCount(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.stripes = n * stripesPerShard
		}
	}
}

// WithRetryAttempts sets the total number of attempts for one operation.
func WithRetryAttempts(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.attempts = uint(n)
		}
	}
}

// WithRetryDelay sets the base delay between attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(t *Tracker) {
		if d >= 0 {
			t.delay = d
		}
	}
}

// WithLogger sets the tracker logger.
func WithLogger(l logger.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.log = l
		}
	}
}
