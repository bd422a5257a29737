package imagefetch

import (
	"net/http"
	"time"

	"github.com/axelofwar/be-community-gamification/pkg/logger"
)

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the HTTP client. Its Timeout bounds one attempt.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithTimeout sets the per-attempt request timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithCacheDir persists downloaded images under dir. Empty keeps the cache
// in memory only.
func WithCacheDir(dir string) Option {
	return func(f *Fetcher) { f.cacheDir = dir }
}

// WithCacheTTL sets how long a downloaded image is reused.
func WithCacheTTL(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.ttl = d
		}
	}
}

// WithRetryAttempts sets the total number of download attempts.
func WithRetryAttempts(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.attempts = uint(n)
		}
	}
}

// WithRetryDelay sets the base delay between download attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.delay = d
		}
	}
}

// WithBreaker opens the circuit after failures consecutive transient
// failures and probes again after timeout.
func WithBreaker(failures int, timeout time.Duration) Option {
	return func(f *Fetcher) {
		if failures > 0 {
			f.breakerFailures = uint32(failures)
		}
		if timeout > 0 {
			f.breakerTimeout = timeout
		}
	}
}

// WithLogger sets the fetcher logger.
func WithLogger(l logger.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.log = l
		}
	}
}
