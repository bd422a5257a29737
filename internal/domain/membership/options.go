package membership

import "github.com/axelofwar/be-community-gamification/pkg/logger"

// Option configures a Resolver.
type Option func(*Resolver)

// WithSampleSize caps how many references are drawn per collection.
func WithSampleSize(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.sampleSize = n
		}
	}
}

// WithSeed fixes the sampling seed.
func WithSeed(seed int64) Option {
	return func(r *Resolver) { r.seed = seed }
}

// WithStrategy selects how a sample is evaluated.
func WithStrategy(s Strategy) Option {
	return func(r *Resolver) { r.strategy = s }
}

// WithConcurrency sets how many collections are evaluated at once.
func WithConcurrency(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithLogger sets the logger used for skipped references.
func WithLogger(l logger.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}
