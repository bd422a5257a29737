package similarity

// Option configures a Classifier.
type Option func(*Classifier)

// WithExactThreshold sets the score above which a match is EXACT.
func WithExactThreshold(t float64) Option {
	return func(c *Classifier) { c.exact = t }
}

// WithNearDuplicateThreshold sets the score above which a match is NEAR_DUPLICATE.
func WithNearDuplicateThreshold(t float64) Option {
	return func(c *Classifier) { c.nearDuplicate = t }
}

// WithGaussianWindow switches to an 11-tap Gaussian window (sigma 1.5).
func WithGaussianWindow() Option {
	return func(c *Classifier) { c.win = gaussianWindow() }
}

// WithWindowSize sets the uniform window edge in pixels. Even or
// too-small values are ignored.
func WithWindowSize(n int) Option {
	return func(c *Classifier) {
		if n >= 3 && n%2 == 1 {
			c.win = uniformWindow(n)
		}
	}
}
