// Package similarity scores profile images against reference images and
// buckets the score into similarity tiers.
//
// Scores come from the mean structural similarity index (SSIM) over 8-bit
// luminance. Both images must already share dimensions; use Resize to bring
// a reference to the candidate's size.
package similarity

import (
	"fmt"
	"image"
)

// Default tier cut-offs.
const (
	DefaultExactThreshold         = 0.925
	DefaultNearDuplicateThreshold = 0.90
)

const noMatchReason = "no match"

// Result is one classification outcome.
type Result struct {
	Score   float64 `json:"score"`
	Tier    Tier    `json:"tier"`
	Matched bool    `json:"matched"`
	Reason  string  `json:"reason,omitempty"`
}

// Classifier is immutable after construction and safe for concurrent use.
type Classifier struct {
	exact         float64
	nearDuplicate float64
	win           window
}

// NewClassifier builds a classifier. The near-duplicate cut-off must not
// exceed the exact cut-off and both must lie in (0,1).
func NewClassifier(opts ...Option) (*Classifier, error) {
	c := &Classifier{
		exact:         DefaultExactThreshold,
		nearDuplicate: DefaultNearDuplicateThreshold,
		win:           uniformWindow(defaultWindowSize),
	}
	for _, opt := range opts {
		opt(c)
	}
	if !inUnit(c.exact) || !inUnit(c.nearDuplicate) || c.nearDuplicate > c.exact {
		return nil, fmt.Errorf("%w: exact=%v near_duplicate=%v", ErrInvalidThreshold, c.exact, c.nearDuplicate)
	}
	return c, nil
}

// WindowSize returns the edge of the SSIM window; smaller images cannot
// be scored.
func (c *Classifier) WindowSize() int { return c.win.size }

// Score returns the SSIM of two equally sized images.
func (c *Classifier) Score(candidate, reference *image.Gray) (float64, error) {
	return ssim(candidate, reference, c.win)
}

// Classify scores candidate against reference and buckets the result using
// threshold as the LIKELY cut-off.
func (c *Classifier) Classify(candidate, reference *image.Gray, threshold float64) (Result, error) {
	if !inUnit(threshold) {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidThreshold, threshold)
	}
	score, err := c.Score(candidate, reference)
	if err != nil {
		return Result{}, err
	}
	return c.Decide(score, threshold), nil
}

// Decide buckets a precomputed score. Tiers are checked from the highest
// down and every comparison is strict.
func (c *Classifier) Decide(score, threshold float64) Result {
	var tier Tier
	switch {
	case score > c.exact:
		tier = TierExact
	case score > c.nearDuplicate:
		tier = TierNearDuplicate
	case score > threshold:
		tier = TierLikely
	default:
		return Result{Score: score, Tier: TierNone, Reason: noMatchReason}
	}
	return Result{Score: score, Tier: tier, Matched: true}
}

func inUnit(v float64) bool { return v > 0 && v < 1 }
