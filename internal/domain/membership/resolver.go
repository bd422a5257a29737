// Package membership decides whether a profile image belongs to one of the
// tracked reference collections.
//
// For every collection a bounded, seeded sample of references is scored
// against the candidate. The first collection in configured order that
// reports a match wins, regardless of evaluation order.
package membership

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/axelofwar/be-community-gamification/internal/domain/similarity"
	"github.com/axelofwar/be-community-gamification/pkg/logger"
	"github.com/axelofwar/be-community-gamification/pkg/metrics"
)

// DefaultSampleSize is the number of references drawn per collection.
const DefaultSampleSize = 5

// ErrInconclusive is returned when no match was found and at least one
// collection could not score a single reference. Such a decision must not
// be treated as proof of non-membership.
var ErrInconclusive = errors.New("membership inconclusive")

// Strategy controls how a collection's sample is evaluated.
type Strategy int

const (
	// FirstMatch stops at the first reference reaching LIKELY or better.
	FirstMatch Strategy = iota
	// BestScore scores the whole sample and keeps the highest score.
	BestScore
)

func (s Strategy) String() string {
	if s == BestScore {
		return "best_score"
	}
	return "first_match"
}

// ParseStrategy maps a config value to a Strategy.
func ParseStrategy(v string) (Strategy, error) {
	switch v {
	case "", "first_match":
		return FirstMatch, nil
	case "best_score":
		return BestScore, nil
	}
	return FirstMatch, fmt.Errorf("unknown strategy %q", v)
}

// Classifier scores a candidate against one equally sized reference.
type Classifier interface {
	Classify(candidate, reference *image.Gray, threshold float64) (similarity.Result, error)
}

// Reference is one image of a collection.
type Reference struct {
	// ID is recorded as evidence, conventionally "<dir>/<file>".
	ID    string
	Image *image.Gray
}

// Collection is a named reference set with its LIKELY threshold.
type Collection struct {
	Name       string
	Threshold  float64
	References []Reference
}

// CollectionResult is the outcome for one evaluated collection.
type CollectionResult struct {
	Collection string          `json:"collection"`
	Matched    bool            `json:"matched"`
	Tier       similarity.Tier `json:"tier"`
	Score      float64         `json:"score"`
	Evidence   []string        `json:"evidence,omitempty"`
	Sampled    int             `json:"sampled"`
	Skipped    int             `json:"skipped"`
}

// Decision is the reduced membership verdict for one candidate.
type Decision struct {
	Matched    bool               `json:"matched"`
	Collection string             `json:"collection,omitempty"`
	Tier       similarity.Tier    `json:"tier"`
	Score      float64            `json:"score"`
	Evidence   []string           `json:"evidence,omitempty"`
	Results    []CollectionResult `json:"results"`
}

// Resolver holds only configuration and is safe for concurrent use.
type Resolver struct {
	classifier  Classifier
	sampleSize  int
	seed        int64
	strategy    Strategy
	concurrency int
	log         logger.Logger
}

// NewResolver builds a resolver around classifier.
func NewResolver(classifier Classifier, opts ...Option) *Resolver {
	r := &Resolver{
		classifier:  classifier,
		sampleSize:  DefaultSampleSize,
		seed:        1,
		strategy:    FirstMatch,
		concurrency: 1,
		log:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve evaluates candidate against collections. key only seeds the
// sampling. With a concurrency of one, collections after the first match
// are not evaluated.
func (r *Resolver) Resolve(ctx context.Context, key string, candidate *image.Gray, collections []Collection) (Decision, error) {
	start := time.Now()
	defer func() {
		metrics.RecordMembershipLatency(float64(time.Since(start).Nanoseconds()) / 1e6)
	}()

	if candidate == nil || candidate.Bounds().Empty() {
		return Decision{}, fmt.Errorf("%w: empty candidate", similarity.ErrInvalidImage)
	}
	for i := range collections {
		if err := validate(&collections[i]); err != nil {
			return Decision{}, err
		}
	}

	results, err := r.evaluateAll(ctx, key, candidate, collections)
	if err != nil {
		return Decision{}, err
	}

	d := Decision{Tier: similarity.TierNone, Results: results}
	inconclusive := false
	for _, res := range results {
		if res.Matched {
			d.Matched = true
			d.Collection = res.Collection
			d.Tier = res.Tier
			d.Score = res.Score
			d.Evidence = res.Evidence
			break
		}
		if res.Score > d.Score {
			d.Score = res.Score
		}
		if res.Sampled > 0 && res.Skipped == res.Sampled {
			inconclusive = true
		}
	}

	if d.Matched {
		metrics.RecordMembershipDecision(d.Collection)
		return d, nil
	}
	metrics.RecordMembershipDecision("none")
	if inconclusive {
		return d, ErrInconclusive
	}
	return d, nil
}

func (r *Resolver) evaluateAll(ctx context.Context, key string, candidate *image.Gray, collections []Collection) ([]CollectionResult, error) {
	if r.concurrency <= 1 {
		results := make([]CollectionResult, 0, len(collections))
		for i := range collections {
			res, err := r.evaluate(ctx, key, candidate, &collections[i])
			if err != nil {
				return nil, err
			}
			results = append(results, res)
			if res.Matched {
				break
			}
		}
		return results, nil
	}

	results := make([]CollectionResult, len(collections))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i := range collections {
		g.Go(func() error {
			res, err := r.evaluate(gctx, key, candidate, &collections[i])
			results[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

type hit struct {
	id    string
	tier  similarity.Tier
	score float64
}

func (r *Resolver) evaluate(ctx context.Context, key string, candidate *image.Gray, col *Collection) (CollectionResult, error) {
	res := CollectionResult{Collection: col.Name, Tier: similarity.TierNone}
	picks := sampleIndexes(len(col.References), r.sampleSize, r.seed, key, col.Name)
	res.Sampled = len(picks)

	cb := candidate.Bounds()
	scored := false
	var hits []hit
	for _, i := range picks {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		ref := col.References[i]
		if ref.Image == nil {
			r.skip(ctx, col.Name, ref.ID, fmt.Errorf("%w: nil reference", similarity.ErrInvalidImage))
			res.Skipped++
			continue
		}

		out, err := r.classifier.Classify(candidate, similarity.Resize(ref.Image, cb.Dx(), cb.Dy()), col.Threshold)
		if err != nil {
			r.skip(ctx, col.Name, ref.ID, err)
			res.Skipped++
			continue
		}
		metrics.RecordSimilarityScore(out.Score)
		if !scored || out.Score > res.Score {
			res.Score = out.Score
			scored = true
		}
		if !out.Matched {
			continue
		}
		hits = append(hits, hit{id: ref.ID, tier: out.Tier, score: out.Score})
		if r.strategy == FirstMatch {
			break
		}
	}

	if len(hits) > 0 {
		if r.strategy == FirstMatch {
			res.Score = hits[0].score
		} else {
			sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })
		}
		res.Matched = true
		res.Tier = hits[0].tier
		res.Evidence = make([]string, len(hits))
		for i, h := range hits {
			res.Evidence[i] = h.id
		}
	}
	metrics.RecordClassification(col.Name, res.Tier.String())
	return res, nil
}

func (r *Resolver) skip(ctx context.Context, collection, id string, err error) {
	metrics.RecordSkippedReference(collection)
	r.log.Warn(ctx, "skipping reference",
		logger.String("collection", collection),
		logger.String("reference", id),
		logger.Error(err),
	)
}

func validate(c *Collection) error {
	switch {
	case strings.TrimSpace(c.Name) == "":
		return fmt.Errorf("%w: empty name", ErrInvalidCollection)
	case len(c.References) == 0:
		return fmt.Errorf("%w: %s has no references", ErrInvalidCollection, c.Name)
	case c.Threshold <= 0 || c.Threshold >= 1:
		return fmt.Errorf("%w: %s threshold %v outside (0,1)", ErrInvalidCollection, c.Name, c.Threshold)
	}
	return nil
}
