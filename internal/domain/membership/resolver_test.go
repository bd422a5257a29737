package membership_test

import (
	"context"
	"errors"
	"image"
	"sync/atomic"
	"testing"

	"github.com/axelofwar/be-community-gamification/internal/domain/membership"
	"github.com/axelofwar/be-community-gamification/internal/domain/similarity"
	. "github.com/smartystreets/goconvey/convey"
)

// fakeClassifier scores a reference by its first pixel value.
type fakeClassifier struct {
	tiers  *similarity.Classifier
	scores map[uint8]float64
	fail   map[uint8]bool
	calls  atomic.Int64
}

func newFake(scores map[uint8]float64) *fakeClassifier {
	c, _ := similarity.NewClassifier()
	return &fakeClassifier{tiers: c, scores: scores, fail: map[uint8]bool{}}
}

func (f *fakeClassifier) Classify(_, reference *image.Gray, threshold float64) (similarity.Result, error) {
	f.calls.Add(1)
	v := reference.Pix[0]
	if f.fail[v] {
		return similarity.Result{}, similarity.ErrDimensionMismatch
	}
	return f.tiers.Decide(f.scores[v], threshold), nil
}

func flat(v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func refs(name string, values ...uint8) []membership.Reference {
	out := make([]membership.Reference, len(values))
	for i, v := range values {
		out[i] = membership.Reference{ID: name + "/" + string(rune('a'+i)) + ".png", Image: flat(v)}
	}
	return out
}

func TestResolver(t *testing.T) {
	ctx := context.Background()
	candidate := flat(0)

	Convey("Given two collections that both match the candidate", t, func() {
		fake := newFake(map[uint8]float64{10: 0.55, 20: 0.2, 30: 0.6, 40: 0.1})
		cols := []membership.Collection{
			{Name: "y00ts", Threshold: 0.50, References: refs("y00ts", 10, 20)},
			{Name: "degods", Threshold: 0.45, References: refs("degods", 30, 40)},
		}

		Convey("When resolving sequentially many times", func() {
			r := membership.NewResolver(fake, membership.WithSeed(42))

			Convey("Then the first configured collection should always win", func() {
				for range 20 {
					d, err := r.Resolve(ctx, "user", candidate, cols)
					So(err, ShouldBeNil)
					So(d.Matched, ShouldBeTrue)
					So(d.Collection, ShouldEqual, "y00ts")
					So(d.Tier, ShouldEqual, similarity.TierLikely)
					So(d.Evidence, ShouldResemble, []string{"y00ts/a.png"})
				}
			})

			Convey("Then later collections should not be evaluated", func() {
				d, _ := r.Resolve(ctx, "user", candidate, cols)
				So(d.Results, ShouldHaveLength, 1)
			})
		})

		Convey("When resolving concurrently", func() {
			r := membership.NewResolver(fake, membership.WithConcurrency(4))

			Convey("Then the configured order should still decide", func() {
				for range 20 {
					d, err := r.Resolve(ctx, "user", candidate, cols)
					So(err, ShouldBeNil)
					So(d.Collection, ShouldEqual, "y00ts")
					So(d.Results, ShouldHaveLength, 2)
					So(d.Results[1].Matched, ShouldBeTrue)
				}
			})
		})
	})

	Convey("Given a collection with several matching references", t, func() {
		fake := newFake(map[uint8]float64{1: 0.6, 2: 0.95, 3: 0.7, 4: 0.3})
		cols := []membership.Collection{{Name: "y00ts", Threshold: 0.5, References: refs("y00ts", 1, 2, 3, 4)}}

		Convey("When using the first-match strategy", func() {
			d, err := membership.NewResolver(fake).Resolve(ctx, "k", candidate, cols)

			Convey("Then evidence should hold the single matching reference", func() {
				So(err, ShouldBeNil)
				So(d.Matched, ShouldBeTrue)
				So(d.Evidence, ShouldHaveLength, 1)
			})
		})

		Convey("When using the best-score strategy", func() {
			d, err := membership.NewResolver(fake, membership.WithStrategy(membership.BestScore)).Resolve(ctx, "k", candidate, cols)

			Convey("Then evidence should list all matches by descending score", func() {
				So(err, ShouldBeNil)
				So(d.Tier, ShouldEqual, similarity.TierExact)
				So(d.Score, ShouldEqual, 0.95)
				So(d.Evidence, ShouldResemble, []string{"y00ts/b.png", "y00ts/c.png", "y00ts/a.png"})
				So(fake.calls.Load(), ShouldEqual, int64(4))
			})
		})

		Convey("When the sample size is smaller than the set", func() {
			r := membership.NewResolver(fake, membership.WithSampleSize(2), membership.WithStrategy(membership.BestScore))
			d, err := r.Resolve(ctx, "k", candidate, cols)

			Convey("Then only the sample should be scored", func() {
				So(err, ShouldBeNil)
				So(d.Results[0].Sampled, ShouldEqual, 2)
				So(fake.calls.Load(), ShouldEqual, int64(2))
			})
		})
	})

	Convey("Given a collection with a broken reference", t, func() {
		fake := newFake(map[uint8]float64{5: 0.8})
		fake.fail[6] = true
		references := refs("y00ts", 6, 5)
		references = append(references, membership.Reference{ID: "y00ts/nil.png"})
		cols := []membership.Collection{{Name: "y00ts", Threshold: 0.5, References: references}}

		Convey("When resolving with the best-score strategy", func() {
			d, err := membership.NewResolver(fake, membership.WithStrategy(membership.BestScore)).Resolve(ctx, "k", candidate, cols)

			Convey("Then bad references should be skipped rather than abort", func() {
				So(err, ShouldBeNil)
				So(d.Matched, ShouldBeTrue)
				So(d.Results[0].Skipped, ShouldEqual, 2)
				So(d.Evidence, ShouldResemble, []string{"y00ts/b.png"})
			})
		})
	})

	Convey("Given a collection where every reference fails", t, func() {
		fake := newFake(nil)
		fake.fail[7] = true
		cols := []membership.Collection{{Name: "y00ts", Threshold: 0.5, References: refs("y00ts", 7, 7)}}

		Convey("When resolving", func() {
			d, err := membership.NewResolver(fake).Resolve(ctx, "k", candidate, cols)

			Convey("Then the decision should be inconclusive", func() {
				So(errors.Is(err, membership.ErrInconclusive), ShouldBeTrue)
				So(d.Matched, ShouldBeFalse)
			})
		})
	})

	Convey("Given collections that do not match", t, func() {
		fake := newFake(map[uint8]float64{1: 0.3, 2: 0.4})
		cols := []membership.Collection{
			{Name: "y00ts", Threshold: 0.5, References: refs("y00ts", 1)},
			{Name: "degods", Threshold: 0.45, References: refs("degods", 2)},
		}

		Convey("When resolving", func() {
			d, err := membership.NewResolver(fake).Resolve(ctx, "k", candidate, cols)

			Convey("Then no collection should be reported", func() {
				So(err, ShouldBeNil)
				So(d.Matched, ShouldBeFalse)
				So(d.Collection, ShouldBeEmpty)
				So(d.Tier, ShouldEqual, similarity.TierNone)
				So(d.Score, ShouldEqual, 0.4)
				So(d.Results, ShouldHaveLength, 2)
			})
		})
	})

	Convey("Given invalid input", t, func() {
		r := membership.NewResolver(newFake(nil))

		Convey("When a collection has no references", func() {
			_, err := r.Resolve(ctx, "k", candidate, []membership.Collection{{Name: "y00ts", Threshold: 0.5}})

			Convey("Then it should be rejected", func() {
				So(errors.Is(err, membership.ErrInvalidCollection), ShouldBeTrue)
			})
		})

		Convey("When a threshold is out of range", func() {
			_, err := r.Resolve(ctx, "k", candidate, []membership.Collection{{Name: "y00ts", Threshold: 1, References: refs("y00ts", 1)}})

			Convey("Then it should be rejected", func() {
				So(errors.Is(err, membership.ErrInvalidCollection), ShouldBeTrue)
			})
		})

		Convey("When the candidate is nil", func() {
			_, err := r.Resolve(ctx, "k", nil, []membership.Collection{{Name: "y00ts", Threshold: 0.5, References: refs("y00ts", 1)}})

			Convey("Then it should be an invalid image", func() {
				So(errors.Is(err, similarity.ErrInvalidImage), ShouldBeTrue)
			})
		})

		Convey("When the context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := r.Resolve(cctx, "k", candidate, []membership.Collection{{Name: "y00ts", Threshold: 0.5, References: refs("y00ts", 1)}})

			Convey("Then the cancellation should be returned", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			})
		})
	})

	Convey("Given the real classifier", t, func() {
		c, err := similarity.NewClassifier()
		So(err, ShouldBeNil)
		img := image.NewGray(image.Rect(0, 0, 24, 24))
		for i := range img.Pix {
			img.Pix[i] = uint8(i * 13 % 251)
		}
		cols := []membership.Collection{{
			Name:       "y00ts",
			Threshold:  0.5,
			References: []membership.Reference{{ID: "y00ts/1.png", Image: img}},
		}}

		Convey("When the candidate is the reference itself", func() {
			d, err := membership.NewResolver(c).Resolve(ctx, "k", img, cols)

			Convey("Then it should be an exact member", func() {
				So(err, ShouldBeNil)
				So(d.Tier, ShouldEqual, similarity.TierExact)
				So(d.Tier.String(), ShouldEqual, "EXACT")
			})
		})
	})

	Convey("Given strategy names from configuration", t, func() {
		s, err := membership.ParseStrategy("best_score")
		So(err, ShouldBeNil)
		So(s, ShouldEqual, membership.BestScore)
		_, err = membership.ParseStrategy("random")
		So(err, ShouldNotBeNil)
	})
}
