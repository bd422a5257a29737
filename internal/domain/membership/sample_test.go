package membership

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSampleIndexes(t *testing.T) {
	Convey("Given a seeded sampler", t, func() {
		Convey("When drawing twice with the same inputs", func() {
			a := sampleIndexes(40, 5, 7, "user-1", "y00ts")
			b := sampleIndexes(40, 5, 7, "user-1", "y00ts")

			Convey("Then the draws should be identical", func() {
				So(a, ShouldResemble, b)
				So(a, ShouldHaveLength, 5)
			})
		})

		Convey("When drawing from fewer references than the sample size", func() {
			got := sampleIndexes(3, 5, 1, "k", "c")

			Convey("Then every reference should be drawn exactly once", func() {
				So(got, ShouldHaveLength, 3)
				seen := map[int]bool{}
				for _, i := range got {
					seen[i] = true
				}
				So(seen, ShouldHaveLength, 3)
			})
		})

		Convey("When drawing a large sample", func() {
			got := sampleIndexes(100, 50, 3, "k", "c")

			Convey("Then indexes should be distinct and in range", func() {
				seen := map[int]bool{}
				for _, i := range got {
					So(i, ShouldBeBetweenOrEqual, 0, 99)
					So(seen[i], ShouldBeFalse)
					seen[i] = true
				}
			})
		})

		Convey("When the collection name changes", func() {
			a := sampleIndexes(1000, 10, 1, "k", "y00ts")
			b := sampleIndexes(1000, 10, 1, "k", "degods")

			Convey("Then the streams should differ", func() {
				So(a, ShouldNotResemble, b)
			})
		})
	})
}
