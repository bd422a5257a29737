package similarity

import (
	"fmt"
	"image"
	"math"
)

// Stabilising constants for 8-bit data.
const (
	k1        = 0.01
	k2        = 0.03
	dataRange = 255.0

	defaultWindowSize = 7
	gaussianSigma     = 1.5
	gaussianTaps      = 11
)

// window selects how local statistics are weighted.
type window struct {
	size    int
	weights []float64 // nil means uniform
}

func uniformWindow(size int) window { return window{size: size} }

func gaussianWindow() window {
	w := make([]float64, gaussianTaps)
	r := gaussianTaps / 2
	var sum float64
	for i := range w {
		d := float64(i - r)
		w[i] = math.Exp(-(d * d) / (2 * gaussianSigma * gaussianSigma))
		sum += w[i]
	}
	for i := range w {
		w[i] /= sum
	}
	return window{size: gaussianTaps, weights: w}
}

// moments are the local weighted means at one window position.
type moments struct {
	ux, uy, uxx, uyy, uxy float64
}

// SSIM computes the mean structural similarity of two equally sized
// grayscale images. Only window positions lying fully inside the image
// contribute to the mean.
func SSIM(x, y *image.Gray) (float64, error) {
	return ssim(x, y, uniformWindow(defaultWindowSize))
}

func ssim(x, y *image.Gray, win window) (float64, error) {
	if x == nil || y == nil {
		return 0, fmt.Errorf("%w: nil image", ErrInvalidImage)
	}
	xb, yb := x.Bounds(), y.Bounds()
	if xb.Dx() != yb.Dx() || xb.Dy() != yb.Dy() {
		return 0, fmt.Errorf("%w: %dx%d vs %dx%d", ErrDimensionMismatch, xb.Dx(), xb.Dy(), yb.Dx(), yb.Dy())
	}
	if xb.Dx() < win.size || xb.Dy() < win.size {
		return 0, fmt.Errorf("%w: %dx%d smaller than %d px window", ErrInvalidImage, xb.Dx(), xb.Dy(), win.size)
	}

	c1 := (k1 * dataRange) * (k1 * dataRange)
	c2 := (k2 * dataRange) * (k2 * dataRange)

	var (
		sum   float64
		count int
	)
	visit := func(m moments, covNorm float64) {
		vx := covNorm * (m.uxx - m.ux*m.ux)
		vy := covNorm * (m.uyy - m.uy*m.uy)
		vxy := covNorm * (m.uxy - m.ux*m.uy)
		num := (2*m.ux*m.uy + c1) * (2*vxy + c2)
		den := (m.ux*m.ux + m.uy*m.uy + c1) * (vx + vy + c2)
		sum += num / den
		count++
	}

	if win.weights == nil {
		uniformMoments(x, y, win.size, visit)
	} else {
		weightedMoments(x, y, win.weights, visit)
	}
	return sum / float64(count), nil
}

// uniformMoments walks every interior window using summed-area tables so
// each position costs O(1). Variances use the sample normalisation.
func uniformMoments(x, y *image.Gray, size int, visit func(moments, float64)) {
	w, h := x.Bounds().Dx(), x.Bounds().Dy()
	stride := w + 1
	n := (w + 1) * (h + 1)
	sx := make([]int64, n)
	sy := make([]int64, n)
	sxx := make([]int64, n)
	syy := make([]int64, n)
	sxy := make([]int64, n)

	for r := range h {
		var rx, ry, rxx, ryy, rxy int64
		xrow := x.Pix[r*x.Stride : r*x.Stride+w]
		yrow := y.Pix[r*y.Stride : r*y.Stride+w]
		for c := range w {
			a, b := int64(xrow[c]), int64(yrow[c])
			rx += a
			ry += b
			rxx += a * a
			ryy += b * b
			rxy += a * b
			i := (r+1)*stride + c + 1
			up := r*stride + c + 1
			sx[i] = sx[up] + rx
			sy[i] = sy[up] + ry
			sxx[i] = sxx[up] + rxx
			syy[i] = syy[up] + ryy
			sxy[i] = sxy[up] + rxy
		}
	}

	area := float64(size * size)
	covNorm := area / (area - 1)
	box := func(s []int64, r, c int) float64 {
		r2, c2 := r+size, c+size
		return float64(s[r2*stride+c2]-s[r*stride+c2]-s[r2*stride+c]+s[r*stride+c]) / area
	}
	for r := 0; r+size <= h; r++ {
		for c := 0; c+size <= w; c++ {
			visit(moments{
				ux:  box(sx, r, c),
				uy:  box(sy, r, c),
				uxx: box(sxx, r, c),
				uyy: box(syy, r, c),
				uxy: box(sxy, r, c),
			}, covNorm)
		}
	}
}

// weightedMoments applies a separable kernel, horizontal pass first.
// Variances use the population normalisation.
func weightedMoments(x, y *image.Gray, weights []float64, visit func(moments, float64)) {
	w, h := x.Bounds().Dx(), x.Bounds().Dy()
	size := len(weights)
	ow := w - size + 1

	// five horizontally filtered planes, h rows by ow columns each
	planes := make([][]float64, 5)
	for i := range planes {
		planes[i] = make([]float64, h*ow)
	}
	for r := range h {
		xrow := x.Pix[r*x.Stride : r*x.Stride+w]
		yrow := y.Pix[r*y.Stride : r*y.Stride+w]
		for c := range ow {
			var fx, fy, fxx, fyy, fxy float64
			for k, g := range weights {
				a, b := float64(xrow[c+k]), float64(yrow[c+k])
				fx += g * a
				fy += g * b
				fxx += g * a * a
				fyy += g * b * b
				fxy += g * a * b
			}
			i := r*ow + c
			planes[0][i] = fx
			planes[1][i] = fy
			planes[2][i] = fxx
			planes[3][i] = fyy
			planes[4][i] = fxy
		}
	}

	var acc [5]float64
	for r := 0; r+size <= h; r++ {
		for c := range ow {
			acc = [5]float64{}
			for k, g := range weights {
				i := (r+k)*ow + c
				for p := range acc {
					acc[p] += g * planes[p][i]
				}
			}
			visit(moments{ux: acc[0], uy: acc[1], uxx: acc[2], uyy: acc[3], uxy: acc[4]}, 1)
		}
	}
}
