package similarity_test

import (
	"image"
	"image/color"
)

func constantGray(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func checkerboard(w, h int, invert bool) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			on := (x+y)%2 == 0
			if invert {
				on = !on
			}
			if on {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}

func gradient(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetGray(x, y, color.Gray{Y: uint8((x*7 + y*3) % 256)})
		}
	}
	return img
}

// texturedPair returns a non-trivial 24x19 image and a clamped, perturbed
// copy of it.
func texturedPair() (*image.Gray, *image.Gray) {
	const w, h = 24, 19
	x := image.NewGray(image.Rect(0, 0, w, h))
	y := image.NewGray(image.Rect(0, 0, w, h))
	for py := range h {
		for px := range w {
			v := (px*px*3 + py*5 + px*py) % 251
			p := min(max(v+(px*13+py*29)%97-48, 0), 255)
			x.SetGray(px, py, color.Gray{Y: uint8(v)})
			y.SetGray(px, py, color.Gray{Y: uint8(p)})
		}
	}
	return x, y
}
