package similarity

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder

	_ "golang.org/x/image/bmp"  // register BMP decoder
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register WebP decoder
)

// maxDecodePixels rejects images whose header claims absurd dimensions
// before any pixel memory is allocated.
const maxDecodePixels = 64 << 20

// Decode parses an encoded image and converts it to 8-bit luminance.
func Decode(data []byte) (*image.Gray, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxDecodePixels {
		return nil, fmt.Errorf("%w: unsupported dimensions %dx%d", ErrInvalidImage, cfg.Width, cfg.Height)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	return ToGray(img), nil
}

// ToGray converts img to luminance with ITU-R 601-2 weights on the
// non-premultiplied colour channels. The result's bounds start at (0,0).
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))

	switch src := img.(type) {
	case *image.Gray:
		for r := range b.Dy() {
			copy(dst.Pix[r*dst.Stride:r*dst.Stride+b.Dx()], src.Pix[r*src.Stride:r*src.Stride+b.Dx()])
		}
	case *image.NRGBA:
		for r := range b.Dy() {
			row := src.Pix[r*src.Stride : r*src.Stride+4*b.Dx()]
			for c := range b.Dx() {
				dst.Pix[r*dst.Stride+c] = luma(row[4*c], row[4*c+1], row[4*c+2])
			}
		}
	default:
		for r := range b.Dy() {
			for c := range b.Dx() {
				px, _ := color.NRGBAModel.Convert(img.At(b.Min.X+c, b.Min.Y+r)).(color.NRGBA)
				dst.Pix[r*dst.Stride+c] = luma(px.R, px.G, px.B)
			}
		}
	}
	return dst
}

func luma(r, g, b uint8) uint8 {
	return uint8((19595*uint32(r) + 38470*uint32(g) + 7471*uint32(b) + 0x8000) >> 16)
}

// Resize scales src to w by h with Catmull-Rom interpolation. A source
// that already has the requested size is returned unchanged.
func Resize(src *image.Gray, w, h int) *image.Gray {
	sb := src.Bounds()
	if sb.Dx() == w && sb.Dy() == h {
		return src
	}
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, sb, draw.Src, nil)
	return dst
}
