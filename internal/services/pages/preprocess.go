package pages

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// BinarizeThreshold is the luminance mid-point separating ink from paper
const BinarizeThreshold = 128

// Preprocess converts the raster to luminance-weighted grayscale and binarizes it.
// The input is not modified.
func Preprocess(img image.Image) *image.Gray {
	bounds := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			var v uint8
			if luminance(img.At(x, y)) >= BinarizeThreshold {
				v = 255
			}
			out.SetGray(x-bounds.Min.X, y-bounds.Min.Y, color.Gray{Y: v})
		}
	}
	return out
}

// luminance returns the 0-255 Rec.601 luma of a colour
func luminance(c color.Color) float64 {
	r, g, b, _ := c.RGBA()
	return 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
}

// Upscale enlarges images narrower than minWidth, preserving aspect ratio.
// Images already wide enough are returned unchanged.
func Upscale(img image.Image, minWidth int) image.Image {
	bounds := img.Bounds()
	if minWidth <= 0 || bounds.Dx() == 0 || bounds.Dx() >= minWidth {
		return img
	}

	factor := float64(minWidth) / float64(bounds.Dx())
	height := int(float64(bounds.Dy())*factor + 0.5)
	dst := image.NewRGBA(image.Rect(0, 0, minWidth, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
