package pages

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPreprocess_Binarizes(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 1))
	img.Set(0, 0, color.RGBA{R: 250, G: 250, B: 250, A: 255}) // paper
	img.Set(1, 0, color.RGBA{R: 20, G: 20, B: 20, A: 255})    // ink
	img.Set(2, 0, color.RGBA{R: 0, G: 255, B: 0, A: 255})     // luma ~150

	out := Preprocess(img)

	assert.Equal(t, uint8(255), out.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(0), out.GrayAt(1, 0).Y)
	assert.Equal(t, uint8(255), out.GrayAt(2, 0).Y)

	// input untouched
	assert.Equal(t, color.RGBA{R: 20, G: 20, B: 20, A: 255}, img.RGBAAt(1, 0))
}

func TestPreprocess_OffsetBounds(t *testing.T) {
	img := image.NewRGBA(image.Rect(10, 10, 14, 12))
	out := Preprocess(img)
	assert.Equal(t, image.Rect(0, 0, 4, 2), out.Bounds())
}

func TestUpscale(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 50))

	up := Upscale(img, 400)
	assert.Equal(t, 400, up.Bounds().Dx())
	assert.Equal(t, 200, up.Bounds().Dy())

	same := Upscale(img, 80)
	assert.Equal(t, img, same)

	assert.Equal(t, img, Upscale(img, 0))
}
