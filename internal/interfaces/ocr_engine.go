package interfaces

import (
	"context"
	"image"
)

// OCRResult holds recognized text and the engine confidence on a 0-100 scale
type OCRResult struct {
	Text       string
	Confidence float64
}

// OCREngine recognizes text in a raster image
type OCREngine interface {
	Recognize(ctx context.Context, img image.Image, languages []string) (OCRResult, error)
}
