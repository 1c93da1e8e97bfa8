package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/examforge/internal/interfaces"
)

// TesseractEngine implements interfaces.OCREngine using the gosseract client
type TesseractEngine struct {
	clientFactory func() *gosseract.Client
	logger        arbor.ILogger
}

// NewTesseractEngine constructs a Tesseract-backed OCR engine
func NewTesseractEngine(logger arbor.ILogger) *TesseractEngine {
	return &TesseractEngine{
		clientFactory: gosseract.NewClient,
		logger:        logger,
	}
}

// Recognize runs OCR on a single image. A fresh client is used per call.
func (e *TesseractEngine) Recognize(ctx context.Context, img image.Image, languages []string) (interfaces.OCRResult, error) {
	if err := ctx.Err(); err != nil {
		return interfaces.OCRResult{}, err
	}
	if img == nil {
		return interfaces.OCRResult{}, fmt.Errorf("recognize: nil image")
	}

	data, err := encodePNG(img)
	if err != nil {
		return interfaces.OCRResult{}, err
	}

	c := e.clientFactory()
	defer c.Close()

	if len(languages) > 0 {
		if err := c.SetLanguage(languages...); err != nil {
			return interfaces.OCRResult{}, fmt.Errorf("set languages: %w", err)
		}
	}
	if err := c.SetImageFromBytes(data); err != nil {
		return interfaces.OCRResult{}, fmt.Errorf("set image: %w", err)
	}

	text, err := c.Text()
	if err != nil {
		return interfaces.OCRResult{}, fmt.Errorf("recognize text: %w", err)
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		e.logger.Debug().Err(err).Msg("Word boxes unavailable, confidence reported as zero")
	}

	result := interfaces.OCRResult{
		Text:       strings.TrimSpace(text),
		Confidence: meanConfidence(boxes),
	}

	e.logger.Debug().
		Int("chars", len(result.Text)).
		Float64("confidence", result.Confidence).
		Strs("languages", languages).
		Msg("OCR recognition finished")

	return result, nil
}

// meanConfidence averages word confidences (0-100), ignoring empty words
func meanConfidence(boxes []gosseract.BoundingBox) float64 {
	var sum float64
	var n int
	for _, b := range boxes {
		if strings.TrimSpace(b.Word) == "" {
			continue
		}
		sum += b.Confidence
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}
