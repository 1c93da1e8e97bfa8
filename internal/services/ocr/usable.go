package ocr

import (
	"unicode/utf8"

	"github.com/ternarybob/examforge/internal/interfaces"
)

const (
	// MinUsableLength is the character count OCR text must exceed
	MinUsableLength = 20
	// MinUsableConfidence is the 0-100 confidence OCR must exceed
	MinUsableConfidence = 30.0
)

// IsUsable reports whether an OCR result is worth sending to extraction.
// Both gates must pass: short confident output is usually noise and long
// low-confidence output is usually garbage.
func IsUsable(r interfaces.OCRResult) bool {
	return utf8.RuneCountInString(r.Text) > MinUsableLength && r.Confidence > MinUsableConfidence
}
