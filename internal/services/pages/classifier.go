package pages

import (
	"image"
	"image/color"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MinTextLength is the normalized character count a page must exceed to count as text
	MinTextLength = 50

	// chromaThreshold is the 8-bit channel spread above which a pixel is not grayscale noise
	chromaThreshold = 30

	// colourfulRatio is the share of sampled pixels that must be colourful to flag imagery
	colourfulRatio = 0.10

	// maxSamples bounds the pixel grid inspected per page
	maxSamples = 10000
)

var questionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^\s*\d{1,3}\s*[.)]\s*\S`),
	regexp.MustCompile(`(?i)\b(question|pregunta)\s*\d+`),
	regexp.MustCompile(`(?m)^\s*[A-Ea-e]\s*[.)]\s*\S`),
	regexp.MustCompile(`(?m)\?\s*$`),
	regexp.MustCompile(`(?i)\b(choose|select)\s+(one|all|the\s+(best|correct))\b`),
	regexp.MustCompile(`(?i)\bwhich\s+of\s+the\s+following\b`),
}

var inlineSpace = regexp.MustCompile(`[ \t\f\v\x{00A0}]+`)

// Classification is the outcome of classifying one page
type Classification struct {
	HasText   bool
	HasImages bool
	Text      string
}

// Classify decides whether a page carries usable question text, usable imagery, or both.
func Classify(runs []string, img image.Image) Classification {
	text := JoinRuns(runs)
	return Classification{
		HasText:   HasQuestionText(text),
		HasImages: HasImagery(img),
		Text:      text,
	}
}

// JoinRuns joins the non-empty runs one per line and normalizes whitespace
func JoinRuns(runs []string) string {
	lines := make([]string, 0, len(runs))
	for _, run := range runs {
		if strings.TrimSpace(run) == "" {
			continue
		}
		lines = append(lines, run)
	}
	return NormalizeWhitespace(strings.Join(lines, "\n"))
}

// NormalizeWhitespace collapses horizontal whitespace, trims every line and drops blank lines.
// Line breaks are kept because the question patterns are line oriented.
func NormalizeWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(inlineSpace.ReplaceAllString(line, " "))
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// HasQuestionText applies the length gate and the question-pattern gate
func HasQuestionText(text string) bool {
	flat := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(flat) <= MinTextLength {
		return false
	}
	return LooksLikeQuestion(text)
}

// LooksLikeQuestion reports whether the text matches any exam-question pattern
func LooksLikeQuestion(text string) bool {
	for _, pattern := range questionPatterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}

// HasImagery samples the raster on a grid and reports whether more than 10% of the
// samples deviate from grayscale beyond the noise threshold.
func HasImagery(img image.Image) bool {
	if img == nil {
		return false
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return false
	}

	step := int(math.Ceil(math.Sqrt(float64(w*h) / maxSamples)))
	if step < 1 {
		step = 1
	}

	var sampled, colourful int
	for y := bounds.Min.Y; y < bounds.Max.Y; y += step {
		for x := bounds.Min.X; x < bounds.Max.X; x += step {
			sampled++
			if chroma(img.At(x, y)) > chromaThreshold {
				colourful++
			}
		}
	}

	return float64(colourful) > float64(sampled)*colourfulRatio
}

// chroma returns the largest 8-bit difference between any two channels
func chroma(c color.Color) int {
	r, g, b, _ := c.RGBA()
	r8, g8, b8 := int(r>>8), int(g>>8), int(b>>8)
	return max(abs(r8-g8), abs(g8-b8), abs(r8-b8))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
