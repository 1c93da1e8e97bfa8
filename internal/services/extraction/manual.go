package extraction

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ternarybob/examforge/internal/common"
	"github.com/ternarybob/examforge/internal/models"
	"github.com/ternarybob/examforge/internal/services/llm"
)

const (
	// ManualConfidence is assigned to every question found by the pattern extractor
	ManualConfidence = 0.4

	// minQuestionLineLength is the length a line without '?' needs to count as a question
	minQuestionLineLength = 30
)

var (
	blockMarker = regexp.MustCompile(`(?i)^\s*(?:(?:question|pregunta)\s*(\d+)\s*[:.)-]?|(\d{1,3})\s*[.)](?:\s|$))\s*`)
	optionLine  = regexp.MustCompile(`^\s*([A-Ea-e])\s*[.)]\s*(.*)$`)
	answerLine  = regexp.MustCompile(`(?i)^\s*(?:correct\s+answers?|answers?|respuestas?(?:\s+correctas?)?)\s*[:\-]\s*([A-E](?:\s*(?:,|and|y|&)\s*[A-E])*)\s*\.?\s*$`)
	answerToken = regexp.MustCompile(`\b[A-Ea-e]\b`)
)

type block struct {
	marker string
	lines  []string
}

// ManualExtract finds questions with line patterns alone. It is deterministic:
// identical input yields identical output, ids included. Every result is
// flagged for review with confidence 0.4.
func ManualExtract(text string) []models.ExtractedQuestion {
	questions := []models.ExtractedQuestion{}
	for i, b := range splitBlocks(text) {
		q, ok := parseBlock(b)
		if !ok {
			continue
		}
		q.ID = common.StableQuestionID("manual", strconv.Itoa(i), q.QuestionText)
		questions = append(questions, q)
	}
	return questions
}

// splitBlocks splits text on numbered, "Question N" and "Pregunta N" markers.
// Text ahead of the first marker forms its own block.
func splitBlocks(text string) []block {
	var blocks []block
	current := block{}
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if loc := blockMarker.FindStringSubmatchIndex(line); loc != nil && !optionLine.MatchString(line) {
			if len(current.lines) > 0 || current.marker != "" {
				blocks = append(blocks, current)
			}
			marker := strings.TrimSpace(line[:loc[1]])
			rest := strings.TrimSpace(line[loc[1]:])
			current = block{marker: marker}
			if rest != "" {
				current.lines = append(current.lines, rest)
			}
			continue
		}
		current.lines = append(current.lines, strings.TrimSpace(line))
	}
	if len(current.lines) > 0 {
		blocks = append(blocks, current)
	}
	return blocks
}

func parseBlock(b block) (models.ExtractedQuestion, bool) {
	qIdx := -1
	for i, line := range b.lines {
		if optionLine.MatchString(line) {
			continue
		}
		if strings.HasSuffix(line, "?") || utf8.RuneCountInString(line) > minQuestionLineLength {
			qIdx = i
			break
		}
	}
	if qIdx < 0 {
		return models.ExtractedQuestion{}, false
	}

	stem := []string{b.lines[qIdx]}
	var options []models.Option
	var correct map[string]bool

	for _, line := range b.lines[qIdx+1:] {
		if m := answerLine.FindStringSubmatch(line); m != nil {
			correct = parseAnswerLetters(m[1])
			continue
		}
		if m := optionLine.FindStringSubmatch(line); m != nil {
			options = append(options, models.Option{
				Letter: strings.ToUpper(m[1]),
				Text:   strings.TrimSpace(m[2]),
			})
			continue
		}
		if len(options) == 0 {
			// stem continues until the first option
			if !strings.HasSuffix(stem[len(stem)-1], "?") {
				stem = append(stem, line)
			}
			continue
		}
		last := &options[len(options)-1]
		last.Text = strings.TrimSpace(last.Text + " " + line)
	}

	kept := options[:0]
	for _, o := range options {
		if o.Text != "" {
			kept = append(kept, o)
		}
	}
	if len(kept) < 2 {
		return models.ExtractedQuestion{}, false
	}

	kept = llm.AssignLetters(kept)
	for i := range kept {
		kept[i].IsCorrect = correct[kept[i].Letter]
	}

	q := models.ExtractedQuestion{
		QuestionText: strings.Join(stem, " "),
		Options:      kept,
		Confidence:   ManualConfidence,
		Source:       models.SourceText,
	}
	llm.FinalizeQuestion(&q)
	q.NeedsReview = true
	return q, true
}

func parseAnswerLetters(s string) map[string]bool {
	letters := make(map[string]bool)
	for _, l := range answerToken.FindAllString(s, -1) {
		letters[strings.ToUpper(l)] = true
	}
	return letters
}
