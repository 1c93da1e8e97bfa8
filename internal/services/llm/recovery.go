package llm

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/examforge/internal/common"
	"github.com/ternarybob/examforge/internal/models"
)

// RecoveryStrategy turns raw response text into a decoded JSON array, or reports failure.
// Strategies are pure and are tried in order until one succeeds.
type RecoveryStrategy struct {
	Name  string
	Apply func(raw string) ([]any, bool)
}

// DefaultStrategies is the ordered recovery chain for question arrays
var DefaultStrategies = []RecoveryStrategy{
	{Name: "direct", Apply: parseDirect},
	{Name: "array_slice", Apply: parseArraySlice},
	{Name: "close_truncated", Apply: parseClosedTruncation},
	{Name: "regex_candidates", Apply: parseRegexCandidates},
}

const (
	// placeholderConfidence is assigned to questions synthesized by the manual field scan
	placeholderConfidence = 0.3
)

var defaultConfidence = map[models.QuestionSource]float64{
	models.SourceText:   0.9,
	models.SourceOCR:    0.7,
	models.SourceHybrid: 0.8,
}

var (
	fenceLine       = regexp.MustCompile("(?m)^\\s*```[a-zA-Z]*\\s*$")
	fenceInline     = regexp.MustCompile("```[a-zA-Z]*")
	questionTextKey = regexp.MustCompile(`"question_text"\s*:\s*"((?:[^"\\]|\\.)*)"`)

	arrayCandidates = []*regexp.Regexp{
		regexp.MustCompile("(?s)```(?:json)?\\s*(\\[.*?\\])\\s*```"),
		regexp.MustCompile(`(?s)JSON:\s*(\[.*\])`),
		regexp.MustCompile(`(?s)(\[.*?\])`),
		regexp.MustCompile(`(?s)(\[.*\])`),
	}
)

// StripFences removes markdown code-fence markers
func StripFences(raw string) string {
	s := fenceLine.ReplaceAllString(raw, "")
	s = fenceInline.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// TrimToArray drops everything before the first '[' and after the last ']'
func TrimToArray(s string) string {
	s = strings.TrimSpace(s)
	if start := strings.Index(s, "["); start > 0 {
		s = s[start:]
	}
	if end := strings.LastIndex(s, "]"); end >= 0 && end < len(s)-1 {
		s = s[:end+1]
	}
	return s
}

// decodeArray parses JSON, wrapping a single object in a one-element array
func decodeArray(s string) ([]any, bool) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	switch t := v.(type) {
	case []any:
		return t, true
	case map[string]any:
		return []any{t}, true
	default:
		return nil, false
	}
}

func parseDirect(raw string) ([]any, bool) {
	return decodeArray(StripFences(raw))
}

func parseArraySlice(raw string) ([]any, bool) {
	return decodeArray(TrimToArray(StripFences(raw)))
}

func parseClosedTruncation(raw string) ([]any, bool) {
	s := StripFences(raw)
	start := strings.Index(s, "[")
	if start < 0 {
		return nil, false
	}
	s = strings.TrimSpace(s[start:])
	if !looksTruncated(s) {
		return nil, false
	}
	if arr, ok := decodeArray(CloseTruncated(s)); ok {
		return arr, true
	}
	return decodeArray(CutToLastElement(s))
}

// looksTruncated reports whether the text ends mid-structure
func looksTruncated(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	if strings.HasSuffix(s, "\"") || strings.HasSuffix(s, "...") || strings.HasSuffix(s, ",") {
		return true
	}
	return !strings.HasSuffix(s, "]")
}

// CloseTruncated closes an array cut off mid-response: an open string is
// terminated, a dangling comma or key is dropped and open brackets are closed.
func CloseTruncated(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "...")

	var stack []byte
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '[', '{':
			stack = append(stack, ch)
		case ']', '}':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	var b strings.Builder
	b.WriteString(s)
	if inString {
		if escaped {
			b.WriteString("\\")
		}
		b.WriteString("\"")
	}

	out := strings.TrimSpace(b.String())
	out = strings.TrimSuffix(out, ",")
	if strings.HasSuffix(out, ":") {
		out += "null"
	}

	var closing strings.Builder
	closing.WriteString(out)
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '[' {
			closing.WriteString("]")
		} else {
			closing.WriteString("}")
		}
	}
	return closing.String()
}

// CutToLastElement keeps the array up to its last complete top-level element and
// closes it. Returns "" when no element is complete.
func CutToLastElement(s string) string {
	start := strings.Index(s, "[")
	if start < 0 {
		return ""
	}

	depth, last := 0, -1
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 1 {
				last = i
			}
		}
	}
	if last < 0 {
		return ""
	}
	return s[start:last+1] + "]"
}

func parseRegexCandidates(raw string) ([]any, bool) {
	var candidates []string
	for _, pattern := range arrayCandidates {
		for _, m := range pattern.FindAllStringSubmatch(raw, -1) {
			if len(m) > 1 {
				candidates = append(candidates, m[1])
			}
		}
	}
	candidates = append(candidates, balancedArrays(raw)...)

	// longest parseable candidate holding objects wins
	sort.SliceStable(candidates, func(i, j int) bool {
		return len(candidates[i]) > len(candidates[j])
	})
	for _, c := range candidates {
		if arr, ok := decodeArray(c); ok && containsObject(arr) {
			return arr, true
		}
	}
	return nil, false
}

// balancedArrays returns every bracket-balanced substring starting at a '['
func balancedArrays(s string) []string {
	return balancedSpans(s, '[', ']')
}

// balancedObjects returns every brace-balanced substring starting at a '{'
func balancedObjects(s string) []string {
	return balancedSpans(s, '{', '}')
}

func balancedSpans(s string, opener, closer byte) []string {
	var out []string
	for start := strings.IndexByte(s, opener); start >= 0; {
		if end := matchingClose(s, start, opener, closer); end > start {
			out = append(out, s[start:end+1])
		}
		next := strings.IndexByte(s[start+1:], opener)
		if next < 0 {
			break
		}
		start += next + 1
	}
	return out
}

// matchingClose finds the index closing the bracket at start, skipping string literals
func matchingClose(s string, start int, opener, closer byte) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case opener:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func containsObject(arr []any) bool {
	for _, item := range arr {
		if _, ok := item.(map[string]any); ok {
			return true
		}
	}
	return false
}

// ScanQuestionTexts is the last-resort scan for "question_text" values in otherwise unparseable text
func ScanQuestionTexts(raw string) []string {
	var texts []string
	for _, m := range questionTextKey.FindAllStringSubmatch(raw, -1) {
		var text string
		if err := json.Unmarshal([]byte(`"`+m[1]+`"`), &text); err != nil {
			text = m[1]
		}
		if text = strings.TrimSpace(text); text != "" {
			texts = append(texts, text)
		}
	}
	return texts
}

// RecoverArray runs the strategy chain and returns the first decoded array
func RecoverArray(raw string, strategies []RecoveryStrategy) ([]any, string, bool) {
	for _, s := range strategies {
		if arr, ok := s.Apply(raw); ok {
			return arr, s.Name, true
		}
	}
	return nil, "", false
}

// objectStrategies is the ordered recovery chain for the enhancement envelope
var objectStrategies = []func(s string) (map[string]any, bool){
	decodeObject,
	parseObjectCandidates,
	parseObjectSlice,
}

// RecoverObject extracts a single JSON object (the enhancement envelope) from raw text.
// Fences are stripped, then the whole text, each brace-balanced candidate and finally
// the first-to-last brace slice are tried in turn.
func RecoverObject(raw string) (map[string]any, error) {
	s := StripFences(raw)
	for _, apply := range objectStrategies {
		if obj, ok := apply(s); ok {
			return obj, nil
		}
	}
	return nil, fmt.Errorf("%w: no JSON object found", ErrMalformedResponse)
}

func decodeObject(s string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// parseObjectCandidates prefers the first balanced object carrying an envelope key
func parseObjectCandidates(s string) (map[string]any, bool) {
	var first map[string]any
	for _, c := range balancedObjects(s) {
		obj, ok := decodeObject(c)
		if !ok {
			continue
		}
		if _, has := obj["explanation"]; has {
			return obj, true
		}
		if _, has := obj["link"]; has {
			return obj, true
		}
		if first == nil {
			first = obj
		}
	}
	return first, first != nil
}

func parseObjectSlice(s string) (map[string]any, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	return decodeObject(s[start : end+1])
}

// ResponseParser converts raw backend responses into extracted questions
type ResponseParser struct {
	strategies []RecoveryStrategy
	logger     arbor.ILogger
}

// NewResponseParser creates a parser using the default recovery chain
func NewResponseParser(logger arbor.ILogger) *ResponseParser {
	return &ResponseParser{
		strategies: DefaultStrategies,
		logger:     logger,
	}
}

// ParseQuestions recovers questions from a raw response. Objects failing the schema
// or carrying fewer than two options are dropped. When no structured recovery
// succeeds, "question_text" occurrences become placeholder questions flagged for review.
// ErrMalformedResponse is returned only when nothing at all could be recovered.
func (p *ResponseParser) ParseQuestions(raw string, source models.QuestionSource) ([]models.ExtractedQuestion, error) {
	if strings.TrimSpace(raw) == "" {
		return []models.ExtractedQuestion{}, nil
	}

	arr, strategy, ok := RecoverArray(raw, p.strategies)
	if !ok {
		texts := ScanQuestionTexts(raw)
		if len(texts) == 0 {
			p.logger.Warn().
				Int("response_length", len(raw)).
				Msg("No recovery strategy produced questions")
			return nil, fmt.Errorf("%w: no JSON array or question_text found", ErrMalformedResponse)
		}
		p.logger.Warn().
			Int("placeholders", len(texts)).
			Msg("Structured recovery failed, using question_text scan")
		return placeholderQuestions(texts, source), nil
	}

	if strategy != "direct" {
		p.logger.Debug().
			Str("strategy", strategy).
			Msg("Recovered malformed response")
	}

	questions := make([]models.ExtractedQuestion, 0, len(arr))
	for i, item := range arr {
		if err := ValidateRawQuestion(item); err != nil {
			p.logger.Warn().
				Int("index", i).
				Err(err).
				Msg("Dropping question that failed schema validation")
			continue
		}

		q, err := convertRawQuestion(item, source)
		if err != nil {
			p.logger.Warn().
				Int("index", i).
				Err(err).
				Msg("Dropping question")
			continue
		}
		questions = append(questions, q)
	}
	return questions, nil
}

// looseBool decodes booleans, "true"/"yes"/"1" style strings and numbers.
// Any other value decodes as false.
type looseBool bool

func (b *looseBool) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	switch t := v.(type) {
	case bool:
		*b = looseBool(t)
	case float64:
		*b = t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "y", "1", "correct":
			*b = true
		}
	}
	return nil
}

// looseString decodes strings and numbers. Any other value decodes as empty.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	switch t := v.(type) {
	case string:
		*s = looseString(t)
	case float64:
		*s = looseString(strconv.FormatFloat(t, 'f', -1, 64))
	}
	return nil
}

// looseNumber decodes numbers and numeric strings such as "85" or "85%".
// Valid is false when the value is absent or not numeric.
type looseNumber struct {
	Value float64
	Valid bool
}

func (n *looseNumber) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	switch t := v.(type) {
	case float64:
		n.Value, n.Valid = t, true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(t), "%"), 64); err == nil {
			n.Value, n.Valid = f, true
		}
	}
	return nil
}

type rawOption struct {
	OptionLetter looseString `json:"option_letter"`
	Letter       looseString `json:"letter"`
	OptionText   looseString `json:"option_text"`
	Text         looseString `json:"text"`
	IsCorrect    looseBool   `json:"is_correct"`
}

type rawQuestion struct {
	QuestionText            string      `json:"question_text"`
	Options                 []rawOption `json:"options"`
	RequiresMultipleAnswers looseBool   `json:"requires_multiple_answers"`
	Explanation             looseString `json:"explanation"`
	Link                    looseString `json:"link"`
	Confidence              looseNumber `json:"confidence"`
}

// NormalizeConfidence maps a reported confidence into [0, 1].
// Values above 1 are read as percentages.
func NormalizeConfidence(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		v /= 100
	}
	return math.Min(v, 1)
}

func convertRawQuestion(item any, source models.QuestionSource) (models.ExtractedQuestion, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return models.ExtractedQuestion{}, fmt.Errorf("re-encode question: %w", err)
	}
	var raw rawQuestion
	if err := json.Unmarshal(data, &raw); err != nil {
		return models.ExtractedQuestion{}, fmt.Errorf("decode question: %w", err)
	}

	options := make([]models.Option, 0, len(raw.Options))
	for _, o := range raw.Options {
		text := strings.TrimSpace(firstNonEmpty(string(o.OptionText), string(o.Text)))
		if text == "" {
			continue
		}
		options = append(options, models.Option{
			Letter:    NormalizeLetter(firstNonEmpty(string(o.OptionLetter), string(o.Letter))),
			Text:      text,
			IsCorrect: bool(o.IsCorrect),
		})
	}
	if len(options) < 2 {
		return models.ExtractedQuestion{}, fmt.Errorf("question has %d usable options, need at least 2", len(options))
	}

	q := models.ExtractedQuestion{
		ID:                      common.NewQuestionID(),
		QuestionText:            strings.TrimSpace(raw.QuestionText),
		Options:                 AssignLetters(options),
		RequiresMultipleAnswers: bool(raw.RequiresMultipleAnswers),
		Explanation:             strings.TrimSpace(string(raw.Explanation)),
		ReferenceLink:           strings.TrimSpace(string(raw.Link)),
		Confidence:              defaultConfidence[source],
		Source:                  source,
	}
	if raw.Confidence.Valid {
		q.Confidence = NormalizeConfidence(raw.Confidence.Value)
	}

	FinalizeQuestion(&q)
	return q, nil
}

// FinalizeQuestion applies the correctness rules shared by every extraction path:
// more than one correct option implies multiple answers, and zero correct options
// flags the question for review rather than guessing an answer.
func FinalizeQuestion(q *models.ExtractedQuestion) {
	correct := q.CorrectCount()
	if correct > 1 {
		q.RequiresMultipleAnswers = true
	}
	if correct == 0 {
		q.NeedsReview = true
	}
}

// NormalizeLetter uppercases a letter and strips surrounding punctuation ("a)" -> "A")
func NormalizeLetter(letter string) string {
	return strings.ToUpper(strings.Trim(strings.TrimSpace(letter), ".):( "))
}

// AssignLetters keeps the options' letters when they are present and unique,
// otherwise re-letters every option A, B, C... in order.
func AssignLetters(options []models.Option) []models.Option {
	seen := make(map[string]bool, len(options))
	valid := true
	for _, o := range options {
		if o.Letter == "" || seen[o.Letter] {
			valid = false
			break
		}
		seen[o.Letter] = true
	}
	if valid {
		return options
	}

	out := make([]models.Option, len(options))
	for i, o := range options {
		o.Letter = OptionLetter(i)
		out[i] = o
	}
	return out
}

// OptionLetter returns the letter for a zero-based option position
func OptionLetter(i int) string {
	if i < 26 {
		return string(rune('A' + i))
	}
	return fmt.Sprintf("%c%d", 'A'+i%26, i/26)
}

func placeholderQuestions(texts []string, source models.QuestionSource) []models.ExtractedQuestion {
	questions := make([]models.ExtractedQuestion, 0, len(texts))
	for _, text := range texts {
		questions = append(questions, models.ExtractedQuestion{
			ID:           common.NewQuestionID(),
			QuestionText: text,
			Options: []models.Option{
				{Letter: "A", Text: "Option A"},
				{Letter: "B", Text: "Option B"},
			},
			Confidence:  placeholderConfidence,
			Source:      source,
			NeedsReview: true,
		})
	}
	return questions
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
