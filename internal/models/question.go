package models

// QuestionSource identifies which extraction path produced a question
type QuestionSource string

const (
	SourceText   QuestionSource = "text"
	SourceOCR    QuestionSource = "ocr"
	SourceHybrid QuestionSource = "hybrid"
)

// Option is one lettered answer choice
type Option struct {
	Letter    string `json:"letter" yaml:"letter" validate:"required"`
	Text      string `json:"text" yaml:"text"`
	IsCorrect bool   `json:"is_correct" yaml:"is_correct"`
}

// ExtractedQuestion is a candidate question produced by one of the extraction paths
type ExtractedQuestion struct {
	ID                      string         `json:"id" validate:"required"`
	QuestionText            string         `json:"question_text" validate:"required"`
	Options                 []Option       `json:"options" validate:"min=2,unique=Letter,dive"`
	RequiresMultipleAnswers bool           `json:"requires_multiple_answers"`
	Explanation             string         `json:"explanation"`
	ReferenceLink           string         `json:"reference_link"`
	Confidence              float64        `json:"confidence" validate:"gte=0,lte=1"`
	Source                  QuestionSource `json:"source" validate:"oneof=text ocr hybrid"`
	NeedsReview             bool           `json:"needs_review"`
}

// CorrectCount returns the number of options marked correct
func (q *ExtractedQuestion) CorrectCount() int {
	n := 0
	for _, o := range q.Options {
		if o.IsCorrect {
			n++
		}
	}
	return n
}

// NeedsEnhancement reports whether the explanation or the reference link is missing
func (q *ExtractedQuestion) NeedsEnhancement() bool {
	return q.Explanation == "" || q.ReferenceLink == ""
}

// Question is the externally numbered output record consumed by the question store
type Question struct {
	QuestionNumber          int      `json:"question_number" yaml:"question_number"`
	QuestionText            string   `json:"question_text" yaml:"question_text"`
	Options                 []Option `json:"options" yaml:"options"`
	RequiresMultipleAnswers bool     `json:"requires_multiple_answers" yaml:"requires_multiple_answers"`
	Explanation             string   `json:"explanation" yaml:"explanation"`
	Link                    string   `json:"link" yaml:"link"`
	NeedsReview             bool     `json:"needs_review,omitempty" yaml:"needs_review,omitempty"`
}

// ToQuestion assigns the external number to an extracted question
func (q *ExtractedQuestion) ToQuestion(number int) Question {
	options := make([]Option, len(q.Options))
	copy(options, q.Options)
	return Question{
		QuestionNumber:          number,
		QuestionText:            q.QuestionText,
		Options:                 options,
		RequiresMultipleAnswers: q.RequiresMultipleAnswers,
		Explanation:             q.Explanation,
		Link:                    q.ReferenceLink,
		NeedsReview:             q.NeedsReview,
	}
}
