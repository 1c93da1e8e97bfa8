package enhancer

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/examforge/internal/interfaces"
	"github.com/ternarybob/examforge/internal/models"
	"github.com/ternarybob/examforge/internal/services/llm"
)

// DefaultPause follows each question when a backend is configured
const DefaultPause = 500 * time.Millisecond

// Enhancer backfills missing explanations and reference links one question at a time
// and assigns the external question numbers
type Enhancer struct {
	extractor interfaces.Extractor // nil when no generative backend is configured
	pause     time.Duration
	sleep     llm.Sleeper
	logger    arbor.ILogger
}

// NewEnhancer creates an enhancer. extractor may be nil, in which case questions
// are only numbered.
func NewEnhancer(extractor interfaces.Extractor, pause time.Duration, logger arbor.ILogger) *Enhancer {
	if pause < 0 {
		pause = DefaultPause
	}
	return &Enhancer{
		extractor: extractor,
		pause:     pause,
		sleep:     llm.SleepContext,
		logger:    logger,
	}
}

// WithSleeper replaces the inter-question pause, used by tests
func (e *Enhancer) WithSleeper(s llm.Sleeper) *Enhancer {
	if s != nil {
		e.sleep = s
	}
	return e
}

// Enhance numbers questions start, start+1, ... in input order and fills missing
// explanation/link fields. Questions are processed strictly sequentially. A failed
// enhancement keeps the original fields. The returned error is only ever the
// context's; the returned slice always holds every question.
func (e *Enhancer) Enhance(ctx context.Context, questions []models.ExtractedQuestion, start int, progress chan<- models.ProgressEvent) ([]models.Question, error) {
	total := len(questions)
	out := make([]models.Question, 0, total)
	exhausted := false

	for i := range questions {
		q := questions[i]

		if ctx.Err() == nil && e.extractor != nil && !exhausted && q.NeedsEnhancement() {
			if err := e.enhanceOne(ctx, &q); err != nil {
				if llm.IsQuotaExhausted(err) {
					exhausted = true
				}
				e.logger.Warn().
					Int("question", start+i).
					Err(err).
					Msg("Enhancement failed, keeping original fields")
			}
		}

		out = append(out, q.ToQuestion(start+i))

		models.Emit(ctx, progress, models.ProgressEvent{
			Stage:        models.StageEnhancing,
			Current:      i + 1,
			Total:        total,
			Message:      fmt.Sprintf("Processed question %d of %d", i+1, total),
			QuestionText: q.QuestionText,
		})

		if e.extractor != nil && e.pause > 0 && ctx.Err() == nil {
			_ = e.sleep(ctx, e.pause)
		}
	}

	models.Emit(ctx, progress, models.ProgressEvent{
		Stage:   models.StageComplete,
		Current: total,
		Total:   total,
		Message: fmt.Sprintf("Processed %d questions", total),
	})

	if exhausted {
		e.logger.Warn().Msg("Model quota exhausted during enhancement, remaining questions kept as extracted")
	}

	return out, ctx.Err()
}

// Number assigns external numbers without any backend calls
func (e *Enhancer) Number(questions []models.ExtractedQuestion, start int) []models.Question {
	out := make([]models.Question, len(questions))
	for i := range questions {
		out[i] = questions[i].ToQuestion(start + i)
	}
	return out
}

func (e *Enhancer) enhanceOne(ctx context.Context, q *models.ExtractedQuestion) error {
	options := make([]string, 0, len(q.Options))
	var correct []string
	for _, o := range q.Options {
		options = append(options, fmt.Sprintf("%s) %s", o.Letter, o.Text))
		if o.IsCorrect {
			correct = append(correct, o.Letter)
		}
	}

	raw, err := e.extractor.Extract(ctx, llm.EnhancementPrompt(q.QuestionText, options, correct))
	if err != nil {
		return err
	}

	envelope, err := llm.RecoverObject(raw)
	if err != nil {
		return err
	}
	if err := llm.ValidateEnvelope(envelope); err != nil {
		return err
	}

	if q.Explanation == "" {
		if explanation, ok := envelope["explanation"].(string); ok {
			q.Explanation = strings.TrimSpace(explanation)
		}
	}
	if q.ReferenceLink == "" {
		if link, ok := envelope["link"].(string); ok && isHTTPURL(link) {
			q.ReferenceLink = strings.TrimSpace(link)
		}
	}
	return nil
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
