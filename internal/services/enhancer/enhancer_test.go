package enhancer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/examforge/internal/interfaces"
	"github.com/ternarybob/examforge/internal/models"
	"github.com/ternarybob/examforge/internal/services/llm"
)

type scriptedExtractor struct {
	responses []string
	errs      []error
	prompts   []string
}

func (s *scriptedExtractor) Extract(ctx context.Context, prompt string) (string, error) {
	i := len(s.prompts)
	s.prompts = append(s.prompts, prompt)
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return `{"explanation":"","link":""}`, nil
}

func (s *scriptedExtractor) ExtractWithFile(ctx context.Context, prompt string, file *interfaces.FileRef) (string, error) {
	return s.Extract(ctx, prompt)
}

type pauseRecorder struct {
	pauses []time.Duration
}

func (p *pauseRecorder) sleep(ctx context.Context, d time.Duration) error {
	p.pauses = append(p.pauses, d)
	return nil
}

func question(text string, explanation, link string) models.ExtractedQuestion {
	return models.ExtractedQuestion{
		ID:           "q_" + text,
		QuestionText: text,
		Options: []models.Option{
			{Letter: "A", Text: "yes", IsCorrect: true},
			{Letter: "B", Text: "no"},
		},
		Explanation:   explanation,
		ReferenceLink: link,
		Confidence:    0.9,
		Source:        models.SourceText,
	}
}

func TestEnhance_NumbersFromStart(t *testing.T) {
	for _, start := range []int{1, 7, 250} {
		t.Run(fmt.Sprintf("start_%d", start), func(t *testing.T) {
			input := []models.ExtractedQuestion{
				question("first", "e", "https://a.example"),
				question("second", "e", "https://b.example"),
				question("third", "e", "https://c.example"),
			}

			out, err := NewEnhancer(nil, 0, arbor.NewLogger()).Enhance(context.Background(), input, start, nil)
			require.NoError(t, err)

			require.Len(t, out, 3)
			for i, q := range out {
				assert.Equal(t, start+i, q.QuestionNumber)
				assert.Equal(t, input[i].QuestionText, q.QuestionText)
			}
		})
	}
}

func TestEnhance_FillsOnlyMissingFields(t *testing.T) {
	extractor := &scriptedExtractor{responses: []string{
		"```json\n{\"explanation\":\"Because it is.\",\"link\":\"https://docs.example/a\"}\n```",
		`Sure! {"explanation":"Should not replace","link":"https://docs.example/b"}`,
	}}
	input := []models.ExtractedQuestion{
		question("needs both", "", ""),
		question("complete", "kept", "https://kept.example"),
		question("needs link", "original explanation", ""),
	}
	rec := &pauseRecorder{}

	out, err := NewEnhancer(extractor, DefaultPause, arbor.NewLogger()).
		WithSleeper(rec.sleep).
		Enhance(context.Background(), input, 1, nil)
	require.NoError(t, err)

	require.Len(t, extractor.prompts, 2, "complete questions trigger no call")
	assert.Contains(t, extractor.prompts[0], "needs both")
	assert.Contains(t, extractor.prompts[0], "Correct answer(s): A")

	assert.Equal(t, "Because it is.", out[0].Explanation)
	assert.Equal(t, "https://docs.example/a", out[0].Link)
	assert.Equal(t, "kept", out[1].Explanation)
	assert.Equal(t, "https://kept.example", out[1].Link)
	assert.Equal(t, "original explanation", out[2].Explanation)
	assert.Equal(t, "https://docs.example/b", out[2].Link)

	assert.Equal(t, []time.Duration{DefaultPause, DefaultPause, DefaultPause}, rec.pauses)
}

func TestEnhance_FailureKeepsOriginals(t *testing.T) {
	extractor := &scriptedExtractor{
		errs:      []error{errors.New("boom")},
		responses: []string{"", "this is not json", `{"explanation":"ok","link":"not a url"}`},
	}
	input := []models.ExtractedQuestion{
		question("errors", "", ""),
		question("garbage", "", "https://orig.example"),
		question("bad link", "", ""),
	}

	out, err := NewEnhancer(extractor, 0, arbor.NewLogger()).Enhance(context.Background(), input, 10, nil)
	require.NoError(t, err)

	require.Len(t, out, 3)
	assert.Equal(t, "", out[0].Explanation)
	assert.Equal(t, "", out[1].Explanation)
	assert.Equal(t, "https://orig.example", out[1].Link)
	assert.Equal(t, "ok", out[2].Explanation)
	assert.Equal(t, "", out[2].Link)
	assert.Equal(t, []int{10, 11, 12}, []int{out[0].QuestionNumber, out[1].QuestionNumber, out[2].QuestionNumber})
}

func TestEnhance_StopsCallingAfterExhaustion(t *testing.T) {
	exhausted := &llm.AllModelsExhaustedError{Models: []string{"m1"}, LastErr: errors.New("429")}
	extractor := &scriptedExtractor{errs: []error{exhausted}}
	input := []models.ExtractedQuestion{question("a", "", ""), question("b", "", ""), question("c", "", "")}

	out, err := NewEnhancer(extractor, 0, arbor.NewLogger()).Enhance(context.Background(), input, 1, nil)
	require.NoError(t, err)

	assert.Len(t, out, 3)
	assert.Len(t, extractor.prompts, 1)
}

func TestEnhance_NetworkExhaustionKeepsEnhancing(t *testing.T) {
	exhausted := &llm.AllModelsExhaustedError{Models: []string{"m1", "m2"}, LastErr: errors.New("connection reset by peer")}
	extractor := &scriptedExtractor{
		errs:      []error{exhausted},
		responses: []string{"", `{"explanation":"Routers join networks.","link":"https://b.example"}`},
	}
	input := []models.ExtractedQuestion{question("a", "", ""), question("b", "", "")}

	out, err := NewEnhancer(extractor, 0, arbor.NewLogger()).Enhance(context.Background(), input, 1, nil)
	require.NoError(t, err)

	assert.Len(t, extractor.prompts, 2)
	require.Len(t, out, 2)
	assert.Empty(t, out[0].Explanation)
	assert.Equal(t, "Routers join networks.", out[1].Explanation)
	assert.Equal(t, "https://b.example", out[1].Link)
}

func TestEnhance_EnvelopeFollowedByBracedProse(t *testing.T) {
	extractor := &scriptedExtractor{responses: []string{
		`{"explanation":"Yes is correct.","link":"https://a.example"} Let me know if you need a {template}.`,
	}}

	out, err := NewEnhancer(extractor, 0, arbor.NewLogger()).Enhance(context.Background(), []models.ExtractedQuestion{question("a", "", "")}, 1, nil)
	require.NoError(t, err)

	require.Len(t, out, 1)
	assert.Equal(t, "Yes is correct.", out[0].Explanation)
	assert.Equal(t, "https://a.example", out[0].Link)
}

func TestEnhance_ProgressAfterEveryQuestion(t *testing.T) {
	input := []models.ExtractedQuestion{question("a", "e", "https://a.example"), question("b", "e", "https://b.example")}
	progress := make(chan models.ProgressEvent, 10)

	_, err := NewEnhancer(nil, 0, arbor.NewLogger()).Enhance(context.Background(), input, 1, progress)
	require.NoError(t, err)
	close(progress)

	var events []models.ProgressEvent
	for ev := range progress {
		events = append(events, ev)
	}
	require.Len(t, events, 3)
	assert.Equal(t, models.ProgressEvent{Stage: models.StageEnhancing, Current: 1, Total: 2, Message: "Processed question 1 of 2", QuestionText: "a"}, events[0])
	assert.Equal(t, models.StageEnhancing, events[1].Stage)
	assert.Equal(t, 2, events[1].Current)
	assert.Equal(t, models.StageComplete, events[2].Stage)
	assert.Equal(t, "processing", string(events[0].Stage))
}

func TestEnhance_CancelledContextStillNumbersEverything(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	extractor := &scriptedExtractor{}
	input := []models.ExtractedQuestion{question("a", "", ""), question("b", "", "")}

	out, err := NewEnhancer(extractor, 0, arbor.NewLogger()).Enhance(ctx, input, 5, nil)

	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, out, 2)
	assert.Equal(t, 6, out[1].QuestionNumber)
	assert.Empty(t, extractor.prompts)
}

func TestEnhance_Empty(t *testing.T) {
	out, err := NewEnhancer(nil, 0, arbor.NewLogger()).Enhance(context.Background(), nil, 1, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestNumber(t *testing.T) {
	extractor := &scriptedExtractor{}
	out := NewEnhancer(extractor, 0, arbor.NewLogger()).Number([]models.ExtractedQuestion{question("a", "", ""), question("b", "", "")}, 3)

	require.Len(t, out, 2)
	assert.Equal(t, 3, out[0].QuestionNumber)
	assert.Equal(t, 4, out[1].QuestionNumber)
	assert.Empty(t, extractor.prompts)
}
