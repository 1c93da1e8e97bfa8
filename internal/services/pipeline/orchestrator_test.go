package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/examforge/internal/interfaces"
	"github.com/ternarybob/examforge/internal/models"
	"github.com/ternarybob/examforge/internal/services/enhancer"
	"github.com/ternarybob/examforge/internal/services/extraction"
	"github.com/ternarybob/examforge/internal/services/llm"
)

type fakePage struct {
	runs []string
	img  image.Image
	err  error
}

type fakeDoc struct {
	pages  map[int]fakePage
	total  int
	closed bool
}

func (d *fakeDoc) PageCount() int { return d.total }

func (d *fakeDoc) TextRuns(ctx context.Context, pageNumber int) ([]string, error) {
	p := d.pages[pageNumber]
	return p.runs, p.err
}

func (d *fakeDoc) Render(ctx context.Context, pageNumber int, scale float64) (image.Image, error) {
	p := d.pages[pageNumber]
	if p.err != nil {
		return nil, p.err
	}
	if p.img != nil {
		return p.img, nil
	}
	return image.NewGray(image.Rect(0, 0, 40, 40)), nil
}

func (d *fakeDoc) Close() error {
	d.closed = true
	return nil
}

type fakeOpener struct {
	doc *fakeDoc
	err error
}

func (o *fakeOpener) Open(ctx context.Context, content []byte) (interfaces.PageSource, *interfaces.DocumentMetadata, error) {
	if o.err != nil {
		return nil, nil, o.err
	}
	return o.doc, &interfaces.DocumentMetadata{PageCount: o.doc.total, FileSize: int64(len(content))}, nil
}

// routedExtractor answers enhancement prompts and extraction prompts separately
type routedExtractor struct {
	mu          sync.Mutex
	extract     func(call int) (string, error)
	enhance     string
	extractions int
	enhances    int
}

func (r *routedExtractor) Extract(ctx context.Context, prompt string) (string, error) {
	return r.ExtractWithFile(ctx, prompt, nil)
}

func (r *routedExtractor) ExtractWithFile(ctx context.Context, prompt string, file *interfaces.FileRef) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if strings.Contains(prompt, "study material") {
		r.enhances++
		return r.enhance, nil
	}
	r.extractions++
	return r.extract(r.extractions)
}

type fakeStore struct {
	uploads int
	deletes []string
}

func (s *fakeStore) UploadFile(ctx context.Context, r io.Reader, displayName, mimeType string) (*interfaces.FileRef, error) {
	s.uploads++
	return &interfaces.FileRef{Name: "files/" + displayName, URI: "https://files.example/" + displayName, MIMEType: mimeType, State: interfaces.FileStateReady}, nil
}

func (s *fakeStore) GetFile(ctx context.Context, name string) (*interfaces.FileRef, error) {
	return &interfaces.FileRef{Name: name, State: interfaces.FileStateReady}, nil
}

func (s *fakeStore) DeleteFile(ctx context.Context, name string) error {
	s.deletes = append(s.deletes, name)
	return nil
}

type fixedStatus struct{ status models.FallbackStatus }

func (f fixedStatus) Status() models.FallbackStatus { return f.status }

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

var (
	pageOne = []string{
		"1. What is the default port for HTTPS traffic?",
		"A) 80",
		"B) 443",
		"C) 8080",
	}
	pageThree = []string{
		"1. Which protocol resolves host names to addresses?",
		"A) DNS",
		"B) ARP",
		"2. Which layer of the OSI model handles routing?",
		"A) Network",
		"B) Session",
	}
)

const backendJSON = `[{"question_text":"What is the default port for HTTPS traffic?","options":[{"option_letter":"A","option_text":"80","is_correct":false},{"option_letter":"B","option_text":"443","is_correct":true}],"requires_multiple_answers":false,"explanation":"","link":""}]`

func threePageDoc() *fakeDoc {
	return &fakeDoc{
		total: 3,
		pages: map[int]fakePage{
			1: {runs: pageOne},
			2: {runs: []string{""}},
			3: {runs: pageThree},
		},
	}
}

func newOrchestrator(doc *fakeDoc, ext interfaces.Extractor, store interfaces.FileStore, status StatusReporter) *Orchestrator {
	logger := arbor.NewLogger()
	pages := extraction.NewPageExtractor(ext, nil, extraction.Options{RenderScale: 1}, logger)
	direct := extraction.NewDirectExtractor(store, ext, time.Millisecond, time.Second, logger).WithSleeper(noSleep)
	enh := enhancer.NewEnhancer(ext, 0, logger)
	return NewOrchestrator(&fakeOpener{doc: doc}, pages, direct, enh, status, logger)
}

func request() Request {
	return Request{
		Document:       []byte("%PDF-1.4"),
		Filename:       "exam.pdf",
		Mode:           ModeWithImages,
		Strategy:       StrategyPerPage,
		StartingNumber: 1,
	}
}

func TestRun_PerPageWithoutBackendNumbersFromStart(t *testing.T) {
	doc := threePageDoc()
	progress := make(chan models.ProgressEvent, 64)
	req := request()
	req.StartingNumber = 41

	result, err := newOrchestrator(doc, nil, nil, nil).Run(context.Background(), req, progress)
	require.NoError(t, err)
	close(progress)

	require.Len(t, result.Questions, 3)
	assert.Equal(t, 41, result.Questions[0].QuestionNumber)
	assert.Equal(t, 42, result.Questions[1].QuestionNumber)
	assert.Equal(t, 43, result.Questions[2].QuestionNumber)
	assert.Equal(t, "What is the default port for HTTPS traffic?", result.Questions[0].QuestionText)
	assert.Equal(t, "Which protocol resolves host names to addresses?", result.Questions[1].QuestionText)
	assert.True(t, result.Questions[0].NeedsReview)
	assert.Empty(t, result.Errors)
	assert.True(t, doc.closed)

	require.Len(t, result.Pages, 3)
	assert.Equal(t, 1, result.Pages[0].QuestionCount)
	assert.Equal(t, 0, result.Pages[1].QuestionCount)
	assert.Equal(t, 2, result.Pages[2].QuestionCount)

	seen := map[models.ProgressStage]bool{}
	var last models.ProgressEvent
	for ev := range progress {
		seen[ev.Stage] = true
		last = ev
	}
	for _, stage := range []models.ProgressStage{models.StageLoading, models.StageClassifying, models.StageExtracting, models.StageEnhancing, models.StageComplete} {
		assert.True(t, seen[stage], "stage %s", stage)
	}
	assert.Equal(t, models.StageComplete, last.Stage)
}

func TestRun_SinglePage(t *testing.T) {
	req := request()
	req.Page = 3

	result, err := newOrchestrator(threePageDoc(), nil, nil, nil).Run(context.Background(), req, nil)
	require.NoError(t, err)

	require.Len(t, result.Pages, 1)
	assert.Equal(t, 3, result.Pages[0].PageNumber)
	assert.Len(t, result.Questions, 2)
	assert.Equal(t, 1, result.Questions[0].QuestionNumber)
}

func TestRun_PageOutOfRange(t *testing.T) {
	req := request()
	req.Page = 9

	result, err := newOrchestrator(threePageDoc(), nil, nil, nil).Run(context.Background(), req, nil)
	assert.Error(t, err)
	assert.Nil(t, result)
}

func TestRun_ErroredPageKeepsOrdering(t *testing.T) {
	doc := threePageDoc()
	doc.pages[2] = fakePage{err: errors.New("corrupt stream")}

	result, err := newOrchestrator(doc, nil, nil, nil).Run(context.Background(), request(), nil)
	require.NoError(t, err)

	require.Len(t, result.Questions, 3)
	require.Len(t, result.Errors, 1)
	assert.True(t, strings.HasPrefix(result.Errors[0], "page 2: "))
	assert.Contains(t, result.Errors[0], "corrupt stream")
	assert.Equal(t, models.PageStatusError, result.Pages[1].Status)
	assert.Equal(t, "Which protocol resolves host names to addresses?", result.Questions[1].QuestionText)
}

func TestRun_BackendPathEnhancesAndReportsStatus(t *testing.T) {
	ext := &routedExtractor{
		extract: func(call int) (string, error) { return backendJSON, nil },
		enhance: `{"explanation":"HTTPS listens on 443.","link":"https://www.rfc-editor.org/rfc/rfc2818"}`,
	}
	doc := &fakeDoc{total: 1, pages: map[int]fakePage{1: {runs: pageOne}}}
	status := fixedStatus{models.FallbackStatus{CurrentModel: "m1", TotalModels: 2, RemainingModels: 2, AvailableModels: []string{"m2"}}}

	result, err := newOrchestrator(doc, ext, nil, status).Run(context.Background(), request(), nil)
	require.NoError(t, err)

	require.Len(t, result.Questions, 1)
	q := result.Questions[0]
	assert.Equal(t, "HTTPS listens on 443.", q.Explanation)
	assert.Equal(t, "https://www.rfc-editor.org/rfc/rfc2818", q.Link)
	assert.False(t, q.NeedsReview)
	assert.Equal(t, 1, ext.enhances)
	assert.Equal(t, "m1", result.Fallback.CurrentModel)
}

func TestRun_ExhaustionAbortsWithPartialResults(t *testing.T) {
	exhausted := &llm.AllModelsExhaustedError{Models: []string{"m1", "m2"}, LastErr: errors.New("429 quota")}
	ext := &routedExtractor{
		extract: func(call int) (string, error) {
			if call == 1 {
				return backendJSON, nil
			}
			return "", exhausted
		},
		enhance: `{"explanation":"x","link":"https://example.com"}`,
	}

	result, err := newOrchestrator(threePageDoc(), ext, nil, nil).Run(context.Background(), request(), nil)
	require.Error(t, err)
	assert.True(t, llm.IsAllModelsExhausted(err))

	require.NotNil(t, result)
	require.Len(t, result.Questions, 1)
	assert.Equal(t, 1, result.Questions[0].QuestionNumber)
	assert.Empty(t, result.Questions[0].Explanation, "no enhancement after exhaustion")
	assert.Zero(t, ext.enhances)
	assert.Equal(t, 2, ext.extractions, "page 2 is blank, page 3 exhausts the chain")
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[len(result.Errors)-1], "page 3")
	assert.Len(t, result.Pages, 3)
}

// flakyBackend fails every prompt mentioning failOn and answers the rest
type flakyBackend struct {
	mu     sync.Mutex
	failOn string
	calls  int
}

func (b *flakyBackend) GenerateContent(ctx context.Context, model, prompt string, file *interfaces.FileRef) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	switch {
	case strings.Contains(prompt, "study material"):
		return `{"explanation":"Explained.","link":"https://example.com/notes"}`, nil
	case strings.Contains(prompt, b.failOn):
		return "", errors.New("read tcp 10.0.0.2:443: connection reset by peer")
	}
	return `[{"question_text":"Which protocol resolves host names to addresses?","options":[{"option_letter":"A","option_text":"DNS","is_correct":true},{"option_letter":"B","option_text":"ARP","is_correct":false}]}]`, nil
}

func TestRun_NetworkExhaustionOnOnePageKeepsProcessing(t *testing.T) {
	backend := &flakyBackend{failOn: "default port for HTTPS"}
	client := llm.NewFallbackClient(backend, []string{"m1", "m2"}, arbor.NewLogger(), llm.WithSleeper(noSleep))

	result, err := newOrchestrator(threePageDoc(), client, nil, client).Run(context.Background(), request(), nil)
	require.NoError(t, err)

	require.Len(t, result.Pages, 3)
	assert.Equal(t, models.PageStatusCompleted, result.Pages[0].Status)
	assert.Contains(t, result.Pages[0].Error, "connection reset by peer")
	assert.Equal(t, 1, result.Pages[0].QuestionCount, "pattern extractor result kept")
	assert.Equal(t, 1, result.Pages[2].QuestionCount)

	require.Len(t, result.Questions, 2)
	assert.Equal(t, "What is the default port for HTTPS traffic?", result.Questions[0].QuestionText)
	assert.Equal(t, "Which protocol resolves host names to addresses?", result.Questions[1].QuestionText)
	assert.Equal(t, 2, result.Questions[1].QuestionNumber)
	assert.Equal(t, "Explained.", result.Questions[1].Explanation)
	assert.Equal(t, "m2", result.Fallback.CurrentModel)
}

func TestRun_ModeControlsOCR(t *testing.T) {
	tests := []struct {
		mode     Mode
		ocrCalls int
	}{
		{ModeTextOnly, 0},
		{ModeWithImages, 1},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			engine := &countingOCR{}
			logger := arbor.NewLogger()
			doc := &fakeDoc{total: 1, pages: map[int]fakePage{1: {runs: []string{""}, img: redImage()}}}
			pages := extraction.NewPageExtractor(nil, engine, extraction.Options{RenderScale: 1}, logger)
			o := NewOrchestrator(&fakeOpener{doc: doc}, pages, nil, enhancer.NewEnhancer(nil, 0, logger), nil, logger)

			req := request()
			req.Mode = tt.mode
			result, err := o.Run(context.Background(), req, nil)
			require.NoError(t, err)

			assert.Empty(t, result.Questions)
			assert.Equal(t, tt.ocrCalls, engine.calls)
			require.Len(t, result.Pages, 1)
			assert.True(t, result.Pages[0].HasImages)
		})
	}
}

func redImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 40, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.RGBA{R: 220, G: 30, B: 30, A: 255})
		}
	}
	return img
}

type countingOCR struct{ calls int }

func (c *countingOCR) Recognize(ctx context.Context, img image.Image, languages []string) (interfaces.OCRResult, error) {
	c.calls++
	return interfaces.OCRResult{}, nil
}

func TestRun_DirectStrategy(t *testing.T) {
	ext := &routedExtractor{
		extract: func(call int) (string, error) { return "```json\n" + backendJSON + "\n```", nil },
		enhance: `{"explanation":"443 is the registered port.","link":"https://example.com/https"}`,
	}
	store := &fakeStore{}
	progress := make(chan models.ProgressEvent, 64)
	req := request()
	req.Strategy = StrategyDirect
	req.StartingNumber = 7

	result, err := newOrchestrator(threePageDoc(), ext, store, nil).Run(context.Background(), req, progress)
	require.NoError(t, err)
	close(progress)

	require.Len(t, result.Questions, 1)
	assert.Equal(t, 7, result.Questions[0].QuestionNumber)
	assert.Equal(t, "443 is the registered port.", result.Questions[0].Explanation)
	assert.Empty(t, result.Pages)
	assert.Equal(t, 1, store.uploads)
	assert.Equal(t, []string{"files/exam.pdf"}, store.deletes)

	seen := map[models.ProgressStage]bool{}
	for ev := range progress {
		seen[ev.Stage] = true
	}
	assert.True(t, seen[models.StageUploading])
	assert.True(t, seen[models.StageGenerating])
}

func TestRun_DirectFailureRecorded(t *testing.T) {
	ext := &routedExtractor{
		extract: func(call int) (string, error) { return "", errors.New("bad gateway") },
	}
	req := request()
	req.Strategy = StrategyDirect

	result, err := newOrchestrator(threePageDoc(), ext, &fakeStore{}, nil).Run(context.Background(), req, nil)
	require.NoError(t, err)

	assert.Empty(t, result.Questions)
	require.Len(t, result.Errors, 1)
	assert.True(t, strings.HasPrefix(result.Errors[0], "document: "))
}

func TestRun_DirectWithoutBackend(t *testing.T) {
	req := request()
	req.Strategy = StrategyDirect

	result, err := newOrchestrator(threePageDoc(), nil, nil, nil).Run(context.Background(), req, nil)
	require.NoError(t, err)

	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], llm.ErrNoBackend.Error())
}

func TestRun_InvalidRequest(t *testing.T) {
	o := newOrchestrator(threePageDoc(), nil, nil, nil)

	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"zero starting number", func(r *Request) { r.StartingNumber = 0 }},
		{"negative page", func(r *Request) { r.Page = -1 }},
		{"unknown mode", func(r *Request) { r.Mode = "colour" }},
		{"unknown strategy", func(r *Request) { r.Strategy = "batch" }},
		{"missing document", func(r *Request) { r.Document = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := request()
			tt.mutate(&req)
			_, err := o.Run(context.Background(), req, nil)
			assert.Error(t, err)
		})
	}
}

func TestRun_DefaultsModeAndStrategy(t *testing.T) {
	req := request()
	req.Mode = ""
	req.Strategy = ""

	result, err := newOrchestrator(threePageDoc(), nil, nil, nil).Run(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Len(t, result.Pages, 3)
}

func TestRun_OpenFailure(t *testing.T) {
	logger := arbor.NewLogger()
	o := NewOrchestrator(&fakeOpener{err: errors.New("not a pdf")}, extraction.NewPageExtractor(nil, nil, extraction.Options{}, logger), nil, enhancer.NewEnhancer(nil, 0, logger), nil, logger)

	result, err := o.Run(context.Background(), request(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a pdf")
	assert.Nil(t, result)
}

func TestRun_CancelledReturnsPartial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := newOrchestrator(threePageDoc(), nil, nil, nil).Run(ctx, request(), nil)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Empty(t, result.Questions)
}
