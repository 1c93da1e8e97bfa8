package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/examforge/internal/common"
	"github.com/ternarybob/examforge/internal/interfaces"
	"github.com/ternarybob/examforge/internal/models"
	"github.com/ternarybob/examforge/internal/services/enhancer"
	"github.com/ternarybob/examforge/internal/services/extraction"
	"github.com/ternarybob/examforge/internal/services/llm"
)

// Mode selects whether image-only pages go through OCR
type Mode string

const (
	ModeTextOnly   Mode = "text-only"
	ModeWithImages Mode = "with-images"
)

// Strategy selects per-page extraction or a single whole-document call
type Strategy string

const (
	StrategyPerPage Strategy = "per-page"
	StrategyDirect  Strategy = "direct"
)

// Request describes one pipeline run
type Request struct {
	Document       []byte   `validate:"required"`
	Filename       string   `validate:"required"`
	Page           int      `validate:"gte=0"` // 0 processes every page
	Mode           Mode     `validate:"oneof=text-only with-images"`
	Strategy       Strategy `validate:"oneof=per-page direct"`
	StartingNumber int      `validate:"gte=1"`
}

// StatusReporter exposes the model cursor of the extraction client
type StatusReporter interface {
	Status() models.FallbackStatus
}

// Orchestrator drives page extraction or direct extraction, then enhancement
type Orchestrator struct {
	opener   interfaces.PageSourceOpener
	pages    *extraction.PageExtractor
	direct   *extraction.DirectExtractor
	enhancer *enhancer.Enhancer
	status   StatusReporter
	logger   arbor.ILogger
}

// NewOrchestrator creates an orchestrator. direct and status may be nil.
func NewOrchestrator(
	opener interfaces.PageSourceOpener,
	pages *extraction.PageExtractor,
	direct *extraction.DirectExtractor,
	enh *enhancer.Enhancer,
	status StatusReporter,
	logger arbor.ILogger,
) *Orchestrator {
	return &Orchestrator{
		opener:   opener,
		pages:    pages,
		direct:   direct,
		enhancer: enh,
		status:   status,
		logger:   logger,
	}
}

// Run executes one request. The result is non-nil whenever the request was valid:
// on quota exhaustion of the chain or cancellation it carries every question gathered before the
// abort, numbered, alongside the returned error.
func (o *Orchestrator) Run(ctx context.Context, req Request, progress chan<- models.ProgressEvent) (*models.RunResult, error) {
	if req.Mode == "" {
		req.Mode = ModeWithImages
	}
	if req.Strategy == "" {
		req.Strategy = StrategyPerPage
	}
	if err := common.Validate().Struct(req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	o.logger.Info().
		Str("file", req.Filename).
		Int("bytes", len(req.Document)).
		Int("page", req.Page).
		Str("mode", string(req.Mode)).
		Str("strategy", string(req.Strategy)).
		Int("start", req.StartingNumber).
		Msg("Pipeline run started")

	result := &models.RunResult{
		Questions: []models.Question{},
		Errors:    []string{},
	}

	var gathered []models.ExtractedQuestion
	var runErr error
	if req.Strategy == StrategyDirect {
		gathered, runErr = o.runDirect(ctx, req, result, progress)
	} else {
		doc, first, last, err := o.open(ctx, req, progress)
		if err != nil {
			return nil, err
		}
		gathered, runErr = o.runPages(ctx, doc, first, last, req.Mode == ModeWithImages, result, progress)
		if err := doc.Close(); err != nil {
			o.logger.Warn().Err(err).Msg("Failed to close document")
		}
	}

	if runErr != nil {
		result.Errors = append(result.Errors, runErr.Error())
		result.Questions = o.enhancer.Number(gathered, req.StartingNumber)
		models.Emit(ctx, progress, models.ProgressEvent{
			Stage:   models.StageComplete,
			Current: len(gathered),
			Total:   len(gathered),
			Message: "Run aborted",
		})
	} else {
		questions, err := o.enhancer.Enhance(ctx, gathered, req.StartingNumber, progress)
		result.Questions = questions
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			runErr = err
		}
	}

	if o.status != nil {
		result.Fallback = o.status.Status()
	}

	o.logger.Info().
		Int("questions", len(result.Questions)).
		Int("errors", len(result.Errors)).
		Str("model", result.Fallback.CurrentModel).
		Msg("Pipeline run finished")

	return result, runErr
}

// open loads the document and resolves the page range to process
func (o *Orchestrator) open(ctx context.Context, req Request, progress chan<- models.ProgressEvent) (interfaces.PageSource, int, int, error) {
	models.Emit(ctx, progress, models.ProgressEvent{
		Stage:   models.StageLoading,
		Message: fmt.Sprintf("Loading %s", req.Filename),
	})

	doc, meta, err := o.opener.Open(ctx, req.Document)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to open %s: %w", req.Filename, err)
	}

	total := doc.PageCount()
	first, last := 1, total
	if req.Page > 0 {
		if req.Page > total {
			_ = doc.Close()
			return nil, 0, 0, fmt.Errorf("page %d out of range: document has %d pages", req.Page, total)
		}
		first, last = req.Page, req.Page
	}

	if meta != nil {
		o.logger.Debug().
			Int("pages", meta.PageCount).
			Int64("size", meta.FileSize).
			Str("version", meta.Version).
			Msg("Document loaded")
	}

	models.Emit(ctx, progress, models.ProgressEvent{
		Stage:   models.StageLoading,
		Current: 0,
		Total:   total,
		Message: fmt.Sprintf("Loaded %d pages", total),
	})

	return doc, first, last, nil
}

// runPages processes pages first..last in ascending order. A returned error
// aborts the run; page failures are recorded in result instead.
func (o *Orchestrator) runPages(ctx context.Context, doc interfaces.PageSource, first, last int, useImages bool, result *models.RunResult, progress chan<- models.ProgressEvent) ([]models.ExtractedQuestion, error) {
	var gathered []models.ExtractedQuestion

	for n := first; n <= last; n++ {
		page, err := o.pages.Process(ctx, doc, n, useImages, progress)
		if page != nil {
			result.Pages = append(result.Pages, page.Report())
			gathered = append(gathered, page.ExtractedQuestions...)
			if page.ProcessingStatus == models.PageStatusError && err == nil {
				result.Errors = append(result.Errors, fmt.Sprintf("page %d: %s", n, page.Error))
			}
		}
		if err != nil {
			return gathered, fmt.Errorf("page %d: %w", n, err)
		}
	}

	return gathered, nil
}

// runDirect sends the whole document in one call. A returned error aborts the
// run; other failures are recorded and yield zero questions.
func (o *Orchestrator) runDirect(ctx context.Context, req Request, result *models.RunResult, progress chan<- models.ProgressEvent) ([]models.ExtractedQuestion, error) {
	models.Emit(ctx, progress, models.ProgressEvent{
		Stage:   models.StageLoading,
		Message: fmt.Sprintf("Loading %s", req.Filename),
	})

	if o.direct == nil {
		result.Errors = append(result.Errors, fmt.Sprintf("document: %v", llm.ErrNoBackend))
		return nil, nil
	}

	questions, err := o.direct.Extract(ctx, extraction.DocumentFile{
		Name:     req.Filename,
		Content:  req.Document,
		MIMEType: "application/pdf",
	}, progress)
	if err != nil {
		if o.fatal(ctx, err) {
			return nil, err
		}
		o.logger.Warn().Err(err).Msg("Direct extraction failed")
		result.Errors = append(result.Errors, fmt.Sprintf("document: %v", err))
		return nil, nil
	}
	return questions, nil
}

func (o *Orchestrator) fatal(ctx context.Context, err error) bool {
	if llm.IsQuotaExhausted(err) {
		return true
	}
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}
