package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/examforge/internal/interfaces"
	"github.com/ternarybob/examforge/internal/models"
	"github.com/ternarybob/examforge/internal/services/llm"
	"github.com/ternarybob/examforge/internal/services/ocr"
	"github.com/ternarybob/examforge/internal/services/pages"
)

// Options configures a PageExtractor
type Options struct {
	Languages   []string // OCR language hints
	RenderScale float64  // raster scale factor, 1.0 = 72 DPI
	MinOCRWidth int      // narrower renders are upscaled before OCR
}

// PageExtractor turns one document page into candidate questions:
// text path first, OCR path when the page has imagery and the text path found nothing.
type PageExtractor struct {
	extractor interfaces.Extractor // nil when no generative backend is configured
	parser    *llm.ResponseParser
	ocr       interfaces.OCREngine // nil when OCR is disabled
	options   Options
	logger    arbor.ILogger
}

// NewPageExtractor creates a page extractor. extractor and engine may be nil.
func NewPageExtractor(extractor interfaces.Extractor, engine interfaces.OCREngine, options Options, logger arbor.ILogger) *PageExtractor {
	if options.RenderScale <= 0 {
		options.RenderScale = 2.0
	}
	return &PageExtractor{
		extractor: extractor,
		parser:    llm.NewResponseParser(logger),
		ocr:       engine,
		options:   options,
		logger:    logger,
	}
}

// HasBackend reports whether a generative backend is configured
func (e *PageExtractor) HasBackend() bool {
	return e.extractor != nil
}

// Process runs the page state machine. The returned page is always non-nil and
// ends completed or error. The only returned errors are quota exhaustion of the
// fallback chain and context cancellation, which the caller must treat as fatal for the run.
func (e *PageExtractor) Process(ctx context.Context, doc interfaces.PageSource, pageNumber int, useImages bool, progress chan<- models.ProgressEvent) (*models.Page, error) {
	page := models.NewPage(pageNumber)
	page.ProcessingStatus = models.PageStatusProcessing
	total := doc.PageCount()

	models.Emit(ctx, progress, models.ProgressEvent{
		Stage:   models.StageClassifying,
		Current: pageNumber,
		Total:   total,
		Message: fmt.Sprintf("Classifying page %d of %d", pageNumber, total),
	})

	runs, textErr := doc.TextRuns(ctx, pageNumber)
	if textErr != nil {
		e.logger.Warn().Int("page", pageNumber).Err(textErr).Msg("Text runs unavailable")
	}
	img, renderErr := doc.Render(ctx, pageNumber, e.options.RenderScale)
	if renderErr != nil {
		e.logger.Warn().Int("page", pageNumber).Err(renderErr).Msg("Page render unavailable")
	} else {
		page.RasterImage = img
	}
	if err := ctx.Err(); err != nil {
		page.Fail(err.Error())
		return page, err
	}
	if textErr != nil && renderErr != nil {
		page.Fail(fmt.Sprintf("page unreadable: text: %v; render: %v", textErr, renderErr))
		return page, nil
	}

	classification := pages.Classify(runs, img)
	page.HasText = classification.HasText
	page.HasImages = classification.HasImages
	page.TextContent = classification.Text

	e.logger.Debug().
		Int("page", pageNumber).
		Bool("has_text", page.HasText).
		Bool("has_images", page.HasImages).
		Int("text_length", len(page.TextContent)).
		Msg("Page classified")

	var pageErrs []string

	// text path
	if page.HasText {
		models.Emit(ctx, progress, models.ProgressEvent{
			Stage:   models.StageExtracting,
			Current: pageNumber,
			Total:   total,
			Message: fmt.Sprintf("Extracting questions from page %d text", pageNumber),
		})

		var questions []models.ExtractedQuestion
		var err error
		if pages.LooksLikeQuestion(page.TextContent) {
			questions, err = e.extractFromText(ctx, page.TextContent, models.SourceText)
		}
		if isFatal(err) {
			page.Fail(err.Error())
			return page, err
		}
		if err != nil {
			pageErrs = append(pageErrs, err.Error())
		}
		if questions != nil {
			page.ExtractedQuestions = questions
		}
	}

	// OCR path
	if useImages && page.HasImages && len(page.ExtractedQuestions) == 0 {
		models.Emit(ctx, progress, models.ProgressEvent{
			Stage:   models.StageOCR,
			Current: pageNumber,
			Total:   total,
			Message: fmt.Sprintf("Running OCR on page %d", pageNumber),
		})

		questions, err := e.ocrPath(ctx, page)
		if isFatal(err) {
			page.Fail(err.Error())
			return page, err
		}
		if err != nil {
			pageErrs = append(pageErrs, err.Error())
		}
		page.ExtractedQuestions = append(page.ExtractedQuestions, questions...)
	}

	switch {
	case page.OCRFailed:
		page.OfferVisionFallback("ocr result unusable")
	case e.HasBackend() && page.RasterImage != nil:
		page.OfferVisionFallback("full-image analysis available")
	case e.HasBackend():
		page.OfferVisionFallback("page render unavailable")
	}

	page.ProcessingStatus = models.PageStatusCompleted
	if len(pageErrs) > 0 {
		page.Error = strings.Join(pageErrs, "; ")
		if len(page.ExtractedQuestions) == 0 {
			page.ProcessingStatus = models.PageStatusError
		}
	}

	e.logger.Info().
		Int("page", pageNumber).
		Int("questions", len(page.ExtractedQuestions)).
		Bool("ocr_failed", page.OCRFailed).
		Str("status", string(page.ProcessingStatus)).
		Msg("Page processed")

	return page, nil
}

// extractFromText asks the backend for questions, falling back to the pattern
// extractor when no backend is configured or the backend finds none.
// Non-fatal backend errors are returned alongside the fallback result.
func (e *PageExtractor) extractFromText(ctx context.Context, text string, source models.QuestionSource) ([]models.ExtractedQuestion, error) {
	text = pages.NormalizeWhitespace(text)

	var backendErr error
	if e.extractor != nil {
		raw, err := e.extractor.Extract(ctx, llm.QuestionExtractionPrompt(text))
		switch {
		case isFatal(err):
			return nil, err
		case err != nil:
			backendErr = fmt.Errorf("generative extraction failed: %w", err)
		default:
			questions, perr := e.parser.ParseQuestions(raw, source)
			if perr != nil {
				e.logger.Warn().Err(perr).Msg("Unparseable extraction response")
			}
			if len(questions) > 0 {
				return questions, nil
			}
		}
	}

	questions := ManualExtract(text)
	for i := range questions {
		questions[i].Source = source
	}
	if len(questions) > 0 {
		e.logger.Debug().
			Int("questions", len(questions)).
			Msg("Pattern extractor used")
	}
	return questions, backendErr
}

func (e *PageExtractor) ocrPath(ctx context.Context, page *models.Page) ([]models.ExtractedQuestion, error) {
	if e.ocr == nil || page.RasterImage == nil {
		page.OCRFailed = true
		return nil, nil
	}

	prepared := pages.Preprocess(pages.Upscale(page.RasterImage, e.options.MinOCRWidth))
	result, err := e.ocr.Recognize(ctx, prepared, e.options.Languages)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Warn().Int("page", page.PageNumber).Err(err).Msg("OCR failed")
		page.OCRFailed = true
		return nil, nil
	}

	if !ocr.IsUsable(result) {
		e.logger.Info().
			Int("page", page.PageNumber).
			Int("chars", len(result.Text)).
			Float64("confidence", result.Confidence).
			Msg("OCR result unusable")
		page.OCRFailed = true
		return nil, nil
	}

	source := models.SourceOCR
	if page.HasText {
		source = models.SourceHybrid
	}
	return e.extractFromText(ctx, result.Text, source)
}

// isFatal reports errors that must stop the whole run: quota exhaustion of the
// fallback chain and context cancellation. Any other chain exhaustion is a page failure.
func isFatal(err error) bool {
	return err != nil && (llm.IsQuotaExhausted(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}
