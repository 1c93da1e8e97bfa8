package extraction

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/examforge/internal/interfaces"
	"github.com/ternarybob/examforge/internal/models"
	"github.com/ternarybob/examforge/internal/services/llm"
)

const (
	// DefaultPollInterval is the spacing between upload status checks
	DefaultPollInterval = 2 * time.Second
	// DefaultDirectTimeout bounds the single whole-document generation call
	DefaultDirectTimeout = 120 * time.Second
	// DefaultMaxPolls bounds the upload status checks before giving up
	DefaultMaxPolls = 150

	cleanupTimeout = 30 * time.Second
)

var (
	// ErrUploadFailed is returned when the backend reports the uploaded file as failed
	ErrUploadFailed = errors.New("uploaded file processing failed")

	// ErrUploadStalled is returned when the file is still processing after the poll limit
	ErrUploadStalled = errors.New("uploaded file still processing")
)

// DocumentFile is a whole document handed to the direct extractor
type DocumentFile struct {
	Name     string
	Content  []byte
	MIMEType string
}

// DirectExtractor uploads a whole document and extracts every question in one generation call
type DirectExtractor struct {
	store        interfaces.FileStore
	extractor    interfaces.Extractor
	parser       *llm.ResponseParser
	pollInterval time.Duration
	maxPolls     int
	timeout      time.Duration
	sleep        llm.Sleeper
	logger       arbor.ILogger
}

// NewDirectExtractor creates a direct extractor. Zero durations select the defaults.
func NewDirectExtractor(store interfaces.FileStore, extractor interfaces.Extractor, pollInterval, timeout time.Duration, logger arbor.ILogger) *DirectExtractor {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultDirectTimeout
	}
	return &DirectExtractor{
		store:        store,
		extractor:    extractor,
		parser:       llm.NewResponseParser(logger),
		pollInterval: pollInterval,
		maxPolls:     DefaultMaxPolls,
		timeout:      timeout,
		sleep:        llm.SleepContext,
		logger:       logger,
	}
}

// WithSleeper replaces the poll wait, used by tests
func (d *DirectExtractor) WithSleeper(s llm.Sleeper) *DirectExtractor {
	if s != nil {
		d.sleep = s
	}
	return d
}

// WithMaxPolls sets the number of status checks made before the upload is abandoned
func (d *DirectExtractor) WithMaxPolls(n int) *DirectExtractor {
	if n > 0 {
		d.maxPolls = n
	}
	return d
}

// Extract uploads file, waits for the backend to finish processing it and runs one
// extraction prompt against it. The remote file is deleted afterwards on every path;
// deletion failures are logged only.
func (d *DirectExtractor) Extract(ctx context.Context, file DocumentFile, progress chan<- models.ProgressEvent) ([]models.ExtractedQuestion, error) {
	if d.store == nil || d.extractor == nil {
		return nil, llm.ErrNoBackend
	}
	mimeType := file.MIMEType
	if mimeType == "" {
		mimeType = "application/pdf"
	}

	models.Emit(ctx, progress, models.ProgressEvent{
		Stage:   models.StageUploading,
		Message: fmt.Sprintf("Uploading %s", file.Name),
	})

	ref, err := d.store.UploadFile(ctx, bytes.NewReader(file.Content), file.Name, mimeType)
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	if ref == nil {
		return nil, fmt.Errorf("upload failed: no file reference returned for %s", file.Name)
	}
	defer d.cleanup(ctx, ref.Name)

	d.logger.Info().
		Str("file", ref.Name).
		Int("bytes", len(file.Content)).
		Msg("Document uploaded")

	ref, err = d.waitReady(ctx, ref, progress)
	if err != nil {
		return nil, err
	}

	models.Emit(ctx, progress, models.ProgressEvent{
		Stage:   models.StageGenerating,
		Message: "Extracting questions from the whole document",
	})

	genCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	started := time.Now()
	raw, err := d.extractor.ExtractWithFile(genCtx, llm.DocumentExtractionPrompt(), ref)
	if err != nil {
		if errors.Is(genCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("direct extraction timed out after %s: %w", d.timeout, context.DeadlineExceeded)
		}
		return nil, fmt.Errorf("direct extraction failed: %w", err)
	}

	questions, err := d.parser.ParseQuestions(raw, models.SourceHybrid)
	if err != nil {
		return nil, fmt.Errorf("direct extraction response: %w", err)
	}

	d.logger.Info().
		Int("questions", len(questions)).
		Dur("duration", time.Since(started)).
		Msg("Direct extraction completed")

	return questions, nil
}

// waitReady polls the file state at a fixed interval until it leaves processing,
// giving up after maxPolls checks
func (d *DirectExtractor) waitReady(ctx context.Context, ref *interfaces.FileRef, progress chan<- models.ProgressEvent) (*interfaces.FileRef, error) {
	name := ref.Name
	for polls := 1; ref.State == interfaces.FileStateProcessing; polls++ {
		if polls > d.maxPolls {
			return nil, fmt.Errorf("%w after %d checks: %s", ErrUploadStalled, d.maxPolls, name)
		}

		models.Emit(ctx, progress, models.ProgressEvent{
			Stage:   models.StagePolling,
			Current: polls,
			Message: "Waiting for the backend to process the document",
		})

		if err := d.sleep(ctx, d.pollInterval); err != nil {
			return nil, err
		}

		next, err := d.store.GetFile(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("status poll failed: %w", err)
		}
		if next == nil {
			return nil, fmt.Errorf("status poll failed: no file reference returned for %s", name)
		}
		ref = next
	}

	if ref.State != interfaces.FileStateReady {
		return nil, fmt.Errorf("%w: %s (state %q)", ErrUploadFailed, name, ref.State)
	}
	return ref, nil
}

// cleanup deletes the remote file, detached from cancellation of the run
func (d *DirectExtractor) cleanup(ctx context.Context, name string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if err := d.store.DeleteFile(cleanupCtx, name); err != nil {
		d.logger.Warn().Str("file", name).Err(err).Msg("Failed to delete uploaded document")
		return
	}
	d.logger.Debug().Str("file", name).Msg("Uploaded document deleted")
}
