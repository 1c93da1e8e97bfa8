package pdf

import (
	"context"
	"fmt"
	"image"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/examforge/internal/interfaces"
)

// Document is a PageSource backed by pdfcpu inspection, ledongthuc text runs and go-fitz rendering.
// Either capability may be missing when the document defeats that library; calls to it then fail
// per page instead of failing the whole document.
type Document struct {
	metadata   *interfaces.DocumentMetadata
	text       *TextRunReader
	rasterizer *Rasterizer
	textErr    error
	renderErr  error
}

// Compile-time interface assertion
var _ interfaces.PageSource = (*Document)(nil)

// PageCount returns the number of pages reported by the inspector
func (d *Document) PageCount() int {
	return d.metadata.PageCount
}

// Metadata returns the inspected document metadata
func (d *Document) Metadata() *interfaces.DocumentMetadata {
	return d.metadata
}

// TextRuns returns the text runs for a page
func (d *Document) TextRuns(ctx context.Context, pageNumber int) ([]string, error) {
	if d.text == nil {
		return nil, fmt.Errorf("text extraction unavailable: %w", d.textErr)
	}
	return d.text.TextRuns(ctx, pageNumber)
}

// Render rasterizes a page
func (d *Document) Render(ctx context.Context, pageNumber int, scale float64) (image.Image, error) {
	if d.rasterizer == nil {
		return nil, fmt.Errorf("rendering unavailable: %w", d.renderErr)
	}
	return d.rasterizer.Render(ctx, pageNumber, scale)
}

// Close releases the renderer
func (d *Document) Close() error {
	if d.rasterizer != nil {
		return d.rasterizer.Close()
	}
	return nil
}

// Opener opens Documents from raw bytes
type Opener struct {
	inspector *Inspector
	logger    arbor.ILogger
}

// Compile-time interface assertion
var _ interfaces.PageSourceOpener = (*Opener)(nil)

// NewOpener creates a document opener
func NewOpener(logger arbor.ILogger) *Opener {
	return &Opener{
		inspector: NewInspector(logger),
		logger:    logger,
	}
}

// Open inspects the document and prepares text and raster access.
// Only an unreadable document is an error; a missing text layer or renderer is logged.
func (o *Opener) Open(ctx context.Context, content []byte) (interfaces.PageSource, *interfaces.DocumentMetadata, error) {
	metadata, err := o.inspector.Inspect(ctx, content)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to inspect document: %w", err)
	}

	doc := &Document{metadata: metadata}

	doc.text, doc.textErr = NewTextRunReader(content)
	if doc.textErr != nil {
		o.logger.Warn().Err(doc.textErr).Msg("Text layer unavailable, pages will rely on OCR")
	}

	doc.rasterizer, doc.renderErr = NewRasterizer(content)
	if doc.renderErr != nil {
		o.logger.Warn().Err(doc.renderErr).Msg("Renderer unavailable, pages will rely on the text layer")
	}

	if doc.text == nil && doc.rasterizer == nil {
		return nil, nil, fmt.Errorf("document has neither a readable text layer nor a renderable page: %w", doc.textErr)
	}

	return doc, metadata, nil
}
