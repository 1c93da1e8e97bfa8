package pdf

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/gen2brain/go-fitz"
)

// Rasterizer renders pages to images using go-fitz (MuPDF)
type Rasterizer struct {
	mu  sync.Mutex
	doc *fitz.Document
}

// NewRasterizer opens the document for rendering
func NewRasterizer(content []byte) (*Rasterizer, error) {
	doc, err := fitz.NewFromMemory(content)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF for rendering: %w", err)
	}
	return &Rasterizer{doc: doc}, nil
}

// Render rasterizes a 1-based page at scale × 72 DPI
func (r *Rasterizer) Render(ctx context.Context, pageNumber int, scale float64) (image.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.doc == nil {
		return nil, fmt.Errorf("rasterizer is closed")
	}
	if pageNumber < 1 || pageNumber > r.doc.NumPage() {
		return nil, fmt.Errorf("page %d out of range (1-%d)", pageNumber, r.doc.NumPage())
	}
	if scale <= 0 {
		scale = 1
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	img, err := r.doc.ImageDPI(pageNumber-1, 72*scale)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", pageNumber, err)
	}
	return img, nil
}

// Close releases the MuPDF document
func (r *Rasterizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.doc == nil {
		return nil
	}
	err := r.doc.Close()
	r.doc = nil
	return err
}
