// -----------------------------------------------------------------------
// Page Source Interface - text runs and rasters for document pages
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
	"image"
)

// DocumentMetadata contains metadata about a PDF document
type DocumentMetadata struct {
	PageCount   int    `json:"page_count"`
	FileSize    int64  `json:"file_size"`
	IsEncrypted bool   `json:"is_encrypted"`
	Version     string `json:"version,omitempty"`
}

// PageSource provides per-page text runs and rendered rasters for one open document.
// Page numbers are 1-based.
type PageSource interface {
	// PageCount returns the number of pages in the document.
	PageCount() int

	// TextRuns returns the page's text runs in reading order (top to bottom).
	TextRuns(ctx context.Context, pageNumber int) ([]string, error)

	// Render rasterizes the page. scale 1.0 renders at 72 DPI.
	Render(ctx context.Context, pageNumber int, scale float64) (image.Image, error)

	// Close releases any resources held by the source.
	Close() error
}

// PageSourceOpener opens a PageSource from raw document bytes
type PageSourceOpener interface {
	Open(ctx context.Context, content []byte) (PageSource, *DocumentMetadata, error)
}
