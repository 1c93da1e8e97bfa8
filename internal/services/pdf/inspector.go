// -----------------------------------------------------------------------
// PDF Inspector - validate documents and read metadata before extraction
// Uses pdfcpu for Go-native PDF processing
// -----------------------------------------------------------------------

package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/examforge/internal/interfaces"
)

// ErrEmptyDocument is returned for zero-byte or zero-page documents
var ErrEmptyDocument = errors.New("document is empty")

// Inspector reads document structure with pdfcpu
type Inspector struct {
	logger arbor.ILogger
}

// NewInspector creates a new PDF inspector
func NewInspector(logger arbor.ILogger) *Inspector {
	return &Inspector{logger: logger}
}

// Inspect parses the document cross-reference table and returns its metadata.
func (i *Inspector) Inspect(ctx context.Context, content []byte) (*interfaces.DocumentMetadata, error) {
	if len(content) == 0 {
		return nil, ErrEmptyDocument
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	pdfCtx, err := api.ReadContext(bytes.NewReader(content), model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF context: %w", err)
	}

	if pdfCtx.PageCount == 0 {
		return nil, ErrEmptyDocument
	}

	metadata := &interfaces.DocumentMetadata{
		PageCount:   pdfCtx.PageCount,
		FileSize:    int64(len(content)),
		IsEncrypted: pdfCtx.Encrypt != nil,
	}

	i.logger.Debug().
		Int("page_count", metadata.PageCount).
		Int64("file_size", metadata.FileSize).
		Bool("encrypted", metadata.IsEncrypted).
		Msg("Inspected PDF document")

	return metadata, nil
}
