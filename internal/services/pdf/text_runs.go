package pdf

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	lpdf "github.com/ledongthuc/pdf"
)

// TextRunReader extracts positioned text runs with ledongthuc/pdf
type TextRunReader struct {
	reader *lpdf.Reader
}

// NewTextRunReader parses the document for text extraction
func NewTextRunReader(content []byte) (*TextRunReader, error) {
	reader, err := lpdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF for text extraction: %w", err)
	}
	return &TextRunReader{reader: reader}, nil
}

// NumPage returns the page count seen by the text reader
func (r *TextRunReader) NumPage() int {
	return r.reader.NumPage()
}

// TextRuns returns one run per visual row, top of the page first.
func (r *TextRunReader) TextRuns(ctx context.Context, pageNumber int) (runs []string, err error) {
	if pageNumber < 1 || pageNumber > r.reader.NumPage() {
		return nil, fmt.Errorf("page %d out of range (1-%d)", pageNumber, r.reader.NumPage())
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	// the content stream walker panics on some malformed fonts
	defer func() {
		if rec := recover(); rec != nil {
			runs = nil
			err = fmt.Errorf("text extraction panicked on page %d: %v", pageNumber, rec)
		}
	}()

	page := r.reader.Page(pageNumber)
	if page.V.IsNull() {
		return []string{}, nil
	}

	rows, err := page.GetTextByRow()
	if err != nil {
		return nil, fmt.Errorf("failed to read text rows on page %d: %w", pageNumber, err)
	}

	// PDF y grows upwards
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Position > rows[j].Position
	})

	runs = make([]string, 0, len(rows))
	for _, row := range rows {
		var line strings.Builder
		for _, text := range row.Content {
			line.WriteString(text.S)
		}
		if s := strings.TrimSpace(line.String()); s != "" {
			runs = append(runs, s)
		}
	}

	return runs, nil
}
