package extraction

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"sync"

	"github.com/ternarybob/examforge/internal/interfaces"
)

type fakePageSource struct {
	runs      map[int][]string
	images    map[int]image.Image
	textErr   error
	renderErr error
}

func (f *fakePageSource) PageCount() int {
	n := 0
	for p := range f.runs {
		n = max(n, p)
	}
	for p := range f.images {
		n = max(n, p)
	}
	return n
}

func (f *fakePageSource) TextRuns(ctx context.Context, pageNumber int) ([]string, error) {
	if f.textErr != nil {
		return nil, f.textErr
	}
	return f.runs[pageNumber], nil
}

func (f *fakePageSource) Render(ctx context.Context, pageNumber int, scale float64) (image.Image, error) {
	if f.renderErr != nil {
		return nil, f.renderErr
	}
	if img, ok := f.images[pageNumber]; ok {
		return img, nil
	}
	return blankImage(), nil
}

func (f *fakePageSource) Close() error { return nil }

func blankImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 60, 80))
	for y := 0; y < 80; y++ {
		for x := 0; x < 60; x++ {
			img.Set(x, y, color.White)
		}
	}
	return img
}

func colourfulImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 60, 80))
	for y := 0; y < 80; y++ {
		for x := 0; x < 60; x++ {
			img.Set(x, y, color.RGBA{R: 220, G: 40, B: 40, A: 255})
		}
	}
	return img
}

type fakeExtractor struct {
	mu        sync.Mutex
	responses []string
	err       error
	prompts   []string
	files     []*interfaces.FileRef
}

func (f *fakeExtractor) Extract(ctx context.Context, prompt string) (string, error) {
	return f.ExtractWithFile(ctx, prompt, nil)
}

func (f *fakeExtractor) ExtractWithFile(ctx context.Context, prompt string, file *interfaces.FileRef) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	f.files = append(f.files, file)
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "[]", nil
	}
	r := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return r, nil
}

type fakeOCR struct {
	result interfaces.OCRResult
	err    error
	calls  int
	langs  []string
}

func (f *fakeOCR) Recognize(ctx context.Context, img image.Image, languages []string) (interfaces.OCRResult, error) {
	f.calls++
	f.langs = languages
	return f.result, f.err
}

type fakeFileStore struct {
	states    []interfaces.FileState // returned by successive GetFile calls
	uploadErr error
	deleteErr error
	uploaded  []byte
	mimeType  string
	gets      int
	deleted   []string
}

func (f *fakeFileStore) UploadFile(ctx context.Context, r io.Reader, displayName, mimeType string) (*interfaces.FileRef, error) {
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f.uploaded = data
	f.mimeType = mimeType
	return &interfaces.FileRef{
		Name:     "files/" + displayName,
		URI:      "https://files.example/" + displayName,
		MIMEType: mimeType,
		State:    interfaces.FileStateProcessing,
	}, nil
}

func (f *fakeFileStore) GetFile(ctx context.Context, name string) (*interfaces.FileRef, error) {
	if f.gets >= len(f.states) {
		return nil, fmt.Errorf("unexpected poll %d", f.gets+1)
	}
	state := f.states[f.gets]
	f.gets++
	return &interfaces.FileRef{Name: name, URI: "https://files.example/" + name, MIMEType: "application/pdf", State: state}, nil
}

func (f *fakeFileStore) DeleteFile(ctx context.Context, name string) error {
	f.deleted = append(f.deleted, name)
	return f.deleteErr
}
