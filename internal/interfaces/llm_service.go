package interfaces

import (
	"context"
	"io"
)

// FileState is the processing state of an uploaded remote file
type FileState string

const (
	FileStateProcessing FileState = "processing"
	FileStateReady      FileState = "ready"
	FileStateFailed     FileState = "failed"
)

// FileRef references a file stored by a generative backend
type FileRef struct {
	Name     string
	URI      string
	MIMEType string
	State    FileState
}

// GenerativeBackend generates text from a prompt for a named model.
// file is optional and references a previously uploaded document.
type GenerativeBackend interface {
	GenerateContent(ctx context.Context, model, prompt string, file *FileRef) (string, error)
}

// FileStore is the backend file-storage API used for whole-document extraction
type FileStore interface {
	UploadFile(ctx context.Context, r io.Reader, displayName, mimeType string) (*FileRef, error)
	GetFile(ctx context.Context, name string) (*FileRef, error)
	DeleteFile(ctx context.Context, name string) error
}

// Extractor is the generative extraction client contract used by the extraction paths
type Extractor interface {
	Extract(ctx context.Context, prompt string) (string, error)
	ExtractWithFile(ctx context.Context, prompt string, file *FileRef) (string, error)
}
