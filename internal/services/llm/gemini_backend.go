package llm

import (
	"context"
	"fmt"
	"io"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/examforge/internal/interfaces"
	"google.golang.org/genai"
)

// GeminiBackend implements interfaces.GenerativeBackend and interfaces.FileStore
// on the Google Gemini API
type GeminiBackend struct {
	client      *genai.Client
	temperature float32
	logger      arbor.ILogger
}

// NewGeminiBackend creates a Gemini client for the given API key
func NewGeminiBackend(ctx context.Context, apiKey string, temperature float32, logger arbor.ILogger) (*GeminiBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is empty")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiBackend{
		client:      client,
		temperature: temperature,
		logger:      logger,
	}, nil
}

// GenerateContent runs a single generation. When file is set the uploaded
// document is sent ahead of the prompt.
func (b *GeminiBackend) GenerateContent(ctx context.Context, model, prompt string, file *interfaces.FileRef) (string, error) {
	parts := make([]*genai.Part, 0, 2)
	if file != nil {
		parts = append(parts, genai.NewPartFromURI(file.URI, file.MIMEType))
	}
	parts = append(parts, genai.NewPartFromText(prompt))

	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(b.temperature),
	}

	b.logger.Debug().
		Str("model", model).
		Int("prompt_length", len(prompt)).
		Bool("with_file", file != nil).
		Msg("Generating content with Gemini")

	resp, err := b.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini %s: %w", model, err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("gemini %s: empty response", model)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini %s: empty text in response", model)
	}
	return text, nil
}

// UploadFile stores a document with the Files API
func (b *GeminiBackend) UploadFile(ctx context.Context, r io.Reader, displayName, mimeType string) (*interfaces.FileRef, error) {
	file, err := b.client.Files.Upload(ctx, r, &genai.UploadFileConfig{
		DisplayName: displayName,
		MIMEType:    mimeType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", displayName, err)
	}
	if file == nil {
		return nil, fmt.Errorf("failed to upload %s: empty response", displayName)
	}
	return toFileRef(file), nil
}

// GetFile fetches the current state of an uploaded file
func (b *GeminiBackend) GetFile(ctx context.Context, name string) (*interfaces.FileRef, error) {
	file, err := b.client.Files.Get(ctx, name, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get file %s: %w", name, err)
	}
	if file == nil {
		return nil, fmt.Errorf("failed to get file %s: empty response", name)
	}
	return toFileRef(file), nil
}

// DeleteFile removes an uploaded file
func (b *GeminiBackend) DeleteFile(ctx context.Context, name string) error {
	if _, err := b.client.Files.Delete(ctx, name, nil); err != nil {
		return fmt.Errorf("failed to delete file %s: %w", name, err)
	}
	return nil
}

func toFileRef(file *genai.File) *interfaces.FileRef {
	ref := &interfaces.FileRef{
		Name:     file.Name,
		URI:      file.URI,
		MIMEType: file.MIMEType,
	}
	switch file.State {
	case genai.FileStateActive:
		ref.State = interfaces.FileStateReady
	case genai.FileStateFailed, genai.FileStateUnspecified:
		ref.State = interfaces.FileStateFailed
	default:
		// processing, or omitted by the upload response
		ref.State = interfaces.FileStateProcessing
	}
	return ref
}
