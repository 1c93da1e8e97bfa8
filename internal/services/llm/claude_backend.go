package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/examforge/internal/interfaces"
)

// ClaudeBackend implements interfaces.GenerativeBackend on the Anthropic Messages API.
// It is text only: uploaded files belong to the Gemini Files API.
type ClaudeBackend struct {
	client      anthropic.Client
	maxTokens   int
	temperature float32
	logger      arbor.ILogger
}

// NewClaudeBackend creates a Claude client for the given API key
func NewClaudeBackend(apiKey string, maxTokens int, temperature float32, logger arbor.ILogger) (*ClaudeBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is empty")
	}
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	return &ClaudeBackend{
		client:      anthropic.NewClient(option.WithAPIKey(apiKey)),
		maxTokens:   maxTokens,
		temperature: temperature,
		logger:      logger,
	}, nil
}

// GenerateContent runs a single Messages API call
func (b *ClaudeBackend) GenerateContent(ctx context.Context, model, prompt string, file *interfaces.FileRef) (string, error) {
	if file != nil {
		return "", fmt.Errorf("claude %s: file input: %w", model, ErrModelUnsupported)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(b.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if b.temperature > 0 {
		params.Temperature = anthropic.Float(float64(b.temperature))
	}

	b.logger.Debug().
		Str("model", model).
		Int("prompt_length", len(prompt)).
		Msg("Generating content with Claude")

	resp, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude %s: %w", model, err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("claude %s: empty response", model)
	}
	return text.String(), nil
}
