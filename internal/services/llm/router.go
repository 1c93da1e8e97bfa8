package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/examforge/internal/interfaces"
)

// ProviderType represents the AI provider type
type ProviderType string

const (
	// ProviderGemini uses Google Gemini API
	ProviderGemini ProviderType = "gemini"
	// ProviderClaude uses Anthropic Claude API
	ProviderClaude ProviderType = "claude"
)

// Router dispatches each model in the fallback chain to the backend of its provider
type Router struct {
	backends        map[ProviderType]interfaces.GenerativeBackend
	defaultProvider ProviderType
	logger          arbor.ILogger
}

// NewRouter creates a router with no backends registered
func NewRouter(defaultProvider ProviderType, logger arbor.ILogger) *Router {
	if defaultProvider == "" {
		defaultProvider = ProviderGemini
	}
	return &Router{
		backends:        make(map[ProviderType]interfaces.GenerativeBackend),
		defaultProvider: defaultProvider,
		logger:          logger,
	}
}

// Register adds or replaces the backend for a provider
func (r *Router) Register(provider ProviderType, backend interfaces.GenerativeBackend) {
	if backend == nil {
		return
	}
	r.backends[provider] = backend
}

// HasBackends reports whether any provider is registered
func (r *Router) HasBackends() bool {
	return len(r.backends) > 0
}

// DetectProvider determines the provider type from a model string.
// Model strings can be:
// - "claude-sonnet-4-20250514" -> Claude
// - "claude/claude-sonnet-4-20250514" -> Claude (with prefix)
// - "gemini-2.5-pro" -> Gemini
// - "gemini/gemini-2.5-pro" -> Gemini (with prefix)
// - anything else -> default provider
func (r *Router) DetectProvider(model string) ProviderType {
	model = strings.ToLower(model)

	if strings.HasPrefix(model, "claude/") || strings.HasPrefix(model, "anthropic/") {
		return ProviderClaude
	}
	if strings.HasPrefix(model, "gemini/") || strings.HasPrefix(model, "google/") {
		return ProviderGemini
	}

	if strings.HasPrefix(model, "claude-") {
		return ProviderClaude
	}
	if strings.HasPrefix(model, "gemini-") {
		return ProviderGemini
	}

	return r.defaultProvider
}

// NormalizeModel removes provider prefix from model name if present
func NormalizeModel(model string) string {
	prefixes := []string{"claude/", "anthropic/", "gemini/", "google/"}
	for _, prefix := range prefixes {
		if strings.HasPrefix(strings.ToLower(model), prefix) {
			return model[len(prefix):]
		}
	}
	return model
}

// GenerateContent routes the call to the provider backend for model
func (r *Router) GenerateContent(ctx context.Context, model, prompt string, file *interfaces.FileRef) (string, error) {
	provider := r.DetectProvider(model)
	backend, ok := r.backends[provider]
	if !ok {
		return "", fmt.Errorf("no %s backend for model %s: %w", provider, model, ErrModelUnsupported)
	}
	return backend.GenerateContent(ctx, NormalizeModel(model), prompt, file)
}
