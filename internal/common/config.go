package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	Logging     LoggingConfig    `toml:"logging"`
	Gemini      GeminiConfig     `toml:"gemini"`
	Claude      ClaudeConfig     `toml:"claude"`
	LLM         LLMConfig        `toml:"llm"`
	OCR         OCRConfig        `toml:"ocr"`
	Extraction  ExtractionConfig `toml:"extraction"`
}

// LoggingConfig controls the arbor file and console writers
type LoggingConfig struct {
	Level      string   `toml:"level" validate:"oneof=debug info warn error"`     // "debug", "info", "warn", "error"
	Output     []string `toml:"output" validate:"dive,oneof=file stdout console"` // "file", "stdout"
	TimeFormat string   `toml:"time_format"`                                      // Time format for logs (default: "15:04:05")
	Directory  string   `toml:"directory"`                                        // Log directory (default: "logs" next to the executable)
	FileName   string   `toml:"file_name"`                                        // Log file name (default: "examforge.log")
	MaxSizeMB  int      `toml:"max_size_mb" validate:"gte=1"`                     // Rotate the log file at this size
	MaxBackups int      `toml:"max_backups" validate:"gte=0"`                     // Rotated files kept
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`     // Google Gemini API key
	RateLimit   string  `toml:"rate_limit"`  // Minimum spacing between calls as duration string ("0s" disables pacing)
	Temperature float32 `toml:"temperature"` // Generation temperature (default: 0.2)
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`     // Anthropic API key
	MaxTokens   int     `toml:"max_tokens"`  // Maximum tokens in response (default: 8192)
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.2)
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
)

// LLMConfig contains the model fallback chain shared by every generative call
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider" validate:"oneof=gemini claude"`
	Models          []string    `toml:"models" validate:"min=1,dive,required"` // Ordered most capable first
	MaxRetries      int         `toml:"max_retries" validate:"gte=1,lte=10"`   // Attempts per model before advancing
}

// OCRConfig contains the Tesseract adapter settings
type OCRConfig struct {
	Enabled   bool     `toml:"enabled"`
	Languages []string `toml:"languages"`                    // Tesseract language codes, e.g. ["eng", "spa"]
	MinWidth  int      `toml:"min_width" validate:"gte=0"` // Renders narrower than this are upscaled before OCR
}

// ExtractionConfig contains the document pipeline timings and thresholds
type ExtractionConfig struct {
	RenderScale   float64 `toml:"render_scale" validate:"gt=0,lte=8"` // Raster scale factor (1.0 = 72 DPI)
	PollInterval  string  `toml:"poll_interval"`                      // Upload status poll interval (default: "2s")
	DirectTimeout string  `toml:"direct_timeout"`                     // Whole-document generation deadline (default: "120s")
	MaxPolls      int     `toml:"max_polls" validate:"gte=1"`         // Upload status checks before giving up (default: 150)
	EnhancePause  string  `toml:"enhance_pause"`                      // Pause after each enhanced question (default: "500ms")
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"file"}, // stdout carries the extracted questions
			TimeFormat: "15:04:05",
			FileName:   "examforge.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
		Gemini: GeminiConfig{
			APIKey:      "",
			RateLimit:   "0s",
			Temperature: 0.2,
		},
		Claude: ClaudeConfig{
			APIKey:      "",
			MaxTokens:   8192,
			Temperature: 0.2,
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderGemini,
			Models: []string{
				"gemini-2.5-pro",
				"gemini-2.5-flash",
				"gemini-2.0-flash",
				"gemini-2.0-flash-lite",
			},
			MaxRetries: 3,
		},
		OCR: OCRConfig{
			Enabled:   true,
			Languages: []string{"eng", "spa"},
			MinWidth:  1200,
		},
		Extraction: ExtractionConfig{
			RenderScale:   2.0,
			PollInterval:  "2s",
			DirectTimeout: "120s",
			MaxPolls:      150,
			EnhancePause:  "500ms",
		},
	}
}

// LoadFromFiles loads configuration with priority: default -> file1 -> file2 -> ... -> env.
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := Validate().Struct(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("EXAMFORGE_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Logging configuration
	if level := os.Getenv("EXAMFORGE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("EXAMFORGE_LOG_OUTPUT"); output != "" {
		if outputs := splitList(output); len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	if dir := os.Getenv("EXAMFORGE_LOG_DIR"); dir != "" {
		config.Logging.Directory = dir
	}

	// Gemini configuration
	if apiKey := os.Getenv("EXAMFORGE_GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if rateLimit := os.Getenv("EXAMFORGE_GEMINI_RATE_LIMIT"); rateLimit != "" {
		config.Gemini.RateLimit = rateLimit
	}
	if temperature := os.Getenv("EXAMFORGE_GEMINI_TEMPERATURE"); temperature != "" {
		if t, err := strconv.ParseFloat(temperature, 32); err == nil {
			config.Gemini.Temperature = float32(t)
		}
	}

	// Claude configuration
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if apiKey := os.Getenv("EXAMFORGE_CLAUDE_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey // EXAMFORGE_ prefix takes priority
	}
	if maxTokens := os.Getenv("EXAMFORGE_CLAUDE_MAX_TOKENS"); maxTokens != "" {
		if mt, err := strconv.Atoi(maxTokens); err == nil {
			config.Claude.MaxTokens = mt
		}
	}

	// Model chain
	if provider := os.Getenv("EXAMFORGE_LLM_DEFAULT_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(provider)
	}
	if models := os.Getenv("EXAMFORGE_LLM_MODELS"); models != "" {
		if list := splitList(models); len(list) > 0 {
			config.LLM.Models = list
		}
	}
	if maxRetries := os.Getenv("EXAMFORGE_LLM_MAX_RETRIES"); maxRetries != "" {
		if mr, err := strconv.Atoi(maxRetries); err == nil {
			config.LLM.MaxRetries = mr
		}
	}

	// OCR configuration
	if enabled := os.Getenv("EXAMFORGE_OCR_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.OCR.Enabled = e
		}
	}
	if languages := os.Getenv("EXAMFORGE_OCR_LANGUAGES"); languages != "" {
		if list := splitList(languages); len(list) > 0 {
			config.OCR.Languages = list
		}
	}

	// Extraction configuration
	if scale := os.Getenv("EXAMFORGE_RENDER_SCALE"); scale != "" {
		if s, err := strconv.ParseFloat(scale, 64); err == nil {
			config.Extraction.RenderScale = s
		}
	}
	if timeout := os.Getenv("EXAMFORGE_DIRECT_TIMEOUT"); timeout != "" {
		config.Extraction.DirectTimeout = timeout
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, apiKey string, models []string) {
	if apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if len(models) > 0 {
		config.LLM.Models = models
	}
}

// ResolveAPIKey resolves an API key by name with environment variable priority.
// Resolution order: environment variables → config fallback → error
func ResolveAPIKey(name string, configFallback string) (string, error) {
	keyToEnvMapping := map[string][]string{
		"gemini_api_key":    {"EXAMFORGE_GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"},
		"anthropic_api_key": {"EXAMFORGE_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
	}

	if envVarNames, ok := keyToEnvMapping[name]; ok {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment or config", name)
}

// ParseDurationOr parses a duration string, returning def when the value is empty or invalid
func ParseDurationOr(value string, def time.Duration) time.Duration {
	if strings.TrimSpace(value) == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return def
	}
	return d
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// HasGenerativeBackend reports whether any model provider has credentials available
func (c *Config) HasGenerativeBackend() bool {
	if _, err := ResolveAPIKey("gemini_api_key", c.Gemini.APIKey); err == nil {
		return true
	}
	if _, err := ResolveAPIKey("anthropic_api_key", c.Claude.APIKey); err == nil {
		return true
	}
	return false
}

func splitList(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
