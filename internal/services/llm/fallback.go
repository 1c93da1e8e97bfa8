package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/examforge/internal/interfaces"
	"github.com/ternarybob/examforge/internal/models"
	"golang.org/x/time/rate"
)

// DefaultMaxRetries is the number of attempts made against each model
const DefaultMaxRetries = 3

// FallbackState is the ordered model list and the cursor into it.
// The cursor only moves forward.
type FallbackState struct {
	models []string
	index  int
}

// NewFallbackState creates a state positioned on the first (most capable) model
func NewFallbackState(modelList []string) *FallbackState {
	m := make([]string, len(modelList))
	copy(m, modelList)
	return &FallbackState{models: m}
}

// Current returns the active model name, or "" when the list is empty
func (s *FallbackState) Current() string {
	if s.index >= len(s.models) {
		return ""
	}
	return s.models[s.index]
}

// Index returns the cursor position
func (s *FallbackState) Index() int {
	return s.index
}

// moveTo sets the cursor, ignoring any attempt to move it back
func (s *FallbackState) moveTo(idx int) {
	if idx > s.index && idx < len(s.models) {
		s.index = idx
	}
}

// Status returns a read-only view of the cursor
func (s *FallbackState) Status() models.FallbackStatus {
	status := models.FallbackStatus{
		CurrentModel:      s.Current(),
		CurrentModelIndex: s.index,
		TotalModels:       len(s.models),
		AvailableModels:   []string{},
	}
	if s.index+1 < len(s.models) {
		status.AvailableModels = append(status.AvailableModels, s.models[s.index+1:]...)
	}
	status.RemainingModels = len(status.AvailableModels)
	return status
}

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext waits for d or until ctx is done
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// FallbackOption configures a FallbackClient
type FallbackOption func(*FallbackClient)

// WithMaxRetries sets the attempts made against each model
func WithMaxRetries(n int) FallbackOption {
	return func(c *FallbackClient) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

// WithSleeper replaces the backoff sleep, used by tests to record delays
func WithSleeper(s Sleeper) FallbackOption {
	return func(c *FallbackClient) {
		if s != nil {
			c.sleep = s
		}
	}
}

// WithMinInterval paces backend calls to at most one per interval (0 disables pacing)
func WithMinInterval(interval time.Duration) FallbackOption {
	return func(c *FallbackClient) {
		if interval > 0 {
			c.limiter = rate.NewLimiter(rate.Every(interval), 1)
		}
	}
}

// FallbackClient sends prompts down an ordered model chain, retrying transient
// failures on the same model and advancing past models whose quota is spent.
// A client owns its cursor; calls are serialized.
type FallbackClient struct {
	backend    interfaces.GenerativeBackend
	state      *FallbackState
	maxRetries int
	limiter    *rate.Limiter
	sleep      Sleeper
	logger     arbor.ILogger
	mu         sync.Mutex
}

// NewFallbackClient creates a client over backend with the given model chain
func NewFallbackClient(backend interfaces.GenerativeBackend, modelList []string, logger arbor.ILogger, opts ...FallbackOption) *FallbackClient {
	c := &FallbackClient{
		backend:    backend,
		state:      NewFallbackState(modelList),
		maxRetries: DefaultMaxRetries,
		limiter:    rate.NewLimiter(rate.Inf, 1),
		sleep:      SleepContext,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Extract sends a text prompt and returns the raw response text
func (c *FallbackClient) Extract(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, prompt, nil)
}

// ExtractWithFile sends a prompt against a previously uploaded file
func (c *FallbackClient) ExtractWithFile(ctx context.Context, prompt string, file *interfaces.FileRef) (string, error) {
	if file == nil {
		return "", fmt.Errorf("extract with file: nil file reference")
	}
	return c.generate(ctx, prompt, file)
}

// Status returns the cursor view. It has no effect on control flow.
func (c *FallbackClient) Status() models.FallbackStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Status()
}

func (c *FallbackClient) generate(ctx context.Context, prompt string, file *interfaces.FileRef) (string, error) {
	if c.backend == nil {
		return "", ErrNoBackend
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.state.models) == 0 {
		return "", &AllModelsExhaustedError{LastErr: fmt.Errorf("model list is empty")}
	}

	var lastErr error
	for idx := c.state.index; idx < len(c.state.models); idx++ {
		c.state.moveTo(idx)
		model := c.state.Current()

		for attempt := 1; attempt <= c.maxRetries; attempt++ {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", fmt.Errorf("waiting for rate limiter: %w", err)
			}

			response, err := c.backend.GenerateContent(ctx, model, prompt, file)
			if err == nil {
				if attempt > 1 || idx > 0 {
					c.logger.Debug().
						Str("model", model).
						Int("attempt", attempt).
						Msg("Generation succeeded after retry")
				}
				return response, nil
			}
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = err

			if IsQuotaExceeded(err) || errors.Is(err, ErrModelUnsupported) {
				c.logger.Warn().
					Str("model", model).
					Int("model_index", idx).
					Err(err).
					Msg("Model unavailable, advancing to next model")
				break
			}

			if attempt == c.maxRetries {
				c.logger.Warn().
					Str("model", model).
					Int("attempts", attempt).
					Err(err).
					Msg("Retries exhausted on model")
				break
			}

			delay := backoff(err, attempt)
			c.logger.Warn().
				Str("model", model).
				Int("attempt", attempt).
				Dur("backoff", delay).
				Err(err).
				Msg("Retrying generation")

			if err := c.sleep(ctx, delay); err != nil {
				return "", err
			}
		}
	}

	c.logger.Error().
		Int("models", len(c.state.models)).
		Err(lastErr).
		Msg("All models in fallback chain exhausted")

	return "", &AllModelsExhaustedError{Models: append([]string(nil), c.state.models...), LastErr: lastErr}
}

// backoff returns 2^attempt seconds for overload errors and attempt seconds otherwise.
// A longer server-suggested delay takes precedence.
func backoff(err error, attempt int) time.Duration {
	var delay time.Duration
	if IsOverloaded(err) {
		delay = time.Duration(math.Pow(2, float64(attempt))) * time.Second
	} else {
		delay = time.Duration(attempt) * time.Second
	}
	if hint := ExtractRetryDelay(err); hint > delay {
		delay = hint
	}
	return delay
}
