package llm

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"google.golang.org/genai"
)

var (
	// ErrQuotaExceeded marks a model whose usage limit for the current period is spent
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrBackendOverloaded marks a transient capacity failure on the backend
	ErrBackendOverloaded = errors.New("backend overloaded")

	// ErrMalformedResponse is returned when no recovery strategy yields usable data
	ErrMalformedResponse = errors.New("malformed response")

	// ErrAllModelsExhausted is wrapped by *AllModelsExhaustedError
	ErrAllModelsExhausted = errors.New("all models exhausted")

	// ErrModelUnsupported marks a model that cannot serve the request at all
	// (no backend for its provider, or file input on a text-only backend)
	ErrModelUnsupported = errors.New("model unsupported")

	// ErrNoBackend is returned when no generative backend is configured
	ErrNoBackend = errors.New("no generative backend configured")
)

// AllModelsExhaustedError is raised when every model in the fallback chain has failed
type AllModelsExhaustedError struct {
	Models  []string
	LastErr error
}

func (e *AllModelsExhaustedError) Error() string {
	if e.LastErr == nil {
		return fmt.Sprintf("all %d models exhausted", len(e.Models))
	}
	return fmt.Sprintf("all %d models exhausted: %v", len(e.Models), e.LastErr)
}

// Unwrap exposes both the sentinel and the last backend error to errors.Is/As
func (e *AllModelsExhaustedError) Unwrap() []error {
	if e.LastErr == nil {
		return []error{ErrAllModelsExhausted}
	}
	return []error{ErrAllModelsExhausted, e.LastErr}
}

// IsAllModelsExhausted reports whether err is a fallback chain exhaustion
func IsAllModelsExhausted(err error) bool {
	return errors.Is(err, ErrAllModelsExhausted)
}

// IsQuotaExhausted reports whether err is a chain exhaustion whose last failure was a
// quota error. Later calls in the same run cannot succeed, so callers stop issuing them.
func IsQuotaExhausted(err error) bool {
	var exhausted *AllModelsExhaustedError
	if !errors.As(err, &exhausted) {
		return false
	}
	return IsQuotaExceeded(exhausted.LastErr)
}

var quotaMarkers = []string{"429", "quota", "requests per day", "resource exhausted", "resource_exhausted", "rate limit"}

var overloadMarkers = []string{"503", "529", "overloaded", "unavailable"}

// IsQuotaExceeded checks if an error means the model's quota is spent.
// Matches 429 status codes, RESOURCE_EXHAUSTED and quota wording, case-insensitively.
func IsQuotaExceeded(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrQuotaExceeded) {
		return true
	}
	if statusCode(err) == http.StatusTooManyRequests {
		return true
	}
	return containsAny(err.Error(), quotaMarkers)
}

// IsOverloaded checks if an error is a transient capacity failure worth retrying on the same model
func IsOverloaded(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBackendOverloaded) {
		return true
	}
	switch statusCode(err) {
	case http.StatusServiceUnavailable, 529:
		return true
	}
	return containsAny(err.Error(), overloadMarkers)
}

// statusCode extracts the HTTP status from a provider SDK error, or 0
func statusCode(err error) int {
	var geminiErr genai.APIError
	if errors.As(err, &geminiErr) {
		return geminiErr.Code
	}
	var geminiErrPtr *genai.APIError
	if errors.As(err, &geminiErrPtr) && geminiErrPtr != nil {
		return geminiErrPtr.Code
	}
	var claudeErr *anthropic.Error
	if errors.As(err, &claudeErr) && claudeErr != nil {
		return claudeErr.StatusCode
	}
	return 0
}

func containsAny(s string, markers []string) bool {
	s = strings.ToLower(s)
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// retryDelayRegex matches "Please retry in Xs" or "retryDelay:Xs" patterns
var retryDelayRegex = regexp.MustCompile(`(?i)(?:retry in |retryDelay[:\s"]+)(\d+(?:\.\d+)?)\s*s`)

// ExtractRetryDelay parses the API-suggested retry delay from a backend error.
// Returns 0 if no delay is found in the error message.
//
// Example error message:
// "Error 503, Message: The model is overloaded. Please retry in 4.5s., Status: UNAVAILABLE"
func ExtractRetryDelay(err error) time.Duration {
	if err == nil {
		return 0
	}

	matches := retryDelayRegex.FindStringSubmatch(err.Error())
	if len(matches) < 2 {
		return 0
	}

	seconds, parseErr := strconv.ParseFloat(matches[1], 64)
	if parseErr != nil {
		return 0
	}

	return time.Duration(seconds * float64(time.Second))
}
