package llm

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"time"
)

// Provider is the unified interface for LLM completions.
// It abstracts the differences between the Gemini, OpenAI and Claude APIs.
type Provider interface {
	// Complete sends the conversation to the model and returns its reply.
	Complete(ctx context.Context, req Request) (Response, error)

	// Name returns the provider name (e.g. "gemini", "openai").
	Name() string
}

// ProviderType identifies the provider backend.
type ProviderType string

const (
	// ProviderGemini uses the Gemini API (Google AI).
	ProviderGemini ProviderType = "gemini"

	// ProviderOpenAI uses OpenAI-compatible APIs (OpenAI, OpenRouter, DeepSeek, etc.).
	ProviderOpenAI ProviderType = "openai"

	// ProviderClaude uses the Claude API through agent-core-go.
	ProviderClaude ProviderType = "claude"
)

// ProviderConfig contains configuration for creating a provider.
type ProviderConfig struct {
	// Type specifies which provider to use.
	Type ProviderType

	// BaseURL is the API base URL.
	BaseURL string

	// APIKey is the API authentication key.
	APIKey string

	// Model is the model identifier.
	Model string

	// MaxTokens limits the response token count.
	MaxTokens int

	// TimeoutSeconds is the request timeout in seconds.
	TimeoutSeconds int

	// MaxAttempts is the maximum retry count.
	MaxAttempts int
}

// NewProvider creates a provider based on the configuration. The backend is
// fixed here; callers hold only the Provider interface afterwards.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Type {
	case ProviderGemini:
		return NewGeminiProvider(cfg), nil
	case ProviderOpenAI, "":
		// OpenAI-compatible endpoints are the default backend
		return NewOpenAIProvider(cfg), nil
	case ProviderClaude:
		return NewClaudeProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown LLM provider type: %s", cfg.Type)
	}
}

// ProviderError reports a failed provider call after retries are exhausted.
type ProviderError struct {
	// Provider is the provider name.
	Provider string

	// Status is the last HTTP status, zero when the failure never reached the API.
	Status int

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s provider: status %d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s provider: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

const (
	defaultMaxAttempts = 5
	defaultBackoffSec  = 2
	defaultMaxTokens   = 4096
	defaultTimeout     = 5 * time.Minute
)

// defaultBackoff grows exponentially from the base with +/-50% jitter.
func defaultBackoff(attempt int) time.Duration {
	base := float64(defaultBackoffSec) * float64(time.Second)
	factor := math.Pow(2, float64(attempt-1))
	jitter := 0.5 + rand.Float64()
	return time.Duration(base * factor * jitter)
}

// shouldRetry reports whether a failed attempt is worth repeating.
func shouldRetry(status int, err error) bool {
	if err != nil {
		return true
	}
	if status == http.StatusTooManyRequests || status == http.StatusRequestTimeout {
		return true
	}
	return status >= 500
}

// splitSystem folds system-role messages into the system prompt and returns
// the remaining conversation.
func splitSystem(req Request) (string, []Message) {
	system := req.System
	messages := make([]Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if msg.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
			continue
		}
		messages = append(messages, msg)
	}
	return system, messages
}

func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
