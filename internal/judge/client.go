// Package judge provides clients for the external semantic-judgment service.
// Clients are single-attempt by design: the retry/backoff policy for
// transient failures lives in the matcher, which owns the degradation to
// indeterminate results.
package judge

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable marks a transient judge-service failure (network error,
// rate limit, server error). Callers may retry; anything not wrapped in it
// is a permanent failure for the attempt.
var ErrUnavailable = errors.New("judge service unavailable")

// LLMClient is the minimal interface the matcher uses to consult the judge.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Config selects and configures a judge backend.
type Config struct {
	Provider string // anthropic, gemini
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
}

// NewClient builds the configured judge client.
func NewClient(ctx context.Context, cfg Config) (LLMClient, error) {
	switch cfg.Provider {
	case "", "anthropic":
		return NewAnthropicClient(AnthropicConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
		}), nil
	case "gemini":
		return NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
	}
	return nil, fmt.Errorf("unknown judge provider %q", cfg.Provider)
}
