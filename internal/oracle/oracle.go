// Package oracle provides the LLM completion client used by the memory
// consolidation pipeline for summarization, gating, and merging.
//
// The Client interface is intentionally minimal: one stateless
// instruction+input completion call. Implementations handle rate limiting,
// bounded retries with jittered exponential backoff, and response
// validation internally, so callers only decide how to degrade when a call
// ultimately fails.
//
// Two API dialects are supported: Anthropic's Messages API and
// OpenAI-compatible chat completions (which also covers local inference
// servers exposing the OpenAI surface).
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/memoryd/internal/config"
)

// Sentinel errors for oracle operations.
var (
	// ErrUnavailable indicates a transient failure that persisted through
	// the full retry budget. Callers degrade per their own policy.
	ErrUnavailable = errors.New("oracle unavailable")

	// ErrMalformedResponse indicates the oracle returned an empty or
	// unusable response. Treated as transient for retry purposes.
	ErrMalformedResponse = errors.New("malformed oracle response")

	// ErrNotConfigured indicates no API key was provided.
	ErrNotConfigured = errors.New("oracle not configured")
)

// Client generates a completion for an instruction applied to input text.
//
// Implementations must validate responses (non-empty after trimming) and
// must return an error wrapping ErrUnavailable once the retry budget is
// exhausted. Responses are returned verbatim otherwise.
type Client interface {
	Complete(ctx context.Context, instruction, input string) (string, error)
}

// Default configuration values.
const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultOpenAIBaseURL    = "https://api.openai.com"
	defaultAnthropicModel   = "claude-3-5-sonnet-20241022"
	defaultOpenAIModel      = "gpt-4o-mini"
	defaultMaxTokens        = 4096
	defaultTimeout          = 60 * time.Second
	defaultMaxRetries       = 3
	defaultBaseBackoff      = 1 * time.Second

	// completionTemperature is deliberately low for consistent, factual
	// summarization and classification output.
	completionTemperature = 0.3
)

// Rate limiter defaults: burst of a few requests, sustained rate from config.
const (
	defaultBurst             = 5
	defaultRequestsPerMinute = 50.0
)

// New creates an oracle client for the configured provider.
func New(cfg config.OracleConfig) (Client, error) {
	if !cfg.APIKey.IsSet() {
		return nil, ErrNotConfigured
	}

	switch cfg.Provider {
	case "anthropic":
		return newAnthropicClient(cfg), nil
	case "openai":
		return newOpenAIClient(cfg), nil
	default:
		return nil, fmt.Errorf("unknown oracle provider %q", cfg.Provider)
	}
}

// validateResponse trims and checks a completion before it is accepted.
func validateResponse(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", &retryableError{err: ErrMalformedResponse}
	}
	return trimmed, nil
}

// ctxOrBackoff sleeps for the backoff duration unless the context ends first.
func ctxOrBackoff(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
