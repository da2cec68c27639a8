package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Response struct {
	Content  string         `json:"content"`
	Model    string         `json:"model"`
	Provider string         `json:"provider"`
	Usage    *Usage         `json:"usage,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Options overrides the adapter's configured defaults for a single call.
// Zero values leave the configured value in place.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature *float64
}

// Config is the per-provider configuration an adapter is constructed from.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

type Provider interface {
	Name() string
	Model() string
	Generate(ctx context.Context, messages []Message, opts Options) (*Response, error)
}

// ProviderError is returned by adapters for any failed attempt: transport,
// non-200 status, undecodable body or an empty reply.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure looks transient. Transport errors
// (no status) are transient unless the caller's context was cancelled.
func (e *ProviderError) Retryable() bool {
	switch {
	case errors.Is(e.Err, context.Canceled):
		return false
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	}
	return false
}

// IsRetryable classifies err for a transient-only retry policy. Errors that
// are not ProviderErrors are treated as retryable.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return true
}

func NewError(provider string, statusCode int, err error) *ProviderError {
	return &ProviderError{Provider: provider, StatusCode: statusCode, Err: err}
}

// ResolveOptions merges per-call options over the adapter config.
func ResolveOptions(cfg Config, opts Options) (model string, maxTokens int, temperature float64) {
	model = cfg.Model
	if opts.Model != "" {
		model = opts.Model
	}
	maxTokens = cfg.MaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}
	temperature = cfg.Temperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	return model, maxTokens, temperature
}

// NewHTTPClient returns the client an adapter owns for its lifetime.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
