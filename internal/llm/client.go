// Package llm provides chat-completion clients for the cognition layer.
// Providers: Gemini (genai SDK) and any OpenAI-compatible HTTP endpoint.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"smalltown/internal/config"
)

// Sentinel errors surfaced to callers.
var (
	// ErrBudgetExhausted is returned when a call would exceed the per-user
	// daily token budget. The step treats it as retryable.
	ErrBudgetExhausted = errors.New("llm: daily token budget exhausted")

	// ErrEmptyCompletion is returned when the provider responds with no
	// candidates.
	ErrEmptyCompletion = errors.New("llm: empty completion")
)

// Role tags a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged message in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a chat-completion request.
type Request struct {
	Messages    []Message
	Temperature float64
	Stop        []string
	MaxTokens   int

	// User attributes the call for budget accounting. Empty means the
	// shared default bucket.
	User string
}

// Client is a chat-completion endpoint.
type Client interface {
	// Complete sends the request and returns the text completion.
	Complete(ctx context.Context, req Request) (string, error)
}

// NewClient creates a provider client from configuration, wrapped with the
// per-call timeout and, when a daily budget is configured, the accountant.
func NewClient(cfg config.LLMConfig) (Client, error) {
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil || timeout <= 0 {
		timeout = 3600 * time.Second
	}

	var client Client
	switch cfg.Provider {
	case "gemini":
		client, err = NewGeminiClient(cfg.APIKey, cfg.Model, timeout)
	case "openai":
		client = NewOpenAIClient(OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Timeout:    timeout,
			MaxRetries: cfg.MaxRetries,
		})
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s (use 'gemini' or 'openai')", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.DailyTokenBudget > 0 {
		client = WithBudget(client, NewAccountant(cfg.DailyTokenBudget))
	}
	return client, nil
}
