package config

// LLMConfig configures the chat-completion endpoint.
type LLMConfig struct {
	// Provider: "gemini" or "openai" (any OpenAI-compatible endpoint).
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`

	// Timeout is the per-call deadline.
	Timeout string `yaml:"timeout"`

	// MaxRetries bounds transient-failure retries (429, 5xx).
	MaxRetries int `yaml:"max_retries"`

	// DailyTokenBudget caps estimated tokens per user key per day.
	// Zero disables budget accounting.
	DailyTokenBudget int `yaml:"daily_token_budget"`
}

// DefaultLLMConfig returns defaults for the LLM endpoint.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:         "gemini",
		Model:            "gemini-2.0-flash",
		Timeout:          "3600s",
		MaxRetries:       3,
		DailyTokenBudget: 0,
	}
}
