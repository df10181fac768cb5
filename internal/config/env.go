package config

import (
	"os"
	"strconv"
)

// Environment variable names recognized as overrides.
const (
	EnvStepDuration      = "STEP_DURATION"
	EnvDatabaseProvider  = "DATABASE_PROVIDER"
	EnvLLMProvider       = "LLM_PROVIDER"
	EnvLLMAPIKey         = "LLM_API_KEY"
	EnvLLMModel          = "LLM_MODEL"
	EnvLLMBaseURL        = "LLM_BASE_URL"
	EnvEmbeddingProvider = "EMBEDDING_PROVIDER"
	EnvGenAIAPIKey       = "GENAI_API_KEY"
	EnvChatEnabled       = "CHAT_ENABLED"
	EnvChatWebhookBase   = "CHAT_WEBHOOK_BASE"
	EnvSpeedMultiplier   = "WORLD_SPEED_MULTIPLIER"
	EnvDebugMode         = "SMALLTOWN_DEBUG"
)

// applyEnvOverrides layers environment variables over file/default values.
// Unset or malformed variables leave the existing value untouched.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(EnvStepDuration); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.World.StepDurationSeconds = n
		}
	}
	if v := os.Getenv(EnvSpeedMultiplier); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.World.SpeedMultiplier = f
		}
	}
	if v := os.Getenv(EnvDatabaseProvider); v != "" {
		c.Store.Provider = v
	}
	if v := os.Getenv(EnvLLMProvider); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv(EnvLLMAPIKey); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(EnvLLMModel); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv(EnvLLMBaseURL); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv(EnvEmbeddingProvider); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv(EnvGenAIAPIKey); v != "" {
		c.Embedding.GenAIAPIKey = v
		if c.LLM.Provider == "gemini" && c.LLM.APIKey == "" {
			c.LLM.APIKey = v
		}
	}
	if v := os.Getenv(EnvChatEnabled); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Chat.Enabled = b
		}
	}
	if v := os.Getenv(EnvChatWebhookBase); v != "" {
		c.Chat.WebhookBase = v
	}
	if v := os.Getenv(EnvDebugMode); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.DebugMode = b
		}
	}
}
