package config

// ChatConfig configures the chat-surface gateway.
type ChatConfig struct {
	// Enabled turns the chat surface on. When false the gateway is a no-op
	// and channel-bound locations behave like unbound ones.
	Enabled bool `yaml:"enabled"`

	// WebhookBase is the base URL messages are POSTed to, one path segment
	// per channel id.
	WebhookBase string `yaml:"webhook_base"`

	// ListenAddr is where the gateway accepts inbound human messages.
	ListenAddr string `yaml:"listen_addr"`

	// Timeout is the per-send deadline.
	Timeout string `yaml:"timeout"`
}

// DefaultChatConfig returns defaults for the chat surface.
func DefaultChatConfig() ChatConfig {
	return ChatConfig{
		Enabled:    false,
		ListenAddr: "127.0.0.1:8490",
		Timeout:    "30s",
	}
}
