// Package chat is the surface between the world and human chat channels:
// outbound agent speech goes to a webhook, inbound human messages come back
// through a small HTTP listener and are drained into bus events by the
// scheduler.
package chat

import (
	"context"

	"smalltown/internal/config"
)

// InboundMessage is one human message entering the world.
type InboundMessage struct {
	// ChannelID names the channel the message arrived on.
	ChannelID string `json:"channel_id"`

	// Sender is the human's display name.
	Sender string `json:"sender"`

	Text string `json:"text"`

	// CorrelationID, when set, ties the message to a pending human-handoff
	// request and routes it back to the suspended plan.
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Gateway sends agent speech to channels and surfaces human replies.
type Gateway interface {
	// Send posts text to the channel on behalf of the agent holding token.
	Send(ctx context.Context, channelID, token, text string) error

	// Inbound is the stream of human messages. The channel is never
	// closed while the gateway is running.
	Inbound() <-chan InboundMessage
}

// New creates a gateway from configuration: the webhook implementation when
// enabled, otherwise the no-op.
func New(cfg config.ChatConfig) (Gateway, error) {
	if !cfg.Enabled {
		return Disabled{}, nil
	}
	return NewWebhookGateway(cfg)
}
