package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"smalltown/internal/config"
	"smalltown/internal/logging"
)

// WebhookGateway posts outbound messages to <base>/<channel-id> and accepts
// inbound human messages on a local HTTP listener.
type WebhookGateway struct {
	base    string
	client  *http.Client
	server  *http.Server
	inbound chan InboundMessage
}

// NewWebhookGateway starts the inbound listener and returns the gateway.
func NewWebhookGateway(cfg config.ChatConfig) (*WebhookGateway, error) {
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil || timeout <= 0 {
		timeout = 30 * time.Second
	}
	if cfg.WebhookBase == "" {
		return nil, fmt.Errorf("chat enabled but webhook_base is empty")
	}

	g := &WebhookGateway{
		base:    cfg.WebhookBase,
		client:  &http.Client{Timeout: timeout},
		inbound: make(chan InboundMessage, 64),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/inbound", g.handleInbound)
	g.server = &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.ListenAddr, err)
	}
	go func() {
		if err := g.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			logging.Get(logging.CategoryChat).Error("Inbound listener failed: %v", err)
		}
	}()
	logging.Chat("Chat gateway listening on %s", cfg.ListenAddr)
	return g, nil
}

func (g *WebhookGateway) handleInbound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var msg InboundMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "bad JSON", http.StatusBadRequest)
		return
	}
	if msg.ChannelID == "" || msg.Text == "" {
		http.Error(w, "channel_id and text required", http.StatusBadRequest)
		return
	}

	select {
	case g.inbound <- msg:
		w.WriteHeader(http.StatusAccepted)
	default:
		// Backpressure: the scheduler drains once per step.
		http.Error(w, "inbound queue full", http.StatusServiceUnavailable)
	}
}

// Send posts the text to the channel's webhook.
func (g *WebhookGateway) Send(ctx context.Context, channelID, token, text string) error {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/%s", g.base, channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook send failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook send failed: status %d", resp.StatusCode)
	}
	logging.ChatDebug("Sent %d bytes to channel %s", len(text), channelID)
	return nil
}

// Inbound returns the stream of human messages.
func (g *WebhookGateway) Inbound() <-chan InboundMessage {
	return g.inbound
}

// Close stops the inbound listener.
func (g *WebhookGateway) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.server.Shutdown(ctx)
}
