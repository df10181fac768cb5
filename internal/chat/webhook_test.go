package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"smalltown/internal/config"
)

func TestWebhookSend(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody []byte
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	g, err := NewWebhookGateway(config.ChatConfig{
		Enabled:     true,
		WebhookBase: upstream.URL,
		ListenAddr:  "127.0.0.1:0",
		Timeout:     "5s",
	})
	if err != nil {
		t.Fatalf("NewWebhookGateway: %v", err)
	}
	defer g.Close()

	if err := g.Send(context.Background(), "chan-1", "tok", "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotPath != "/chan-1" {
		t.Errorf("path = %q, want /chan-1", gotPath)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("auth = %q", gotAuth)
	}
	var payload map[string]string
	if err := json.Unmarshal(gotBody, &payload); err != nil || payload["text"] != "hello" {
		t.Errorf("body = %s", gotBody)
	}
}

func TestWebhookInbound(t *testing.T) {
	g, err := NewWebhookGateway(config.ChatConfig{
		Enabled:     true,
		WebhookBase: "http://localhost:1",
		ListenAddr:  "127.0.0.1:0",
		Timeout:     "5s",
	})
	if err != nil {
		t.Fatalf("NewWebhookGateway: %v", err)
	}
	defer g.Close()

	msg := InboundMessage{ChannelID: "chan-1", Sender: "pat", Text: "hi", CorrelationID: "c-1"}
	body, _ := json.Marshal(msg)
	req := httptest.NewRequest(http.MethodPost, "/inbound", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	g.handleInbound(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}

	select {
	case got := <-g.Inbound():
		if got != msg {
			t.Errorf("inbound = %+v, want %+v", got, msg)
		}
	case <-time.After(time.Second):
		t.Fatal("no inbound message delivered")
	}

	// Missing fields are rejected.
	req = httptest.NewRequest(http.MethodPost, "/inbound", bytes.NewReader([]byte(`{"sender":"x"}`)))
	rec = httptest.NewRecorder()
	g.handleInbound(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestDisabledGateway(t *testing.T) {
	var g Gateway = Disabled{}
	if err := g.Send(context.Background(), "c", "t", "x"); err != nil {
		t.Errorf("Send: %v", err)
	}
	select {
	case <-g.Inbound():
		t.Error("disabled gateway delivered a message")
	default:
	}
}
