package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/xbora/mio/internal/types"
)

func captureServer(t *testing.T, status int, got *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected JSON content type, got %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEmailWebhookPayload(t *testing.T) {
	var got map[string]any
	srv := captureServer(t, http.StatusOK, &got)

	wh := NewEmailWebhook(srv.URL, time.Second)
	err := wh.Dispatch(context.Background(), testAction(types.ChannelEmail), &types.User{ID: "user_a", Email: "ana@example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]any{
		"to":                 "ana@example.com",
		"user_id":            "user_a",
		"action_id":          "act-1",
		"action_type":        "insight",
		"instruction_prompt": "How am I doing on protein?",
		"is_proactive":       true,
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s: expected %v, got %v", k, v, got[k])
		}
	}
	if skills, ok := got["skill_names"].([]any); !ok || len(skills) != 1 || skills[0] != "meals" {
		t.Errorf("unexpected skill_names %v", got["skill_names"])
	}
}

func TestEmailWebhookMissingEmail(t *testing.T) {
	wh := NewEmailWebhook("http://127.0.0.1:0", time.Second)
	err := wh.Dispatch(context.Background(), testAction(types.ChannelEmail), &types.User{ID: "user_a"})
	if !IsMissingContact(err) {
		t.Fatalf("expected MissingContactError, got %v", err)
	}
}

func TestPhoneWebhookWhatsAppPayload(t *testing.T) {
	var got map[string]any
	srv := captureServer(t, http.StatusAccepted, &got)

	wh := NewPhoneWebhook(srv.URL, "+14015550100", time.Second)
	user := &types.User{ID: "user_a", WhatsAppNumber: "1 (555) 123-4567"}
	if err := wh.Dispatch(context.Background(), testAction(types.ChannelWhatsApp), user); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	checks := map[string]any{
		"MessageType":  "proactive_action",
		"To":           "whatsapp:+14015550100",
		"WaId":         "15551234567",
		"Body":         "How am I doing on protein?",
		"channel":      "whatsapp",
		"action_id":    "act-1",
		"is_proactive": true,
	}
	for k, v := range checks {
		if got[k] != v {
			t.Errorf("%s: expected %v, got %v", k, v, got[k])
		}
	}
}

func TestPhoneWebhookSMSAddress(t *testing.T) {
	var got map[string]any
	srv := captureServer(t, http.StatusOK, &got)

	wh := NewPhoneWebhook(srv.URL, "14015550100", time.Second)
	if err := wh.Dispatch(context.Background(), testAction(types.ChannelSMS), &types.User{ID: "user_a", WhatsAppNumber: "+15551234567"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["To"] != "+14015550100" {
		t.Errorf("expected E.164 service number, got %v", got["To"])
	}
	if got["From"] != "+15551234567" {
		t.Errorf("expected user number, got %v", got["From"])
	}
}

func TestPhoneWebhookMissingNumber(t *testing.T) {
	wh := NewPhoneWebhook("http://127.0.0.1:0", "+1", time.Second)
	err := wh.Dispatch(context.Background(), testAction(types.ChannelSMS), &types.User{ID: "user_a", Email: "a@b.c"})
	if !IsMissingContact(err) {
		t.Fatalf("expected MissingContactError, got %v", err)
	}
}

func TestWebhookNon2xxIsDeliveryError(t *testing.T) {
	var got map[string]any
	srv := captureServer(t, http.StatusBadGateway, &got)

	wh := NewEmailWebhook(srv.URL, time.Second)
	err := wh.Dispatch(context.Background(), testAction(types.ChannelEmail), &types.User{Email: "a@b.c"})
	de, ok := err.(*DeliveryError)
	if !ok {
		t.Fatalf("expected DeliveryError, got %T %v", err, err)
	}
	if de.Status != http.StatusBadGateway {
		t.Errorf("expected status 502, got %d", de.Status)
	}
}

func TestWebhookTimeoutIsUpstreamError(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	wh := NewEmailWebhook(srv.URL, 50*time.Millisecond)
	err := wh.Dispatch(context.Background(), testAction(types.ChannelEmail), &types.User{Email: "a@b.c"})
	if !types.IsUpstream(err) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
}

func TestFormatAddress(t *testing.T) {
	tests := []struct {
		in       string
		whatsapp bool
		want     string
	}{
		{"15551234567", false, "+15551234567"},
		{"+15551234567", false, "+15551234567"},
		{"15551234567", true, "whatsapp:+15551234567"},
		{" +15551234567 ", true, "whatsapp:+15551234567"},
	}
	for _, tt := range tests {
		if got := FormatAddress(tt.in, tt.whatsapp); got != tt.want {
			t.Errorf("FormatAddress(%q, %v) = %q, want %q", tt.in, tt.whatsapp, got, tt.want)
		}
	}
}
