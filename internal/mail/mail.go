// Package mail sends transactional email through a Resend-compatible HTTP
// API. The only message today is the shared-skill invitation.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/xbora/mio/internal/types"
	"github.com/xbora/mio/internal/worker"
)

const (
	DefaultAPIURL = "https://api.resend.com"
	DefaultFrom   = "Mio <ai@mio.fyi>"

	maxErrorBody = 512
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("mail provider not configured")

// ProviderError is a non-2xx answer from the mail API.
type ProviderError struct {
	Status int
	Body   string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("mail API error: %d - %s", e.Status, e.Body)
}

type Config struct {
	APIURL  string
	APIKey  string
	From    string
	Timeout time.Duration
	Retry   *worker.RetryPolicy
}

type Mailer struct {
	apiURL string
	apiKey string
	from   string
	client *http.Client
	retry  *worker.RetryPolicy
}

func New(cfg Config) *Mailer {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.From == "" {
		cfg.From = DefaultFrom
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry == nil {
		cfg.Retry = worker.DefaultRetryPolicy()
	}
	return &Mailer{
		apiURL: strings.TrimRight(cfg.APIURL, "/"),
		apiKey: cfg.APIKey,
		from:   cfg.From,
		client: &http.Client{Timeout: cfg.Timeout},
		retry:  cfg.Retry,
	}
}

type message struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text,omitempty"`
}

// SendInvite delivers the invitation and returns the provider's message id.
func (m *Mailer) SendInvite(ctx context.Context, inv Invite) (string, error) {
	if m.apiKey == "" {
		return "", ErrNotConfigured
	}
	if strings.TrimSpace(inv.RecipientEmail) == "" {
		return "", types.Invalid("to", "recipient email is required")
	}
	html, text, err := inv.render()
	if err != nil {
		return "", err
	}
	msg := message{
		From:    m.from,
		To:      []string{inv.RecipientEmail},
		Subject: inv.Subject(),
		HTML:    html,
		Text:    text,
	}

	var id string
	err = m.retry.Execute(ctx, func(ctx context.Context) error {
		var sendErr error
		id, sendErr = m.send(ctx, msg)
		return sendErr
	})
	if err != nil {
		return "", err
	}
	slog.Info("invite email sent", "email_id", id, "skill", inv.SkillName)
	return id, nil
}

func (m *Mailer) send(ctx context.Context, msg message) (string, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return "", worker.Permanent(fmt.Errorf("marshal email: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return "", worker.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", &types.UpstreamError{Service: "mail", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		perr := &types.UpstreamError{Service: "mail", Err: &ProviderError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return "", worker.Permanent(perr)
		}
		return "", perr
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &types.UpstreamError{Service: "mail", Err: fmt.Errorf("parse response: %w", err)}
	}
	return out.ID, nil
}
