package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/xbora/mio/internal/types"
)

const maxErrorBody = 512

// webhookClient posts JSON payloads to a delivery webhook.
type webhookClient struct {
	url    string
	client *http.Client
}

func newWebhookClient(url string, timeout time.Duration) webhookClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return webhookClient{url: url, client: &http.Client{Timeout: timeout}}
}

func (w webhookClient) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return &types.UpstreamError{Service: "delivery webhook", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &DeliveryError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// EmailWebhook delivers actions to the email webhook.
type EmailWebhook struct {
	webhookClient
}

func NewEmailWebhook(url string, timeout time.Duration) *EmailWebhook {
	return &EmailWebhook{webhookClient: newWebhookClient(url, timeout)}
}

type emailPayload struct {
	To                string           `json:"to"`
	UserID            types.UserID     `json:"user_id"`
	ActionID          types.ActionID   `json:"action_id"`
	ActionType        types.ActionType `json:"action_type"`
	SkillNames        []string         `json:"skill_names"`
	InstructionPrompt string           `json:"instruction_prompt"`
	IsProactive       bool             `json:"is_proactive"`
}

func (e *EmailWebhook) Dispatch(ctx context.Context, action *types.ProactiveAction, user *types.User) error {
	if user == nil || user.Email == "" {
		return &MissingContactError{Channel: types.ChannelEmail, UserID: action.UserID, Field: "email"}
	}
	return e.post(ctx, emailPayload{
		To:                user.Email,
		UserID:            action.UserID,
		ActionID:          action.ID,
		ActionType:        action.ActionType,
		SkillNames:        action.SkillNames,
		InstructionPrompt: action.InstructionPrompt,
		IsProactive:       true,
	})
}

// PhoneWebhook delivers SMS and WhatsApp actions. The payload mirrors an
// inbound message from the user to the service number so the conversational
// agent behind the webhook answers it proactively.
type PhoneWebhook struct {
	webhookClient
	from string
}

func NewPhoneWebhook(url, from string, timeout time.Duration) *PhoneWebhook {
	return &PhoneWebhook{webhookClient: newWebhookClient(url, timeout), from: from}
}

type phonePayload struct {
	MessageType       string           `json:"MessageType"`
	To                string           `json:"To"`
	From              string           `json:"From"`
	WaID              string           `json:"WaId"`
	Body              string           `json:"Body"`
	Channel           types.Channel    `json:"channel"`
	UserID            types.UserID     `json:"user_id"`
	ActionID          types.ActionID   `json:"action_id"`
	ActionType        types.ActionType `json:"action_type"`
	SkillNames        []string         `json:"skill_names"`
	InstructionPrompt string           `json:"instruction_prompt"`
	IsProactive       bool             `json:"is_proactive"`
}

func (p *PhoneWebhook) Dispatch(ctx context.Context, action *types.ProactiveAction, user *types.User) error {
	if user == nil || user.WhatsAppNumber == "" {
		return &MissingContactError{Channel: action.DeliveryChannel, UserID: action.UserID, Field: "phone number"}
	}
	whatsapp := action.DeliveryChannel == types.ChannelWhatsApp
	return p.post(ctx, phonePayload{
		MessageType:       "proactive_action",
		To:                FormatAddress(p.from, whatsapp),
		From:              FormatAddress(user.WhatsAppNumber, whatsapp),
		WaID:              digits(user.WhatsAppNumber),
		Body:              action.InstructionPrompt,
		Channel:           action.DeliveryChannel,
		UserID:            action.UserID,
		ActionID:          action.ID,
		ActionType:        action.ActionType,
		SkillNames:        action.SkillNames,
		InstructionPrompt: action.InstructionPrompt,
		IsProactive:       true,
	})
}

// FormatAddress renders a phone number in E.164 with the whatsapp: prefix
// when needed.
func FormatAddress(number string, whatsapp bool) string {
	number = strings.TrimSpace(number)
	if !strings.HasPrefix(number, "+") {
		number = "+" + number
	}
	if whatsapp {
		return "whatsapp:" + number
	}
	return number
}

func digits(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}
