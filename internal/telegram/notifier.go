// Package telegram sends operator alerts about scheduling cycles to a
// Telegram chat.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/xbora/mio/internal/scheduler"
)

const maxTelegramMessage = 4096

// Sender is the part of tgbotapi.BotAPI the notifier uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier reports failed deliveries and overdue actions after each cycle.
// Cycles with nothing to report send nothing.
type Notifier struct {
	bot    Sender
	chatID int64
	window time.Duration
}

// New connects to the Bot API with token.
func New(token string, chatID int64, window time.Duration) (*Notifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return NewWithSender(bot, chatID, window), nil
}

func NewWithSender(bot Sender, chatID int64, window time.Duration) *Notifier {
	if window <= 0 {
		window = scheduler.DefaultWindow
	}
	return &Notifier{bot: bot, chatID: chatID, window: window}
}

// CycleFinished implements scheduler.Alerter.
func (n *Notifier) CycleFinished(ctx context.Context, report *scheduler.CycleReport) error {
	text := n.summary(report)
	if text == "" {
		return nil
	}
	for _, part := range splitMessage(text) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := n.bot.Send(tgbotapi.NewMessage(n.chatID, part)); err != nil {
			return fmt.Errorf("send alert: %w", err)
		}
	}
	slog.Info("cycle alert sent", "chat_id", n.chatID)
	return nil
}

func (n *Notifier) summary(report *scheduler.CycleReport) string {
	if report == nil {
		return ""
	}
	failed := report.Failed()
	overdue := report.Overdue(n.window)
	if len(failed) == 0 && len(overdue) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Scheduling cycle at %s\n", report.ExecutionTime.UTC().Format(time.RFC3339))
	if len(failed) > 0 {
		fmt.Fprintf(&b, "\nFailed deliveries (%d):\n", len(failed))
		for _, f := range failed {
			fmt.Fprintf(&b, "- %s user %s via %s: %s\n", f.ID, f.UserID, f.DeliveryChannel, f.Error)
		}
	}
	if len(overdue) > 0 {
		fmt.Fprintf(&b, "\nOverdue actions (%d):\n", len(overdue))
		for _, s := range overdue {
			fmt.Fprintf(&b, "- %s scheduled %s (%d min overdue)\n",
				s.ID, s.ScheduledTime.UTC().Format(time.RFC3339), -s.MinutesUntilReady)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// splitMessage cuts text into Telegram-sized parts, preferring line breaks.
func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > maxTelegramMessage {
		end := strings.LastIndexByte(text[:maxTelegramMessage], '\n')
		if end <= 0 {
			end = maxTelegramMessage
		}
		parts = append(parts, text[:end])
		text = strings.TrimPrefix(text[end:], "\n")
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}
