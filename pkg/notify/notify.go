// Package notify delivers operator-facing messages about account pool state
// transitions (valid/rate_limited/invalid, refresh failures) to an external
// channel. It is a one-way send path; nothing in the pool depends on replies.
package notify

import (
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Notifier is the notification sink the account pool depends on.
type Notifier interface {
	// Notify sends a one-line operator message. Implementations must not block
	// the caller for long or propagate delivery failures as fatal; failures are
	// logged and swallowed, matching the background loop's "log and continue" policy.
	Notify(message string)
}

// Noop discards every message. It is the default Notifier when no channel is configured.
type Noop struct{}

func (Noop) Notify(string) {}

// Telegram sends operator notifications to a fixed chat via the Bot API.
type Telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64
	log    *zap.Logger
	mu     sync.Mutex
}

// NewTelegram validates token against the Bot API and returns a ready Notifier.
// Returns (nil, nil) when token is empty, meaning notifications are not configured.
func NewTelegram(token string, chatID int64, log *zap.Logger) (*Telegram, error) {
	if token == "" {
		return nil, nil
	}
	if log == nil {
		log = zap.NewNop()
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("notify: validate telegram token: %w", err)
	}
	api.Debug = false

	return &Telegram{api: api, chatID: chatID, log: log}, nil
}

// Notify sends text to the configured chat, splitting at 4000 characters and
// falling back to plain text if Markdown parsing fails. Delivery errors are
// logged, never returned: account-transition notifications must not block
// the background loop.
func (t *Telegram) Notify(message string) {
	if t == nil || t.chatID == 0 {
		return
	}
	for _, part := range splitText(message, 4000) {
		if err := t.send(part); err != nil {
			t.log.Warn("telegram notify failed", zap.Error(err))
		}
	}
}

func (t *Telegram) send(text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	_, err := t.api.Send(msg)
	if err != nil && isParseError(err) {
		msg.ParseMode = ""
		_, err = t.api.Send(msg)
	}
	return err
}

func isParseError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "can't parse")
}

// splitText breaks text into chunks of at most maxLen characters, preferring
// to split at a newline boundary.
func splitText(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			parts = append(parts, text)
			break
		}
		splitPos := maxLen
		if nl := strings.LastIndex(text[:maxLen], "\n"); nl > maxLen/2 {
			splitPos = nl + 1
		}
		parts = append(parts, text[:splitPos])
		text = text[splitPos:]
	}
	return parts
}
