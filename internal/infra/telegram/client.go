// internal/infra/telegram/client.go
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ib_reminder_service/internal/domain/notify"
	"ib_reminder_service/internal/domain/reminder"
	"ib_reminder_service/internal/infra/breaker"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
	"gopkg.in/telebot.v3"
)

// Custom errors
var ErrNoChatID = fmt.Errorf("telegram chat ID is empty")

// Telegram allows about 30 messages per second per bot.
const sendsPerSecond = 25

// BotConfig configures the bot connection.
type BotConfig struct {
	Token   string
	APIURL  string
	Timeout time.Duration
	// Polling starts a long poller for commands; otherwise the bot is send-only.
	Polling bool
	// Synchronous runs command handlers inline.
	Synchronous bool
}

// NewBot creates a telebot.Bot against the configured API URL.
func NewBot(cfg BotConfig) (*telebot.Bot, error) {
	pref := telebot.Settings{
		Token:       cfg.Token,
		URL:         cfg.APIURL,
		Client:      &http.Client{Timeout: cfg.Timeout},
		Offline:     !cfg.Polling,
		Synchronous: cfg.Synchronous,
	}
	if cfg.Polling {
		pref.Poller = &telebot.LongPoller{Timeout: 10 * time.Second}
	}
	b, err := telebot.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("error creating telegram bot: %w", err)
	}
	return b, nil
}

// chatID addresses a chat by its stored string id.
type chatID string

func (c chatID) Recipient() string { return string(c) }

// TelebotAdapter implements notify.ChatSender using the gopkg.in/telebot.v3 library.
type TelebotAdapter struct {
	bot     *telebot.Bot
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker
	log     *logrus.Entry
}

var _ notify.ChatSender = (*TelebotAdapter)(nil)

func NewTelebotAdapter(b *telebot.Bot, log *logrus.Entry) *TelebotAdapter {
	return &TelebotAdapter{
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(sendsPerSecond), 1),
		cb:      breaker.New("telegram", log, isRecipientError),
		log:     log,
	}
}

// isRecipientError reports whether the Bot API refused this chat only, e.g.
// "chat not found" or "bot was blocked by the user".
func isRecipientError(err error) bool {
	var apiErr *telebot.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusBadRequest || apiErr.Code == http.StatusForbidden
	}
	// Descriptions telebot does not know come back as "telegram: <desc> (<code>)".
	msg := err.Error()
	return strings.HasSuffix(msg, "(400)") || strings.HasSuffix(msg, "(403)")
}

// SendMessage posts an HTML-formatted text to the chat.
func (tba *TelebotAdapter) SendMessage(ctx context.Context, chat, text string) error {
	chat = strings.TrimSpace(chat)
	if chat == "" {
		return ErrNoChatID
	}
	if err := tba.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("error waiting for telegram rate limit: %w", err)
	}
	err := breaker.Do(tba.cb, func() error {
		_, err := tba.bot.Send(chatID(chat), text, &telebot.SendOptions{ParseMode: telebot.ModeHTML})
		return err
	})
	if err != nil {
		return fmt.Errorf("error sending telegram message to chat %s: %w", chat, err)
	}
	return nil
}

func (tba *TelebotAdapter) SendReminder(ctx context.Context, chat string, r *reminder.Reminder) error {
	return tba.SendMessage(ctx, chat, notify.ReminderHTML(r))
}

func (tba *TelebotAdapter) SendEscalation(ctx context.Context, chat string, e notify.Escalation) error {
	return tba.SendMessage(ctx, chat, notify.EscalationHTML(e))
}

// DisabledSender is used when no bot token is configured.
type DisabledSender struct{}

var ErrDisabled = fmt.Errorf("telegram sending is not configured")

func (DisabledSender) SendReminder(_ context.Context, chat string, _ *reminder.Reminder) error {
	if strings.TrimSpace(chat) == "" {
		return ErrNoChatID
	}
	return ErrDisabled
}

func (DisabledSender) SendEscalation(_ context.Context, chat string, _ notify.Escalation) error {
	if strings.TrimSpace(chat) == "" {
		return ErrNoChatID
	}
	return ErrDisabled
}
