// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	"ib_reminder_service/internal/domain/user"
	idb "ib_reminder_service/internal/infra/database" // For ErrUserNotFound

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// RegisterBotCommands installs /start and /help. Both tell the sender their
// chat ID, which an admin stores on the user record to enable chat delivery.
func RegisterBotCommands(
	ctx context.Context,
	b *telebot.Bot,
	userRepo user.Repository,
	baseLogger *logrus.Entry, // For contextual logging
) {
	startHelpLogger := baseLogger.WithField("handler_group", "start_help")
	htmlOpts := &telebot.SendOptions{ParseMode: telebot.ModeHTML}

	b.Handle("/start", func(c telebot.Context) error {
		chat := chatIDOf(c)
		logCtx := startHelpLogger.WithField("command", "/start").WithField("chat_id", chat)
		logCtx.Info("Processing /start command")

		linked, err := userRepo.GetByTelegramChatID(ctx, chat)
		if err == nil {
			logCtx.WithField("user_id", linked.ID).Info("Chat is linked to a user")
			return c.Send(linkedText(chat, linked), htmlOpts)
		} else if !errors.Is(err, idb.ErrUserNotFound) { // Some other DB error
			logCtx.WithError(err).Error("Error looking up user for /start command")
			return c.Send("Something went wrong while checking your account. Please try again later.")
		}

		logCtx.Info("Chat is not linked to any user")
		return c.Send(unlinkedText(chat), htmlOpts)
	})

	b.Handle("/help", func(c telebot.Context) error {
		chat := chatIDOf(c)
		startHelpLogger.WithField("command", "/help").WithField("chat_id", chat).Info("Processing /help command")

		var helpText strings.Builder
		helpText.WriteString("I deliver IB contract reminders and payment target escalations.\n\n")
		fmt.Fprintf(&helpText, "Your chat ID is <code>%s</code>. An administrator stores it on your user profile to enable delivery here.\n\n", chat)
		helpText.WriteString("/start - Show your chat ID and linked account.\n")
		helpText.WriteString("/help - Show this message.")
		return c.Send(helpText.String(), htmlOpts)
	})
}

func chatIDOf(c telebot.Context) string {
	if chat := c.Chat(); chat != nil {
		return strconv.FormatInt(chat.ID, 10)
	}
	if sender := c.Sender(); sender != nil {
		return strconv.FormatInt(sender.ID, 10)
	}
	return ""
}

func linkedText(chat string, u *user.User) string {
	return fmt.Sprintf("Hello! Your chat ID is <code>%s</code>.\nIt is linked to <b>%s</b> (%s), so reminders and escalations will arrive here.",
		chat, html.EscapeString(u.Email), html.EscapeString(string(u.Role)))
}

func unlinkedText(chat string) string {
	return fmt.Sprintf("Hello! Your chat ID is <code>%s</code>.\nAsk an administrator to add it to your user profile to receive reminders here.", chat)
}
