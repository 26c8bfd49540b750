package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"ib_reminder_service/internal/domain/reminder"
	"ib_reminder_service/internal/domain/user"
	idb "ib_reminder_service/internal/infra/database"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// TodaysLister lists the reminders due today on behalf of caller.
type TodaysLister interface {
	Todays(ctx context.Context, caller *user.User) ([]*reminder.Reminder, error)
}

// RegisterOperatorHandlers installs /today for chats linked to a back-office
// user. Access rules are enforced by the lister.
func RegisterOperatorHandlers(
	ctx context.Context,
	b *telebot.Bot,
	userRepo user.Repository,
	reminders TodaysLister,
	baseLogger *logrus.Entry,
) {
	htmlOpts := &telebot.SendOptions{ParseMode: telebot.ModeHTML}

	b.Handle("/today", func(c telebot.Context) error {
		chat := chatIDOf(c)
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler": "/today",
			"chat_id": chat,
		})
		handlerLogger.Info("Command received")

		caller, err := userRepo.GetByTelegramChatID(ctx, chat)
		if err != nil {
			if errors.Is(err, idb.ErrUserNotFound) {
				handlerLogger.Warn("Unlinked chat asked for today's reminders")
				return c.Send(unlinkedText(chat), htmlOpts)
			}
			handlerLogger.WithError(err).Error("Error looking up user for /today command")
			return c.Send("Something went wrong while checking your account. Please try again later.")
		}
		handlerLogger = handlerLogger.WithField("user_id", caller.ID)

		list, err := reminders.Todays(ctx, caller)
		if err != nil {
			handlerLogger.WithError(err).Warn("Could not list today's reminders")
			return c.Send(fmt.Sprintf("Could not list today's reminders: %s", err.Error()))
		}

		handlerLogger.WithField("count", len(list)).Info("Today's reminders listed")
		return c.Send(todayText(list), htmlOpts)
	})
}

func todayText(list []*reminder.Reminder) string {
	if len(list) == 0 {
		return "No reminders are due today."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>Reminders due today: %d</b>\n", len(list))
	for _, r := range list {
		status := "Pending"
		if r.IsSent {
			status = "Sent"
		}
		fmt.Fprintf(&sb, "\n• <b>%s</b> %s (%s)",
			html.EscapeString(r.IBID), html.EscapeString(r.DisplayName()), status)
	}
	return sb.String()
}
