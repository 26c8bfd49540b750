package notify

import (
	"context"

	"ib_reminder_service/internal/domain/reminder"
)

// Escalation asks a target assignee to inspect an upcoming payment.
type Escalation struct {
	IBID        string
	Name        string
	TargetKey   string
	PaymentDate string
	Amount      reminder.Amount
}

// EmailSender delivers templated reminder and escalation emails.
// Implementations never retry; an error means this attempt failed.
type EmailSender interface {
	SendReminder(ctx context.Context, to, subject string, r *reminder.Reminder) error
	SendEscalation(ctx context.Context, to string, e Escalation) error
}

// ChatSender delivers templated messages to a chat contact.
// This helps in decoupling the application logic from the specific bot library.
type ChatSender interface {
	SendReminder(ctx context.Context, chatID string, r *reminder.Reminder) error
	SendEscalation(ctx context.Context, chatID string, e Escalation) error
}
