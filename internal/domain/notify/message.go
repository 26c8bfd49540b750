package notify

import (
	"fmt"
	"html"
	"strings"

	"ib_reminder_service/internal/domain/reminder"
)

const (
	ReminderSubject     = "IB Contract Reminder"
	TestReminderSubject = "[TEST] IB Contract Reminder — IB %s"
	EscalationSubject   = "Action Required: Target Inspection - IB %s"
)

// ReminderHTML is the chat text of a due reminder, in Telegram HTML.
func ReminderHTML(r *reminder.Reminder) string {
	var b strings.Builder
	b.WriteString("<b>IB Contract Reminder</b>\n\n")
	fmt.Fprintf(&b, "<b>IB ID:</b> %s\n", html.EscapeString(r.IBID))
	if strings.TrimSpace(r.Name) != "" {
		fmt.Fprintf(&b, "<b>Name:</b> %s\n", html.EscapeString(r.Name))
	}
	fmt.Fprintf(&b, "<b>Start Date:</b> %s\n", html.EscapeString(r.StartDate))
	fmt.Fprintf(&b, "<b>End Date:</b> %s\n", html.EscapeString(r.EndDate))
	fmt.Fprintf(&b, "<b>Reminder Date:</b> %s\n", html.EscapeString(r.ReminderDate))
	fmt.Fprintf(&b, "<b>Created By:</b> %s\n", html.EscapeString(r.CreatedBy))
	if strings.TrimSpace(r.ReminderText) != "" {
		fmt.Fprintf(&b, "\n<b>Note:</b>\n%s", html.EscapeString(r.ReminderText))
	}
	return b.String()
}

// ReminderPlain is the plain-text email fallback of a due reminder.
func ReminderPlain(r *reminder.Reminder) string {
	return fmt.Sprintf("IB ID: %s\nReminder: %s", r.IBID, r.ReminderText)
}

// EscalationHTML is the escalation text, in Telegram HTML. Emails reuse it
// with newlines turned into <br>.
func EscalationHTML(e Escalation) string {
	var b strings.Builder
	b.WriteString("<b>🚨 Target Inspection Required!</b>\n")
	fmt.Fprintf(&b, "<b>IB ID:</b> %s\n", html.EscapeString(e.IBID))
	fmt.Fprintf(&b, "<b>Name:</b> %s\n", html.EscapeString(e.Name))
	fmt.Fprintf(&b, "<b>Target:</b> %s\n", html.EscapeString(e.TargetKey))
	fmt.Fprintf(&b, "<b>Payment Date:</b> %s\n", html.EscapeString(e.PaymentDate))
	fmt.Fprintf(&b, "<b>Amount:</b> $%s\n\n", e.Amount.String())
	b.WriteString("Please login, specify the status (Approve/Reject) and leave a comment.")
	return b.String()
}

// EscalationEmailHTML is EscalationHTML formatted for an HTML email body.
func EscalationEmailHTML(e Escalation) string {
	return strings.ReplaceAll(EscalationHTML(e), "\n", "<br>")
}
