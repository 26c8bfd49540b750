// internal/domain/reminder/reminder.go
package reminder

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Reminder tracks one IB contract relationship: its dates, the renewal
// reminder for its owner, the targets with their approvers and the milestone
// payments. Corresponds to the 'ib_reminders' table.
type Reminder struct {
	ID           int64
	IBID         string
	Name         string
	StartDate    string // YYYY-MM-DD
	EndDate      string // YYYY-MM-DD
	ReminderDate string // YYYY-MM-DD
	ReminderText string
	CreatedBy    string // owner email, notified when the reminder fires
	CreatedAt    string
	TargetsJSON  string // raw 'targets' column
	PaymentsJSON string // raw 'payments' column
	IsSent       bool
}

// Targets decodes the raw targets column. An empty column reads as no targets.
func (r *Reminder) Targets() (Targets, error) {
	targets := Targets{}
	raw := strings.TrimSpace(r.TargetsJSON)
	if raw == "" {
		return targets, nil
	}
	if err := json.Unmarshal([]byte(raw), &targets); err != nil {
		return nil, fmt.Errorf("decode targets of reminder %d: %w", r.ID, err)
	}
	if targets == nil {
		targets = Targets{}
	}
	return targets, nil
}

// Payments decodes the raw payments column. An empty column reads as no payments.
func (r *Reminder) Payments() ([]Payment, error) {
	payments := make([]Payment, 0)
	raw := strings.TrimSpace(r.PaymentsJSON)
	if raw == "" {
		return payments, nil
	}
	if err := json.Unmarshal([]byte(raw), &payments); err != nil {
		return nil, fmt.Errorf("decode payments of reminder %d: %w", r.ID, err)
	}
	if payments == nil {
		payments = make([]Payment, 0)
	}
	return payments, nil
}

// SetPayments re-encodes payments into the raw column.
func (r *Reminder) SetPayments(payments []Payment) error {
	if payments == nil {
		payments = make([]Payment, 0)
	}
	b, err := json.Marshal(payments)
	if err != nil {
		return fmt.Errorf("encode payments of reminder %d: %w", r.ID, err)
	}
	r.PaymentsJSON = string(b)
	return nil
}

// DisplayName returns the name or an em dash placeholder when it is empty.
func (r *Reminder) DisplayName() string {
	if strings.TrimSpace(r.Name) == "" {
		return "—"
	}
	return r.Name
}
