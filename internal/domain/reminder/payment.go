package reminder

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the approval state of one payment entry.
type PaymentStatus string

const (
	StatusApprovalPending PaymentStatus = "Approval Pending"
	StatusPaymentPending  PaymentStatus = "Payment Pending"
	StatusPaid            PaymentStatus = "Paid"
	StatusRejected        PaymentStatus = "Rejected"
	StatusCanceled        PaymentStatus = "Canceled"
	StatusDone            PaymentStatus = "Done"
)

// EscalationLookaheadDays is how many days before a payment date its assignee
// starts getting escalations.
const EscalationLookaheadDays = 2

// IsTerminal reports whether no further approval work is expected.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case StatusPaid, StatusRejected, StatusCanceled, StatusDone:
		return true
	}
	return false
}

// Valid reports whether s is one of the known statuses.
func (s PaymentStatus) Valid() bool {
	switch s {
	case StatusApprovalPending, StatusPaymentPending, StatusPaid, StatusRejected, StatusCanceled, StatusDone:
		return true
	}
	return false
}

// Payment is one milestone payment of a contract.
type Payment struct {
	Date       string        `json:"date"`
	Amount     Amount        `json:"amount"`
	TargetKey  string        `json:"target_key"`
	Status     PaymentStatus `json:"status,omitempty"`
	PaidAmount Amount        `json:"paid_amount"`
	HashLink   string        `json:"hash_link"`
	Comment    string        `json:"comment"`
}

// UnmarshalJSON reads the stored entry field by field. Fields of an
// unexpected JSON type are kept as their literal text and a non-object entry
// decodes as an empty payment.
func (p *Payment) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return err
		}
		*p = Payment{}
		return nil
	}
	*p = Payment{
		Date:      looseText(fields["date"]),
		TargetKey: looseText(fields["target_key"]),
		Status:    PaymentStatus(looseText(fields["status"])),
		HashLink:  looseText(fields["hash_link"]),
		Comment:   looseText(fields["comment"]),
	}
	if raw, ok := fields["amount"]; ok {
		if err := p.Amount.UnmarshalJSON(raw); err != nil {
			return err
		}
	}
	if raw, ok := fields["paid_amount"]; ok {
		if err := p.PaidAmount.UnmarshalJSON(raw); err != nil {
			return err
		}
	}
	return nil
}

// EffectiveStatus treats a missing status as Approval Pending.
func (p Payment) EffectiveStatus() PaymentStatus {
	if strings.TrimSpace(string(p.Status)) == "" {
		return StatusApprovalPending
	}
	return p.Status
}

// InEscalationWindow reports whether today falls in
// [payment date - EscalationLookaheadDays, payment date].
// today must be a calendar date as returned by DateOf.
func (p Payment) InEscalationWindow(today time.Time) (bool, error) {
	due, err := ParseDate(p.Date)
	if err != nil {
		return false, err
	}
	start := due.AddDate(0, 0, -EscalationLookaheadDays)
	return !today.Before(start) && !today.After(due), nil
}

// Amount is a decimal money value that tolerates the loose encodings found in
// stored payments: JSON numbers, numeric strings, "" and null. Any other value
// is kept verbatim and reads as zero.
type Amount struct {
	decimal.Decimal
	raw string
}

// NewAmount builds an Amount from its decimal string form.
func NewAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{Decimal: decimal.Zero}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return Amount{Decimal: d}, nil
}

// Numeric reports whether the stored value parsed as a number.
func (a Amount) Numeric() bool {
	return a.raw == ""
}

// String returns the decimal form, or the stored text when it is not numeric.
func (a Amount) String() string {
	if a.raw != "" {
		return a.raw
	}
	return a.Decimal.String()
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*a = Amount{Decimal: decimal.Zero}
		return nil
	}
	text := looseText(json.RawMessage(s))
	parsed, err := NewAmount(text)
	if err != nil {
		*a = Amount{Decimal: decimal.Zero, raw: text}
		return nil
	}
	*a = parsed
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	if a.raw != "" {
		return json.Marshal(a.raw)
	}
	return []byte(a.Decimal.String()), nil
}

// looseText reads a JSON value as text: strings unquoted, null and missing as
// "", anything else as its literal encoding.
func looseText(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return trimmed
}
