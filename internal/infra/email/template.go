package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"os"

	"ib_reminder_service/internal/domain/reminder"
)

//go:embed templates/reminder.html
var templatesFS embed.FS

// Renderer fills the reminder HTML template.
type Renderer struct {
	tmpl *template.Template
}

type templateData struct {
	IBID         string
	Name         string
	StartDate    string
	EndDate      string
	ReminderDate string
	CreatedBy    string
	ReminderText string
}

// NewRenderer parses the template at path, or the embedded default when path
// is empty.
func NewRenderer(path string) (*Renderer, error) {
	var (
		src []byte
		err error
	)
	if path == "" {
		src, err = templatesFS.ReadFile("templates/reminder.html")
	} else {
		src, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("error reading email template: %w", err)
	}
	tmpl, err := template.New("reminder").Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("error parsing email template: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render returns the HTML body for r.
func (rd *Renderer) Render(r *reminder.Reminder) (string, error) {
	data := templateData{
		IBID:         r.IBID,
		Name:         r.DisplayName(),
		StartDate:    r.StartDate,
		EndDate:      r.EndDate,
		ReminderDate: r.ReminderDate,
		CreatedBy:    r.CreatedBy,
		ReminderText: r.ReminderText,
	}
	var buf bytes.Buffer
	if err := rd.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("error rendering email template for IB %s: %w", r.IBID, err)
	}
	return buf.String(), nil
}

// SampleReminder is rendered when a preview is requested without a record.
func SampleReminder() *reminder.Reminder {
	return &reminder.Reminder{
		IBID:         "123456",
		StartDate:    "2026-01-01",
		EndDate:      "2026-12-31",
		ReminderDate: "2026-02-23",
		CreatedBy:    "admin@example.com",
		ReminderText: "This is a sample reminder text.\n\nPlease review the contract details and take appropriate action before the deadline.",
	}
}
