package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"ib_reminder_service/internal/domain/notify"
	"ib_reminder_service/internal/domain/reminder"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
)

type fakeDialer struct {
	sent     []*mail.Msg
	err      error
	rejects  map[string]error
	attempts []string
}

func (f *fakeDialer) DialAndSendWithContext(_ context.Context, messages ...*mail.Msg) error {
	for _, m := range messages {
		rcpts, _ := m.GetRecipients()
		f.attempts = append(f.attempts, rcpts...)
		for _, rcpt := range rcpts {
			if err, ok := f.rejects[rcpt]; ok {
				return err
			}
		}
	}
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, messages...)
	return nil
}

func newTestSender(t *testing.T, d Dialer) *Sender {
	t.Helper()
	renderer, err := NewRenderer("")
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()
	return NewSender("bot@x.com", d, renderer, logrus.NewEntry(logger))
}

func raw(t *testing.T, m *mail.Msg) string {
	t.Helper()
	var buf bytes.Buffer
	_, err := m.WriteTo(&buf)
	require.NoError(t, err)
	return buf.String()
}

func TestRendererDefaultTemplate(t *testing.T) {
	renderer, err := NewRenderer("")
	require.NoError(t, err)

	out, err := renderer.Render(&reminder.Reminder{IBID: "1001", CreatedBy: "o@x.com", ReminderText: "<renew>"})
	require.NoError(t, err)
	assert.Contains(t, out, "<strong>1001</strong>")
	assert.Contains(t, out, "<td>—</td>")
	assert.Contains(t, out, "&lt;renew&gt;")
}

func TestRendererOverridePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.html")
	require.NoError(t, os.WriteFile(path, []byte(`<p>{{.IBID}} / {{.Name}}</p>`), 0o600))

	renderer, err := NewRenderer(path)
	require.NoError(t, err)
	out, err := renderer.Render(&reminder.Reminder{IBID: "9", Name: "Acme"})
	require.NoError(t, err)
	assert.Equal(t, "<p>9 / Acme</p>", out)

	_, err = NewRenderer(filepath.Join(t.TempDir(), "missing.html"))
	assert.Error(t, err)
}

func TestSendReminderBuildsAlternativeMessage(t *testing.T) {
	d := &fakeDialer{}
	s := newTestSender(t, d)

	r := &reminder.Reminder{IBID: "1001", Name: "Acme", ReminderText: "renew", CreatedBy: "owner@x.com"}
	require.NoError(t, s.SendReminder(context.Background(), "owner@x.com", notify.ReminderSubject, r))
	require.Len(t, d.sent, 1)

	out := raw(t, d.sent[0])
	assert.Contains(t, out, "Subject: IB Contract Reminder")
	assert.Contains(t, out, "<owner@x.com>")
	assert.Contains(t, out, "multipart/alternative")
	assert.Contains(t, out, "text/plain")
	assert.Contains(t, out, "text/html")
	assert.Contains(t, out, "IB ID: 1001")
}

func TestSendEscalation(t *testing.T) {
	d := &fakeDialer{}
	s := newTestSender(t, d)

	require.NoError(t, s.SendEscalation(context.Background(), "a@x.com", notify.Escalation{IBID: "1001", TargetKey: "ftd", PaymentDate: "2026-03-10"}))
	require.Len(t, d.sent, 1)

	out := raw(t, d.sent[0])
	assert.Contains(t, out, "Subject: Action Required: Target Inspection - IB 1001")
	assert.Contains(t, out, "text/html")
	assert.NotContains(t, out, "multipart/alternative")
}

func TestSendErrors(t *testing.T) {
	ctx := context.Background()
	r := &reminder.Reminder{IBID: "1"}

	s := newTestSender(t, &fakeDialer{})
	assert.ErrorIs(t, s.SendReminder(ctx, "  ", notify.ReminderSubject, r), ErrNoRecipient)

	s = newTestSender(t, nil)
	assert.ErrorIs(t, s.SendReminder(ctx, "o@x.com", notify.ReminderSubject, r), ErrDisabled)

	boom := errors.New("connection refused")
	s = newTestSender(t, &fakeDialer{err: boom})
	assert.ErrorIs(t, s.SendReminder(ctx, "o@x.com", notify.ReminderSubject, r), boom)
}

func TestRejectedRecipientsKeepBreakerClosed(t *testing.T) {
	ctx := context.Background()
	r := &reminder.Reminder{IBID: "1"}
	rejected := &mail.SendError{Reason: mail.ErrSMTPRcptTo}
	d := &fakeDialer{rejects: map[string]error{
		"bad1@x.com": rejected,
		"bad2@x.com": rejected,
		"bad3@x.com": rejected,
	}}
	s := newTestSender(t, d)

	for _, to := range []string{"bad1@x.com", "bad2@x.com", "bad3@x.com"} {
		assert.ErrorIs(t, s.SendReminder(ctx, to, notify.ReminderSubject, r), rejected)
	}
	require.NoError(t, s.SendReminder(ctx, "good@x.com", notify.ReminderSubject, r))
	assert.Equal(t, []string{"bad1@x.com", "bad2@x.com", "bad3@x.com", "good@x.com"}, d.attempts)
	require.Len(t, d.sent, 1)
}

func TestTransportFailuresOpenBreaker(t *testing.T) {
	ctx := context.Background()
	r := &reminder.Reminder{IBID: "1"}
	d := &fakeDialer{err: errors.New("dial tcp: connection refused")}
	s := newTestSender(t, d)

	for i := 0; i < 3; i++ {
		assert.Error(t, s.SendReminder(ctx, "o@x.com", notify.ReminderSubject, r))
	}
	err := s.SendReminder(ctx, "o@x.com", notify.ReminderSubject, r)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Len(t, d.attempts, 3)
}

func TestIsRecipientError(t *testing.T) {
	assert.True(t, isRecipientError(&mail.SendError{Reason: mail.ErrSMTPRcptTo}))
	assert.True(t, isRecipientError(fmt.Errorf("wrapped: %w", &mail.SendError{Reason: mail.ErrGetRcpts})))
	assert.False(t, isRecipientError(&mail.SendError{Reason: mail.ErrConnCheck}))
	assert.False(t, isRecipientError(errors.New("i/o timeout")))
}

func TestNewSMTPClient(t *testing.T) {
	_, err := NewSMTPClient(SMTPConfig{Host: "smtp.example.com", Port: 465, Username: "u", Password: "p", Timeout: 5e9})
	assert.NoError(t, err)
	_, err = NewSMTPClient(SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "u", Password: "p", Timeout: 5e9})
	assert.NoError(t, err)
}
