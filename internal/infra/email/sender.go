package email

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ib_reminder_service/internal/domain/notify"
	"ib_reminder_service/internal/domain/reminder"
	"ib_reminder_service/internal/infra/breaker"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/wneessen/go-mail"
)

var ErrNoRecipient = fmt.Errorf("email recipient is empty")
var ErrDisabled = fmt.Errorf("email sending is not configured")

// Dialer delivers built messages. *mail.Client satisfies it.
type Dialer interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPConfig describes the SMTP session.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Timeout  time.Duration
}

// NewSMTPClient builds a go-mail client. Port 465 uses implicit TLS, any other
// port requires STARTTLS.
func NewSMTPClient(cfg SMTPConfig) (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		mail.WithTimeout(cfg.Timeout),
	}
	if cfg.Port == 465 {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("error creating SMTP client: %w", err)
	}
	return client, nil
}

// Sender implements notify.EmailSender.
type Sender struct {
	from     string
	dialer   Dialer
	renderer *Renderer
	cb       *gobreaker.CircuitBreaker
	log      *logrus.Entry
}

var _ notify.EmailSender = (*Sender)(nil)

// NewSender creates a sender. A nil dialer yields a sender whose every send
// fails with ErrDisabled.
func NewSender(from string, dialer Dialer, renderer *Renderer, log *logrus.Entry) *Sender {
	return &Sender{
		from:     from,
		dialer:   dialer,
		renderer: renderer,
		cb:       breaker.New("smtp", log, isRecipientError),
		log:      log,
	}
}

// SendReminder sends the reminder as plain text with an HTML alternative.
func (s *Sender) SendReminder(ctx context.Context, to, subject string, r *reminder.Reminder) error {
	body, err := s.renderer.Render(r)
	if err != nil {
		return err
	}
	msg, err := s.buildMessage(to, subject, notify.ReminderPlain(r), body)
	if err != nil {
		return err
	}
	return s.send(ctx, to, msg)
}

// SendEscalation sends the escalation text as an HTML email.
func (s *Sender) SendEscalation(ctx context.Context, to string, e notify.Escalation) error {
	subject := fmt.Sprintf(notify.EscalationSubject, e.IBID)
	msg, err := s.buildMessage(to, subject, "", notify.EscalationEmailHTML(e))
	if err != nil {
		return err
	}
	return s.send(ctx, to, msg)
}

// buildMessage creates a message with an optional plain part and an HTML part.
func (s *Sender) buildMessage(to, subject, plain, htmlBody string) (*mail.Msg, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return nil, ErrNoRecipient
	}
	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return nil, fmt.Errorf("error setting sender address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("error setting recipient address %q: %w", to, err)
	}
	msg.Subject(subject)
	msg.SetDate()
	if plain != "" {
		msg.SetBodyString(mail.TypeTextPlain, plain)
		msg.AddAlternativeString(mail.TypeTextHTML, htmlBody)
	} else {
		msg.SetBodyString(mail.TypeTextHTML, htmlBody)
	}
	return msg, nil
}

// isRecipientError reports whether the server permanently refused this
// message's recipients or content while the session itself worked.
func isRecipientError(err error) bool {
	var sendErr *mail.SendError
	if !errors.As(err, &sendErr) || sendErr.IsTemp() {
		return false
	}
	switch sendErr.Reason {
	case mail.ErrGetRcpts, mail.ErrSMTPRcptTo, mail.ErrSMTPData, mail.ErrSMTPDataClose:
		return true
	}
	return false
}

func (s *Sender) send(ctx context.Context, to string, msg *mail.Msg) error {
	if s.dialer == nil {
		return ErrDisabled
	}
	err := breaker.Do(s.cb, func() error {
		return s.dialer.DialAndSendWithContext(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("error sending email to %s: %w", to, err)
	}
	s.log.WithField("to", to).Debug("Email sent")
	return nil
}
