// internal/app/notification_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ib_reminder_service/internal/domain/notify"
	"ib_reminder_service/internal/domain/reminder"
	"ib_reminder_service/internal/domain/run"
	"ib_reminder_service/internal/domain/user"
	idb "ib_reminder_service/internal/infra/database" // Alias for DB errors
	"ib_reminder_service/internal/infra/telegram"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Failure classes logged in the "failure" field.
const (
	FailureParse     = "parse"
	FailureTransport = "transport"
	FailureStore     = "store"
)

// ErrAlreadyRan is returned by RunDaily when the ledger already holds today.
var ErrAlreadyRan = fmt.Errorf("daily run already recorded for this date")

// NotificationService runs the daily reminder job.
type NotificationService interface {
	// RunDaily runs both passes for the calendar date of now, at most once per date.
	RunDaily(ctx context.Context, now time.Time) (*run.Run, error)
	// HasRun reports whether the ledger has a run for the calendar date of now.
	HasRun(ctx context.Context, now time.Time) (bool, error)
	// SendDueReminders is pass A: notify owners of reminders due today.
	SendDueReminders(ctx context.Context, today time.Time, log *logrus.Entry) (sent, failed int)
	// EscalatePayments is pass B: notify assignees of payments due within the lookahead window.
	EscalatePayments(ctx context.Context, today time.Time, log *logrus.Entry) int
}

// NotificationServiceImpl implements the NotificationService interface.
type NotificationServiceImpl struct {
	reminderRepo reminder.Repository
	userRepo     user.Repository
	runRepo      run.Repository
	email        notify.EmailSender
	chat         notify.ChatSender
	location     *time.Location
	logger       *logrus.Entry
}

func NewNotificationServiceImpl(
	rr reminder.Repository,
	ur user.Repository,
	runs run.Repository,
	email notify.EmailSender,
	chat notify.ChatSender,
	location *time.Location,
	logger *logrus.Entry,
) *NotificationServiceImpl {
	if location == nil {
		location = time.Local
	}
	return &NotificationServiceImpl{
		reminderRepo: rr,
		userRepo:     ur,
		runRepo:      runs,
		email:        email,
		chat:         chat,
		location:     location,
		logger:       logger,
	}
}

// Today returns the calendar date of now in the scheduler location.
func (s *NotificationServiceImpl) Today(now time.Time) time.Time {
	return reminder.DateOf(now.In(s.location))
}

func (s *NotificationServiceImpl) HasRun(ctx context.Context, now time.Time) (bool, error) {
	_, err := s.runRepo.GetByDate(ctx, reminder.FormatDate(s.Today(now)))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, idb.ErrRunNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check run ledger: %w", err)
}

func (s *NotificationServiceImpl) RunDaily(ctx context.Context, now time.Time) (*run.Run, error) {
	today := s.Today(now)
	rn := &run.Run{RunDate: reminder.FormatDate(today), RunID: uuid.NewString()}
	log := s.logger.WithFields(logrus.Fields{"run_id": rn.RunID, "run_date": rn.RunDate})

	if err := s.runRepo.Create(ctx, rn); err != nil {
		if errors.Is(err, idb.ErrDuplicateRun) {
			log.Info("Daily run already recorded for this date, skipping")
			return nil, ErrAlreadyRan
		}
		log.WithError(err).WithField("failure", FailureStore).Error("Failed to record daily run")
		return nil, fmt.Errorf("failed to record daily run: %w", err)
	}
	log.Info("Daily run started")

	rn.DueSent, rn.DueFailed = s.SendDueReminders(ctx, today, log)
	rn.Escalations = s.EscalatePayments(ctx, today, log)

	// The run context may already be cancelled; recording the outcome should still happen.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.runRepo.Finish(finishCtx, rn); err != nil {
		log.WithError(err).WithField("failure", FailureStore).Error("Failed to record daily run outcome")
	}

	log.WithFields(logrus.Fields{
		"due_sent":    rn.DueSent,
		"due_failed":  rn.DueFailed,
		"escalations": rn.Escalations,
	}).Info("Daily run finished")
	return rn, nil
}

func (s *NotificationServiceImpl) SendDueReminders(ctx context.Context, today time.Time, log *logrus.Entry) (sent, failed int) {
	date := reminder.FormatDate(today)
	due, err := s.reminderRepo.ListDueUnsent(ctx, date)
	if err != nil {
		log.WithError(err).WithField("failure", FailureStore).Error("Failed to list due reminders")
		return 0, 0
	}
	log.WithField("count", len(due)).Info("Processing due reminders")

	for _, r := range due {
		if ctx.Err() != nil {
			log.WithError(ctx.Err()).Warn("Run cancelled, stopping due reminders")
			break
		}
		if s.deliverDue(ctx, r, date, log) {
			sent++
		} else {
			failed++
		}
	}
	return sent, failed
}

// deliverDue notifies the owner of r over both channels and marks it sent if
// either succeeded.
func (s *NotificationServiceImpl) deliverDue(ctx context.Context, r *reminder.Reminder, date string, log *logrus.Entry) (delivered bool) {
	rlog := log.WithFields(logrus.Fields{"reminder_id": r.ID, "ib_id": r.IBID})
	defer func() {
		if rec := recover(); rec != nil {
			rlog.WithField("panic", rec).Error("Recovered from panic while delivering due reminder")
			delivered = false
		}
	}()

	chatID := s.chatIDFor(ctx, r.CreatedBy, rlog)

	emailErr := s.email.SendReminder(ctx, r.CreatedBy, notify.ReminderSubject, r)
	if emailErr != nil {
		rlog.WithError(emailErr).WithField("failure", FailureTransport).Warn("Reminder email failed")
	}
	chatErr := s.chat.SendReminder(ctx, chatID, r)
	if chatErr != nil {
		logChatError(rlog, chatErr, "Reminder chat message failed")
	}
	if emailErr != nil && chatErr != nil {
		rlog.Error("Due reminder not delivered on any channel")
		return false
	}

	marked, err := s.reminderRepo.MarkSent(ctx, r.ID, date)
	if err != nil {
		rlog.WithError(err).WithField("failure", FailureStore).Error("Delivered reminder could not be marked sent")
		return false
	}
	if !marked {
		rlog.Warn("Reminder changed during delivery, not marked sent")
		return false
	}
	rlog.WithFields(logrus.Fields{
		"email": emailErr == nil,
		"chat":  chatErr == nil,
	}).Info("Due reminder delivered")
	return true
}

func (s *NotificationServiceImpl) EscalatePayments(ctx context.Context, today time.Time, log *logrus.Entry) int {
	all, err := s.reminderRepo.ListAll(ctx)
	if err != nil {
		log.WithError(err).WithField("failure", FailureStore).Error("Failed to list reminders for escalation")
		return 0
	}

	escalations := 0
	for _, r := range all {
		if ctx.Err() != nil {
			log.WithError(ctx.Err()).Warn("Run cancelled, stopping payment escalation")
			break
		}
		escalations += s.escalateRecord(ctx, r, today, log)
	}
	log.WithField("escalations", escalations).Info("Payment escalation check done")
	return escalations
}

// escalateRecord sends one escalation per open payment of r whose window
// contains today and whose target has an assignee.
func (s *NotificationServiceImpl) escalateRecord(ctx context.Context, r *reminder.Reminder, today time.Time, log *logrus.Entry) (count int) {
	rlog := log.WithFields(logrus.Fields{"reminder_id": r.ID, "ib_id": r.IBID})
	defer func() {
		if rec := recover(); rec != nil {
			rlog.WithField("panic", rec).Error("Recovered from panic while escalating payments")
		}
	}()

	targets, err := r.Targets()
	if err != nil {
		rlog.WithError(err).WithField("failure", FailureParse).Warn("Skipping record with malformed targets")
		return 0
	}
	payments, err := r.Payments()
	if err != nil {
		rlog.WithError(err).WithField("failure", FailureParse).Warn("Skipping record with malformed payments")
		return 0
	}

	for i, p := range payments {
		if p.EffectiveStatus().IsTerminal() {
			continue
		}
		inWindow, err := p.InEscalationWindow(today)
		if err != nil {
			rlog.WithError(err).WithFields(logrus.Fields{"failure": FailureParse, "payment": i}).Debug("Skipping payment with unparseable date")
			continue
		}
		if !inWindow {
			continue
		}
		assignee := targets.Assignee(p.TargetKey)
		if assignee == "" {
			continue
		}

		e := notify.Escalation{
			IBID:        r.IBID,
			Name:        r.Name,
			TargetKey:   p.TargetKey,
			PaymentDate: p.Date,
			Amount:      p.Amount,
		}
		plog := rlog.WithFields(logrus.Fields{"payment": i, "target": p.TargetKey, "assignee": assignee})
		s.sendEscalation(ctx, assignee, e, plog)
		count++
	}
	return count
}

func (s *NotificationServiceImpl) sendEscalation(ctx context.Context, assignee string, e notify.Escalation, log *logrus.Entry) {
	chatOK := false
	if chatID := s.chatIDFor(ctx, assignee, log); chatID != "" {
		if err := s.chat.SendEscalation(ctx, chatID, e); err != nil {
			logChatError(log, err, "Escalation chat message failed")
		} else {
			chatOK = true
		}
	}
	emailOK := false
	if err := s.email.SendEscalation(ctx, assignee, e); err != nil {
		log.WithError(err).WithField("failure", FailureTransport).Warn("Escalation email failed")
	} else {
		emailOK = true
	}
	log.WithFields(logrus.Fields{"email": emailOK, "chat": chatOK}).Info("Payment escalation sent")
}

// chatIDFor returns the linked chat of email, or "" when there is none.
func (s *NotificationServiceImpl) chatIDFor(ctx context.Context, email string, log *logrus.Entry) string {
	u, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, idb.ErrUserNotFound) {
			log.WithError(err).WithField("failure", FailureStore).Warn("Failed to look up chat ID")
		}
		return ""
	}
	return u.TelegramChatID
}

func logChatError(log *logrus.Entry, err error, msg string) {
	if errors.Is(err, telegram.ErrNoChatID) {
		log.Debug("No chat ID linked, skipping chat delivery")
		return
	}
	log.WithError(err).WithField("failure", FailureTransport).Warn(msg)
}
