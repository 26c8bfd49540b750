package app

import (
	"context"
	"testing"
	"time"

	"ib_reminder_service/internal/domain/notify"
	"ib_reminder_service/internal/domain/reminder"
	"ib_reminder_service/internal/domain/user"
	idb "ib_reminder_service/internal/infra/database"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mock email sender
type MockEmailSender struct {
	mock.Mock
}

func (m *MockEmailSender) SendReminder(ctx context.Context, to, subject string, r *reminder.Reminder) error {
	args := m.Called(ctx, to, subject, r)
	return args.Error(0)
}

func (m *MockEmailSender) SendEscalation(ctx context.Context, to string, e notify.Escalation) error {
	args := m.Called(ctx, to, e)
	return args.Error(0)
}

// Mock chat sender
type MockChatSender struct {
	mock.Mock
}

func (m *MockChatSender) SendReminder(ctx context.Context, chatID string, r *reminder.Reminder) error {
	args := m.Called(ctx, chatID, r)
	return args.Error(0)
}

func (m *MockChatSender) SendEscalation(ctx context.Context, chatID string, e notify.Escalation) error {
	args := m.Called(ctx, chatID, e)
	return args.Error(0)
}

type fixture struct {
	reminders *idb.ReminderRepository
	users     *idb.UserRepository
	runs      *idb.RunRepository
	campaigns *idb.CampaignRepository
	email     *MockEmailSender
	chat      *MockChatSender
	log       *logrus.Entry
	hook      *test.Hook
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, err := idb.Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	logger, hook := test.NewNullLogger()
	return &fixture{
		reminders: idb.NewReminderRepository(conn),
		users:     idb.NewUserRepository(conn),
		runs:      idb.NewRunRepository(conn),
		campaigns: idb.NewCampaignRepository(conn),
		email:     new(MockEmailSender),
		chat:      new(MockChatSender),
		log:       logrus.NewEntry(logger),
		hook:      hook,
	}
}

func (f *fixture) notificationService() *NotificationServiceImpl {
	return NewNotificationServiceImpl(f.reminders, f.users, f.runs, f.email, f.chat, time.UTC, f.log)
}

func (f *fixture) addUser(t *testing.T, email string, role user.Role, chatID string) *user.User {
	t.Helper()
	u := &user.User{Email: email, Role: role, TelegramChatID: chatID}
	require.NoError(t, f.users.Create(context.Background(), u))
	return u
}

func (f *fixture) addReminder(t *testing.T, r *reminder.Reminder) *reminder.Reminder {
	t.Helper()
	require.NoError(t, f.reminders.Create(context.Background(), r))
	return r
}

// entries returns the captured log entries with the given message.
func (f *fixture) entries(msg string) []*logrus.Entry {
	var out []*logrus.Entry
	for _, e := range f.hook.AllEntries() {
		if e.Message == msg {
			out = append(out, e)
		}
	}
	return out
}

func at(t *testing.T, date string) time.Time {
	t.Helper()
	d, err := time.ParseInLocation(reminder.DateLayout, date, time.UTC)
	require.NoError(t, err)
	return d.Add(7 * time.Hour)
}
