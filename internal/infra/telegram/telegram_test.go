package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"ib_reminder_service/internal/domain/notify"
	"ib_reminder_service/internal/domain/reminder"
	"ib_reminder_service/internal/domain/user"
	"ib_reminder_service/internal/infra/database"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/telebot.v3"
)

const testToken = "123:abc"

type fakeAPI struct {
	mu       sync.Mutex
	messages []map[string]string
	fail     bool
	blocked  map[string]bool
	attempts int
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.URL.Path != "/bot"+testToken+"/sendMessage" {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":404,"description":"Not Found"}`))
		return
	}
	var params map[string]string
	_ = json.NewDecoder(r.Body).Decode(&params)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.blocked[params["chat_id"]] {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`))
		return
	}
	if f.fail {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
		return
	}
	f.messages = append(f.messages, params)
	_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":123,"type":"private"}}}`))
}

func (f *fakeAPI) sent() []map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]string(nil), f.messages...)
}

func newTestBot(t *testing.T, api *fakeAPI) *telebot.Bot {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	b, err := NewBot(BotConfig{Token: testToken, APIURL: srv.URL, Timeout: 5 * time.Second, Synchronous: true})
	require.NoError(t, err)
	return b
}

func nullEntry() *logrus.Entry {
	logger, _ := test.NewNullLogger()
	return logrus.NewEntry(logger)
}

func TestSendReminderPostsHTML(t *testing.T) {
	api := &fakeAPI{}
	adapter := NewTelebotAdapter(newTestBot(t, api), nullEntry())

	err := adapter.SendReminder(context.Background(), " 123 ", &reminder.Reminder{IBID: "1001", Name: "A<B"})
	require.NoError(t, err)

	sent := api.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "123", sent[0]["chat_id"])
	assert.Equal(t, "HTML", sent[0]["parse_mode"])
	assert.Contains(t, sent[0]["text"], "<b>IB ID:</b> 1001")
	assert.Contains(t, sent[0]["text"], "A&lt;B")
}

func TestSendEscalation(t *testing.T) {
	api := &fakeAPI{}
	adapter := NewTelebotAdapter(newTestBot(t, api), nullEntry())

	err := adapter.SendEscalation(context.Background(), "55", notify.Escalation{IBID: "1001", TargetKey: "ftd", PaymentDate: "2026-03-10"})
	require.NoError(t, err)

	sent := api.sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0]["text"], "Target Inspection Required!")
}

func TestSendFailures(t *testing.T) {
	api := &fakeAPI{fail: true}
	adapter := NewTelebotAdapter(newTestBot(t, api), nullEntry())
	ctx := context.Background()

	assert.ErrorIs(t, adapter.SendReminder(ctx, "", &reminder.Reminder{}), ErrNoChatID)
	assert.Error(t, adapter.SendReminder(ctx, "123", &reminder.Reminder{IBID: "1"}))
	assert.Empty(t, api.sent())

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Error(t, adapter.SendMessage(cancelled, "123", "hi"))
}

func TestBlockedChatsKeepBreakerClosed(t *testing.T) {
	api := &fakeAPI{blocked: map[string]bool{"1": true, "2": true, "3": true}}
	adapter := NewTelebotAdapter(newTestBot(t, api), nullEntry())
	ctx := context.Background()

	for _, chat := range []string{"1", "2", "3"} {
		err := adapter.SendMessage(ctx, chat, "hi")
		assert.ErrorIs(t, err, telebot.ErrBlockedByUser)
	}
	require.NoError(t, adapter.SendMessage(ctx, "4", "hi"))

	sent := api.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "4", sent[0]["chat_id"])
	assert.Equal(t, 4, api.attempts)
}

func TestIsRecipientError(t *testing.T) {
	assert.True(t, isRecipientError(telebot.ErrChatNotFound))
	assert.True(t, isRecipientError(fmt.Errorf("send: %w", telebot.ErrBlockedByUser)))
	assert.True(t, isRecipientError(errors.New("telegram: Bad Request: message is too long (400)")))
	assert.False(t, isRecipientError(telebot.NewError(500, "Internal Server Error")))
	assert.False(t, isRecipientError(errors.New("context deadline exceeded")))
}

func TestDisabledSender(t *testing.T) {
	var s DisabledSender
	ctx := context.Background()
	assert.ErrorIs(t, s.SendReminder(ctx, "", &reminder.Reminder{}), ErrNoChatID)
	assert.ErrorIs(t, s.SendReminder(ctx, "1", &reminder.Reminder{}), ErrDisabled)
	assert.ErrorIs(t, s.SendEscalation(ctx, "1", notify.Escalation{}), ErrDisabled)
}

func TestBotCommands(t *testing.T) {
	ctx := context.Background()
	conn, err := database.Open(ctx, "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	users := database.NewUserRepository(conn)
	require.NoError(t, users.Create(ctx, &user.User{Email: "ib@x.com", Role: user.RoleIB, TelegramChatID: "42"}))

	api := &fakeAPI{}
	b := newTestBot(t, api)
	RegisterBotCommands(ctx, b, users, nullEntry())

	update := func(chat int64, text string) telebot.Update {
		return telebot.Update{Message: &telebot.Message{
			Text:   text,
			Chat:   &telebot.Chat{ID: chat, Type: telebot.ChatPrivate},
			Sender: &telebot.User{ID: chat},
		}}
	}

	b.ProcessUpdate(update(42, "/start"))
	b.ProcessUpdate(update(77, "/start"))
	b.ProcessUpdate(update(77, "/help"))

	sent := api.sent()
	require.Len(t, sent, 3)
	assert.Equal(t, "42", sent[0]["chat_id"])
	assert.Contains(t, sent[0]["text"], "<code>42</code>")
	assert.Contains(t, sent[0]["text"], "ib@x.com")
	assert.Contains(t, sent[1]["text"], "Ask an administrator")
	assert.True(t, strings.HasPrefix(sent[2]["text"], "I deliver IB contract reminders"))
}

type fakeLister struct {
	list   []*reminder.Reminder
	err    error
	caller *user.User
}

func (f *fakeLister) Todays(_ context.Context, caller *user.User) ([]*reminder.Reminder, error) {
	f.caller = caller
	return f.list, f.err
}

func TestTodayCommand(t *testing.T) {
	ctx := context.Background()
	conn, err := database.Open(ctx, "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	users := database.NewUserRepository(conn)
	require.NoError(t, users.Create(ctx, &user.User{Email: "ib@x.com", Role: user.RoleIB, TelegramChatID: "42"}))

	lister := &fakeLister{list: []*reminder.Reminder{
		{IBID: "1001", Name: "A<B", IsSent: true},
		{IBID: "1002"},
	}}
	api := &fakeAPI{}
	b := newTestBot(t, api)
	RegisterOperatorHandlers(ctx, b, users, lister, nullEntry())

	msg := func(chat int64) telebot.Update {
		return telebot.Update{Message: &telebot.Message{
			Text:   "/today",
			Chat:   &telebot.Chat{ID: chat, Type: telebot.ChatPrivate},
			Sender: &telebot.User{ID: chat},
		}}
	}

	b.ProcessUpdate(msg(42))
	b.ProcessUpdate(msg(77))
	lister.list, lister.err = nil, errors.New("caller is not allowed to perform this action")
	b.ProcessUpdate(msg(42))
	lister.err = nil
	b.ProcessUpdate(msg(42))

	sent := api.sent()
	require.Len(t, sent, 4)
	require.NotNil(t, lister.caller)
	assert.Equal(t, "ib@x.com", lister.caller.Email)
	assert.Contains(t, sent[0]["text"], "Reminders due today: 2")
	assert.Contains(t, sent[0]["text"], "<b>1001</b> A&lt;B (Sent)")
	assert.Contains(t, sent[0]["text"], "<b>1002</b> — (Pending)")
	assert.Contains(t, sent[1]["text"], "Ask an administrator")
	assert.Contains(t, sent[2]["text"], "not allowed")
	assert.Equal(t, "No reminders are due today.", sent[3]["text"])
}
