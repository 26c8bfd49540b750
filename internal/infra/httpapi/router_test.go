package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"ib_reminder_service/internal/app"
	"ib_reminder_service/internal/domain/notify"
	"ib_reminder_service/internal/domain/reminder"
	"ib_reminder_service/internal/domain/user"
	idb "ib_reminder_service/internal/infra/database"
	"ib_reminder_service/internal/infra/email"
	"ib_reminder_service/internal/infra/telegram"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
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

type testAPI struct {
	router    *gin.Engine
	conn      *idb.Conn
	users     *idb.UserRepository
	reminders *idb.ReminderRepository
	admin     *app.AdminService
	email     *MockEmailSender
	chat      *MockChatSender
}

func setupAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := idb.Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	logger, _ := test.NewNullLogger()
	log := logrus.NewEntry(logger)
	renderer, err := email.NewRenderer("")
	require.NoError(t, err)

	users := idb.NewUserRepository(conn)
	reminders := idb.NewReminderRepository(conn)
	emailSender := new(MockEmailSender)
	chat := new(MockChatSender)

	admin := app.NewAdminService(users)
	h := NewHandler(
		admin,
		app.NewReminderService(reminders, users, emailSender, chat, renderer, time.UTC, log),
		app.NewCampaignService(idb.NewCampaignRepository(conn), time.UTC),
		conn.DB,
		log,
	)
	return &testAPI{
		router:    NewRouter(h),
		conn:      conn,
		users:     users,
		reminders: reminders,
		admin:     admin,
		email:     emailSender,
		chat:      chat,
	}
}

func (a *testAPI) addUser(t *testing.T, email string, role user.Role) *user.User {
	t.Helper()
	u, err := a.admin.AddUser(context.Background(), &user.User{Role: user.RoleAdmin}, app.NewUserInput{
		Email: email, Role: role, Password: "pw-" + email,
	})
	require.NoError(t, err)
	return u
}

func (a *testAPI) do(t *testing.T, method, path, caller string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set(headerUserEmail, caller)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestHealthCheck(t *testing.T) {
	api := setupAPI(t)

	w := api.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(headerCorrelationID))

	require.NoError(t, api.conn.Close())
	w = api.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestLogin(t *testing.T) {
	api := setupAPI(t)
	api.addUser(t, "ib@x.com", user.RoleIB)

	w := api.do(t, http.MethodPost, "/api/login", "", gin.H{"email": "IB@x.com", "password": "pw-ib@x.com"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp loginResponse
	decode(t, w, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, "ib@x.com", resp.Email)
	assert.Equal(t, user.RoleIB, resp.Role)

	w = api.do(t, http.MethodPost, "/api/login", "", gin.H{"email": "ib@x.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = api.do(t, http.MethodPost, "/api/login", "", gin.H{"email": "ib@x.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var fail APIResponse
	decode(t, w, &fail)
	assert.False(t, fail.Success)
	assert.Equal(t, "Email and password are required.", fail.Message)
}

func TestTeamMembersRequiresCaller(t *testing.T) {
	api := setupAPI(t)
	api.addUser(t, "b@x.com", user.RoleIB)
	api.addUser(t, "a@x.com", user.RoleBackoffice)

	w := api.do(t, http.MethodGet, "/api/team-members", "", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = api.do(t, http.MethodGet, "/api/team-members", "stranger@x.com", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(t, http.MethodGet, "/api/team-members", "b@x.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var members []app.TeamMember
	decode(t, w, &members)
	require.Len(t, members, 2)
	assert.Equal(t, "a@x.com", members[0].Email)
}

func TestUserManagement(t *testing.T) {
	api := setupAPI(t)
	admin := api.addUser(t, "root@x.com", user.RoleAdmin)
	api.addUser(t, "ib@x.com", user.RoleIB)

	w := api.do(t, http.MethodGet, "/api/users", "ib@x.com", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(t, http.MethodPost, "/api/users", "root@x.com", gin.H{"email": "new@x.com", "role": "Backoffice", "password": "pw"})
	require.Equal(t, http.StatusOK, w.Code)
	var created struct {
		Success bool  `json:"success"`
		ID      int64 `json:"id"`
	}
	decode(t, w, &created)
	assert.True(t, created.Success)

	w = api.do(t, http.MethodPost, "/api/users", "root@x.com", gin.H{"email": "new@x.com", "password": "pw"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = api.do(t, http.MethodPost, "/api/users", "root@x.com", gin.H{"email": "x@x.com", "role": "Owner", "password": "pw"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodGet, "/api/users", "root@x.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]any
	decode(t, w, &list)
	assert.Len(t, list, 3)
	assert.NotContains(t, list[0], "password_hash")
	assert.Contains(t, list[0], "telegram_chat_id")

	path := "/api/users/" + itoa(created.ID)
	w = api.do(t, http.MethodPut, path, "root@x.com", gin.H{"role": "IB", "telegram_chat_id": "55"})
	assert.Equal(t, http.StatusOK, w.Code)
	u, err := api.users.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "55", u.TelegramChatID)

	w = api.do(t, http.MethodPost, path+"/reset-password", "root@x.com", gin.H{"password": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = api.do(t, http.MethodPost, path+"/reset-password", "root@x.com", gin.H{"password": "fresh"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodDelete, "/api/users/"+itoa(admin.ID), "root@x.com", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = api.do(t, http.MethodDelete, path, "root@x.com", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = api.do(t, http.MethodDelete, path, "root@x.com", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = api.do(t, http.MethodDelete, "/api/users/abc", "root@x.com", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodGet, "/api/users/generate-password", "root@x.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var pw map[string]string
	decode(t, w, &pw)
	assert.Len(t, pw["password"], 14)
}

func TestReminderEndpoints(t *testing.T) {
	api := setupAPI(t)
	api.addUser(t, "ib@x.com", user.RoleIB)
	api.addUser(t, "am@x.com", user.RoleAccountManager)
	api.addUser(t, "bo@x.com", user.RoleBackoffice)

	body := gin.H{
		"ib_id":         "1001",
		"name":          "Acme",
		"reminder_date": "2026-02-23",
		"targets":       gin.H{"ftd": gin.H{"enabled": true, "assignee": "bo@x.com"}},
		"payments":      []gin.H{{"date": "2026-03-10", "amount": "500", "target_key": "ftd"}},
	}
	w := api.do(t, http.MethodPost, "/api/ib-reminders", "am@x.com", body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(t, http.MethodPost, "/api/ib-reminders", "ib@x.com", body)
	require.Equal(t, http.StatusOK, w.Code)
	var created struct {
		ID int64 `json:"id"`
	}
	decode(t, w, &created)

	w = api.do(t, http.MethodGet, "/api/ib-reminders?search=acme", "ib@x.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Reminders  []map[string]any `json:"reminders"`
		TotalPages int              `json:"total_pages"`
	}
	decode(t, w, &list)
	assert.Equal(t, 1, list.TotalPages)
	require.Len(t, list.Reminders, 1)
	assert.Equal(t, "ib@x.com", list.Reminders[0]["created_by"])
	assert.Equal(t, false, list.Reminders[0]["is_sent"])
	targets, ok := list.Reminders[0]["targets"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, targets, "ftd")

	path := "/api/ib-reminders/" + itoa(created.ID)
	w = api.do(t, http.MethodGet, path, "ib@x.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"contract"`)

	w = api.do(t, http.MethodGet, "/api/ib-reminders/9999", "ib@x.com", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, http.MethodPatch, path+"/payment/0", "ib@x.com", gin.H{"status": "Paid"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = api.do(t, http.MethodPatch, path+"/payment/3", "bo@x.com", gin.H{"status": "Paid"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = api.do(t, http.MethodPatch, path+"/payment/0", "bo@x.com", gin.H{"status": "Paid", "paid_amount": 500, "hash_link": "0xabc"})
	require.Equal(t, http.StatusOK, w.Code)
	var patched struct {
		Success  bool               `json:"success"`
		Payments []reminder.Payment `json:"payments"`
	}
	decode(t, w, &patched)
	require.Len(t, patched.Payments, 1)
	assert.Equal(t, reminder.StatusPaid, patched.Payments[0].Status)

	w = api.do(t, http.MethodGet, "/api/payment-calendar?year=2026&month=3", "am@x.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cal struct {
		Payments []app.CalendarEntry `json:"payments"`
	}
	decode(t, w, &cal)
	assert.Empty(t, cal.Payments)

	w = api.do(t, http.MethodGet, "/api/payment-calendar?year=2026&month=3", "bo@x.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &cal)
	require.Len(t, cal.Payments, 1)
	assert.Equal(t, "2026-03-10", cal.Payments[0].Date)

	w = api.do(t, http.MethodGet, "/api/payment-calendar?month=march", "bo@x.com", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPut, path, "ib@x.com", gin.H{"ib_id": "1001", "name": "Acme Ltd", "reminder_date": "2026-02-24"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodGet, "/api/ib-reminders?month=2026-02", "ib@x.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &list)
	require.Len(t, list.Reminders, 1)
	assert.Equal(t, "Acme Ltd", list.Reminders[0]["name"])

	w = api.do(t, http.MethodGet, "/api/todays-reminders", "am@x.com", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(t, http.MethodDelete, path, "ib@x.com", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = api.do(t, http.MethodDelete, path, "ib@x.com", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMalformedColumnsRenderEmpty(t *testing.T) {
	api := setupAPI(t)
	api.addUser(t, "ib@x.com", user.RoleIB)
	r := &reminder.Reminder{IBID: "1", ReminderDate: "2026-02-23", CreatedBy: "ib@x.com", TargetsJSON: `{"ftd":`, PaymentsJSON: `oops`}
	require.NoError(t, api.reminders.Create(context.Background(), r))

	w := api.do(t, http.MethodGet, "/api/ib-reminders/"+itoa(r.ID), "ib@x.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Contract struct {
			Targets  map[string]any `json:"targets"`
			Payments []any          `json:"payments"`
		} `json:"contract"`
	}
	decode(t, w, &resp)
	assert.Empty(t, resp.Contract.Targets)
	assert.Empty(t, resp.Contract.Payments)
}

func TestSendTestReminder(t *testing.T) {
	api := setupAPI(t)
	api.addUser(t, "ib@x.com", user.RoleIB)
	r := &reminder.Reminder{IBID: "1001", ReminderDate: "2026-02-23", CreatedBy: "ib@x.com"}
	require.NoError(t, api.reminders.Create(context.Background(), r))
	path := "/api/ib-reminders/" + itoa(r.ID) + "/send"

	api.email.On("SendReminder", mock.Anything, "ib@x.com", "[TEST] IB Contract Reminder — IB 1001", mock.Anything).Return(nil).Once()
	api.chat.On("SendReminder", mock.Anything, "", mock.Anything).Return(telegram.ErrNoChatID)

	w := api.do(t, http.MethodPost, path, "ib@x.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp APIResponse
	decode(t, w, &resp)
	assert.Equal(t, testSentMessage, resp.Message)

	api.email.On("SendReminder", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down")).Once()
	w = api.do(t, http.MethodPost, path, "ib@x.com", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	decode(t, w, &resp)
	assert.Equal(t, app.ErrTestSendFailed.Error(), resp.Message)

	stored, err := api.reminders.GetByID(context.Background(), r.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsSent)
	api.email.AssertExpectations(t)
}

func TestEmailPreview(t *testing.T) {
	api := setupAPI(t)

	w := api.do(t, http.MethodGet, "/api/email-preview", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "123456")

	w = api.do(t, http.MethodGet, "/api/email-preview?id=abc", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCampaignEndpoints(t *testing.T) {
	api := setupAPI(t)
	api.addUser(t, "ib@x.com", user.RoleIB)
	api.addUser(t, "bo@x.com", user.RoleBackoffice)

	body := gin.H{"ib_id": "1001", "name": "Always on", "campaign_start": "2020-01-01", "campaign_end": "2099-12-31"}
	w := api.do(t, http.MethodPost, "/api/ib-campaigns", "bo@x.com", body)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = api.do(t, http.MethodPost, "/api/ib-campaigns", "", body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(t, http.MethodPost, "/api/ib-campaigns", "ib@x.com", body)
	require.Equal(t, http.StatusOK, w.Code)
	var created struct {
		ID int64 `json:"id"`
	}
	decode(t, w, &created)

	w = api.do(t, http.MethodPost, "/api/ib-campaigns", "ib@x.com", gin.H{"ib_id": "2", "campaign_start": "2020-01-01", "campaign_end": "2020-01-31"})
	require.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodGet, "/api/ib-campaigns?sort_by=campaign_end&sort_dir=asc", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list campaignListResponse
	decode(t, w, &list)
	assert.Equal(t, 2, list.TotalCount)
	assert.Equal(t, 1, list.TotalPages)
	require.Len(t, list.Campaigns, 2)
	assert.Equal(t, "2", list.Campaigns[0].IBID)
	assert.Equal(t, "Deactive", list.Campaigns[0].Status)
	assert.Equal(t, "Active", list.Campaigns[1].Status)
	assert.Equal(t, "Mani", list.Campaigns[1].IBManager)

	w = api.do(t, http.MethodGet, "/api/ib-campaigns/export?status=active", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var exported []campaignJSON
	decode(t, w, &exported)
	require.Len(t, exported, 1)
	assert.Equal(t, "1001", exported[0].IBID)

	path := "/api/ib-campaigns/" + itoa(created.ID)
	w = api.do(t, http.MethodPut, path, "ib@x.com", gin.H{"ib_id": "1001", "campaign_start": "2020-01-01", "campaign_end": "2019-01-01"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = api.do(t, http.MethodDelete, path, "bo@x.com", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = api.do(t, http.MethodDelete, path, "ib@x.com", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger, hook := test.NewNullLogger()
	r := gin.New()
	r.Use(RateLimit(rate.Limit(1), 1, logrus.NewEntry(logger)))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}
	assert.Equal(t, http.StatusNoContent, send("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1"))
	assert.Equal(t, http.StatusNoContent, send("10.0.0.2"))
	assert.Equal(t, "Rate limit exceeded", hook.LastEntry().Message)
}

func TestRateLimiterStoreDropsIdleClients(t *testing.T) {
	clock := time.Date(2026, 3, 9, 7, 0, 0, 0, time.UTC)
	store := newRateLimiterStore(rate.Limit(1), 1)
	store.now = func() time.Time { return clock }

	first := store.getLimiter("10.0.0.1")
	store.getLimiter("10.0.0.2")
	assert.Same(t, first, store.getLimiter("10.0.0.1"))
	assert.Len(t, store.limiters, 2)

	clock = clock.Add(limiterIdleTTL / 2)
	store.getLimiter("10.0.0.1")

	clock = clock.Add(limiterIdleTTL/2 + time.Second)
	store.getLimiter("10.0.0.3")
	assert.Len(t, store.limiters, 2)
	assert.Contains(t, store.limiters, "10.0.0.1")
	assert.NotContains(t, store.limiters, "10.0.0.2")
	assert.Contains(t, store.limiters, "10.0.0.3")
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{app.ErrNotAuthorized, http.StatusForbidden},
		{app.ErrInvalidCredentials, http.StatusUnauthorized},
		{idb.ErrReminderNotFound, http.StatusNotFound},
		{idb.ErrCampaignNotFound, http.StatusNotFound},
		{app.ErrCannotDeleteSelf, http.StatusBadRequest},
		{idb.ErrDuplicateEmail, http.StatusBadRequest},
		{app.ErrTestSendFailed, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusOf(tt.err), tt.err.Error())
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
