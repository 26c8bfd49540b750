package httpapi

import (
	"encoding/json"
	"strings"

	"ib_reminder_service/internal/app"
	"ib_reminder_service/internal/domain/reminder"
	"ib_reminder_service/internal/domain/user"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool      `json:"success"`
	Email   string    `json:"email"`
	Role    user.Role `json:"role"`
}

type userJSON struct {
	ID             int64     `json:"id"`
	Email          string    `json:"email"`
	Role           user.Role `json:"role"`
	TelegramChatID string    `json:"telegram_chat_id"`
	CreatedAt      string    `json:"created_at"`
}

func toUserJSON(u *user.User) userJSON {
	return userJSON{ID: u.ID, Email: u.Email, Role: u.Role, TelegramChatID: u.TelegramChatID, CreatedAt: u.CreatedAt}
}

type createUserRequest struct {
	Email          string    `json:"email"`
	Role           user.Role `json:"role"`
	Password       string    `json:"password"`
	TelegramChatID string    `json:"telegram_chat_id"`
}

type updateUserRequest struct {
	Role           user.Role `json:"role"`
	TelegramChatID string    `json:"telegram_chat_id"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

// reminderJSON exposes targets and payments as JSON values. Columns that do
// not hold valid JSON are shown empty.
type reminderJSON struct {
	ID           int64           `json:"id"`
	IBID         string          `json:"ib_id"`
	Name         string          `json:"name"`
	StartDate    string          `json:"start_date"`
	EndDate      string          `json:"end_date"`
	ReminderDate string          `json:"reminder_date"`
	ReminderText string          `json:"reminder_text"`
	CreatedBy    string          `json:"created_by"`
	CreatedAt    string          `json:"created_at"`
	Targets      json.RawMessage `json:"targets"`
	Payments     json.RawMessage `json:"payments"`
	IsSent       bool            `json:"is_sent"`
}

func rawOr(s, fallback string) json.RawMessage {
	s = strings.TrimSpace(s)
	if s == "" || !json.Valid([]byte(s)) {
		return json.RawMessage(fallback)
	}
	return json.RawMessage(s)
}

func toReminderJSON(r *reminder.Reminder) reminderJSON {
	return reminderJSON{
		ID:           r.ID,
		IBID:         r.IBID,
		Name:         r.Name,
		StartDate:    r.StartDate,
		EndDate:      r.EndDate,
		ReminderDate: r.ReminderDate,
		ReminderText: r.ReminderText,
		CreatedBy:    r.CreatedBy,
		CreatedAt:    r.CreatedAt,
		Targets:      rawOr(r.TargetsJSON, "{}"),
		Payments:     rawOr(r.PaymentsJSON, "[]"),
		IsSent:       r.IsSent,
	}
}

func toReminderList(list []*reminder.Reminder) []reminderJSON {
	out := make([]reminderJSON, 0, len(list))
	for _, r := range list {
		out = append(out, toReminderJSON(r))
	}
	return out
}

type reminderRequest struct {
	IBID         string             `json:"ib_id"`
	Name         string             `json:"name"`
	StartDate    string             `json:"start_date"`
	EndDate      string             `json:"end_date"`
	ReminderDate string             `json:"reminder_date"`
	ReminderText string             `json:"reminder_text"`
	CreatedBy    string             `json:"created_by"`
	Targets      reminder.Targets   `json:"targets"`
	Payments     []reminder.Payment `json:"payments"`
}

func (r reminderRequest) input() app.ReminderInput {
	return app.ReminderInput{
		IBID:         r.IBID,
		Name:         r.Name,
		StartDate:    r.StartDate,
		EndDate:      r.EndDate,
		ReminderDate: r.ReminderDate,
		ReminderText: r.ReminderText,
		CreatedBy:    r.CreatedBy,
		Targets:      r.Targets,
		Payments:     r.Payments,
	}
}

type reminderListResponse struct {
	Reminders  []reminderJSON `json:"reminders"`
	TotalPages int            `json:"total_pages"`
}

type paymentPatchRequest struct {
	Status     *reminder.PaymentStatus `json:"status"`
	PaidAmount *reminder.Amount        `json:"paid_amount"`
	HashLink   *string                 `json:"hash_link"`
	Comment    *string                 `json:"comment"`
}

type campaignJSON struct {
	ID            int64  `json:"id"`
	IBID          string `json:"ib_id"`
	Name          string `json:"name"`
	CampaignStart string `json:"campaign_start"`
	CampaignEnd   string `json:"campaign_end"`
	Offer         string `json:"offer"`
	Keypoints     string `json:"keypoints"`
	IBManager     string `json:"ib_manager"`
	CreatedBy     string `json:"created_by"`
	CreatedAt     string `json:"created_at"`
	Status        string `json:"status"`
}

func toCampaignList(views []app.CampaignView) []campaignJSON {
	out := make([]campaignJSON, 0, len(views))
	for _, v := range views {
		out = append(out, campaignJSON{
			ID:            v.ID,
			IBID:          v.IBID,
			Name:          v.Name,
			CampaignStart: v.CampaignStart,
			CampaignEnd:   v.CampaignEnd,
			Offer:         v.Offer,
			Keypoints:     v.Keypoints,
			IBManager:     v.IBManager,
			CreatedBy:     v.CreatedBy,
			CreatedAt:     v.CreatedAt,
			Status:        v.Status,
		})
	}
	return out
}

type campaignRequest struct {
	IBID          string `json:"ib_id"`
	Name          string `json:"name"`
	CampaignStart string `json:"campaign_start"`
	CampaignEnd   string `json:"campaign_end"`
	Offer         string `json:"offer"`
	Keypoints     string `json:"keypoints"`
	IBManager     string `json:"ib_manager"`
}

func (r campaignRequest) input() app.CampaignInput {
	return app.CampaignInput{
		IBID:          r.IBID,
		Name:          r.Name,
		CampaignStart: r.CampaignStart,
		CampaignEnd:   r.CampaignEnd,
		Offer:         r.Offer,
		Keypoints:     r.Keypoints,
		IBManager:     r.IBManager,
	}
}

type campaignListResponse struct {
	Campaigns  []campaignJSON `json:"campaigns"`
	TotalPages int            `json:"total_pages"`
	TotalCount int            `json:"total_count"`
}
