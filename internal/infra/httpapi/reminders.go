package httpapi

import (
	"net/http"
	"strconv"

	"ib_reminder_service/internal/app"

	"github.com/gin-gonic/gin"
)

const testSentMessage = "Test notification sent. Status remains Pending until 07:00 AM on reminder date."

func (h *Handler) ListReminders(c *gin.Context) {
	page, err := intQuery(c, "page")
	if err != nil {
		h.fail(c, err)
		return
	}
	res, err := h.reminders.List(c.Request.Context(), callerOf(c), app.ReminderQuery{
		Search: c.Query("search"),
		Month:  c.Query("month"),
		Page:   page,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, reminderListResponse{Reminders: toReminderList(res.Reminders), TotalPages: res.TotalPages})
}

func (h *Handler) CreateReminder(c *gin.Context) {
	var req reminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	r, err := h.reminders.Create(c.Request.Context(), callerOf(c), req.input())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": r.ID})
}

func (h *Handler) GetReminder(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	r, err := h.reminders.Get(c.Request.Context(), callerOf(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "contract": toReminderJSON(r)})
}

func (h *Handler) UpdateReminder(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	var req reminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	if _, err := h.reminders.Update(c.Request.Context(), callerOf(c), id, req.input()); err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c)
}

func (h *Handler) DeleteReminder(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.reminders.Delete(c.Request.Context(), callerOf(c), id); err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c)
}

func (h *Handler) SendTestReminder(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.reminders.SendTest(c.Request.Context(), callerOf(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Message: testSentMessage})
}

func (h *Handler) UpdatePayment(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil {
		h.fail(c, app.ErrPaymentIndex)
		return
	}
	var req paymentPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	payments, err := h.reminders.UpdatePayment(c.Request.Context(), callerOf(c), id, idx, app.PaymentPatch{
		Status:     req.Status,
		PaidAmount: req.PaidAmount,
		HashLink:   req.HashLink,
		Comment:    req.Comment,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "payments": payments})
}

func (h *Handler) TodaysReminders(c *gin.Context) {
	list, err := h.reminders.Todays(c.Request.Context(), callerOf(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toReminderList(list))
}

func (h *Handler) PaymentCalendar(c *gin.Context) {
	year, err := intQuery(c, "year")
	if err != nil {
		h.fail(c, err)
		return
	}
	month, err := intQuery(c, "month")
	if err != nil {
		h.fail(c, err)
		return
	}
	entries, err := h.reminders.PaymentCalendar(c.Request.Context(), callerOf(c), app.CalendarQuery{
		Year:   year,
		Month:  month,
		Search: c.Query("search"),
		Status: c.Query("status"),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "payments": entries})
}

// EmailPreview renders the reminder email as HTML. A missing or bad id
// previews the sample record.
func (h *Handler) EmailPreview(c *gin.Context) {
	id, _ := strconv.ParseInt(c.Query("id"), 10, 64)
	html, err := h.reminders.Preview(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}
