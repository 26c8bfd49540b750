package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"ib_reminder_service/internal/app"
	idb "ib_reminder_service/internal/infra/database"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// APIResponse is the envelope of every non-listing response.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

var errInvalidID = errors.New("invalid id")

// statusOf maps a service error to its HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, app.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, app.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, idb.ErrUserNotFound),
		errors.Is(err, idb.ErrReminderNotFound),
		errors.Is(err, idb.ErrCampaignNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrInvalidRole),
		errors.Is(err, app.ErrCannotDeleteSelf),
		errors.Is(err, app.ErrEmailRequired),
		errors.Is(err, app.ErrPasswordRequired),
		errors.Is(err, app.ErrPaymentIndex),
		errors.Is(err, app.ErrInvalidStatus),
		errors.Is(err, app.ErrInvalidInput),
		errors.Is(err, idb.ErrDuplicateEmail),
		errors.Is(err, errInvalidID):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError && !errors.Is(err, app.ErrTestSendFailed) {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"path":           c.FullPath(),
			"correlation_id": c.GetString(ctxCorrelationID),
		}).Error("Request failed")
		msg = "Internal server error"
	}
	c.JSON(status, APIResponse{Success: false, Message: msg})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, APIResponse{Success: false, Message: msg})
}

func respondOK(c *gin.Context) {
	c.JSON(http.StatusOK, APIResponse{Success: true})
}

func idParam(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}

// intQuery parses an optional integer query value; missing reads as 0.
func intQuery(c *gin.Context, name string) (int, error) {
	v := c.Query(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, app.ErrInvalidInput
	}
	return n, nil
}
