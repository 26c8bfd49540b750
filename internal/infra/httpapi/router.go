package httpapi

import (
	"context"
	"net/http"
	"time"

	"ib_reminder_service/internal/app"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Per-IP limits on the /api group.
const (
	apiRateLimit = rate.Limit(10)
	apiRateBurst = 20
)

// Pinger reports whether the store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	admin     *app.AdminService
	reminders *app.ReminderService
	campaigns *app.CampaignService
	db        Pinger
	logger    *logrus.Entry
}

func NewHandler(
	admin *app.AdminService,
	reminders *app.ReminderService,
	campaigns *app.CampaignService,
	db Pinger,
	logger *logrus.Entry,
) *Handler {
	return &Handler{admin: admin, reminders: reminders, campaigns: campaigns, db: db, logger: logger}
}

// NewRouter builds the gin engine with every route of the back-office API.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), CorrelationID(), RequestLogger(h.logger))

	r.GET("/healthz", h.HealthCheck)

	api := r.Group("/api")
	api.Use(RateLimit(apiRateLimit, apiRateBurst, h.logger), Identify(h.admin, h.logger))

	api.POST("/login", h.Login)
	api.GET("/team-members", h.TeamMembers)

	users := api.Group("/users")
	users.GET("", h.ListUsers)
	users.POST("", h.CreateUser)
	users.GET("/generate-password", h.GeneratePassword)
	users.PUT("/:id", h.UpdateUser)
	users.DELETE("/:id", h.DeleteUser)
	users.POST("/:id/reset-password", h.ResetPassword)

	reminders := api.Group("/ib-reminders")
	reminders.GET("", h.ListReminders)
	reminders.POST("", h.CreateReminder)
	reminders.GET("/:id", h.GetReminder)
	reminders.PUT("/:id", h.UpdateReminder)
	reminders.DELETE("/:id", h.DeleteReminder)
	reminders.POST("/:id/send", h.SendTestReminder)
	reminders.PATCH("/:id/payment/:idx", h.UpdatePayment)

	api.GET("/todays-reminders", h.TodaysReminders)
	api.GET("/payment-calendar", h.PaymentCalendar)
	api.GET("/email-preview", h.EmailPreview)

	campaigns := api.Group("/ib-campaigns")
	campaigns.GET("", h.ListCampaigns)
	campaigns.POST("", h.CreateCampaign)
	campaigns.GET("/export", h.ExportCampaigns)
	campaigns.PUT("/:id", h.UpdateCampaign)
	campaigns.DELETE("/:id", h.DeleteCampaign)

	return r
}

func (h *Handler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		h.logger.WithError(err).Warn("Health check: database unreachable")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "database": "healthy"})
}
