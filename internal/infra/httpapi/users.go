package httpapi

import (
	"net/http"
	"strings"

	"ib_reminder_service/internal/app"

	"github.com/gin-gonic/gin"
)

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		badRequest(c, "Email and password are required.")
		return
	}
	u, err := h.admin.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, loginResponse{Success: true, Email: u.Email, Role: u.Role})
}

func (h *Handler) TeamMembers(c *gin.Context) {
	if callerOf(c) == nil {
		h.fail(c, app.ErrNotAuthorized)
		return
	}
	members, err := h.admin.TeamMembers(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, members)
}

func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.admin.ListUsers(c.Request.Context(), callerOf(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]userJSON, 0, len(users))
	for _, u := range users {
		out = append(out, toUserJSON(u))
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	u, err := h.admin.AddUser(c.Request.Context(), callerOf(c), app.NewUserInput{
		Email:          req.Email,
		Role:           req.Role,
		Password:       req.Password,
		TelegramChatID: req.TelegramChatID,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": u.ID})
}

func (h *Handler) UpdateUser(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	if _, err := h.admin.UpdateUser(c.Request.Context(), callerOf(c), id, req.Role, req.TelegramChatID); err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c)
}

func (h *Handler) DeleteUser(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.admin.DeleteUser(c.Request.Context(), callerOf(c), id); err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c)
}

func (h *Handler) ResetPassword(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	if err := h.admin.ResetPassword(c.Request.Context(), callerOf(c), id, req.Password); err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c)
}

func (h *Handler) GeneratePassword(c *gin.Context) {
	pw, err := h.admin.GeneratePassword(callerOf(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"password": pw})
}
