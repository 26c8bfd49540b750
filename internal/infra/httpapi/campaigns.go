package httpapi

import (
	"net/http"

	"ib_reminder_service/internal/app"

	"github.com/gin-gonic/gin"
)

func (h *Handler) ListCampaigns(c *gin.Context) {
	page, err := intQuery(c, "page")
	if err != nil {
		h.fail(c, err)
		return
	}
	res, err := h.campaigns.List(c.Request.Context(), app.CampaignQuery{
		Search:  c.Query("search"),
		SortBy:  c.Query("sort_by"),
		SortDir: c.Query("sort_dir"),
		Page:    page,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, campaignListResponse{
		Campaigns:  toCampaignList(res.Campaigns),
		TotalPages: res.TotalPages,
		TotalCount: res.TotalCount,
	})
}

func (h *Handler) CreateCampaign(c *gin.Context) {
	var req campaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	created, err := h.campaigns.Create(c.Request.Context(), callerOf(c), req.input())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": created.ID})
}

func (h *Handler) UpdateCampaign(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	var req campaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	if _, err := h.campaigns.Update(c.Request.Context(), callerOf(c), id, req.input()); err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c)
}

func (h *Handler) DeleteCampaign(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.campaigns.Delete(c.Request.Context(), callerOf(c), id); err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c)
}

func (h *Handler) ExportCampaigns(c *gin.Context) {
	views, err := h.campaigns.Export(c.Request.Context(), app.ExportQuery{
		Status:   c.DefaultQuery("status", "all"),
		DateFrom: c.Query("date_from"),
		DateTo:   c.Query("date_to"),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toCampaignList(views))
}
