package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"campusattend/internal/apperr"
	"campusattend/internal/od"
)

const recentRequestLimit = 5

func (h *Handler) adminDashboard(c *gin.Context) {
	ctx := c.Request.Context()

	total, err := h.Auth.CountStudents(ctx)
	if err != nil {
		h.respondError(c, err)
		return
	}
	today, err := h.Attendance.TodayCount(ctx)
	if err != nil {
		h.respondError(c, err)
		return
	}
	counts, err := h.Review.Counts(ctx)
	if err != nil {
		h.respondError(c, err)
		return
	}
	recent, err := h.Review.Recent(ctx, recentRequestLimit)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stats": gin.H{
			"total_students":      total,
			"today_attendance":    today,
			"pending_od_requests": counts.Pending,
		},
		"od_breakdown":    counts,
		"recent_requests": summaries(recent),
	})
}

func (h *Handler) adminODRequests(c *gin.Context) {
	list, err := h.Review.List(c.Request.Context(), c.Query("status"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"od_requests": summaries(list)})
}

func (h *Handler) adminODRequest(c *gin.Context) {
	req, err := h.Review.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "od_request": req})
}

func (h *Handler) decide(outcome od.Outcome) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Notes string `json:"notes"`
		}
		if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
			h.respondError(c, apperr.Wrap(apperr.ErrValidation, err, "invalid request body"))
			return
		}

		req, err := h.Review.Decide(c.Request.Context(), c.Param("id"), outcome, body.Notes, h.identity(c).Username)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":    true,
			"message":    "OD request " + string(req.Status),
			"od_request": req.Summary(),
		})
	}
}
