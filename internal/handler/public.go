package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"campusattend/internal/attendance"
)

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "Face Recognition API is running",
		"timestamp": h.Now().Format(time.RFC3339),
	})
}

func (h *Handler) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	out := gin.H{"status": "ok"}
	status := http.StatusOK
	for name, check := range h.Checks {
		ok := check(ctx)
		out[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			out["status"] = "degraded"
		}
	}
	c.JSON(status, out)
}

func (h *Handler) systemStatus(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	c.JSON(http.StatusOK, gin.H{
		"service":      "campusattend",
		"status":       "running",
		"timestamp":    h.Now().Format(time.RFC3339),
		"face_service": pingStatus(ctx, h.Face),
		"ocr_service":  pingStatus(ctx, h.OCR),
		"features": []string{
			"face_recognition_attendance",
			"od_request_ocr_verification",
			"admin_review",
		},
	})
}

func pingStatus(ctx context.Context, p Pinger) string {
	if p == nil {
		return "not_configured"
	}
	if err := p.Health(ctx); err != nil {
		return "unavailable"
	}
	return "available"
}

func (h *Handler) students(c *gin.Context) {
	list := h.Roster.List()
	c.JSON(http.StatusOK, gin.H{"success": true, "students": list, "count": len(list)})
}

func (h *Handler) activities(c *gin.Context) {
	list, err := h.Catalog.Activities(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activities": list})
}

// recognize is the anonymous kiosk path. A rejected face is a normal
// result: 200 with success=false.
func (h *Handler) recognize(c *gin.Context) {
	image, header, err := h.readUpload(c, "image")
	if err != nil {
		h.respondError(c, err)
		return
	}
	if image == nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "No image provided", "code": "VALIDATION_ERROR"})
		return
	}

	res, err := h.Attendance.Recognize(c.Request.Context(), image, header.Filename)
	if err != nil {
		h.respondError(c, err)
		return
	}
	switch res.Outcome {
	case attendance.OutcomeRejected:
		c.JSON(http.StatusOK, gin.H{"success": false, "message": res.Reason, "confidence": res.Confidence})
	default:
		c.JSON(http.StatusOK, gin.H{
			"success":        true,
			"message":        recognizeMessage(res),
			"student":        gin.H{"name": res.StudentName, "student_id": res.StudentID},
			"confidence":     res.Record.Confidence,
			"timestamp":      res.Record.Timestamp,
			"already_marked": res.Outcome == attendance.OutcomeAlreadyMarked,
		})
	}
}

func recognizeMessage(res attendance.Result) string {
	name := res.StudentName
	if name == "" {
		name = res.StudentID
	}
	if res.Outcome == attendance.OutcomeAlreadyMarked {
		return "Attendance already marked today for " + name
	}
	return "Face recognized successfully! Welcome " + name
}
