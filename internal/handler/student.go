package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"campusattend/internal/attendance"
	"campusattend/internal/od"
)

const recentActivityLimit = 3

func (h *Handler) studentDashboard(c *gin.Context) {
	ctx := c.Request.Context()
	id := h.identity(c)

	rec, err := h.Attendance.TodayFor(ctx, id.StudentID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	counts, err := h.Pipeline.StudentCounts(ctx, id.StudentID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	recent, err := h.Pipeline.ListForStudent(ctx, id.StudentID, recentActivityLimit)
	if err != nil {
		h.respondError(c, err)
		return
	}

	today := "Not Marked"
	if rec != nil {
		today = rec.Status
	}
	activities := make([]gin.H, 0, len(recent))
	for _, r := range recent {
		activities = append(activities, gin.H{
			"activity_name": r.ActivityName,
			"event_date":    r.EventDate,
			"status":        r.Status,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"today_attendance":  today,
		"od_stats":          counts,
		"student_info":      id,
		"recent_activities": activities,
	})
}

// markAttendance is the authenticated path: a rejected face is 422, a
// repeat mark on the same day is 200 with already_marked.
func (h *Handler) markAttendance(c *gin.Context) {
	id := h.identity(c)
	image, header, err := h.readUpload(c, "image")
	if err != nil {
		h.respondError(c, err)
		return
	}
	if image == nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "No image provided", "code": "VALIDATION_ERROR"})
		return
	}

	res, err := h.Attendance.Mark(c.Request.Context(), image, header.Filename, id.StudentID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	student := gin.H{"name": id.Name, "student_id": id.StudentID}
	switch res.Outcome {
	case attendance.OutcomeRejected:
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"success":    false,
			"error":      res.Reason,
			"code":       "RECOGNITION_REJECTED",
			"confidence": res.Confidence,
		})
	case attendance.OutcomeAlreadyMarked:
		c.JSON(http.StatusOK, gin.H{
			"success":        true,
			"already_marked": true,
			"message":        "Attendance already marked today",
			"student":        student,
			"confidence":     res.Record.Confidence,
			"timestamp":      res.Record.Timestamp,
		})
	default:
		c.JSON(http.StatusOK, gin.H{
			"success":        true,
			"already_marked": false,
			"message":        "Attendance marked successfully!",
			"student":        student,
			"confidence":     res.Record.Confidence,
			"timestamp":      res.Record.Timestamp,
		})
	}
}

func (h *Handler) uploadOD(c *gin.Context) {
	id := h.identity(c)
	doc, header, err := h.readUpload(c, "od_file")
	if err != nil {
		h.respondError(c, err)
		return
	}
	in := od.SubmitInput{
		StudentID:          id.StudentID,
		StudentName:        id.Name,
		ActivityType:       c.PostForm("activity_type"),
		ActivityName:       c.PostForm("activity_name"),
		EventDate:          c.PostForm("event_date"),
		EventVenue:         c.PostForm("event_venue"),
		OrganizedBy:        c.PostForm("organized_by"),
		CoordinatorName:    c.PostForm("coordinator_name"),
		CoordinatorContact: c.PostForm("coordinator_contact"),
		Reason:             c.PostForm("od_reason"),
		Document:           doc,
	}
	if header != nil {
		in.FileName = header.Filename
	}

	sub, err := h.Pipeline.Submit(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}

	verification := gin.H{"is_valid": sub.Verified, "message": sub.Message}
	if sub.DetectedActivity != "" {
		verification["detected_activity"] = sub.DetectedActivity
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      "OD request submitted successfully!",
		"request_id":   sub.Request.ID,
		"verification": verification,
	})
}

func (h *Handler) studentODRequests(c *gin.Context) {
	list, err := h.Pipeline.ListForStudent(c.Request.Context(), h.identity(c).StudentID, 0)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"od_requests": summaries(list)})
}

func summaries(list []od.Request) []od.Request {
	out := make([]od.Request, len(list))
	for i, r := range list {
		out[i] = r.Summary()
	}
	return out
}
