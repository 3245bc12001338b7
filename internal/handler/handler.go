// Package handler exposes the REST surface over gin.
package handler

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"campusattend/internal/apperr"
	"campusattend/internal/attendance"
	"campusattend/internal/auth"
	"campusattend/internal/od"
	"campusattend/internal/roster"
)

// Roster lists registered students.
type Roster interface {
	List() []roster.Student
	Count() int
}

// Pinger is an external collaborator with a health check.
type Pinger interface {
	Health(ctx context.Context) error
}

// Deps are the services behind the handlers.
type Deps struct {
	Auth       *auth.Service
	Attendance *attendance.Service
	Pipeline   *od.Pipeline
	Review     *od.ReviewQueue
	Catalog    od.Catalog
	Roster     Roster
	Face       Pinger
	OCR        Pinger
	// Checks are infrastructure health checks reported by /healthz, keyed by name.
	Checks         map[string]func(context.Context) bool
	MaxUploadBytes int64
	Logger         *zap.Logger
	Now            func() time.Time
}

// Handler serves the API.
type Handler struct {
	Deps
}

// New builds a handler.
func New(d Deps) *Handler {
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = od.DefaultMaxDocumentBytes
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Catalog == nil {
		d.Catalog = od.StaticCatalog{}
	}
	return &Handler{Deps: d}
}

// Routes mounts every endpoint on r.
func (h *Handler) Routes(r gin.IRouter) {
	r.GET("/", h.systemStatus)
	r.GET("/healthz", h.healthz)
	r.GET("/api/health", h.health)
	r.GET("/api/system/status", h.systemStatus)
	r.GET("/api/students", h.students)
	r.GET("/api/activities", h.activities)
	r.POST("/api/register", h.register)
	r.POST("/api/login", h.login)
	r.POST("/recognize", h.recognize)

	authed := r.Group("/api", auth.Bearer(h.Auth))
	authed.GET("/me", h.me)

	student := authed.Group("/student", auth.RequireRole(auth.Student))
	student.GET("/dashboard", h.studentDashboard)
	student.POST("/mark-attendance", h.markAttendance)
	student.POST("/upload-od", h.uploadOD)
	student.GET("/od-requests", h.studentODRequests)

	admin := authed.Group("/admin", auth.RequireRole(auth.Admin))
	admin.GET("/dashboard", h.adminDashboard)
	admin.GET("/od-requests", h.adminODRequests)
	admin.GET("/od-request/:id", h.adminODRequest)
	admin.POST("/approve-od/:id", h.decide(od.OutcomeApprove))
	admin.POST("/reject-od/:id", h.decide(od.OutcomeReject))
}

func (h *Handler) respondError(c *gin.Context, err error) {
	e := apperr.From(err)
	if e.Status >= http.StatusInternalServerError {
		h.Logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("code", e.Code),
			zap.Error(err))
	}
	c.JSON(e.Status, gin.H{"success": false, "error": e.Message, "code": e.Code})
}

// readUpload reads one multipart file, capped one byte above limit so that
// oversized files are still seen as oversized.
func (h *Handler) readUpload(c *gin.Context, field string) ([]byte, *multipart.FileHeader, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 2*h.MaxUploadBytes+1<<20)
	file, header, err := c.Request.FormFile(field)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, apperr.With(apperr.ErrValidation, "File too large")
		}
		return nil, nil, nil
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, h.MaxUploadBytes+1))
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.ErrValidation, err, "could not read upload")
	}
	return data, header, nil
}

func (h *Handler) identity(c *gin.Context) auth.Identity {
	id, _ := auth.CurrentIdentity(c)
	return id
}
