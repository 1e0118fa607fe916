package sessions

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acadlive/backend/internal/courses"
	"github.com/acadlive/backend/internal/middleware"
	"github.com/acadlive/backend/internal/models"
	"github.com/acadlive/backend/pkg/response"
)

// CreateRequest is the body for POST /courses/:id/sessions.
type CreateRequest struct {
	Title            string `json:"title" binding:"required"`
	Description      string `json:"description"`
	ScheduledStartAt string `json:"scheduled_start_at" binding:"required"`
	ScheduledEndAt   string `json:"scheduled_end_at" binding:"required"`
	MaxParticipants  int    `json:"max_participants" binding:"required"`
	RecordingEnabled bool   `json:"recording_enabled"`
}

// UpdateRequest is the body for PATCH /sessions/:id.
type UpdateRequest struct {
	Title            *string `json:"title"`
	Description      *string `json:"description"`
	ScheduledStartAt *string `json:"scheduled_start_at"`
	ScheduledEndAt   *string `json:"scheduled_end_at"`
	MaxParticipants  *int    `json:"max_participants"`
	RecordingEnabled *bool   `json:"recording_enabled"`
}

// EndRequest is the body for POST /sessions/:id/end.
type EndRequest struct {
	RecordingURL *string `json:"recording_url"`
}

// Handler handles session lifecycle HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a session handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Create handles POST /courses/:id/sessions (instructor or admin).
func (h *Handler) Create(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid course id")
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	startAt, err := time.Parse(time.RFC3339, req.ScheduledStartAt)
	if err != nil {
		response.BadRequest(c, "invalid scheduled_start_at")
		return
	}
	endAt, err := time.Parse(time.RFC3339, req.ScheduledEndAt)
	if err != nil {
		response.BadRequest(c, "invalid scheduled_end_at")
		return
	}

	session, existed, err := h.svc.Create(c.Request.Context(), middleware.Caller(c), CreateInput{
		CourseID:         courseID,
		Title:            req.Title,
		Description:      req.Description,
		ScheduledStartAt: startAt,
		ScheduledEndAt:   endAt,
		MaxParticipants:  req.MaxParticipants,
		RecordingEnabled: req.RecordingEnabled,
	})
	if err != nil {
		h.renderError(c, err)
		return
	}
	if existed {
		response.OK(c, gin.H{"session": session, "already_exists": true})
		return
	}
	response.Created(c, gin.H{"session": session, "already_exists": false})
}

// ListByCourse handles GET /courses/:id/sessions?page=&limit=.
func (h *Handler) ListByCourse(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid course id")
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	list, total, err := h.svc.ListByCourse(c.Request.Context(), middleware.Caller(c), courseID, page, limit)
	if err != nil {
		h.renderError(c, err)
		return
	}
	response.OK(c, gin.H{"sessions": list, "total": total, "page": page, "limit": limit})
}

// GetByID handles GET /sessions/:id (session detail plus roster).
func (h *Handler) GetByID(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	detail, err := h.svc.GetDetail(c.Request.Context(), middleware.Caller(c), sessionID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	response.OK(c, detail)
}

// Update handles PATCH /sessions/:id (owner or admin, scheduled only).
func (h *Handler) Update(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	in := UpdateInput{
		Title:            req.Title,
		Description:      req.Description,
		MaxParticipants:  req.MaxParticipants,
		RecordingEnabled: req.RecordingEnabled,
	}
	if req.ScheduledStartAt != nil {
		t, err := time.Parse(time.RFC3339, *req.ScheduledStartAt)
		if err != nil {
			response.BadRequest(c, "invalid scheduled_start_at")
			return
		}
		in.ScheduledStartAt = &t
	}
	if req.ScheduledEndAt != nil {
		t, err := time.Parse(time.RFC3339, *req.ScheduledEndAt)
		if err != nil {
			response.BadRequest(c, "invalid scheduled_end_at")
			return
		}
		in.ScheduledEndAt = &t
	}

	session, err := h.svc.Update(c.Request.Context(), middleware.Caller(c), sessionID, in)
	if err != nil {
		h.renderError(c, err)
		return
	}
	response.OK(c, session)
}

// Start handles POST /sessions/:id/start (owner or admin).
func (h *Handler) Start(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	session, joinURL, err := h.svc.Start(c.Request.Context(), middleware.Caller(c), sessionID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	response.OK(c, gin.H{"session": session, "join_url": joinURL})
}

// End handles POST /sessions/:id/end (owner or admin).
func (h *Handler) End(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	var req EndRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		response.BadRequest(c, "invalid request")
		return
	}
	session, err := h.svc.End(c.Request.Context(), middleware.Caller(c), sessionID, req.RecordingURL)
	if err != nil {
		h.renderError(c, err)
		return
	}
	response.OK(c, session)
}

// Delete handles DELETE /sessions/:id (owner or admin, not while live).
func (h *Handler) Delete(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	if err := h.svc.Delete(c.Request.Context(), middleware.Caller(c), sessionID); err != nil {
		h.renderError(c, err)
		return
	}
	response.NoContent(c)
}

// MySessions handles GET /me/sessions (sessions visible via enrollment).
func (h *Handler) MySessions(c *gin.Context) {
	out, err := h.svc.ForStudent(c.Request.Context(), middleware.Caller(c).ID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	response.OK(c, out)
}

func (h *Handler) renderError(c *gin.Context, err error) {
	var stateErr *models.InvalidStateError
	switch {
	case errors.Is(err, ErrSessionNotFound):
		response.NotFound(c, "session not found")
	case errors.Is(err, courses.ErrCourseNotFound):
		response.NotFound(c, "course not found")
	case errors.Is(err, ErrPermissionDenied):
		response.Forbidden(c, "only the session's instructor or an admin may do this")
	case errors.Is(err, courses.ErrNotEnrolled):
		response.Forbidden(c, "you are not enrolled in this course")
	case errors.Is(err, ErrInvalidSchedule), errors.Is(err, ErrInvalidCapacity):
		response.BadRequest(c, err.Error())
	case errors.Is(err, ErrDeleteLive):
		response.Conflict(c, err.Error())
	case errors.As(err, &stateErr):
		response.Conflict(c, stateErr.Error())
	default:
		h.logger.Error("session operation failed", zap.Error(err))
		response.Internal(c, "internal error")
	}
}
