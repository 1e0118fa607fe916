package participants

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acadlive/backend/internal/courses"
	"github.com/acadlive/backend/internal/middleware"
	"github.com/acadlive/backend/internal/models"
	"github.com/acadlive/backend/internal/sessions"
	"github.com/acadlive/backend/pkg/response"
)

// JoinRequest is the body for POST /sessions/:id/join.
type JoinRequest struct {
	EnrollmentID *string `json:"enrollment_id"`
}

// TokenRequest is the body for POST /sessions/:id/token.
type TokenRequest struct {
	Role string `json:"role"` // "moderator", "participant", or empty for natural tier
}

// Handler handles participant HTTP endpoints.
type Handler struct {
	tracker *Tracker
	logger  *zap.Logger
}

// NewHandler creates a participant handler.
func NewHandler(tracker *Tracker, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{tracker: tracker, logger: logger}
}

// Join handles POST /sessions/:id/join.
func (h *Handler) Join(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		response.BadRequest(c, "invalid request")
		return
	}
	var enrollmentID *uuid.UUID
	if req.EnrollmentID != nil {
		id, err := uuid.Parse(*req.EnrollmentID)
		if err != nil {
			response.BadRequest(c, "invalid enrollment_id")
			return
		}
		enrollmentID = &id
	}

	result, err := h.tracker.Join(c.Request.Context(), middleware.Caller(c), sessionID, enrollmentID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	response.OK(c, result)
}

// Leave handles POST /sessions/:id/leave.
func (h *Handler) Leave(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	result, err := h.tracker.Leave(c.Request.Context(), middleware.Caller(c), sessionID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	response.OK(c, result)
}

// IssueToken handles POST /sessions/:id/token (reconnect credential).
func (h *Handler) IssueToken(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		response.BadRequest(c, "invalid request")
		return
	}
	switch req.Role {
	case "", string(models.RoleModerator), string(models.RoleParticipant):
	default:
		response.BadRequest(c, "invalid role")
		return
	}

	result, err := h.tracker.IssueToken(c.Request.Context(), middleware.Caller(c), sessionID, models.ParticipantRole(req.Role))
	if err != nil {
		h.renderError(c, err)
		return
	}
	response.OK(c, result)
}

// Roster handles GET /sessions/:id/participants.
func (h *Handler) Roster(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	list, err := h.tracker.Roster(c.Request.Context(), middleware.Caller(c), sessionID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	response.OK(c, gin.H{"participants": list})
}

func (h *Handler) renderError(c *gin.Context, err error) {
	var stateErr *models.InvalidStateError
	switch {
	case errors.Is(err, sessions.ErrSessionNotFound):
		response.NotFound(c, "session not found")
	case errors.Is(err, ErrParticipantNotFound):
		response.NotFound(c, "you have not joined this session")
	case errors.Is(err, courses.ErrNotEnrolled):
		response.Forbidden(c, "you are not enrolled in this course")
	case errors.Is(err, ErrModeratorDenied):
		response.Forbidden(c, err.Error())
	case errors.Is(err, ErrSessionFull):
		response.Conflict(c, err.Error())
	case errors.As(err, &stateErr):
		response.Conflict(c, stateErr.Error())
	default:
		h.logger.Error("participant operation failed", zap.Error(err))
		response.Internal(c, "internal error")
	}
}
