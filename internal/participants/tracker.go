// Package participants tracks who is inside a session's room: join/leave
// events, the capacity invariant, and accumulated attendance.
package participants

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acadlive/backend/internal/conference"
	"github.com/acadlive/backend/internal/courses"
	"github.com/acadlive/backend/internal/models"
)

var (
	// ErrSessionFull means the join would exceed the session's capacity.
	ErrSessionFull = errors.New("session is at maximum capacity")
	// ErrNotPresent means the participant exists but is not currently
	// present; a leave in that state is a no-op, not a failure.
	ErrNotPresent = errors.New("participant is not currently present")
	// ErrParticipantNotFound means the user never joined this session.
	ErrParticipantNotFound = errors.New("participant not found")
	// ErrModeratorDenied means a moderator token was requested by a caller
	// who is neither the session's instructor nor an admin.
	ErrModeratorDenied = errors.New("moderator access is limited to the instructor and admins")
)

// SessionDirectory resolves sessions (owned by the lifecycle package).
type SessionDirectory interface {
	ByID(ctx context.Context, id uuid.UUID) (*models.LiveSession, error)
}

// Store is the persistence boundary for participant rows. Join implementors
// must serialize the capacity check and activation per session so concurrent
// joins can never admit more than the session's maximum.
type Store interface {
	Join(ctx context.Context, session *models.LiveSession, userID uuid.UUID, enrollmentID *uuid.UUID, role models.ParticipantRole, now time.Time) (*models.Participant, error)
	Leave(ctx context.Context, sessionID, userID uuid.UUID, now time.Time) (*models.Participant, error)
	Roster(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error)
	CloseAllPresent(ctx context.Context, sessionID uuid.UUID, endedAt time.Time) (int64, error)
}

// JoinResult is everything a client needs to enter the room.
type JoinResult struct {
	JoinURL      string                 `json:"join_url"`
	RoomName     string                 `json:"room_name"`
	RoomPassword string                 `json:"room_password"`
	Token        string                 `json:"token"`
	Role         models.ParticipantRole `json:"role"`
	Participant  *models.Participant    `json:"participant"`
}

// LeaveResult reports the outcome of a leave.
type LeaveResult struct {
	WasPresent                bool  `json:"was_present"`
	AttendanceDurationSeconds int64 `json:"attendance_duration_seconds"`
}

// TokenResult is a reissued credential, used for reconnects without
// touching presence rows.
type TokenResult struct {
	JoinURL string                 `json:"join_url"`
	Token   string                 `json:"token"`
	Role    models.ParticipantRole `json:"role"`
}

// Tracker enforces who may enter a session and records attendance.
type Tracker struct {
	store    Store
	sessions SessionDirectory
	courses  courses.Directory
	tokens   *conference.TokenIssuer
	logger   *zap.Logger
	now      func() time.Time
}

// NewTracker creates a participant tracker.
func NewTracker(store Store, sessions SessionDirectory, dir courses.Directory, tokens *conference.TokenIssuer, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		store:    store,
		sessions: sessions,
		courses:  dir,
		tokens:   tokens,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock overrides the tracker clock. Tests only.
func (t *Tracker) SetClock(now func() time.Time) { t.now = now }

// Join admits the caller into the session's room: verifies entitlement,
// claims a capacity slot, and returns the signed join parameters.
func (t *Tracker) Join(ctx context.Context, caller models.Caller, sessionID uuid.UUID, enrollmentID *uuid.UUID) (*JoinResult, error) {
	session, role, resolvedEnrollment, err := t.authorize(ctx, caller, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == models.StatusEnded {
		return nil, &models.InvalidStateError{Op: "join", Current: session.Status}
	}
	if enrollmentID == nil {
		enrollmentID = resolvedEnrollment
	}

	now := t.now()
	participant, err := t.store.Join(ctx, session, caller.ID, enrollmentID, role, now)
	if err != nil {
		return nil, err
	}

	identity := conference.Identity{UserID: caller.ID, Name: caller.Name, Email: caller.Email}
	token, err := t.tokens.Issue(session, identity, role, now)
	if err != nil {
		return nil, err
	}
	joinURL, err := conference.BuildJoinURL(conference.JoinURLParams{
		ServerURL: session.ServerURL,
		Room:      session.RoomName,
		Token:     token,
		Password:  session.RoomPassword,
	})
	if err != nil {
		return nil, err
	}

	t.logger.Info("participant joined",
		zap.String("session_id", sessionID.String()),
		zap.String("user_id", caller.ID.String()),
		zap.String("role", string(role)),
	)
	return &JoinResult{
		JoinURL:      joinURL,
		RoomName:     session.RoomName,
		RoomPassword: session.RoomPassword,
		Token:        token,
		Role:         role,
		Participant:  participant,
	}, nil
}

// Leave marks the caller as no longer present and accumulates the completed
// interval into their attendance duration. Leaving while already absent is
// reported, not failed.
func (t *Tracker) Leave(ctx context.Context, caller models.Caller, sessionID uuid.UUID) (*LeaveResult, error) {
	participant, err := t.store.Leave(ctx, sessionID, caller.ID, t.now())
	if errors.Is(err, ErrNotPresent) {
		result := &LeaveResult{WasPresent: false}
		if participant != nil {
			result.AttendanceDurationSeconds = participant.AttendanceDurationSeconds
		}
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	t.logger.Info("participant left",
		zap.String("session_id", sessionID.String()),
		zap.String("user_id", caller.ID.String()),
		zap.Int64("attendance_seconds", participant.AttendanceDurationSeconds),
	)
	return &LeaveResult{WasPresent: true, AttendanceDurationSeconds: participant.AttendanceDurationSeconds}, nil
}

// IssueToken reissues a room credential without touching presence rows,
// e.g. for a reconnect. An explicit moderator request from a caller without
// moderator entitlement is refused; an empty role gets the caller's natural
// tier.
func (t *Tracker) IssueToken(ctx context.Context, caller models.Caller, sessionID uuid.UUID, requested models.ParticipantRole) (*TokenResult, error) {
	session, role, _, err := t.authorize(ctx, caller, sessionID)
	if err != nil {
		return nil, err
	}
	if requested == models.RoleModerator && role != models.RoleModerator {
		return nil, ErrModeratorDenied
	}
	if requested == models.RoleParticipant {
		role = models.RoleParticipant
	}

	identity := conference.Identity{UserID: caller.ID, Name: caller.Name, Email: caller.Email}
	token, err := t.tokens.Issue(session, identity, role, t.now())
	if err != nil {
		return nil, err
	}
	joinURL, err := conference.BuildJoinURL(conference.JoinURLParams{
		ServerURL: session.ServerURL,
		Room:      session.RoomName,
		Token:     token,
		Password:  session.RoomPassword,
	})
	if err != nil {
		return nil, err
	}
	return &TokenResult{JoinURL: joinURL, Token: token, Role: role}, nil
}

// Roster returns all participant rows for a session. The roster carries user
// and attendance data, so it is visible to the same audience as the session
// itself: the instructor, admins, and users enrolled in the course.
func (t *Tracker) Roster(ctx context.Context, caller models.Caller, sessionID uuid.UUID) ([]models.Participant, error) {
	if _, _, _, err := t.authorize(ctx, caller, sessionID); err != nil {
		return nil, err
	}
	return t.store.Roster(ctx, sessionID)
}

// authorize resolves the session and the caller's permission tier: the
// session's instructor and admins get moderator, everyone else must hold an
// enrollment in the session's course.
func (t *Tracker) authorize(ctx context.Context, caller models.Caller, sessionID uuid.UUID) (*models.LiveSession, models.ParticipantRole, *uuid.UUID, error) {
	session, err := t.sessions.ByID(ctx, sessionID)
	if err != nil {
		return nil, "", nil, err
	}
	if caller.IsAdmin() || session.OwnedBy(caller.ID) {
		return session, models.RoleModerator, nil, nil
	}
	enrollment, err := t.courses.EnrollmentFor(ctx, session.CourseID, caller.ID)
	if err != nil {
		return nil, "", nil, err
	}
	return session, models.RoleParticipant, &enrollment.ID, nil
}
