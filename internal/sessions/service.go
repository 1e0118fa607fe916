package sessions

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

// FinalizeRoom computes the durable room name once the session's persisted
// ID is known. The store calls it inside the insert transaction so the
// provisional name is never visible outside the storage layer.
type FinalizeRoom func(sessionID uuid.UUID) (string, error)

// Store is the persistence boundary for live sessions.
type Store interface {
	Create(ctx context.Context, s *models.LiveSession, finalize FinalizeRoom) error
	ByID(ctx context.Context, id uuid.UUID) (*models.LiveSession, error)
	ByCourse(ctx context.Context, courseID uuid.UUID) (*models.LiveSession, error)
	ListByCourse(ctx context.Context, courseID uuid.UUID, page, limit int) ([]SessionWithCount, int, error)
	ListForCourses(ctx context.Context, courseIDs []uuid.UUID) ([]models.LiveSession, error)
	Update(ctx context.Context, s *models.LiveSession) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// RosterSource lists a session's participants (owned by the tracker).
type RosterSource interface {
	Roster(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error)
}

// SweepEnqueuer schedules reconciliation of stale "present" rows after a
// session ends.
type SweepEnqueuer interface {
	EnqueuePresenceSweep(ctx context.Context, sessionID uuid.UUID, endedAt time.Time) error
}

// SessionWithCount is a session plus its current present-participant count.
type SessionWithCount struct {
	models.LiveSession
	PresentCount int `json:"present_count"`
}

// Detail is a session plus its full participant roster.
type Detail struct {
	Session      *models.LiveSession  `json:"session"`
	Participants []models.Participant `json:"participants"`
}

// StudentSessions groups a student's visible sessions by lifecycle phase.
type StudentSessions struct {
	Live     []models.LiveSession `json:"live"`
	Upcoming []models.LiveSession `json:"upcoming"`
	Past     []models.LiveSession `json:"past"`
}

// CreateInput are the caller-supplied fields for a new session.
type CreateInput struct {
	CourseID         uuid.UUID
	Title            string
	Description      string
	ScheduledStartAt time.Time
	ScheduledEndAt   time.Time
	MaxParticipants  int
	RecordingEnabled bool
}

// UpdateInput holds the optional fields of a session update.
type UpdateInput struct {
	Title            *string
	Description      *string
	ScheduledStartAt *time.Time
	ScheduledEndAt   *time.Time
	MaxParticipants  *int
	RecordingEnabled *bool
}

// Service owns the session lifecycle state machine and orchestrates room
// naming and token issuance on each transition.
type Service struct {
	store     Store
	courses   courses.Directory
	rooms     *conference.RoomNamer
	tokens    *conference.TokenIssuer
	roster    RosterSource
	sweeps    SweepEnqueuer
	serverURL string
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates the session lifecycle service. sweeps may be nil when
// no worker queue is wired (presence rows are then only closed by leave).
func NewService(store Store, dir courses.Directory, rooms *conference.RoomNamer, tokens *conference.TokenIssuer, roster RosterSource, sweeps SweepEnqueuer, serverURL string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		courses:   dir,
		rooms:     rooms,
		tokens:    tokens,
		roster:    roster,
		sweeps:    sweeps,
		serverURL: serverURL,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock overrides the service clock. Tests only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Create schedules a session for a course. Creating a second session for a
// course is not an error: the existing one is returned with existed=true.
func (s *Service) Create(ctx context.Context, caller models.Caller, in CreateInput) (*models.LiveSession, bool, error) {
	course, err := s.courses.CourseByID(ctx, in.CourseID)
	if err != nil {
		return nil, false, err
	}
	if !caller.IsAdmin() && course.InstructorID != caller.ID {
		return nil, false, ErrPermissionDenied
	}
	if !in.ScheduledStartAt.Before(in.ScheduledEndAt) {
		return nil, false, ErrInvalidSchedule
	}
	if in.MaxParticipants <= 0 {
		return nil, false, ErrInvalidCapacity
	}

	if existing, err := s.store.ByCourse(ctx, in.CourseID); err == nil {
		return existing, true, nil
	} else if !errors.Is(err, ErrSessionNotFound) {
		return nil, false, err
	}

	provisional, err := s.rooms.Provisional(in.CourseID)
	if err != nil {
		return nil, false, err
	}
	password, err := conference.GeneratePassword()
	if err != nil {
		return nil, false, err
	}

	session := &models.LiveSession{
		CourseID:         in.CourseID,
		InstructorID:     course.InstructorID,
		Title:            in.Title,
		Description:      in.Description,
		ScheduledStartAt: in.ScheduledStartAt,
		ScheduledEndAt:   in.ScheduledEndAt,
		Status:           models.StatusScheduled,
		RoomName:         provisional,
		RoomPassword:     password,
		ServerURL:        s.serverURL,
		MaxParticipants:  in.MaxParticipants,
		RecordingEnabled: in.RecordingEnabled,
	}

	finalize := func(sessionID uuid.UUID) (string, error) {
		return s.rooms.Final(in.CourseID, sessionID)
	}
	if err := s.store.Create(ctx, session, finalize); err != nil {
		if errors.Is(err, ErrDuplicateSession) {
			// Lost a create race; the winner's session is the session.
			existing, lookupErr := s.store.ByCourse(ctx, in.CourseID)
			if lookupErr != nil {
				return nil, false, lookupErr
			}
			return existing, true, nil
		}
		return nil, false, err
	}

	s.logger.Info("session created",
		zap.String("session_id", session.ID.String()),
		zap.String("course_id", in.CourseID.String()),
		zap.String("room", session.RoomName),
	)
	return session, false, nil
}

// Update mutates a session's schedule and policy. Only allowed while the
// session is still scheduled.
func (s *Service) Update(ctx context.Context, caller models.Caller, sessionID uuid.UUID, in UpdateInput) (*models.LiveSession, error) {
	session, err := s.authorizeOwner(ctx, caller, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Mutable() {
		return nil, &models.InvalidStateError{Op: "update", Current: session.Status}
	}

	if in.Title != nil {
		session.Title = *in.Title
	}
	if in.Description != nil {
		session.Description = *in.Description
	}
	if in.ScheduledStartAt != nil {
		session.ScheduledStartAt = *in.ScheduledStartAt
	}
	if in.ScheduledEndAt != nil {
		session.ScheduledEndAt = *in.ScheduledEndAt
	}
	if !session.ScheduledStartAt.Before(session.ScheduledEndAt) {
		return nil, ErrInvalidSchedule
	}
	if in.MaxParticipants != nil {
		if *in.MaxParticipants <= 0 {
			return nil, ErrInvalidCapacity
		}
		session.MaxParticipants = *in.MaxParticipants
	}
	if in.RecordingEnabled != nil {
		session.RecordingEnabled = *in.RecordingEnabled
	}

	if err := s.store.Update(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Start transitions the session to live and returns a moderator join URL
// for the caller.
func (s *Service) Start(ctx context.Context, caller models.Caller, sessionID uuid.UUID) (*models.LiveSession, string, error) {
	session, err := s.authorizeOwner(ctx, caller, sessionID)
	if err != nil {
		return nil, "", err
	}
	if err := session.Start(s.now()); err != nil {
		return nil, "", err
	}
	if err := s.store.Update(ctx, session); err != nil {
		return nil, "", err
	}

	identity := conference.Identity{UserID: caller.ID, Name: caller.Name, Email: caller.Email}
	token, err := s.tokens.Issue(session, identity, models.RoleModerator, s.now())
	if err != nil {
		return nil, "", err
	}
	joinURL, err := conference.BuildJoinURL(conference.JoinURLParams{
		ServerURL: session.ServerURL,
		Room:      session.RoomName,
		Token:     token,
		Password:  session.RoomPassword,
	})
	if err != nil {
		return nil, "", err
	}

	s.logger.Info("session started", zap.String("session_id", session.ID.String()))
	return session, joinURL, nil
}

// End transitions the session to ended and records the recording URL when
// one was produced. Stale present rows are reconciled asynchronously.
func (s *Service) End(ctx context.Context, caller models.Caller, sessionID uuid.UUID, recordingURL *string) (*models.LiveSession, error) {
	session, err := s.authorizeOwner(ctx, caller, sessionID)
	if err != nil {
		return nil, err
	}
	endedAt := s.now()
	if err := session.End(endedAt, recordingURL); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, session); err != nil {
		return nil, err
	}

	if s.sweeps != nil {
		if err := s.sweeps.EnqueuePresenceSweep(ctx, session.ID, endedAt); err != nil {
			// Attendance for rows without a leave stays open until the next
			// sweep; not worth failing the transition over.
			s.logger.Warn("enqueue presence sweep failed",
				zap.String("session_id", session.ID.String()), zap.Error(err))
		}
	}

	s.logger.Info("session ended", zap.String("session_id", session.ID.String()))
	return session, nil
}

// Delete removes a session record. Live sessions must be ended first.
func (s *Service) Delete(ctx context.Context, caller models.Caller, sessionID uuid.UUID) error {
	session, err := s.authorizeOwner(ctx, caller, sessionID)
	if err != nil {
		return err
	}
	if session.Status == models.StatusLive {
		return ErrDeleteLive
	}
	return s.store.Delete(ctx, sessionID)
}

// GetDetail returns a session with its participant roster. Visible to the
// owner, admins, and users enrolled in the session's course.
func (s *Service) GetDetail(ctx context.Context, caller models.Caller, sessionID uuid.UUID) (*Detail, error) {
	session, err := s.store.ByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeViewer(ctx, caller, session); err != nil {
		return nil, err
	}
	roster, err := s.roster.Roster(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &Detail{Session: session, Participants: roster}, nil
}

// ListByCourse returns a page of the course's sessions with present counts.
func (s *Service) ListByCourse(ctx context.Context, caller models.Caller, courseID uuid.UUID, page, limit int) ([]SessionWithCount, int, error) {
	course, err := s.courses.CourseByID(ctx, courseID)
	if err != nil {
		return nil, 0, err
	}
	if !caller.IsAdmin() && course.InstructorID != caller.ID {
		if _, err := s.courses.EnrollmentFor(ctx, courseID, caller.ID); err != nil {
			return nil, 0, err
		}
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.store.ListByCourse(ctx, courseID, page, limit)
}

// ForStudent returns the sessions a user can see via course enrollment,
// grouped into live, upcoming, and past.
func (s *Service) ForStudent(ctx context.Context, userID uuid.UUID) (*StudentSessions, error) {
	courseIDs, err := s.courses.CourseIDsFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := &StudentSessions{}
	if len(courseIDs) == 0 {
		return out, nil
	}
	list, err := s.store.ListForCourses(ctx, courseIDs)
	if err != nil {
		return nil, err
	}
	for _, session := range list {
		switch session.Status {
		case models.StatusLive:
			out.Live = append(out.Live, session)
		case models.StatusScheduled:
			out.Upcoming = append(out.Upcoming, session)
		case models.StatusEnded:
			out.Past = append(out.Past, session)
		}
	}
	return out, nil
}

func (s *Service) authorizeOwner(ctx context.Context, caller models.Caller, sessionID uuid.UUID) (*models.LiveSession, error) {
	session, err := s.store.ByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && !session.OwnedBy(caller.ID) {
		return nil, ErrPermissionDenied
	}
	return session, nil
}

func (s *Service) authorizeViewer(ctx context.Context, caller models.Caller, session *models.LiveSession) error {
	if caller.IsAdmin() || session.OwnedBy(caller.ID) {
		return nil
	}
	_, err := s.courses.EnrollmentFor(ctx, session.CourseID, caller.ID)
	return err
}
