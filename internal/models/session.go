package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a live session. Transitions are
// monotonic: scheduled -> live -> ended, nothing else.
type SessionStatus string

const (
	StatusScheduled SessionStatus = "scheduled"
	StatusLive      SessionStatus = "live"
	StatusEnded     SessionStatus = "ended"
)

// Valid reports whether s is one of the known statuses.
func (s SessionStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusLive, StatusEnded:
		return true
	}
	return false
}

// CanTransitionTo reports whether the status machine allows moving to next.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	switch s {
	case StatusScheduled:
		return next == StatusLive
	case StatusLive:
		return next == StatusEnded
	case StatusEnded:
		return false
	}
	return false
}

// InvalidStateError reports a lifecycle operation attempted from the wrong
// status. The current status is included so clients can resynchronize.
type InvalidStateError struct {
	Op      string
	Current SessionStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s session: current status is %q", e.Op, e.Current)
}

// LiveSession is a scheduled real-time class meeting tied to one course.
// At most one session exists per course.
type LiveSession struct {
	ID               uuid.UUID     `json:"id"`
	CourseID         uuid.UUID     `json:"course_id"`
	InstructorID     uuid.UUID     `json:"instructor_id"`
	Title            string        `json:"title"`
	Description      string        `json:"description"`
	ScheduledStartAt time.Time     `json:"scheduled_start_at"`
	ScheduledEndAt   time.Time     `json:"scheduled_end_at"`
	ActualStartAt    *time.Time    `json:"actual_start_at,omitempty"`
	ActualEndAt      *time.Time    `json:"actual_end_at,omitempty"`
	Status           SessionStatus `json:"status"`
	RoomName         string        `json:"room_name"`
	RoomPassword     string        `json:"-"`
	ServerURL        string        `json:"server_url"`
	MaxParticipants  int           `json:"max_participants"`
	RecordingEnabled bool          `json:"recording_enabled"`
	RecordingURL     *string       `json:"recording_url,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Start moves the session to live and stamps the actual start time.
func (s *LiveSession) Start(now time.Time) error {
	if !s.Status.CanTransitionTo(StatusLive) {
		return &InvalidStateError{Op: "start", Current: s.Status}
	}
	s.Status = StatusLive
	s.ActualStartAt = &now
	return nil
}

// End moves the session to ended, stamps the actual end time, and stores the
// recording URL when the backend produced one.
func (s *LiveSession) End(now time.Time, recordingURL *string) error {
	if !s.Status.CanTransitionTo(StatusEnded) {
		return &InvalidStateError{Op: "end", Current: s.Status}
	}
	s.Status = StatusEnded
	s.ActualEndAt = &now
	if recordingURL != nil && *recordingURL != "" {
		s.RecordingURL = recordingURL
	}
	return nil
}

// Mutable reports whether schedule and policy fields may still change.
// Once a session goes live its parameters are frozen.
func (s *LiveSession) Mutable() bool {
	return s.Status == StatusScheduled
}

// OwnedBy reports whether the user owns this session (its instructor).
func (s *LiveSession) OwnedBy(userID uuid.UUID) bool {
	return s.InstructorID == userID
}
