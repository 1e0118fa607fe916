package models

import (
	"time"

	"github.com/google/uuid"
)

// ParticipantRole is the permission tier inside the conference room.
type ParticipantRole string

const (
	RoleParticipant ParticipantRole = "participant"
	RoleModerator   ParticipantRole = "moderator"
)

// Participant is one user's attendance record for a session. The row is
// created on first join and never deleted; re-joins re-activate it and
// accumulate duration onto the same row.
type Participant struct {
	ID                        uuid.UUID       `json:"id"`
	SessionID                 uuid.UUID       `json:"session_id"`
	UserID                    uuid.UUID       `json:"user_id"`
	EnrollmentID              *uuid.UUID      `json:"enrollment_id,omitempty"`
	Role                      ParticipantRole `json:"role"`
	JoinedAt                  time.Time       `json:"joined_at"`
	LeftAt                    *time.Time      `json:"left_at,omitempty"`
	IsPresent                 bool            `json:"is_present"`
	AttendanceDurationSeconds int64           `json:"attendance_duration_seconds"`
	CreatedAt                 time.Time       `json:"created_at"`
	UpdatedAt                 time.Time       `json:"updated_at"`
}
