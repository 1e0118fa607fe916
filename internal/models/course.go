package models

import (
	"time"

	"github.com/google/uuid"
)

// Course is the owning entity for a live session. Course management lives in
// another subsystem; this one only reads identity and instructor.
type Course struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	InstructorID uuid.UUID `json:"instructor_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// Enrollment links a student to a course.
type Enrollment struct {
	ID        uuid.UUID `json:"id"`
	CourseID  uuid.UUID `json:"course_id"`
	UserID    uuid.UUID `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
