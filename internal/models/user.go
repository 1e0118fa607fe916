package models

import (
	"time"

	"github.com/google/uuid"
)

// Platform-level user roles.
const (
	UserRoleStudent    = "student"
	UserRoleInstructor = "instructor"
	UserRoleAdmin      = "admin"
)

// User is a platform account. Managed elsewhere; only the fields this
// subsystem reads are modeled.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
