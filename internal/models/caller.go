package models

import "github.com/google/uuid"

// Caller is the authenticated identity an operation runs as, as established
// by the identity collaborator.
type Caller struct {
	ID    uuid.UUID
	Name  string
	Email string
	Role  string
}

// IsAdmin reports whether the caller holds the admin role.
func (c Caller) IsAdmin() bool { return c.Role == UserRoleAdmin }
