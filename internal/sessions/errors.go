package sessions

import "errors"

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrPermissionDenied = errors.New("caller may not manage this session")
	ErrInvalidSchedule  = errors.New("scheduled start must be before scheduled end")
	ErrInvalidCapacity  = errors.New("max participants must be positive")
	ErrDeleteLive       = errors.New("a live session cannot be deleted")

	// ErrDuplicateSession is returned by the store when the per-course
	// uniqueness constraint trips; the service resolves it to the existing
	// session rather than surfacing an error.
	ErrDuplicateSession = errors.New("course already has a session")
)
