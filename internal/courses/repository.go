// Package courses is the read-side glue to the course/enrollment subsystem.
// Course management itself lives elsewhere; the live-session core only needs
// to resolve a course and answer "is this user enrolled?".
package courses

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/acadlive/backend/internal/models"
)

var (
	ErrCourseNotFound = errors.New("course not found")
	ErrNotEnrolled    = errors.New("user is not enrolled in this course")
)

// Directory is the narrow view of course data the session core consumes.
type Directory interface {
	CourseByID(ctx context.Context, id uuid.UUID) (*models.Course, error)
	EnrollmentFor(ctx context.Context, courseID, userID uuid.UUID) (*models.Enrollment, error)
	CourseIDsFor(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// Repository is the PostgreSQL-backed Directory.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a course repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CourseByID returns a course by ID.
func (r *Repository) CourseByID(ctx context.Context, id uuid.UUID) (*models.Course, error) {
	const q = `SELECT id, title, instructor_id, created_at FROM courses WHERE id = $1`
	var c models.Course
	err := r.pool.QueryRow(ctx, q, id).Scan(&c.ID, &c.Title, &c.InstructorID, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCourseNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// EnrollmentFor returns the user's enrollment in a course, or ErrNotEnrolled.
func (r *Repository) EnrollmentFor(ctx context.Context, courseID, userID uuid.UUID) (*models.Enrollment, error) {
	const q = `SELECT id, course_id, user_id, created_at FROM enrollments WHERE course_id = $1 AND user_id = $2`
	var e models.Enrollment
	err := r.pool.QueryRow(ctx, q, courseID, userID).Scan(&e.ID, &e.CourseID, &e.UserID, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotEnrolled
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// CourseIDsFor returns the IDs of all courses the user is enrolled in.
func (r *Repository) CourseIDsFor(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT course_id FROM enrollments WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
