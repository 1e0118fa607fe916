package sessions

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/acadlive/backend/internal/models"
)

const pgUniqueViolation = "23505"

const sessionColumns = `id, course_id, instructor_id, title, description,
	scheduled_start_at, scheduled_end_at, actual_start_at, actual_end_at,
	status, room_name, room_password, server_url, max_participants,
	recording_enabled, recording_url, created_at, updated_at`

// Repository is the PostgreSQL-backed session Store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a session repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a session with its provisional room name, then commits the
// final name inside the same transaction once the durable ID is known. The
// provisional name is therefore never readable by other transactions.
func (r *Repository) Create(ctx context.Context, s *models.LiveSession, finalize FinalizeRoom) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const insert = `INSERT INTO live_sessions
		(id, course_id, instructor_id, title, description, scheduled_start_at, scheduled_end_at,
		 status, room_name, room_password, server_url, max_participants, recording_enabled)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`
	err = tx.QueryRow(ctx, insert,
		s.CourseID, s.InstructorID, s.Title, s.Description, s.ScheduledStartAt, s.ScheduledEndAt,
		s.Status, s.RoomName, s.RoomPassword, s.ServerURL, s.MaxParticipants, s.RecordingEnabled,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicateSession
		}
		return err
	}

	roomName, err := finalize(s.ID)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE live_sessions SET room_name = $1, updated_at = NOW() WHERE id = $2`,
		roomName, s.ID); err != nil {
		return err
	}
	s.RoomName = roomName

	return tx.Commit(ctx)
}

// ByID returns a session by ID.
func (r *Repository) ByID(ctx context.Context, id uuid.UUID) (*models.LiveSession, error) {
	return r.one(ctx, `SELECT `+sessionColumns+` FROM live_sessions WHERE id = $1`, id)
}

// ByCourse returns the course's session, if any.
func (r *Repository) ByCourse(ctx context.Context, courseID uuid.UUID) (*models.LiveSession, error) {
	return r.one(ctx, `SELECT `+sessionColumns+` FROM live_sessions WHERE course_id = $1`, courseID)
}

// ListByCourse returns a page of the course's sessions with their current
// present-participant counts, plus the total number of sessions.
func (r *Repository) ListByCourse(ctx context.Context, courseID uuid.UUID, page, limit int) ([]SessionWithCount, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM live_sessions WHERE course_id = $1`, courseID).Scan(&total); err != nil {
		return nil, 0, err
	}

	const q = `SELECT s.id, s.course_id, s.instructor_id, s.title, s.description,
			s.scheduled_start_at, s.scheduled_end_at, s.actual_start_at, s.actual_end_at,
			s.status, s.room_name, s.room_password, s.server_url, s.max_participants,
			s.recording_enabled, s.recording_url, s.created_at, s.updated_at,
			COUNT(p.id) FILTER (WHERE p.is_present) AS present_count
		FROM live_sessions s
		LEFT JOIN participants p ON p.session_id = s.id
		WHERE s.course_id = $1
		GROUP BY s.id
		ORDER BY s.scheduled_start_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, q, courseID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []SessionWithCount
	for rows.Next() {
		var sc SessionWithCount
		if err := scanSession(rows, &sc.LiveSession, &sc.PresentCount); err != nil {
			return nil, 0, err
		}
		list = append(list, sc)
	}
	return list, total, rows.Err()
}

// ListForCourses returns all sessions belonging to the given courses.
func (r *Repository) ListForCourses(ctx context.Context, courseIDs []uuid.UUID) ([]models.LiveSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM live_sessions WHERE course_id = ANY($1) ORDER BY scheduled_start_at ASC`,
		courseIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.LiveSession
	for rows.Next() {
		var s models.LiveSession
		if err := scanSession(rows, &s); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// Update persists all mutable fields, the status, and the actual timestamps.
func (r *Repository) Update(ctx context.Context, s *models.LiveSession) error {
	const q = `UPDATE live_sessions SET
			title = $1, description = $2, scheduled_start_at = $3, scheduled_end_at = $4,
			actual_start_at = $5, actual_end_at = $6, status = $7,
			max_participants = $8, recording_enabled = $9, recording_url = $10,
			updated_at = NOW()
		WHERE id = $11`
	cmd, err := r.pool.Exec(ctx, q,
		s.Title, s.Description, s.ScheduledStartAt, s.ScheduledEndAt,
		s.ActualStartAt, s.ActualEndAt, s.Status,
		s.MaxParticipants, s.RecordingEnabled, s.RecordingURL, s.ID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Delete removes a session record entirely.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM live_sessions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *Repository) one(ctx context.Context, q string, arg any) (*models.LiveSession, error) {
	var s models.LiveSession
	err := scanSession(r.pool.QueryRow(ctx, q, arg), &s)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func scanSession(row pgx.Row, s *models.LiveSession, extra ...any) error {
	dest := []any{
		&s.ID, &s.CourseID, &s.InstructorID, &s.Title, &s.Description,
		&s.ScheduledStartAt, &s.ScheduledEndAt, &s.ActualStartAt, &s.ActualEndAt,
		&s.Status, &s.RoomName, &s.RoomPassword, &s.ServerURL, &s.MaxParticipants,
		&s.RecordingEnabled, &s.RecordingURL, &s.CreatedAt, &s.UpdatedAt,
	}
	dest = append(dest, extra...)
	return row.Scan(dest...)
}
