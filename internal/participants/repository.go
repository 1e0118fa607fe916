package participants

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/acadlive/backend/internal/models"
	"github.com/acadlive/backend/internal/sessions"
)

const participantColumns = `id, session_id, user_id, enrollment_id, role,
	joined_at, left_at, is_present, attendance_duration_seconds, created_at, updated_at`

// Repository is the PostgreSQL-backed participant Store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a participant repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Join claims a capacity slot and activates the participant row. The whole
// check-then-act runs in one transaction holding a row lock on the session,
// so concurrent joins for the same session queue up behind each other and a
// naive count race cannot overshoot max_participants.
func (r *Repository) Join(ctx context.Context, session *models.LiveSession, userID uuid.UUID, enrollmentID *uuid.UUID, role models.ParticipantRole, now time.Time) (*models.Participant, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var maxParticipants int
	err = tx.QueryRow(ctx,
		`SELECT max_participants FROM live_sessions WHERE id = $1 FOR UPDATE`,
		session.ID).Scan(&maxParticipants)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sessions.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var existing models.Participant
	err = scanParticipant(tx.QueryRow(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE session_id = $1 AND user_id = $2`,
		session.ID, userID), &existing)
	switch {
	case err == nil:
		if existing.IsPresent {
			// Re-join while still present (e.g. duplicate request): keep
			// the open interval instead of resetting joined_at.
			return &existing, tx.Commit(ctx)
		}
	case errors.Is(err, pgx.ErrNoRows):
		err = nil
	default:
		return nil, err
	}

	var present int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM participants WHERE session_id = $1 AND is_present`,
		session.ID).Scan(&present); err != nil {
		return nil, err
	}
	if present >= maxParticipants {
		return nil, ErrSessionFull
	}

	var p models.Participant
	if existing.ID != uuid.Nil {
		err = scanParticipant(tx.QueryRow(ctx,
			`UPDATE participants SET is_present = TRUE, joined_at = $1, left_at = NULL,
				role = $2, enrollment_id = COALESCE($3, enrollment_id), updated_at = NOW()
			 WHERE id = $4
			 RETURNING `+participantColumns,
			now, role, enrollmentID, existing.ID), &p)
	} else {
		err = scanParticipant(tx.QueryRow(ctx,
			`INSERT INTO participants (id, session_id, user_id, enrollment_id, role, joined_at, is_present)
			 VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, TRUE)
			 RETURNING `+participantColumns,
			session.ID, userID, enrollmentID, role, now), &p)
	}
	if err != nil {
		return nil, err
	}
	return &p, tx.Commit(ctx)
}

// Leave deactivates the participant and accumulates the completed interval.
// Returns the row with ErrNotPresent when the participant already left, and
// ErrParticipantNotFound when the user never joined.
func (r *Repository) Leave(ctx context.Context, sessionID, userID uuid.UUID, now time.Time) (*models.Participant, error) {
	var p models.Participant
	err := scanParticipant(r.pool.QueryRow(ctx,
		`UPDATE participants SET is_present = FALSE, left_at = $1,
			attendance_duration_seconds = attendance_duration_seconds
				+ GREATEST(0, EXTRACT(EPOCH FROM ($1::timestamptz - joined_at))::BIGINT),
			updated_at = NOW()
		 WHERE session_id = $2 AND user_id = $3 AND is_present
		 RETURNING `+participantColumns,
		now, sessionID, userID), &p)
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	err = scanParticipant(r.pool.QueryRow(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE session_id = $1 AND user_id = $2`,
		sessionID, userID), &p)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrParticipantNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, ErrNotPresent
}

// Roster returns all participant rows for a session, present first.
func (r *Repository) Roster(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE session_id = $1
		 ORDER BY is_present DESC, joined_at ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Participant
	for rows.Next() {
		var p models.Participant
		if err := scanParticipant(rows, &p); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// CloseAllPresent finalizes every row still marked present, crediting time
// up to endedAt. Used by the presence sweeper after a session ends.
func (r *Repository) CloseAllPresent(ctx context.Context, sessionID uuid.UUID, endedAt time.Time) (int64, error) {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE participants SET is_present = FALSE, left_at = $1,
			attendance_duration_seconds = attendance_duration_seconds
				+ GREATEST(0, EXTRACT(EPOCH FROM ($1::timestamptz - joined_at))::BIGINT),
			updated_at = NOW()
		 WHERE session_id = $2 AND is_present`,
		endedAt, sessionID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func scanParticipant(row pgx.Row, p *models.Participant) error {
	return row.Scan(
		&p.ID, &p.SessionID, &p.UserID, &p.EnrollmentID, &p.Role,
		&p.JoinedAt, &p.LeftAt, &p.IsPresent, &p.AttendanceDurationSeconds,
		&p.CreatedAt, &p.UpdatedAt,
	)
}
