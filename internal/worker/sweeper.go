// Package worker runs background reconciliation jobs. The only job today is
// the presence sweep: clients that never call leave would otherwise stay
// "present" forever, so ended sessions get their open rows closed here.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acadlive/backend/internal/models"
	"github.com/acadlive/backend/internal/sessions"
	"github.com/acadlive/backend/pkg/queue"
)

// SessionSource resolves sessions.
type SessionSource interface {
	ByID(ctx context.Context, id uuid.UUID) (*models.LiveSession, error)
}

// PresenceCloser finalizes rows still marked present for a session.
type PresenceCloser interface {
	CloseAllPresent(ctx context.Context, sessionID uuid.UUID, endedAt time.Time) (int64, error)
}

// Sweeper processes presence-sweep jobs.
type Sweeper struct {
	sessions     SessionSource
	participants PresenceCloser
	queue        *queue.Queue
	logger       *zap.Logger
}

// NewSweeper creates a presence sweeper.
func NewSweeper(sessions SessionSource, participants PresenceCloser, q *queue.Queue, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{sessions: sessions, participants: participants, queue: q, logger: logger}
}

// Process executes one presence-sweep job. Attendance is credited only up
// to the session's actual end, never beyond.
func (s *Sweeper) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypePresenceSweep {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.PresenceSweepPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	session, err := s.sessions.ByID(ctx, payload.SessionID)
	if errors.Is(err, sessions.ErrSessionNotFound) {
		// Session deleted after ending; nothing left to reconcile.
		s.logger.Info("sweep skipped, session gone", zap.String("session_id", payload.SessionID.String()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if session.Status != models.StatusEnded {
		return fmt.Errorf("session %s is %s, not ended", session.ID, session.Status)
	}

	endedAt := payload.EndedAt
	if session.ActualEndAt != nil {
		endedAt = *session.ActualEndAt
	}
	closed, err := s.participants.CloseAllPresent(ctx, session.ID, endedAt)
	if err != nil {
		return fmt.Errorf("close present rows: %w", err)
	}
	if closed > 0 {
		s.logger.Info("stale presence closed",
			zap.String("session_id", session.ID.String()), zap.Int64("rows", closed))
	}
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (s *Sweeper) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("presence sweeper stopping")
			return
		default:
		}

		job, err := s.queue.Dequeue(ctx)
		if err != nil {
			s.logger.Warn("dequeue error", zap.Error(err))
			s.pause(ctx)
			continue
		}
		if job == nil {
			continue
		}

		if err := s.Process(ctx, job); err != nil {
			s.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := s.queue.Retry(ctx, job); reErr != nil {
				s.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			s.pause(ctx)
		}
	}
}

// pause waits out the retry backoff, returning early on cancellation so
// shutdown is not delayed by a full backoff interval.
func (s *Sweeper) pause(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(queue.RetryBackoff):
	}
}
