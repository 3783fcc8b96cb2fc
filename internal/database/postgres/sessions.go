package postgres

import (
	"context"
	"fmt"

	"github.com/kozaktomas/classmark/internal/database"
	"github.com/kozaktomas/classmark/internal/roster"
)

// SessionRepository provides PostgreSQL-backed attendance session storage.
// The single-active-session-per-cohort invariant is enforced by a partial
// unique index, which makes Insert the atomic check-and-create the state
// machine needs.
type SessionRepository struct {
	pool *Pool
}

// NewSessionRepository creates a new PostgreSQL session repository.
func NewSessionRepository(pool *Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Insert stores a new active session. A concurrent or leftover active
// session for the same cohort trips the partial unique index and surfaces
// as ErrSessionActive.
func (r *SessionRepository) Insert(ctx context.Context, rec database.SessionRecord) error {
	query := `
		INSERT INTO sessions (id, branch, year, teacher_id, start_time, deadline_time, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		rec.ID, rec.Cohort.Branch, rec.Cohort.Year,
		rec.TeacherID, rec.StartTime, rec.Deadline, rec.Status,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return database.ErrSessionActive
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// ActiveSessions returns every session stored as active for the cohort,
// expired or not. Lazy expiry is the session manager's job.
func (r *SessionRepository) ActiveSessions(ctx context.Context, cohort roster.Cohort) ([]database.SessionRecord, error) {
	query := `
		SELECT id, branch, year, teacher_id, start_time, deadline_time, status
		FROM sessions
		WHERE branch = $1 AND year = $2 AND status = $3
		ORDER BY start_time
	`

	rows, err := r.pool.Query(ctx, query, cohort.Branch, cohort.Year, database.SessionActive)
	if err != nil {
		return nil, fmt.Errorf("query active sessions: %w", err)
	}
	defer rows.Close()

	var sessions []database.SessionRecord
	for rows.Next() {
		var rec database.SessionRecord
		err := rows.Scan(
			&rec.ID,
			&rec.Cohort.Branch,
			&rec.Cohort.Year,
			&rec.TeacherID,
			&rec.StartTime,
			&rec.Deadline,
			&rec.Status,
		)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// Close transitions the session to closed. Closing an already-closed
// session is a no-op; an unknown id is ErrSessionNotFound.
func (r *SessionRepository) Close(ctx context.Context, sessionID string) error {
	result, err := r.pool.Exec(ctx,
		"UPDATE sessions SET status = $1 WHERE id = $2",
		database.SessionClosed, sessionID,
	)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if affected == 0 {
		return database.ErrSessionNotFound
	}
	return nil
}
