package postgres

import (
	"context"
	"fmt"

	"github.com/kozaktomas/classmark/internal/database"
)

// AuditRepository stores attendance-marking attempts.
type AuditRepository struct {
	pool *Pool
}

// NewAuditRepository creates a new PostgreSQL audit repository.
func NewAuditRepository(pool *Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// RecordAttempt appends one attempt to the trail.
func (r *AuditRepository) RecordAttempt(ctx context.Context, rec database.AttemptRecord) error {
	query := `
		INSERT INTO attempts (id, session_id, branch, year, method, roll_no, outcome, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.pool.Exec(ctx, query,
		rec.ID, rec.SessionID, rec.Cohort.Branch, rec.Cohort.Year,
		rec.Method, rec.Roll, rec.Outcome, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// Attempts returns the attempt trail for one session, oldest first.
func (r *AuditRepository) Attempts(ctx context.Context, sessionID string) ([]database.AttemptRecord, error) {
	query := `
		SELECT id, session_id, branch, year, method, roll_no, outcome, created_at
		FROM attempts
		WHERE session_id = $1
		ORDER BY created_at
	`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []database.AttemptRecord
	for rows.Next() {
		var rec database.AttemptRecord
		err := rows.Scan(
			&rec.ID,
			&rec.SessionID,
			&rec.Cohort.Branch,
			&rec.Cohort.Year,
			&rec.Method,
			&rec.Roll,
			&rec.Outcome,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		attempts = append(attempts, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return attempts, nil
}
