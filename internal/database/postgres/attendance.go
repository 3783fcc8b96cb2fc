package postgres

import (
	"context"
	"fmt"

	"github.com/kozaktomas/classmark/internal/database"
	"github.com/kozaktomas/classmark/internal/roster"
)

// AttendanceRepository is the PostgreSQL-backed mark ledger. Stats are
// aggregated from the ledger on read, never kept as running counters, so a
// repeated Present mark can never double-count.
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new PostgreSQL attendance repository.
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

// SetMark upserts the mark for (roll, day).
func (r *AttendanceRepository) SetMark(ctx context.Context, cohort roster.Cohort, roll, day string, status database.MarkStatus) error {
	query := `
		INSERT INTO marks (roll_no, branch, year, day, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (roll_no, day) DO UPDATE SET
			status = EXCLUDED.status,
			marked_at = NOW()
	`

	if _, err := r.pool.Exec(ctx, query, roll, cohort.Branch, cohort.Year, day, status); err != nil {
		return fmt.Errorf("set mark: %w", err)
	}
	return nil
}

// SetMarkIfUnset records the status only when (roll, day) has no mark yet.
// The backfill path uses this so a Present mark is never downgraded.
func (r *AttendanceRepository) SetMarkIfUnset(ctx context.Context, cohort roster.Cohort, roll, day string, status database.MarkStatus) error {
	query := `
		INSERT INTO marks (roll_no, branch, year, day, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (roll_no, day) DO NOTHING
	`

	if _, err := r.pool.Exec(ctx, query, roll, cohort.Branch, cohort.Year, day, status); err != nil {
		return fmt.Errorf("set mark if unset: %w", err)
	}
	return nil
}

// Marks returns the mark per roll for one cohort and day.
func (r *AttendanceRepository) Marks(ctx context.Context, cohort roster.Cohort, day string) (map[string]database.MarkStatus, error) {
	query := `
		SELECT roll_no, status
		FROM marks
		WHERE branch = $1 AND year = $2 AND day = $3
	`

	rows, err := r.pool.Query(ctx, query, cohort.Branch, cohort.Year, day)
	if err != nil {
		return nil, fmt.Errorf("query marks: %w", err)
	}
	defer rows.Close()

	marks := make(map[string]database.MarkStatus)
	for rows.Next() {
		var roll string
		var status database.MarkStatus
		if err := rows.Scan(&roll, &status); err != nil {
			return nil, fmt.Errorf("scan mark: %w", err)
		}
		marks[roll] = status
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate marks: %w", err)
	}
	return marks, nil
}

// Stats aggregates cumulative attendance per enrolled student. Students
// without any mark yet are included with zero counts.
func (r *AttendanceRepository) Stats(ctx context.Context, cohort roster.Cohort) ([]database.StudentStats, error) {
	query := `
		SELECT s.roll_no, s.name,
		       COUNT(m.day) FILTER (WHERE m.status = 'Present') AS present_days,
		       COUNT(m.day) FILTER (WHERE m.status = 'Absent') AS absent_days,
		       COALESCE(TO_CHAR(MAX(m.day) FILTER (WHERE m.status = 'Present'), 'YYYY-MM-DD'), '') AS last_present,
		       COALESCE(TO_CHAR(MAX(m.day) FILTER (WHERE m.status = 'Absent'), 'YYYY-MM-DD'), '') AS last_absent
		FROM students s
		LEFT JOIN marks m ON m.roll_no = s.roll_no
		WHERE s.branch = $1 AND s.year = $2
		GROUP BY s.roll_no, s.name
		ORDER BY s.roll_no
	`

	rows, err := r.pool.Query(ctx, query, cohort.Branch, cohort.Year)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	var stats []database.StudentStats
	for rows.Next() {
		var s database.StudentStats
		err := rows.Scan(
			&s.Roll,
			&s.Name,
			&s.PresentDays,
			&s.AbsentDays,
			&s.LastPresent,
			&s.LastAbsent,
		)
		if err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}

		s.TotalDays = s.PresentDays + s.AbsentDays
		if s.TotalDays > 0 {
			s.AttendancePct = float64(s.PresentDays) / float64(s.TotalDays) * 100
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats: %w", err)
	}
	return stats, nil
}
