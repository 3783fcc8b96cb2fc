package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/classmark/internal/database"
)

// TeacherRepository provides operator and branch directory lookups.
type TeacherRepository struct {
	pool *Pool
}

// NewTeacherRepository creates a new PostgreSQL teacher repository.
func NewTeacherRepository(pool *Pool) *TeacherRepository {
	return &TeacherRepository{pool: pool}
}

// Teacher returns one operator by id.
func (r *TeacherRepository) Teacher(ctx context.Context, teacherID string) (*database.Teacher, error) {
	var t database.Teacher
	err := r.pool.QueryRow(ctx,
		"SELECT id, name, password FROM teachers WHERE id = $1",
		teacherID,
	).Scan(&t.ID, &t.Name, &t.Password)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrTeacherNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get teacher: %w", err)
	}
	return &t, nil
}

// Branches lists the branch directory.
func (r *TeacherRepository) Branches(ctx context.Context) ([]database.Branch, error) {
	rows, err := r.pool.Query(ctx, "SELECT code, name FROM branches ORDER BY code")
	if err != nil {
		return nil, fmt.Errorf("query branches: %w", err)
	}
	defer rows.Close()

	var branches []database.Branch
	for rows.Next() {
		var b database.Branch
		if err := rows.Scan(&b.Code, &b.Name); err != nil {
			return nil, fmt.Errorf("scan branch: %w", err)
		}
		branches = append(branches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate branches: %w", err)
	}
	return branches, nil
}
