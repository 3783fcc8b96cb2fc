package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/classmark/internal/database"
	"github.com/kozaktomas/classmark/internal/roster"
)

// uniqueViolation is the PostgreSQL error code for a unique constraint hit.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// StudentRepository provides PostgreSQL-backed enrollment storage.
type StudentRepository struct {
	pool *Pool
}

// NewStudentRepository creates a new PostgreSQL student repository.
func NewStudentRepository(pool *Pool) *StudentRepository {
	return &StudentRepository{pool: pool}
}

// Register enrolls a new student.
func (r *StudentRepository) Register(ctx context.Context, s database.Student) error {
	query := `
		INSERT INTO students (roll_no, name, branch, year, password, face_sample, embedding, qr_token, registered_on)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	var embedding any
	if len(s.Embedding) > 0 {
		embedding = pgvector.NewVector(s.Embedding)
	}

	_, err := r.pool.Exec(ctx, query,
		s.Roll, s.Name, s.Cohort.Branch, s.Cohort.Year,
		s.Password, s.FaceSample, embedding, s.QRToken, s.RegisteredOn,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return database.ErrStudentExists
		}
		return fmt.Errorf("register student: %w", err)
	}
	return nil
}

// Get returns one enrolled student of a cohort by roll number.
func (r *StudentRepository) Get(ctx context.Context, cohort roster.Cohort, roll string) (*database.Student, error) {
	query := `
		SELECT roll_no, name, branch, year, password, face_sample, embedding, qr_token, registered_on
		FROM students
		WHERE roll_no = $1 AND branch = $2 AND year = $3
	`

	s, err := scanStudent(r.pool.QueryRow(ctx, query, roll, cohort.Branch, cohort.Year))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrStudentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	return s, nil
}

// List returns the cohort's full enrollment set ordered by roll number,
// reference samples and embeddings included.
func (r *StudentRepository) List(ctx context.Context, cohort roster.Cohort) ([]database.Student, error) {
	query := `
		SELECT roll_no, name, branch, year, password, face_sample, embedding, qr_token, registered_on
		FROM students
		WHERE branch = $1 AND year = $2
		ORDER BY roll_no
	`

	rows, err := r.pool.Query(ctx, query, cohort.Branch, cohort.Year)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	var students []database.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		students = append(students, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	return students, nil
}

func scanStudent(scanner interface{ Scan(...any) error }) (*database.Student, error) {
	var s database.Student
	var embedding sql.NullString
	var sample []byte

	err := scanner.Scan(
		&s.Roll,
		&s.Name,
		&s.Cohort.Branch,
		&s.Cohort.Year,
		&s.Password,
		&sample,
		&embedding,
		&s.QRToken,
		&s.RegisteredOn,
	)
	if err != nil {
		return nil, err
	}

	s.FaceSample = sample
	if embedding.Valid {
		var vec pgvector.Vector
		if err := vec.Parse(embedding.String); err != nil {
			return nil, fmt.Errorf("parse embedding: %w", err)
		}
		s.Embedding = vec.Slice()
	}
	return &s, nil
}
