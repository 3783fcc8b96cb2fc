package database

import (
	"context"
	"errors"

	"github.com/kozaktomas/classmark/internal/roster"
)

// Sentinel errors shared by all storage backends.
var (
	// ErrSessionActive is returned by SessionStore.Insert when a non-expired
	// active session already exists for the cohort. Recoverable: the caller
	// closes the existing session or waits it out.
	ErrSessionActive = errors.New("an active session already exists for this cohort")

	// ErrSessionNotFound is returned when a session id has no stored record.
	ErrSessionNotFound = errors.New("session not found")

	// ErrStudentExists is returned on registration of an already-enrolled roll.
	ErrStudentExists = errors.New("student already registered")

	// ErrStudentNotFound is returned when a roll is not enrolled in the cohort.
	ErrStudentNotFound = errors.New("student not found")

	// ErrTeacherNotFound is returned when a teacher id is unknown.
	ErrTeacherNotFound = errors.New("teacher not found")
)

// StudentStore provides access to the per-cohort enrollment set.
// The gallery is read-many/write-rarely: writes happen only at registration.
type StudentStore interface {
	// Register enrolls a new student. Returns ErrStudentExists if the roll
	// is already enrolled in its cohort.
	Register(ctx context.Context, s Student) error
	// Get returns the student for a roll within a cohort, or ErrStudentNotFound.
	Get(ctx context.Context, cohort roster.Cohort, roll string) (*Student, error)
	// List returns all students enrolled in the cohort, ordered by roll.
	// Reference samples and embeddings are included.
	List(ctx context.Context, cohort roster.Cohort) ([]Student, error)
}

// SessionStore persists attendance sessions. Insert is the single
// synchronization point for the one-active-session-per-cohort invariant:
// implementations must make the "no active session exists" check and the
// insert atomic (conditional write or equivalent), never a separate read
// followed by a write.
type SessionStore interface {
	// Insert stores a new active session, failing with ErrSessionActive if
	// the cohort already has one.
	Insert(ctx context.Context, rec SessionRecord) error
	// ActiveSessions returns all sessions currently stored as active for the
	// cohort, including any whose deadline has passed (lazy expiry happens
	// in the session manager, not here).
	ActiveSessions(ctx context.Context, cohort roster.Cohort) ([]SessionRecord, error)
	// Close transitions the session to closed, or returns ErrSessionNotFound.
	// Closing an already-closed session is a no-op.
	Close(ctx context.Context, sessionID string) error
}

// AttendanceStore is the durable attendance mark ledger and derived stats.
type AttendanceStore interface {
	// SetMark upserts the mark for (roll, day). Marking Present over Present
	// is an idempotent overwrite, not an error.
	SetMark(ctx context.Context, cohort roster.Cohort, roll, day string, status MarkStatus) error
	// SetMarkIfUnset records the status only when no mark exists for
	// (roll, day) yet. Used by absence backfill so a Present mark is never
	// downgraded.
	SetMarkIfUnset(ctx context.Context, cohort roster.Cohort, roll, day string, status MarkStatus) error
	// Marks returns the mark per roll for a cohort and day. Rolls with no
	// mark that day are absent from the map.
	Marks(ctx context.Context, cohort roster.Cohort, day string) (map[string]MarkStatus, error)
	// Stats computes cumulative present/absent counts and percentage for
	// every enrolled student in the cohort.
	Stats(ctx context.Context, cohort roster.Cohort) ([]StudentStats, error)
}

// TeacherStore provides operator lookup for credential checks.
type TeacherStore interface {
	Teacher(ctx context.Context, teacherID string) (*Teacher, error)
}

// BranchStore lists the branch directory.
type BranchStore interface {
	Branches(ctx context.Context) ([]Branch, error)
}

// AuditStore records attendance-marking attempts. Best effort: callers log
// and continue when an audit write fails.
type AuditStore interface {
	RecordAttempt(ctx context.Context, rec AttemptRecord) error
	Attempts(ctx context.Context, sessionID string) ([]AttemptRecord, error)
}
