package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/kozaktomas/classmark/internal/database"
	"github.com/kozaktomas/classmark/internal/roster"
)

// ErrNotActive is returned when a cohort has no valid active session.
var ErrNotActive = errors.New("session not active or expired")

// Manager owns session status transitions. Nothing else mutates session
// state; expiry is discovered lazily whenever a cohort's sessions are read,
// so no background sweeper is needed. A cohort that is never read after its
// session expires stays un-backfilled until the next read - a documented
// policy, not a bug.
type Manager struct {
	sessions database.SessionStore
	students database.StudentStore
	marks    database.AttendanceStore

	now func() time.Time
}

// NewManager creates a session manager over the given stores.
func NewManager(sessions database.SessionStore, students database.StudentStore, marks database.AttendanceStore) *Manager {
	return &Manager{
		sessions: sessions,
		students: students,
		marks:    marks,
		now:      time.Now,
	}
}

// SetClock overrides the manager's clock. Tests only.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Open starts a new attendance window for the cohort. It fails with
// database.ErrSessionActive while a non-expired session is open. Stale
// active sessions are swept (closed and backfilled) before the insert;
// the insert itself is the atomic guard against concurrent opens, so two
// racing Open calls can never both succeed.
func (m *Manager) Open(ctx context.Context, cohort roster.Cohort, teacherID string, duration time.Duration) (*database.SessionRecord, error) {
	if _, err := m.Active(ctx, cohort); err != nil && !errors.Is(err, ErrNotActive) {
		return nil, fmt.Errorf("sweeping sessions for %s: %w", cohort, err)
	} else if err == nil {
		return nil, database.ErrSessionActive
	}

	start := m.now()
	rec := database.SessionRecord{
		ID:        NewID(start, cohort),
		Cohort:    cohort,
		TeacherID: teacherID,
		StartTime: start,
		Deadline:  start.Add(duration),
		Status:    database.SessionActive,
	}

	if err := m.sessions.Insert(ctx, rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Active returns the cohort's currently valid session, or ErrNotActive.
// Any active session found past its deadline is closed on the spot and the
// cohort's unmarked students are backfilled Absent. Validity is strict:
// a session is expired at exactly its deadline.
func (m *Manager) Active(ctx context.Context, cohort roster.Cohort) (*database.SessionRecord, error) {
	records, err := m.sessions.ActiveSessions(ctx, cohort)
	if err != nil {
		return nil, fmt.Errorf("listing active sessions for %s: %w", cohort, err)
	}

	now := m.now()
	var valid *database.SessionRecord
	for i := range records {
		rec := &records[i]
		if now.Before(rec.Deadline) {
			if valid == nil {
				valid = rec
			}
			continue
		}
		// Expired: lazy close with backfill.
		if err := m.Close(ctx, rec.ID, true); err != nil {
			log.Printf("auto-closing expired session %s: %v", rec.ID, err)
		}
	}

	if valid == nil {
		return nil, ErrNotActive
	}
	return valid, nil
}

// Close transitions the session to closed. When backfill is set (operator
// close or lazy expiry), every enrolled student with no mark for today is
// marked Absent; students already Present are left untouched.
func (m *Manager) Close(ctx context.Context, sessionID string, backfill bool) error {
	cohort, err := ParseID(sessionID)
	if err != nil {
		return err
	}

	if err := m.sessions.Close(ctx, sessionID); err != nil {
		return fmt.Errorf("closing session %s: %w", sessionID, err)
	}

	if backfill {
		m.backfill(ctx, cohort)
	}
	return nil
}

// backfill marks every unmarked student Absent for today. Per-student
// failures are logged and skipped so one bad record cannot stall the sweep.
func (m *Manager) backfill(ctx context.Context, cohort roster.Cohort) {
	students, err := m.students.List(ctx, cohort)
	if err != nil {
		log.Printf("backfill: listing students for %s: %v", cohort, err)
		return
	}

	day := m.now().Format(database.DayFormat)
	for _, s := range students {
		if err := m.marks.SetMarkIfUnset(ctx, cohort, s.Roll, day, database.MarkAbsent); err != nil {
			log.Printf("backfill: marking %s absent: %v", s.Roll, err)
		}
	}
}
