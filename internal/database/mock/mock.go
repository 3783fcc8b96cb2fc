// Package mock provides in-memory implementations of the database interfaces
// for testing.
package mock

import (
	"context"
	"sort"
	"sync"

	"github.com/kozaktomas/classmark/internal/database"
	"github.com/kozaktomas/classmark/internal/roster"
)

// markKey identifies one attendance mark.
type markKey struct {
	cohort roster.Cohort
	roll   string
	day    string
}

// Store is an in-memory implementation of every database interface. A single
// mutex serializes all access, which also makes the open-session conditional
// insert atomic, matching the postgres backend's partial unique index.
type Store struct {
	mu       sync.Mutex
	students map[roster.Cohort]map[string]database.Student
	sessions map[string]database.SessionRecord
	marks    map[markKey]database.MarkStatus
	teachers map[string]database.Teacher
	branches []database.Branch
	attempts []database.AttemptRecord

	// Error injection
	RegisterError error
	ListError     error
	InsertError   error
	SetMarkError  error
	StatsError    error
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		students: make(map[roster.Cohort]map[string]database.Student),
		sessions: make(map[string]database.SessionRecord),
		marks:    make(map[markKey]database.MarkStatus),
		teachers: make(map[string]database.Teacher),
	}
}

// AddTeacher seeds a teacher record.
func (s *Store) AddTeacher(t database.Teacher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teachers[t.ID] = t
}

// AddBranch seeds a branch directory entry.
func (s *Store) AddBranch(b database.Branch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.branches = append(s.branches, b)
}

// Register enrolls a student.
func (s *Store) Register(ctx context.Context, st database.Student) error {
	if s.RegisterError != nil {
		return s.RegisterError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	byRoll, ok := s.students[st.Cohort]
	if !ok {
		byRoll = make(map[string]database.Student)
		s.students[st.Cohort] = byRoll
	}
	if _, exists := byRoll[st.Roll]; exists {
		return database.ErrStudentExists
	}
	byRoll[st.Roll] = st
	return nil
}

// Get returns a student by cohort and roll.
func (s *Store) Get(ctx context.Context, cohort roster.Cohort, roll string) (*database.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.students[cohort][roll]
	if !ok {
		return nil, database.ErrStudentNotFound
	}
	return &st, nil
}

// List returns all students in the cohort ordered by roll.
func (s *Store) List(ctx context.Context, cohort roster.Cohort) ([]database.Student, error) {
	if s.ListError != nil {
		return nil, s.ListError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []database.Student
	for _, st := range s.students[cohort] {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Roll < out[j].Roll })
	return out, nil
}

// Insert stores a new session, rejecting it while the cohort has an active one.
func (s *Store) Insert(ctx context.Context, rec database.SessionRecord) error {
	if s.InsertError != nil {
		return s.InsertError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.sessions {
		if existing.Cohort == rec.Cohort && existing.Status == database.SessionActive {
			return database.ErrSessionActive
		}
	}
	s.sessions[rec.ID] = rec
	return nil
}

// ActiveSessions returns sessions stored as active for the cohort, expired
// ones included.
func (s *Store) ActiveSessions(ctx context.Context, cohort roster.Cohort) ([]database.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []database.SessionRecord
	for _, rec := range s.sessions {
		if rec.Cohort == cohort && rec.Status == database.SessionActive {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Close transitions a session to closed.
func (s *Store) Close(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return database.ErrSessionNotFound
	}
	rec.Status = database.SessionClosed
	s.sessions[sessionID] = rec
	return nil
}

// SetMark upserts the mark for (roll, day).
func (s *Store) SetMark(ctx context.Context, cohort roster.Cohort, roll, day string, status database.MarkStatus) error {
	if s.SetMarkError != nil {
		return s.SetMarkError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.students[cohort][roll]; !ok {
		return database.ErrStudentNotFound
	}
	s.marks[markKey{cohort, roll, day}] = status
	return nil
}

// SetMarkIfUnset records the status only when the day has no mark yet.
func (s *Store) SetMarkIfUnset(ctx context.Context, cohort roster.Cohort, roll, day string, status database.MarkStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.students[cohort][roll]; !ok {
		return database.ErrStudentNotFound
	}
	key := markKey{cohort, roll, day}
	if existing, ok := s.marks[key]; ok && existing != database.MarkUnset {
		return nil
	}
	s.marks[key] = status
	return nil
}

// Marks returns the mark per roll for a cohort and day.
func (s *Store) Marks(ctx context.Context, cohort roster.Cohort, day string) (map[string]database.MarkStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]database.MarkStatus)
	for key, status := range s.marks {
		if key.cohort == cohort && key.day == day {
			out[key.roll] = status
		}
	}
	return out, nil
}

// Stats computes per-student attendance summaries from the marks ledger.
func (s *Store) Stats(ctx context.Context, cohort roster.Cohort) ([]database.StudentStats, error) {
	if s.StatsError != nil {
		return nil, s.StatsError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []database.StudentStats
	for roll, st := range s.students[cohort] {
		stats := database.StudentStats{Roll: roll, Name: st.Name}
		for key, status := range s.marks {
			if key.cohort != cohort || key.roll != roll {
				continue
			}
			switch status {
			case database.MarkPresent:
				stats.PresentDays++
				if key.day > stats.LastPresent {
					stats.LastPresent = key.day
				}
			case database.MarkAbsent:
				stats.AbsentDays++
				if key.day > stats.LastAbsent {
					stats.LastAbsent = key.day
				}
			}
		}
		stats.TotalDays = stats.PresentDays + stats.AbsentDays
		if stats.TotalDays > 0 {
			stats.AttendancePct = float64(stats.PresentDays) / float64(stats.TotalDays) * 100
		}
		out = append(out, stats)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Roll < out[j].Roll })
	return out, nil
}

// Teacher returns a teacher record by id.
func (s *Store) Teacher(ctx context.Context, teacherID string) (*database.Teacher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.teachers[teacherID]
	if !ok {
		return nil, database.ErrTeacherNotFound
	}
	return &t, nil
}

// Branches lists the branch directory.
func (s *Store) Branches(ctx context.Context) ([]database.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]database.Branch(nil), s.branches...), nil
}

// RecordAttempt appends an attempt audit record.
func (s *Store) RecordAttempt(ctx context.Context, rec database.AttemptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, rec)
	return nil
}

// Attempts returns attempt records for a session in insertion order.
func (s *Store) Attempts(ctx context.Context, sessionID string) ([]database.AttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []database.AttemptRecord
	for _, rec := range s.attempts {
		if rec.SessionID == sessionID {
			out = append(out, rec)
		}
	}
	return out, nil
}
