// Package database defines the storage types and interfaces shared between the
// attendance engine, the web handlers and the concrete backends (postgres, mock).
package database

import (
	"time"

	"github.com/kozaktomas/classmark/internal/roster"
)

// DayFormat is the calendar-day key used for attendance marks.
const DayFormat = "2006-01-02"

// SessionStatus is the lifecycle state of an attendance session.
type SessionStatus string

// Session lifecycle states. A session is created active and ends closed;
// there are no other transitions.
const (
	SessionActive SessionStatus = "active"
	SessionClosed SessionStatus = "closed"
)

// MarkStatus is the per-day attendance state of a student.
type MarkStatus string

// Attendance mark values. The empty string means no session has touched
// the day yet.
const (
	MarkUnset   MarkStatus = ""
	MarkPresent MarkStatus = "Present"
	MarkAbsent  MarkStatus = "Absent"
)

// Student is one enrolled identity: roll key, display name, credentials,
// the reference face sample and its precomputed embedding, and the opaque
// QR token payload.
type Student struct {
	Roll         string        `json:"roll_no"`
	Name         string        `json:"name"`
	Cohort       roster.Cohort `json:"cohort"`
	Password     string        `json:"-"`
	FaceSample   []byte        `json:"-"`
	Embedding    []float32     `json:"-"`
	QRToken      string        `json:"-"`
	RegisteredOn time.Time     `json:"registered_on"`
}

// Teacher is an operator identity with login credentials.
type Teacher struct {
	ID       string `json:"teacher_id"`
	Name     string `json:"teacher_name"`
	Password string `json:"-"`
}

// Branch is a directory entry for one branch code.
type Branch struct {
	Code string `json:"branch_code"`
	Name string `json:"branch_name"`
}

// SessionRecord is the stored form of an attendance session.
type SessionRecord struct {
	ID        string        `json:"session_id"`
	Cohort    roster.Cohort `json:"cohort"`
	TeacherID string        `json:"teacher_id"`
	StartTime time.Time     `json:"start_time"`
	Deadline  time.Time     `json:"deadline_time"`
	Status    SessionStatus `json:"status"`
}

// StudentStats is the derived attendance summary for one student.
// Computed from the marks ledger on read, never stored as running counters,
// so marking the same day twice can never double-count.
type StudentStats struct {
	Roll          string  `json:"roll_no"`
	Name          string  `json:"name"`
	PresentDays   int     `json:"present_days"`
	AbsentDays    int     `json:"absent_days"`
	TotalDays     int     `json:"total_days"`
	AttendancePct float64 `json:"attendance_pct"`
	LastPresent   string  `json:"last_present"`
	LastAbsent    string  `json:"last_absent"`
}

// AttemptRecord is one attendance-marking attempt, success or failure.
type AttemptRecord struct {
	ID        string        `json:"id"`
	SessionID string        `json:"session_id"`
	Cohort    roster.Cohort `json:"cohort"`
	Method    string        `json:"method"` // "face" or "qr"
	Roll      string        `json:"roll_no,omitempty"`
	Outcome   string        `json:"outcome"`
	CreatedAt time.Time     `json:"created_at"`
}
