// Package attendance orchestrates the marking pipeline: it ties the session
// window check, identity resolution and the durable mark ledger together for
// the face and QR capture paths.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/classmark/internal/database"
	"github.com/kozaktomas/classmark/internal/gallery"
	"github.com/kozaktomas/classmark/internal/qrtoken"
	"github.com/kozaktomas/classmark/internal/roster"
	"github.com/kozaktomas/classmark/internal/session"
)

// Marking errors. Each one maps to a distinct user-facing message in the
// web layer; none of them is fatal.
var (
	// ErrSessionNotActive covers a session that never existed, was closed,
	// or expired since the capture began.
	ErrSessionNotActive = errors.New("session has expired or not yet started")

	// ErrNotRecognized means no enrolled identity passed verification for
	// the probe. The operator should improve lighting and re-capture.
	ErrNotRecognized = errors.New("face not recognized, improve lighting and try again")

	// ErrTokenNotReadable means the QR capture could not be decoded.
	ErrTokenNotReadable = errors.New("QR code not readable, hold the card steady and try again")

	// ErrIdentityNotInCohort means a decoded token names a roll that is not
	// enrolled in the session's cohort.
	ErrIdentityNotInCohort = errors.New("student is not enrolled in this class")

	// ErrMarkFailed means the attendance ledger rejected the mark.
	ErrMarkFailed = errors.New("could not record attendance mark")
)

// Capture methods recorded in the attempt audit trail.
const (
	MethodFace = "face"
	MethodQR   = "qr"
)

// Attempt outcomes recorded in the audit trail.
const (
	OutcomePresent          = "present"
	OutcomeNotRecognized    = "not_recognized"
	OutcomeTokenNotReadable = "token_not_readable"
	OutcomeNotInCohort      = "not_in_cohort"
	OutcomeMarkFailed       = "mark_failed"
)

// Decoder extracts a roll number from a scanned QR card image.
type Decoder func(imageData []byte) (string, error)

// Pipeline marks attendance from captured samples. Safe for concurrent use;
// all state lives in the underlying stores.
type Pipeline struct {
	sessions *session.Manager
	students database.StudentStore
	marks    database.AttendanceStore
	audit    database.AuditStore
	resolver gallery.Resolver
	decode   Decoder

	now func() time.Time
}

// NewPipeline wires the marking pipeline. audit may be nil to disable the
// attempt trail.
func NewPipeline(
	sessions *session.Manager,
	students database.StudentStore,
	marks database.AttendanceStore,
	audit database.AuditStore,
	resolver gallery.Resolver,
) *Pipeline {
	return &Pipeline{
		sessions: sessions,
		students: students,
		marks:    marks,
		audit:    audit,
		resolver: resolver,
		decode:   qrtoken.Decode,
		now:      time.Now,
	}
}

// SetDecoder overrides the QR decoder. Tests only.
func (p *Pipeline) SetDecoder(decode Decoder) {
	p.decode = decode
}

// SetClock overrides the pipeline's clock. Tests only.
func (p *Pipeline) SetClock(now func() time.Time) {
	p.now = now
}

// MarkViaFace resolves the probe image against the cohort's gallery and
// marks the matched student Present for today. Returns the matched roll.
func (p *Pipeline) MarkViaFace(ctx context.Context, sessionID string, probe []byte) (string, error) {
	cohort, err := p.checkWindow(ctx, sessionID)
	if err != nil {
		return "", err
	}

	roll, err := p.resolver.Resolve(ctx, probe, cohort)
	if err != nil {
		if errors.Is(err, gallery.ErrNoMatch) || errors.Is(err, gallery.ErrEmptyProbe) {
			p.recordAttempt(ctx, sessionID, cohort, MethodFace, "", OutcomeNotRecognized)
			return "", ErrNotRecognized
		}
		return "", fmt.Errorf("resolving probe: %w", err)
	}

	if err := p.markPresent(ctx, sessionID, cohort, roll, MethodFace); err != nil {
		return "", err
	}

	return roll, nil
}

// MarkViaToken decodes the QR card image, confirms the roll is enrolled in
// the session's cohort and marks it Present for today. An unvalidated token
// must never mark an out-of-cohort identity.
func (p *Pipeline) MarkViaToken(ctx context.Context, sessionID string, tokenImage []byte) (string, error) {
	cohort, err := p.checkWindow(ctx, sessionID)
	if err != nil {
		return "", err
	}

	roll, err := p.decode(tokenImage)
	if err != nil {
		p.recordAttempt(ctx, sessionID, cohort, MethodQR, "", OutcomeTokenNotReadable)
		return "", ErrTokenNotReadable
	}

	if _, err := roster.ValidateRollForCohort(roll, cohort); err != nil {
		p.recordAttempt(ctx, sessionID, cohort, MethodQR, roll, OutcomeNotInCohort)
		return "", ErrIdentityNotInCohort
	}
	if _, err := p.students.Get(ctx, cohort, roll); err != nil {
		if errors.Is(err, database.ErrStudentNotFound) {
			p.recordAttempt(ctx, sessionID, cohort, MethodQR, roll, OutcomeNotInCohort)
			return "", ErrIdentityNotInCohort
		}
		return "", fmt.Errorf("looking up %s: %w", roll, err)
	}

	if err := p.markPresent(ctx, sessionID, cohort, roll, MethodQR); err != nil {
		return "", err
	}

	return roll, nil
}

// checkWindow derives the cohort from the session id and confirms that
// exact session is still the cohort's valid active window. The lazy expiry
// sweep runs inside Active, so an expired session both fails the check and
// gets its absences backfilled.
func (p *Pipeline) checkWindow(ctx context.Context, sessionID string) (roster.Cohort, error) {
	cohort, err := session.ParseID(sessionID)
	if err != nil {
		return roster.Cohort{}, err
	}

	active, err := p.sessions.Active(ctx, cohort)
	if err != nil {
		if errors.Is(err, session.ErrNotActive) {
			return roster.Cohort{}, ErrSessionNotActive
		}
		return roster.Cohort{}, fmt.Errorf("inspecting sessions for %s: %w", cohort, err)
	}
	if active.ID != sessionID {
		return roster.Cohort{}, ErrSessionNotActive
	}

	return cohort, nil
}

// markPresent writes today's Present mark. Present over Present is an
// idempotent overwrite.
func (p *Pipeline) markPresent(ctx context.Context, sessionID string, cohort roster.Cohort, roll, method string) error {
	day := p.now().Format(database.DayFormat)
	if err := p.marks.SetMark(ctx, cohort, roll, day, database.MarkPresent); err != nil {
		p.recordAttempt(ctx, sessionID, cohort, method, roll, OutcomeMarkFailed)
		return fmt.Errorf("%w: %v", ErrMarkFailed, err)
	}

	p.recordAttempt(ctx, sessionID, cohort, method, roll, OutcomePresent)
	return nil
}

// recordAttempt appends to the audit trail. Best effort: a failed audit
// write never fails the marking call.
func (p *Pipeline) recordAttempt(ctx context.Context, sessionID string, cohort roster.Cohort, method, roll, outcome string) {
	if p.audit == nil {
		return
	}

	rec := database.AttemptRecord{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Cohort:    cohort,
		Method:    method,
		Roll:      roll,
		Outcome:   outcome,
		CreatedAt: p.now(),
	}
	if err := p.audit.RecordAttempt(ctx, rec); err != nil {
		log.Printf("could not record %s attempt for session %s: %v", method, sessionID, err)
	}
}
