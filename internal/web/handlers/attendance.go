package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/kozaktomas/classmark/internal/attendance"
	"github.com/kozaktomas/classmark/internal/database"
	"github.com/kozaktomas/classmark/internal/roster"
	"github.com/kozaktomas/classmark/internal/session"
)

// AttendanceHandler handles marking and attendance reads.
type AttendanceHandler struct {
	pipeline *attendance.Pipeline
	marks    database.AttendanceStore
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(pipeline *attendance.Pipeline, marks database.AttendanceStore) *AttendanceHandler {
	return &AttendanceHandler{
		pipeline: pipeline,
		marks:    marks,
	}
}

type markResponse struct {
	Success bool   `json:"success"`
	Roll    string `json:"roll_no,omitempty"`
	Error   string `json:"error,omitempty"`
}

// markStatus maps a pipeline failure to its HTTP status. Every failure mode
// carries a distinct student-facing message defined by the pipeline itself.
func markStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrMalformedID):
		return http.StatusBadRequest
	case errors.Is(err, attendance.ErrSessionNotActive):
		return http.StatusConflict
	case errors.Is(err, attendance.ErrNotRecognized),
		errors.Is(err, attendance.ErrTokenNotReadable),
		errors.Is(err, attendance.ErrIdentityNotInCohort):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// mark runs one marking attempt and writes the response. The attempt itself
// is audited inside the pipeline.
func (h *AttendanceHandler) mark(w http.ResponseWriter, r *http.Request, run func(sessionID string, image []byte) (string, error)) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	sessionID := r.FormValue("session_id")
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	image, err := readFormFile(r, "image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "image file is required")
		return
	}

	roll, err := run(sessionID, image)
	if err != nil {
		status := markStatus(err)
		if status == http.StatusInternalServerError {
			log.Printf("marking attempt for %s failed: %v", sanitizeForLog(sessionID), err)
			respondJSON(w, status, markResponse{Success: false, Error: "marking failed"})
			return
		}
		respondJSON(w, status, markResponse{Success: false, Error: err.Error()})
		return
	}

	respondJSON(w, http.StatusOK, markResponse{Success: true, Roll: roll})
}

// MarkFace marks attendance from a face capture. Multipart form: session_id
// and an image file.
func (h *AttendanceHandler) MarkFace(w http.ResponseWriter, r *http.Request) {
	h.mark(w, r, func(sessionID string, image []byte) (string, error) {
		return h.pipeline.MarkViaFace(r.Context(), sessionID, image)
	})
}

// MarkQR marks attendance from a photographed attendance card. Multipart
// form: session_id and an image file.
func (h *AttendanceHandler) MarkQR(w http.ResponseWriter, r *http.Request) {
	h.mark(w, r, func(sessionID string, image []byte) (string, error) {
		return h.pipeline.MarkViaToken(r.Context(), sessionID, image)
	})
}

// DayMarks returns the cohort's marks for one calendar day.
// Query: branch, year, day (defaults to today).
func (h *AttendanceHandler) DayMarks(w http.ResponseWriter, r *http.Request) {
	cohort := roster.Cohort{
		Branch: r.URL.Query().Get("branch"),
		Year:   r.URL.Query().Get("year"),
	}
	if cohort.IsZero() {
		respondError(w, http.StatusBadRequest, "branch and year are required")
		return
	}

	day := r.URL.Query().Get("day")
	if day == "" {
		day = today()
	}

	marks, err := h.marks.Marks(r.Context(), cohort, day)
	if err != nil {
		log.Printf("could not read marks for %s on %s: %v", cohort, sanitizeForLog(day), err)
		respondError(w, http.StatusInternalServerError, "failed to read marks")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"cohort": cohort,
		"day":    day,
		"marks":  marks,
	})
}

// Stats returns the derived attendance summary for every student in a
// cohort. Query: branch, year.
func (h *AttendanceHandler) Stats(w http.ResponseWriter, r *http.Request) {
	cohort := roster.Cohort{
		Branch: r.URL.Query().Get("branch"),
		Year:   r.URL.Query().Get("year"),
	}
	if cohort.IsZero() {
		respondError(w, http.StatusBadRequest, "branch and year are required")
		return
	}

	stats, err := h.marks.Stats(r.Context(), cohort)
	if err != nil {
		log.Printf("could not read stats for %s: %v", cohort, err)
		respondError(w, http.StatusInternalServerError, "failed to read stats")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"cohort": cohort,
		"stats":  stats,
	})
}
