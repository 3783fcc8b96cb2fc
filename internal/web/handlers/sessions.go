package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/kozaktomas/classmark/internal/database"
	"github.com/kozaktomas/classmark/internal/roster"
	"github.com/kozaktomas/classmark/internal/session"
	"github.com/kozaktomas/classmark/internal/web/middleware"
)

// SessionsHandler handles the attendance session lifecycle.
type SessionsHandler struct {
	manager         *session.Manager
	audit           database.AuditStore
	defaultDuration time.Duration
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(manager *session.Manager, audit database.AuditStore, defaultDuration time.Duration) *SessionsHandler {
	if defaultDuration <= 0 {
		defaultDuration = time.Hour
	}
	return &SessionsHandler{
		manager:         manager,
		audit:           audit,
		defaultDuration: defaultDuration,
	}
}

// Open starts a new attendance window for a cohort. Body: branch, year and
// an optional duration_minutes. Teacher only.
func (h *SessionsHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Branch          string `json:"branch"`
		Year            string `json:"year"`
		DurationMinutes int    `json:"duration_minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	cohort := roster.Cohort{Branch: req.Branch, Year: req.Year}
	if cohort.IsZero() {
		respondError(w, http.StatusBadRequest, "branch and year are required")
		return
	}

	duration := h.defaultDuration
	if req.DurationMinutes > 0 {
		duration = time.Duration(req.DurationMinutes) * time.Minute
	}

	login := middleware.GetLoginFromContext(r.Context())
	if login == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	rec, err := h.manager.Open(r.Context(), cohort, login.UserID, duration)
	if err != nil {
		if errors.Is(err, database.ErrSessionActive) {
			respondError(w, http.StatusConflict, "a session is already active for this cohort")
			return
		}
		log.Printf("could not open session for %s: %v", cohort, err)
		respondError(w, http.StatusInternalServerError, "failed to open session")
		return
	}

	respondJSON(w, http.StatusCreated, rec)
}

// Active returns the cohort's currently valid session. Reading through the
// manager sweeps expired sessions as a side effect.
func (h *SessionsHandler) Active(w http.ResponseWriter, r *http.Request) {
	cohort := roster.Cohort{
		Branch: r.URL.Query().Get("branch"),
		Year:   r.URL.Query().Get("year"),
	}
	if cohort.IsZero() {
		respondError(w, http.StatusBadRequest, "branch and year are required")
		return
	}

	rec, err := h.manager.Active(r.Context(), cohort)
	if err != nil {
		if errors.Is(err, session.ErrNotActive) {
			respondJSON(w, http.StatusOK, map[string]any{"active": false})
			return
		}
		log.Printf("could not read active session for %s: %v", cohort, err)
		respondError(w, http.StatusInternalServerError, "failed to read active session")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"active":  true,
		"session": rec,
	})
}

// Close ends a session and backfills absences for unmarked students.
// Teacher only.
func (h *SessionsHandler) Close(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.SessionID == "" {
		respondError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	if err := h.manager.Close(r.Context(), req.SessionID, true); err != nil {
		switch {
		case errors.Is(err, session.ErrMalformedID):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, database.ErrSessionNotFound):
			respondError(w, http.StatusNotFound, "session not found or already closed")
		default:
			log.Printf("could not close session %s: %v", sanitizeForLog(req.SessionID), err)
			respondError(w, http.StatusInternalServerError, "failed to close session")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Attempts returns the audit trail of marking attempts for a session.
// Teacher only.
func (h *SessionsHandler) Attempts(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if _, err := session.ParseID(sessionID); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	attempts, err := h.audit.Attempts(r.Context(), sessionID)
	if err != nil {
		log.Printf("could not list attempts for %s: %v", sanitizeForLog(sessionID), err)
		respondError(w, http.StatusInternalServerError, "failed to list attempts")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"count":      len(attempts),
		"attempts":   attempts,
	})
}
