package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/kozaktomas/classmark/internal/database"
	"github.com/kozaktomas/classmark/internal/gallery"
	"github.com/kozaktomas/classmark/internal/roster"
	"github.com/kozaktomas/classmark/internal/web/middleware"
)

// AuthHandler handles teacher and student logins.
type AuthHandler struct {
	teachers database.TeacherStore
	students database.StudentStore
	resolver gallery.Resolver
	logins   *middleware.LoginManager
}

// NewAuthHandler creates a new auth handler. resolver may be nil to disable
// face login.
func NewAuthHandler(teachers database.TeacherStore, students database.StudentStore, resolver gallery.Resolver, lm *middleware.LoginManager) *AuthHandler {
	return &AuthHandler{
		teachers: teachers,
		students: students,
		resolver: resolver,
		logins:   lm,
	}
}

// LoginResponse represents a login response.
type LoginResponse struct {
	Success   bool   `json:"success"`
	Role      string `json:"role,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Name      string `json:"name,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
	Error     string `json:"error,omitempty"`
}

func credentialsMatch(stored, supplied string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) == 1
}

func (h *AuthHandler) respondLogin(w http.ResponseWriter, login *middleware.Login) {
	h.logins.SetLoginCookie(w, login)
	respondJSON(w, http.StatusOK, LoginResponse{
		Success:   true,
		Role:      login.Role,
		UserID:    login.UserID,
		Name:      login.Name,
		SessionID: login.ID,
		ExpiresAt: login.ExpiresAt.Format("2006-01-02T15:04:05Z"),
	})
}

// TeacherLogin handles operator login with id and password.
func (h *AuthHandler) TeacherLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TeacherID string `json:"teacher_id"`
		Password  string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.TeacherID == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "teacher_id and password are required")
		return
	}

	teacher, err := h.teachers.Teacher(r.Context(), req.TeacherID)
	if err != nil || !credentialsMatch(teacher.Password, req.Password) {
		respondJSON(w, http.StatusUnauthorized, LoginResponse{
			Success: false,
			Error:   "invalid credentials",
		})
		return
	}

	login, err := h.logins.CreateLogin(middleware.RoleTeacher, teacher.ID, teacher.Name, roster.Cohort{})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	h.respondLogin(w, login)
}

// StudentLogin handles student login with roll number and password. The
// cohort comes from the roll itself.
func (h *AuthHandler) StudentLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Roll     string `json:"roll_no"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Roll == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "roll_no and password are required")
		return
	}

	parsed, err := roster.ParseRoll(req.Roll)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	student, err := h.students.Get(r.Context(), parsed.Cohort, parsed.Value)
	if err != nil || !credentialsMatch(student.Password, req.Password) {
		respondJSON(w, http.StatusUnauthorized, LoginResponse{
			Success: false,
			Error:   "invalid credentials",
		})
		return
	}

	login, err := h.logins.CreateLogin(middleware.RoleStudent, student.Roll, student.Name, student.Cohort)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	h.respondLogin(w, login)
}

// StudentFaceLogin logs a student in from a face capture instead of a
// password. Multipart form: branch, year, image.
func (h *AuthHandler) StudentFaceLogin(w http.ResponseWriter, r *http.Request) {
	if h.resolver == nil {
		respondError(w, http.StatusNotImplemented, "face login is not enabled")
		return
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	cohort := roster.Cohort{
		Branch: r.FormValue("branch"),
		Year:   r.FormValue("year"),
	}
	if cohort.IsZero() {
		respondError(w, http.StatusBadRequest, "branch and year are required")
		return
	}

	probe, err := readFormFile(r, "image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "image file is required")
		return
	}

	roll, err := h.resolver.Resolve(r.Context(), probe, cohort)
	if err != nil {
		if errors.Is(err, gallery.ErrNoMatch) || errors.Is(err, gallery.ErrEmptyProbe) {
			respondJSON(w, http.StatusUnauthorized, LoginResponse{
				Success: false,
				Error:   "face not recognized",
			})
			return
		}
		log.Printf("face login failed for %s: %v", cohort, err)
		respondError(w, http.StatusInternalServerError, "face login failed")
		return
	}

	student, err := h.students.Get(r.Context(), cohort, roll)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load student")
		return
	}

	login, err := h.logins.CreateLogin(middleware.RoleStudent, student.Roll, student.Name, student.Cohort)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	h.respondLogin(w, login)
}

// Logout handles logout for both roles.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if login := h.logins.GetLoginFromRequest(r); login != nil {
		h.logins.DeleteLogin(login.ID)
	}
	h.logins.ClearLoginCookie(w)
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// StatusResponse represents the auth status response.
type StatusResponse struct {
	Authenticated bool   `json:"authenticated"`
	Role          string `json:"role,omitempty"`
	UserID        string `json:"user_id,omitempty"`
	ExpiresAt     string `json:"expires_at,omitempty"`
}

// Status checks if the user is authenticated by validating the session.
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	login := h.logins.GetLoginFromRequest(r)
	if login == nil {
		respondJSON(w, http.StatusOK, StatusResponse{Authenticated: false})
		return
	}
	respondJSON(w, http.StatusOK, StatusResponse{
		Authenticated: true,
		Role:          login.Role,
		UserID:        login.UserID,
		ExpiresAt:     login.ExpiresAt.Format("2006-01-02T15:04:05Z"),
	})
}
