package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/classmark/internal/database"
	"github.com/kozaktomas/classmark/internal/fingerprint"
	"github.com/kozaktomas/classmark/internal/gallery"
	"github.com/kozaktomas/classmark/internal/qrtoken"
	"github.com/kozaktomas/classmark/internal/roster"
)

// normalizedSampleSize bounds the stored reference face sample.
const normalizedSampleSize = 640

// StudentsHandler handles enrollment and the student directory.
type StudentsHandler struct {
	students database.StudentStore
	branches database.BranchStore
	embedder gallery.Embedder
	index    *gallery.IndexedResolver
}

// NewStudentsHandler creates a new students handler. embedder and index may
// be nil when the embedding backend is not configured.
func NewStudentsHandler(students database.StudentStore, branches database.BranchStore, embedder gallery.Embedder, index *gallery.IndexedResolver) *StudentsHandler {
	return &StudentsHandler{
		students: students,
		branches: branches,
		embedder: embedder,
		index:    index,
	}
}

// Branches returns the branch directory used by registration forms.
func (h *StudentsHandler) Branches(w http.ResponseWriter, r *http.Request) {
	branches, err := h.branches.Branches(r.Context())
	if err != nil {
		log.Printf("could not list branches: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list branches")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"branches": branches})
}

// Register enrolls a new student. Multipart form: roll_no, name, branch,
// year, password and a face image file.
func (h *StudentsHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	roll := r.FormValue("roll_no")
	name := r.FormValue("name")
	password := r.FormValue("password")
	cohort := roster.Cohort{
		Branch: r.FormValue("branch"),
		Year:   r.FormValue("year"),
	}
	if roll == "" || name == "" || password == "" || cohort.IsZero() {
		respondError(w, http.StatusBadRequest, "roll_no, name, branch, year and password are required")
		return
	}

	parsed, err := roster.ValidateRollForCohort(roll, cohort)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	sample, err := readFormFile(r, "face")
	if err != nil {
		respondError(w, http.StatusBadRequest, "face image file is required")
		return
	}

	normalized, err := fingerprint.NormalizeSample(sample, normalizedSampleSize)
	if err != nil {
		respondError(w, http.StatusBadRequest, "face image could not be decoded")
		return
	}

	student := database.Student{
		Roll:         parsed.Value,
		Name:         name,
		Cohort:       cohort,
		Password:     password,
		FaceSample:   normalized,
		QRToken:      parsed.Value,
		RegisteredOn: time.Now(),
	}

	// An unreachable embedding server degrades enrollment, it does not block
	// it. The student stays resolvable by hash comparison and QR.
	if h.embedder != nil {
		embedding, err := h.embedder.Embed(r.Context(), normalized)
		if err != nil {
			log.Printf("could not embed face for %s: %v", sanitizeForLog(roll), err)
		} else {
			student.Embedding = embedding
		}
	}

	if err := h.students.Register(r.Context(), student); err != nil {
		if errors.Is(err, database.ErrStudentExists) {
			respondError(w, http.StatusConflict, "student already registered")
			return
		}
		log.Printf("could not register %s: %v", sanitizeForLog(roll), err)
		respondError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	if h.index != nil && len(student.Embedding) > 0 {
		h.index.Add(cohort, student.Roll, student.Embedding)
	}

	respondJSON(w, http.StatusCreated, student)
}

// List returns the student directory for a cohort, ordered by roll number.
// An optional q parameter filters by name, accent- and case-insensitively.
func (h *StudentsHandler) List(w http.ResponseWriter, r *http.Request) {
	cohort := roster.Cohort{
		Branch: r.URL.Query().Get("branch"),
		Year:   r.URL.Query().Get("year"),
	}
	if cohort.IsZero() {
		respondError(w, http.StatusBadRequest, "branch and year are required")
		return
	}

	students, err := h.students.List(r.Context(), cohort)
	if err != nil {
		log.Printf("could not list students for %s: %v", cohort, err)
		respondError(w, http.StatusInternalServerError, "failed to list students")
		return
	}

	if q := r.URL.Query().Get("q"); q != "" {
		needle := roster.NormalizeName(q)
		filtered := students[:0]
		for _, s := range students {
			if strings.Contains(roster.NormalizeName(s.Name), needle) {
				filtered = append(filtered, s)
			}
		}
		students = filtered
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"cohort":   cohort,
		"count":    len(students),
		"students": students,
	})
}

// QRCard serves the student's attendance card as a PNG QR code.
func (h *StudentsHandler) QRCard(w http.ResponseWriter, r *http.Request) {
	roll := chi.URLParam(r, "roll")
	parsed, err := roster.ParseRoll(roll)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	student, err := h.students.Get(r.Context(), parsed.Cohort, parsed.Value)
	if err != nil {
		if errors.Is(err, database.ErrStudentNotFound) {
			respondError(w, http.StatusNotFound, "student not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load student")
		return
	}

	card, err := qrtoken.Encode(student.QRToken)
	if err != nil {
		log.Printf("could not encode card for %s: %v", sanitizeForLog(roll), err)
		respondError(w, http.StatusInternalServerError, "failed to generate card")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", `attachment; filename="`+parsed.Value+`.png"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(card)
}
