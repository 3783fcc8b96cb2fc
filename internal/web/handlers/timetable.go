package handlers

import (
	"net/http"
	"time"

	"github.com/kozaktomas/classmark/internal/roster"
	"github.com/kozaktomas/classmark/internal/timetable"
)

// TimetableHandler serves the class schedule.
type TimetableHandler struct {
	set *timetable.Set
}

// NewTimetableHandler creates a new timetable handler.
func NewTimetableHandler(set *timetable.Set) *TimetableHandler {
	return &TimetableHandler{set: set}
}

// Today returns the cohort's schedule for the current day, with each slot
// tagged past, current or upcoming. Query: branch, year.
func (h *TimetableHandler) Today(w http.ResponseWriter, r *http.Request) {
	cohort := roster.Cohort{
		Branch: r.URL.Query().Get("branch"),
		Year:   r.URL.Query().Get("year"),
	}
	if cohort.IsZero() {
		respondError(w, http.StatusBadRequest, "branch and year are required")
		return
	}

	now := time.Now()
	respondJSON(w, http.StatusOK, map[string]any{
		"cohort":  cohort,
		"day":     now.Weekday().String(),
		"entries": h.set.DaySchedule(cohort, now),
	})
}

// Week returns the cohort's full weekly schedule. Query: branch, year.
func (h *TimetableHandler) Week(w http.ResponseWriter, r *http.Request) {
	cohort := roster.Cohort{
		Branch: r.URL.Query().Get("branch"),
		Year:   r.URL.Query().Get("year"),
	}
	if cohort.IsZero() {
		respondError(w, http.StatusBadRequest, "branch and year are required")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"cohort": cohort,
		"week":   h.set.WeekSchedule(cohort),
	})
}
