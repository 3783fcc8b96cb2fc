// Package timetable serves the weekly class schedule shown on the student
// dashboard. Schedules are keyed per cohort with a shared default.
package timetable

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/classmark/internal/roster"
)

// Slot is one scheduled class in the weekly grid.
type Slot struct {
	Time    string `yaml:"time"`    // start, "15:04"
	Subject string `yaml:"subject"` // "Lunch Break" marks the lunch slot
}

// Week maps weekday name (Monday..Sunday) to that day's slots, in start
// time order.
type Week map[string][]Slot

// Set holds all configured timetables keyed by "<branch>/<year>", with an
// optional "default" entry used for cohorts without their own schedule.
type Set struct {
	Cohorts map[string]Week `yaml:"cohorts"`
}

// Entry is a slot annotated for display relative to the current time.
type Entry struct {
	Time    string `json:"time"`
	EndTime string `json:"end_time"`
	Subject string `json:"subject"`
	Status  string `json:"status"` // past, current, upcoming
	IsLunch bool   `json:"is_lunch"`
}

const (
	StatusPast     = "past"
	StatusCurrent  = "current"
	StatusUpcoming = "upcoming"

	defaultKey = "default"
)

// Parse reads a timetable set from YAML.
func Parse(data []byte) (*Set, error) {
	var s Set
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("could not parse timetable: %w", err)
	}
	return &s, nil
}

// week returns the cohort's schedule, falling back to the default entry.
func (s *Set) week(cohort roster.Cohort) Week {
	if w, ok := s.Cohorts[cohort.Branch+"/"+cohort.Year]; ok {
		return w
	}
	return s.Cohorts[defaultKey]
}

// WeekSchedule returns the cohort's full weekly grid, or nil when neither a
// cohort-specific nor a default timetable is configured.
func (s *Set) WeekSchedule(cohort roster.Cohort) Week {
	return s.week(cohort)
}

// DaySchedule returns the cohort's slots for now's weekday, each annotated
// with its end time and whether it is past, current or upcoming. Lab slots
// run three hours, everything else one.
func (s *Set) DaySchedule(cohort roster.Cohort, now time.Time) []Entry {
	w := s.week(cohort)
	if w == nil {
		return nil
	}

	slots := w[now.Weekday().String()]
	entries := make([]Entry, 0, len(slots))

	for _, slot := range slots {
		start, err := time.Parse("15:04", slot.Time)
		if err != nil {
			continue
		}

		hour := start.Hour()
		span := 1
		if isLab(slot.Subject) {
			span = 3
		}

		status := StatusUpcoming
		switch {
		case now.Hour() >= hour && now.Hour() < hour+span:
			status = StatusCurrent
		case now.Hour() >= hour+span:
			status = StatusPast
		}

		entries = append(entries, Entry{
			Time:    slot.Time,
			EndTime: fmt.Sprintf("%02d:00", hour+span),
			Subject: slot.Subject,
			Status:  status,
			IsLunch: isLunch(slot.Subject),
		})
	}

	return entries
}

func isLab(subject string) bool {
	return strings.Contains(strings.ToLower(subject), "lab")
}

func isLunch(subject string) bool {
	return strings.Contains(strings.ToLower(subject), "lunch")
}
