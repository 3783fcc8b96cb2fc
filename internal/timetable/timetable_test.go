package timetable

import (
	"testing"
	"time"

	"github.com/kozaktomas/classmark/internal/roster"
)

const testYAML = `
cohorts:
  default:
    Monday:
      - time: "09:00"
        subject: Mathematics III
      - time: "10:00"
        subject: Operating Systems
      - time: "13:00"
        subject: Lunch Break
      - time: "14:00"
        subject: DBMS Lab
  CSA/2023:
    Monday:
      - time: "09:00"
        subject: Machine Learning
`

func TestParse(t *testing.T) {
	set, err := Parse([]byte(testYAML))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(set.Cohorts) != 2 {
		t.Errorf("expected 2 timetables, got %d", len(set.Cohorts))
	}
}

func TestParseInvalid(t *testing.T) {
	if _, err := Parse([]byte("cohorts: [not a map")); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestDayScheduleStatuses(t *testing.T) {
	set, err := Parse([]byte(testYAML))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	// Monday 10:30 - math is past, OS is current, the rest upcoming.
	now := time.Date(2024, 3, 18, 10, 30, 0, 0, time.UTC)
	entries := set.DaySchedule(roster.Cohort{Branch: "CSD", Year: "2022"}, now)
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}

	expected := []struct {
		subject string
		status  string
		endTime string
		isLunch bool
	}{
		{"Mathematics III", StatusPast, "10:00", false},
		{"Operating Systems", StatusCurrent, "11:00", false},
		{"Lunch Break", StatusUpcoming, "14:00", true},
		{"DBMS Lab", StatusUpcoming, "17:00", false},
	}

	for i, want := range expected {
		got := entries[i]
		if got.Subject != want.subject || got.Status != want.status || got.EndTime != want.endTime || got.IsLunch != want.isLunch {
			t.Errorf("entry %d: expected %+v, got %+v", i, want, got)
		}
	}
}

func TestDayScheduleLabRunsThreeHours(t *testing.T) {
	set, _ := Parse([]byte(testYAML))

	// Monday 15:30 - two hours into the lab, still current.
	now := time.Date(2024, 3, 18, 15, 30, 0, 0, time.UTC)
	entries := set.DaySchedule(roster.Cohort{Branch: "CSD", Year: "2022"}, now)

	last := entries[len(entries)-1]
	if last.Subject != "DBMS Lab" || last.Status != StatusCurrent {
		t.Errorf("expected lab to still be current at 15:30, got %+v", last)
	}
}

func TestDayScheduleCohortOverride(t *testing.T) {
	set, _ := Parse([]byte(testYAML))

	now := time.Date(2024, 3, 18, 8, 0, 0, 0, time.UTC)
	entries := set.DaySchedule(roster.Cohort{Branch: "CSA", Year: "2023"}, now)
	if len(entries) != 1 || entries[0].Subject != "Machine Learning" {
		t.Errorf("expected the cohort-specific schedule, got %+v", entries)
	}
}

func TestDayScheduleEmptyDay(t *testing.T) {
	set, _ := Parse([]byte(testYAML))

	// Sunday has no slots configured.
	now := time.Date(2024, 3, 17, 10, 0, 0, 0, time.UTC)
	if entries := set.DaySchedule(roster.Cohort{Branch: "CSD", Year: "2022"}, now); len(entries) != 0 {
		t.Errorf("expected empty schedule on Sunday, got %+v", entries)
	}
}

func TestWeekScheduleFallback(t *testing.T) {
	set, _ := Parse([]byte(testYAML))

	w := set.WeekSchedule(roster.Cohort{Branch: "CSB", Year: "2025"})
	if w == nil {
		t.Fatal("expected default timetable for unconfigured cohort")
	}
	if len(w["Monday"]) != 4 {
		t.Errorf("expected 4 Monday slots from default, got %d", len(w["Monday"]))
	}
}
