package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/classmark/internal/database"
	"github.com/kozaktomas/classmark/internal/database/mock"
	"github.com/kozaktomas/classmark/internal/roster"
)

var testCohort = roster.Cohort{Branch: "CSA", Year: "2023"}

func newTestManager(t *testing.T, now time.Time) (*Manager, *mock.Store) {
	t.Helper()
	store := mock.NewStore()
	mgr := NewManager(store, store, store)
	mgr.SetClock(func() time.Time { return now })
	return mgr, store
}

func enroll(t *testing.T, store *mock.Store, rolls ...string) {
	t.Helper()
	for _, roll := range rolls {
		err := store.Register(context.Background(), database.Student{
			Roll:   roll,
			Name:   "Student " + roll,
			Cohort: testCohort,
		})
		if err != nil {
			t.Fatalf("registering %s: %v", roll, err)
		}
	}
}

func TestIDRoundTrip(t *testing.T) {
	start := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	id := NewID(start, testCohort)

	want := "SES_20240315_093000_CSA_2023"
	if id != want {
		t.Errorf("NewID = %q, want %q", id, want)
	}

	cohort, err := ParseID(id)
	if err != nil {
		t.Fatalf("ParseID failed: %v", err)
	}
	if cohort != testCohort {
		t.Errorf("ParseID cohort = %v, want %v", cohort, testCohort)
	}
}

func TestParseIDMalformed(t *testing.T) {
	for _, id := range []string{"", "SES_2023", "SES_20240315_093000_CSA"} {
		if _, err := ParseID(id); !errors.Is(err, ErrMalformedID) {
			t.Errorf("ParseID(%q) = %v, want ErrMalformedID", id, err)
		}
	}
}

func TestOpenRejectsSecondSession(t *testing.T) {
	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	mgr, _ := newTestManager(t, now)
	ctx := context.Background()

	first, err := mgr.Open(ctx, testCohort, "T001", time.Hour)
	if err != nil {
		t.Fatalf("first open failed: %v", err)
	}
	if first.Status != database.SessionActive {
		t.Errorf("expected active status, got %s", first.Status)
	}

	if _, err := mgr.Open(ctx, testCohort, "T002", time.Hour); !errors.Is(err, database.ErrSessionActive) {
		t.Errorf("second open = %v, want ErrSessionActive", err)
	}
}

func TestOpenAfterExpirySucceeds(t *testing.T) {
	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	mgr, _ := newTestManager(t, now)
	ctx := context.Background()

	if _, err := mgr.Open(ctx, testCohort, "T001", 30*time.Minute); err != nil {
		t.Fatalf("first open failed: %v", err)
	}

	// Move past the deadline; the stale session is swept on the next open.
	mgr.SetClock(func() time.Time { return now.Add(31 * time.Minute) })
	if _, err := mgr.Open(ctx, testCohort, "T001", 30*time.Minute); err != nil {
		t.Errorf("open after expiry failed: %v", err)
	}
}

func TestConcurrentOpensOneWinner(t *testing.T) {
	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	mgr, _ := newTestManager(t, now)
	ctx := context.Background()

	const attempts = 16
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mgr.Open(ctx, testCohort, "T001", time.Hour)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded int
	for err := range results {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, database.ErrSessionActive) {
			t.Errorf("unexpected open error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("expected exactly 1 successful open, got %d", succeeded)
	}
}

func TestActiveReturnsValidSession(t *testing.T) {
	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	mgr, _ := newTestManager(t, now)
	ctx := context.Background()

	opened, err := mgr.Open(ctx, testCohort, "T001", time.Hour)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	active, err := mgr.Active(ctx, testCohort)
	if err != nil {
		t.Fatalf("Active failed: %v", err)
	}
	if active.ID != opened.ID {
		t.Errorf("Active returned %s, want %s", active.ID, opened.ID)
	}
}

func TestActiveExpiresAndBackfills(t *testing.T) {
	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	mgr, store := newTestManager(t, now)
	ctx := context.Background()
	enroll(t, store, "BT23CSA001", "BT23CSA002", "BT23CSA003")

	if _, err := mgr.Open(ctx, testCohort, "T001", 30*time.Minute); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	// Student 2 attends before the deadline.
	day := now.Format(database.DayFormat)
	if err := store.SetMark(ctx, testCohort, "BT23CSA002", day, database.MarkPresent); err != nil {
		t.Fatalf("marking present: %v", err)
	}

	// Reading after the deadline discovers expiry, closes and backfills.
	mgr.SetClock(func() time.Time { return now.Add(time.Hour) })
	if _, err := mgr.Active(ctx, testCohort); !errors.Is(err, ErrNotActive) {
		t.Fatalf("Active after deadline = %v, want ErrNotActive", err)
	}

	marks, err := store.Marks(ctx, testCohort, day)
	if err != nil {
		t.Fatalf("Marks failed: %v", err)
	}
	want := map[string]database.MarkStatus{
		"BT23CSA001": database.MarkAbsent,
		"BT23CSA002": database.MarkPresent, // Present beats Absent
		"BT23CSA003": database.MarkAbsent,
	}
	for roll, status := range want {
		if marks[roll] != status {
			t.Errorf("mark for %s = %q, want %q", roll, marks[roll], status)
		}
	}
}

func TestActiveAtExactDeadlineIsExpired(t *testing.T) {
	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	mgr, _ := newTestManager(t, now)
	ctx := context.Background()

	if _, err := mgr.Open(ctx, testCohort, "T001", 30*time.Minute); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	mgr.SetClock(func() time.Time { return now.Add(30 * time.Minute) })
	if _, err := mgr.Active(ctx, testCohort); !errors.Is(err, ErrNotActive) {
		t.Errorf("Active at exact deadline = %v, want ErrNotActive", err)
	}
}

func TestCloseWithBackfill(t *testing.T) {
	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	mgr, store := newTestManager(t, now)
	ctx := context.Background()
	enroll(t, store, "BT23CSA001", "BT23CSA002", "BT23CSA003")

	opened, err := mgr.Open(ctx, testCohort, "T001", time.Hour)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	day := now.Format(database.DayFormat)
	if err := store.SetMark(ctx, testCohort, "BT23CSA002", day, database.MarkPresent); err != nil {
		t.Fatalf("marking present: %v", err)
	}

	if err := mgr.Close(ctx, opened.ID, true); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if _, err := mgr.Active(ctx, testCohort); !errors.Is(err, ErrNotActive) {
		t.Errorf("Active after close = %v, want ErrNotActive", err)
	}

	marks, _ := store.Marks(ctx, testCohort, day)
	if marks["BT23CSA002"] != database.MarkPresent {
		t.Errorf("backfill overwrote a Present mark: %q", marks["BT23CSA002"])
	}
	if marks["BT23CSA001"] != database.MarkAbsent || marks["BT23CSA003"] != database.MarkAbsent {
		t.Errorf("expected absentees backfilled, got %v", marks)
	}
}

func TestCloseMalformedID(t *testing.T) {
	mgr, _ := newTestManager(t, time.Now())
	if err := mgr.Close(context.Background(), "SES_2023", false); !errors.Is(err, ErrMalformedID) {
		t.Errorf("close malformed id = %v, want ErrMalformedID", err)
	}
}
