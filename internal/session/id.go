// Package session implements the attendance session state machine: opening
// time-boxed windows, discovering expiry lazily on read, and backfilling
// absences when a window closes.
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kozaktomas/classmark/internal/roster"
)

// Session ids are self-describing: SES_<YYYYMMDD>_<HHMMSS>_<branch>_<year>.
// Any holder of the id can re-derive the owning cohort without a lookup.
const idPrefix = "SES"

// ErrMalformedID is returned when a session id has fewer than five fragments.
var ErrMalformedID = errors.New("malformed session id")

// NewID constructs a session id from the start time and owning cohort.
func NewID(start time.Time, cohort roster.Cohort) string {
	return fmt.Sprintf("%s_%s_%s_%s_%s",
		idPrefix, start.Format("20060102"), start.Format("150405"),
		cohort.Branch, cohort.Year)
}

// ParseID recovers the cohort from a session id. Fragments 4 and 5 are the
// branch code and year; anything shorter is malformed and rejected before
// any cohort lookup happens.
func ParseID(id string) (roster.Cohort, error) {
	parts := strings.Split(id, "_")
	if len(parts) < 5 {
		return roster.Cohort{}, fmt.Errorf("%w: %q", ErrMalformedID, id)
	}
	return roster.Cohort{Branch: parts[3], Year: parts[4]}, nil
}
