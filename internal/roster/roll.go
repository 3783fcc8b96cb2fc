// Package roster defines cohort and roll number handling shared across the codebase.
// A roll number is self-describing: it embeds the enrollment year and branch code,
// so the owning cohort can always be re-derived from the key alone.
package roster

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Roll number layout: BT<YY><BRANCH><NNN>, e.g. BT23CSH013.
const (
	rollPrefix    = "BT"
	rollMinLength = 8
	branchLength  = 3
)

// ErrInvalidRoll is returned when a roll number does not match the expected layout.
var ErrInvalidRoll = errors.New("invalid roll number format, expected BT[YY][BRANCH][NNN]")

// Cohort identifies a (branch, enrollment year) pair. It namespaces students,
// sessions, attendance marks and galleries.
type Cohort struct {
	Branch string `json:"branch"`
	Year   string `json:"year"`
}

// String returns the cohort as "BRANCH/YEAR" for logs and paths.
func (c Cohort) String() string {
	return c.Branch + "/" + c.Year
}

// IsZero reports whether the cohort is unset.
func (c Cohort) IsZero() bool {
	return c.Branch == "" && c.Year == ""
}

// Roll is a parsed roll number.
type Roll struct {
	Value  string // full roll number, e.g. BT23CSH013
	Cohort Cohort // cohort derived from the embedded year and branch fragments
	Serial string // numeric suffix, e.g. 013
}

// ParseRoll validates a roll number and extracts the embedded cohort.
// The 2-digit year code at offsets 2-3 expands to "20YY"; the 3-character
// branch code sits at offsets 4-6; the remainder must be numeric.
func ParseRoll(roll string) (Roll, error) {
	if len(roll) < rollMinLength || !strings.HasPrefix(roll, rollPrefix) {
		return Roll{}, ErrInvalidRoll
	}

	yearCode := roll[2:4]
	branch := roll[4 : 4+branchLength]
	serial := roll[4+branchLength:]

	if !isDigits(yearCode) || !isDigits(serial) {
		return Roll{}, ErrInvalidRoll
	}
	for _, r := range branch {
		if !unicode.IsUpper(r) {
			return Roll{}, ErrInvalidRoll
		}
	}

	return Roll{
		Value:  roll,
		Cohort: Cohort{Branch: branch, Year: "20" + yearCode},
		Serial: serial,
	}, nil
}

// ValidateRollForCohort parses a roll number and rejects it when the cohort
// encoded in the key disagrees with the cohort the caller wants to file it
// under. Registration must never store a roll in a foreign cohort.
func ValidateRollForCohort(roll string, cohort Cohort) (Roll, error) {
	parsed, err := ParseRoll(roll)
	if err != nil {
		return Roll{}, err
	}
	if parsed.Cohort != cohort {
		return Roll{}, fmt.Errorf("roll %s belongs to cohort %s, not %s: %w",
			roll, parsed.Cohort, cohort, ErrInvalidRoll)
	}
	return parsed, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
