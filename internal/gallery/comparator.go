// Package gallery implements 1:N identity resolution: matching a freshly
// captured probe sample against a cohort's enrolled reference gallery.
package gallery

import (
	"context"
	"errors"

	"github.com/kozaktomas/classmark/internal/roster"
)

// Comparison is the outcome of one pairwise sample comparison. Distance and
// Verified are independent: a candidate is only in contention when the
// comparator vouches for it, however small the distance.
type Comparison struct {
	Distance float64 `json:"distance"`
	Verified bool    `json:"verified"`
}

// Comparator is the pairwise similarity primitive. Implementations are
// opaque: the resolver only relies on lower-distance-is-more-similar and on
// Verified being a fixed-threshold verdict, deterministic for identical
// inputs.
type Comparator interface {
	Compare(ctx context.Context, probe, reference []byte) (Comparison, error)
}

// Candidate is one enrolled reference sample offered for comparison.
type Candidate struct {
	Roll      string
	Sample    []byte
	Embedding []float32
}

// Source enumerates a cohort's reference gallery. The enumeration order is
// whatever the backing store returns; the resolver does not depend on it
// except to break exact distance ties.
type Source interface {
	Candidates(ctx context.Context, cohort roster.Cohort) ([]Candidate, error)
}

// SourceFunc adapts a plain function to the Source interface.
type SourceFunc func(ctx context.Context, cohort roster.Cohort) ([]Candidate, error)

func (f SourceFunc) Candidates(ctx context.Context, cohort roster.Cohort) ([]Candidate, error) {
	return f(ctx, cohort)
}

// Resolution errors.
var (
	// ErrNoMatch means the gallery is empty, no candidate was verified, or
	// every comparable candidate failed.
	ErrNoMatch = errors.New("no verified match in gallery")

	// ErrEmptyProbe means the caller passed an empty probe sample. Callers
	// are expected to reject empty captures before resolving.
	ErrEmptyProbe = errors.New("empty probe sample")
)

// Resolver finds the enrolled identity best matching a probe sample.
// Pluggable so an indexed nearest-neighbor search can replace the linear
// scan without changing callers.
type Resolver interface {
	Resolve(ctx context.Context, probe []byte, cohort roster.Cohort) (string, error)
}
