package gallery

import (
	"context"
	"fmt"
	"log"

	"github.com/kozaktomas/classmark/internal/roster"
)

// LinearResolver scans the whole cohort gallery and keeps the verified
// candidate with the lowest distance. O(N) per probe, which is fine for
// class-sized galleries; larger deployments swap in IndexedResolver.
type LinearResolver struct {
	source     Source
	comparator Comparator
}

func NewLinearResolver(source Source, comparator Comparator) *LinearResolver {
	return &LinearResolver{
		source:     source,
		comparator: comparator,
	}
}

// Resolve returns the roll number of the best verified match for the probe.
// A comparator failure on one candidate skips that candidate without
// aborting the scan. Ties on exact distance keep the first candidate
// enumerated, so repeated resolutions over the same gallery are
// deterministic.
func (r *LinearResolver) Resolve(ctx context.Context, probe []byte, cohort roster.Cohort) (string, error) {
	if len(probe) == 0 {
		return "", ErrEmptyProbe
	}

	candidates, err := r.source.Candidates(ctx, cohort)
	if err != nil {
		return "", fmt.Errorf("could not load gallery for %s: %w", cohort, err)
	}
	if len(candidates) == 0 {
		return "", ErrNoMatch
	}

	var (
		bestRoll     string
		bestDistance float64
		found        bool
	)

	for _, candidate := range candidates {
		cmp, err := r.comparator.Compare(ctx, probe, candidate.Sample)
		if err != nil {
			log.Printf("comparison against %s failed, skipping: %v", candidate.Roll, err)
			continue
		}
		if !cmp.Verified {
			continue
		}
		if !found || cmp.Distance < bestDistance {
			bestRoll = candidate.Roll
			bestDistance = cmp.Distance
			found = true
		}
	}

	if !found {
		return "", ErrNoMatch
	}

	return bestRoll, nil
}
