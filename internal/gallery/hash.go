package gallery

import (
	"context"
	"fmt"

	"github.com/kozaktomas/classmark/internal/fingerprint"
)

// HashComparator verifies identity by perceptual hash distance. It needs no
// external service, which makes it the fallback backend for deployments
// without an embedding server and the workhorse of the test suite. Hash
// distance is far weaker than a face embedding, so the default threshold is
// deliberately tight.
type HashComparator struct {
	threshold float64
}

// DefaultHashThreshold is the combined pHash/dHash distance below which two
// samples are considered the same capture subject.
const DefaultHashThreshold = 0.25

func NewHashComparator(threshold float64) *HashComparator {
	if threshold <= 0 {
		threshold = DefaultHashThreshold
	}
	return &HashComparator{threshold: threshold}
}

func (c *HashComparator) Compare(_ context.Context, probe, reference []byte) (Comparison, error) {
	probeHash, err := fingerprint.Compute(probe)
	if err != nil {
		return Comparison{}, fmt.Errorf("could not hash probe: %w", err)
	}
	refHash, err := fingerprint.Compute(reference)
	if err != nil {
		return Comparison{}, fmt.Errorf("could not hash reference: %w", err)
	}

	distance := probeHash.Distance(refHash)
	return Comparison{
		Distance: distance,
		Verified: distance < c.threshold,
	}, nil
}
