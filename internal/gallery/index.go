package gallery

import (
	"context"
	"fmt"
	"sync"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/classmark/internal/roster"
)

const (
	// indexMaxNeighbors is the HNSW M parameter.
	indexMaxNeighbors = 16
	// indexSearchK bounds how many nearest neighbors are pulled per probe
	// before the verification threshold is applied.
	indexSearchK = 5
)

// IndexedResolver answers probes from per-cohort HNSW graphs built over the
// enrollment embeddings. The probe is embedded once per resolution, so a
// lookup costs one embedding call plus an approximate nearest-neighbor
// search instead of a full pairwise gallery scan.
type IndexedResolver struct {
	source     Source
	embedder   Embedder
	comparator *EmbeddingComparator

	mu     sync.RWMutex
	graphs map[roster.Cohort]*hnsw.Graph[string]
}

func NewIndexedResolver(source Source, embedder Embedder, comparator *EmbeddingComparator) *IndexedResolver {
	return &IndexedResolver{
		source:     source,
		embedder:   embedder,
		comparator: comparator,
		graphs:     make(map[roster.Cohort]*hnsw.Graph[string]),
	}
}

// Rebuild replaces the cohort's graph with a fresh one built from the
// current gallery. Candidates without an enrollment embedding are skipped;
// they remain reachable through the linear resolver.
func (r *IndexedResolver) Rebuild(ctx context.Context, cohort roster.Cohort) error {
	candidates, err := r.source.Candidates(ctx, cohort)
	if err != nil {
		return fmt.Errorf("could not load gallery for %s: %w", cohort, err)
	}

	g := hnsw.NewGraph[string]()
	g.M = indexMaxNeighbors
	g.Ml = 1.0 / float64(indexMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance

	for _, candidate := range candidates {
		if len(candidate.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(candidate.Roll, candidate.Embedding))
	}

	r.mu.Lock()
	r.graphs[cohort] = g
	r.mu.Unlock()

	return nil
}

// Add inserts a single freshly enrolled student into the cohort's graph
// without a full rebuild. A cohort with no graph yet gets one lazily.
func (r *IndexedResolver) Add(cohort roster.Cohort, roll string, embedding []float32) {
	if len(embedding) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.graphs[cohort]
	if !ok {
		g = hnsw.NewGraph[string]()
		g.M = indexMaxNeighbors
		g.Ml = 1.0 / float64(indexMaxNeighbors)
		g.Distance = hnsw.CosineDistance
		r.graphs[cohort] = g
	}

	g.Add(hnsw.MakeNode(roll, embedding))
}

// Resolve embeds the probe and returns the nearest enrolled identity that
// passes the verification threshold. Neighbors come back ordered by
// distance, so the first verified one is the answer.
func (r *IndexedResolver) Resolve(ctx context.Context, probe []byte, cohort roster.Cohort) (string, error) {
	if len(probe) == 0 {
		return "", ErrEmptyProbe
	}

	r.mu.RLock()
	g, ok := r.graphs[cohort]
	r.mu.RUnlock()
	if !ok || g.Len() == 0 {
		return "", ErrNoMatch
	}

	probeEmb, err := r.embedder.Embed(ctx, probe)
	if err != nil {
		return "", fmt.Errorf("could not embed probe: %w", err)
	}

	r.mu.RLock()
	neighbors := g.Search(probeEmb, indexSearchK)
	r.mu.RUnlock()

	for _, n := range neighbors {
		cmp := r.comparator.CompareEmbedding(probeEmb, n.Value)
		if cmp.Verified {
			return n.Key, nil
		}
	}

	return "", ErrNoMatch
}
