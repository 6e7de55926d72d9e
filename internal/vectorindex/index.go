// Package vectorindex holds per-collection similarity indexes: the in-memory
// search structure, its on-disk encoding, the persistence backends and the
// process-wide cache of loaded indexes.
//
// Similarity is cosine similarity in [-1, 1] everywhere. Results are ordered
// by descending score, ties broken by ascending chunk id.
package vectorindex

import (
	"fmt"
	"math"
	"sort"

	"github.com/xxxsen/scribe/internal/model"
	appErr "github.com/xxxsen/scribe/internal/pkg/errors"
)

type Hit struct {
	Chunk model.Chunk
	Score float64
}

// Index is a brute-force cosine index over the chunks of one collection.
// Add is not safe for concurrent use; a loaded index is read-only and
// Search may be called from any number of goroutines.
type Index struct {
	dimension int
	chunks    []model.Chunk
	norms     []float64
	ids       map[string]struct{}
}

// New returns an empty index. A zero dimension is fixed by the first Add.
func New(dimension int) *Index {
	return &Index{
		dimension: dimension,
		ids:       make(map[string]struct{}),
	}
}

func (x *Index) Dimension() int {
	return x.dimension
}

func (x *Index) Len() int {
	return len(x.chunks)
}

// Chunks returns the indexed chunks in insertion order. Callers must not
// modify the result.
func (x *Index) Chunks() []model.Chunk {
	return x.chunks
}

// Add appends chunks. Existing entries are never rebuilt.
func (x *Index) Add(chunks ...model.Chunk) error {
	for _, c := range chunks {
		if c.ID == "" {
			return fmt.Errorf("chunk id is required: %w", appErr.ErrInvalid)
		}
		if _, ok := x.ids[c.ID]; ok {
			return fmt.Errorf("duplicate chunk id %q: %w", c.ID, appErr.ErrConflict)
		}
		if x.dimension == 0 {
			x.dimension = len(c.Vector)
		}
		if x.dimension == 0 || len(c.Vector) != x.dimension {
			return fmt.Errorf("chunk %q dimension %d, index expects %d: %w", c.ID, len(c.Vector), x.dimension, appErr.ErrInvalid)
		}
		norm, ok := vectorNorm(c.Vector)
		if !ok {
			return fmt.Errorf("chunk %q has non-finite vector values: %w", c.ID, appErr.ErrInvalid)
		}
		vec := make([]float32, len(c.Vector))
		copy(vec, c.Vector)
		c.Vector = vec
		x.chunks = append(x.chunks, c)
		x.norms = append(x.norms, norm)
		x.ids[c.ID] = struct{}{}
	}
	return nil
}

// Merge appends every chunk of other.
func (x *Index) Merge(other *Index) error {
	if other == nil || other.Len() == 0 {
		return nil
	}
	if x.dimension != 0 && other.dimension != x.dimension {
		return fmt.Errorf("merge dimension %d into %d: %w", other.dimension, x.dimension, appErr.ErrInvalid)
	}
	return x.Add(other.chunks...)
}

// Search returns at most k hits sorted by descending cosine similarity with
// ties broken by ascending chunk id. An empty index yields no hits.
func (x *Index) Search(query []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d: %w", k, appErr.ErrInvalid)
	}
	if len(x.chunks) == 0 {
		return []Hit{}, nil
	}
	if len(query) != x.dimension {
		return nil, fmt.Errorf("query dimension %d, index expects %d: %w", len(query), x.dimension, appErr.ErrInvalid)
	}
	qnorm, ok := vectorNorm(query)
	if !ok {
		return nil, fmt.Errorf("query vector has non-finite values: %w", appErr.ErrInvalid)
	}
	hits := make([]Hit, len(x.chunks))
	for i := range x.chunks {
		hits[i] = Hit{Chunk: x.chunks[i], Score: cosine(query, qnorm, x.chunks[i].Vector, x.norms[i])}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Chunk.ID < hits[j].Chunk.ID
	})
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

func vectorNorm(v []float32) (float64, bool) {
	var sum float64
	for _, f := range v {
		x := float64(f)
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, false
		}
		sum += x * x
	}
	return math.Sqrt(sum), true
}

// cosine is zero when either vector has zero length.
func cosine(a []float32, anorm float64, b []float32, bnorm float64) float64 {
	if anorm == 0 || bnorm == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	score := dot / (anorm * bnorm)
	// rounding can push identical vectors marginally past 1
	return math.Max(-1, math.Min(1, score))
}
