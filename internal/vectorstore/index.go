package vectorstore

import (
	"cmp"
	"fmt"
	"slices"

	"studyrag/internal/domain"
)

// Index is an immutable in-memory exact nearest-neighbour index. Search is a
// linear scan over every vector; ties go to the lower ordinal.
type Index struct {
	metric  Metric
	dim     int
	chunks  []domain.Chunk
	vectors [][]float32
}

// NewIndex builds an index from freshly embedded chunks. Ordinals are
// reassigned to positions. For the cosine metric vectors are stored unit length.
func NewIndex(metric Metric, items []domain.IndexedChunk) (*Index, error) {
	idx := &Index{
		metric:  metric,
		chunks:  make([]domain.Chunk, len(items)),
		vectors: make([][]float32, len(items)),
	}
	for i, it := range items {
		if i == 0 {
			idx.dim = len(it.Vector)
		}
		if len(it.Vector) == 0 || len(it.Vector) != idx.dim {
			return nil, fmt.Errorf("%w: item %d has %d values, want %d", domain.ErrDimensionMismatch, i, len(it.Vector), idx.dim)
		}
		c := it.Chunk
		c.Index = i
		idx.chunks[i] = c
		if metric == Cosine {
			idx.vectors[i] = normalize(it.Vector)
		} else {
			idx.vectors[i] = slices.Clone(it.Vector)
		}
	}
	return idx, nil
}

// FromSnapshot restores an index exactly as it was saved.
func FromSnapshot(s *Snapshot) (*Index, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &Index{metric: s.Metric, dim: s.Dimension, chunks: s.Chunks, vectors: s.Vectors}, nil
}

// Snapshot shares the index's slices; callers must not modify them.
func (x *Index) Snapshot() *Snapshot {
	return &Snapshot{Metric: x.metric, Dimension: x.dim, Chunks: x.chunks, Vectors: x.vectors}
}

func (x *Index) Len() int       { return len(x.chunks) }
func (x *Index) Dimension() int { return x.dim }
func (x *Index) Metric() Metric { return x.metric }

// Search returns the min(k, Len()) nearest chunks, nearest first, ranked from 1.
func (x *Index) Search(query []float32, k int) ([]domain.RetrievalResult, error) {
	if k < 1 {
		return nil, domain.ErrInvalidK
	}
	if len(x.chunks) == 0 {
		return []domain.RetrievalResult{}, nil
	}
	if len(query) != x.dim {
		return nil, fmt.Errorf("%w: query has %d values, index has %d", domain.ErrDimensionMismatch, len(query), x.dim)
	}
	if x.metric == Cosine {
		query = normalize(query)
	}

	type hit struct {
		ordinal int
		score   float64
	}
	hits := make([]hit, len(x.vectors))
	for i, v := range x.vectors {
		hits[i] = hit{i, x.metric.score(v, query)}
	}
	slices.SortStableFunc(hits, func(a, b hit) int {
		return cmp.Compare(b.score, a.score)
	})

	k = min(k, len(hits))
	out := make([]domain.RetrievalResult, k)
	for i := 0; i < k; i++ {
		c := x.chunks[hits[i].ordinal]
		out[i] = domain.RetrievalResult{
			Text:     c.Text,
			SourceID: c.SourceID,
			Page:     c.Page,
			Rank:     i + 1,
			Score:    hits[i].score,
		}
	}
	return out, nil
}
