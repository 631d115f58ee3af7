// Package vectorstore holds the exact nearest-neighbour index and the store
// that owns the current index of a session. Durable persistence is delegated
// to a Repository implemented by the fsstore, chromemstore and qdrantstore
// subpackages.
package vectorstore

import (
	"context"
	"fmt"

	"studyrag/internal/domain"
)

// Snapshot is the persisted form of an index. Vectors[i] belongs to Chunks[i]
// and Chunks[i].Index == i.
type Snapshot struct {
	Metric    Metric
	Dimension int
	Chunks    []domain.Chunk
	Vectors   [][]float32
}

// Repository persists snapshots under collection names. Save must be atomic per
// collection: a concurrent or later Load sees either the old or the new
// snapshot, never a mix. Load returns domain.ErrNotFound for an unknown name.
type Repository interface {
	Kind() string
	Save(ctx context.Context, name string, snap *Snapshot) error
	Load(ctx context.Context, name string) (*Snapshot, error)
}

// Validate checks the invariants a loaded snapshot must satisfy.
func (s *Snapshot) Validate() error {
	if len(s.Vectors) != len(s.Chunks) {
		return fmt.Errorf("%w: %d vectors for %d chunks", domain.ErrCorruptCollection, len(s.Vectors), len(s.Chunks))
	}
	if _, err := ParseMetric(string(s.Metric)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCorruptCollection, err)
	}
	for i, c := range s.Chunks {
		if c.Index != i {
			return fmt.Errorf("%w: chunk ordinal %d at position %d", domain.ErrCorruptCollection, c.Index, i)
		}
		if len(s.Vectors[i]) != s.Dimension {
			return fmt.Errorf("%w: vector %d has %d values, want %d", domain.ErrCorruptCollection, i, len(s.Vectors[i]), s.Dimension)
		}
	}
	return nil
}
