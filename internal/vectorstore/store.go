package vectorstore

import (
	"context"
	"log/slog"
	"sync"

	"studyrag/internal/domain"
)

// State tracks where the current index came from.
type State int

const (
	StateEmpty State = iota
	StateBuilt
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateBuilt:
		return "built"
	case StateLoaded:
		return "loaded"
	default:
		return "empty"
	}
}

// Store owns the current index of one session. A single RWMutex guards the
// slot: Build, Replace and Load hold the write lock for their whole duration,
// Search and Save the read lock.
type Store struct {
	mu         sync.RWMutex
	repo       Repository
	metric     Metric
	logger     *slog.Logger
	current    *Index
	collection string
	state      State
}

func NewStore(repo Repository, metric Metric, logger *slog.Logger) *Store {
	if metric == "" {
		metric = Cosine
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		repo:   repo,
		metric: metric,
		logger: logger.With("component", "vectorstore", "repository", repo.Kind()),
	}
}

// Build replaces the current index with a fresh one. On error the current
// index is left untouched.
func (s *Store) Build(items []domain.IndexedChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := NewIndex(s.metric, items)
	if err != nil {
		return err
	}
	s.current = idx
	s.collection = ""
	s.state = StateBuilt
	s.logger.Debug("index built", "chunks", idx.Len(), "dimension", idx.Dimension(), "metric", idx.Metric())
	return nil
}

// Replace builds an index from items, persists it under name and only then
// makes it current. The write lock is held throughout, so a concurrent Build,
// Replace or Load cannot slip another index in between. On any error the
// previous index stays current.
func (s *Store) Replace(ctx context.Context, name string, items []domain.IndexedChunk) error {
	if err := domain.ValidateCollectionName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := NewIndex(s.metric, items)
	if err != nil {
		return err
	}
	if err := s.repo.Save(ctx, name, idx.Snapshot()); err != nil {
		return domain.NewCollectionError("save", name, err)
	}
	s.current = idx
	s.collection = name
	s.state = StateBuilt
	s.logger.Info("collection saved", "collection", name, "chunks", idx.Len(), "dimension", idx.Dimension(), "metric", idx.Metric())
	return nil
}

// Save persists the current index under name, replacing any previous content.
func (s *Store) Save(ctx context.Context, name string) error {
	if err := domain.ValidateCollectionName(name); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return domain.NewCollectionError("save", name, domain.ErrNoStoreLoaded)
	}
	if err := s.repo.Save(ctx, name, s.current.Snapshot()); err != nil {
		return domain.NewCollectionError("save", name, err)
	}
	s.logger.Info("collection saved", "collection", name, "chunks", s.current.Len())
	return nil
}

// Load makes the named collection current. A missing or corrupt collection
// leaves the current index untouched.
func (s *Store) Load(ctx context.Context, name string) error {
	if err := domain.ValidateCollectionName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.repo.Load(ctx, name)
	if err != nil {
		return domain.NewCollectionError("load", name, err)
	}
	idx, err := FromSnapshot(snap)
	if err != nil {
		return domain.NewCollectionError("load", name, err)
	}
	s.current = idx
	s.collection = name
	s.state = StateLoaded
	s.logger.Info("collection loaded", "collection", name, "chunks", idx.Len(), "metric", idx.Metric())
	return nil
}

// Search queries the current index.
func (s *Store) Search(query []float32, k int) ([]domain.RetrievalResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return nil, domain.ErrNoStoreLoaded
	}
	return s.current.Search(query, k)
}

// Info describes the current slot. Collection is empty for an index that was
// built but never saved.
type Info struct {
	State      State
	Collection string
	Chunks     int
	Dimension  int
	Metric     Metric
}

func (s *Store) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := Info{State: s.state, Collection: s.collection}
	if s.current != nil {
		info.Chunks = s.current.Len()
		info.Dimension = s.current.Dimension()
		info.Metric = s.current.Metric()
	}
	return info
}
