package vectorstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"studyrag/internal/domain"
)

// memRepo is an in-memory Repository.
type memRepo struct {
	mu    sync.Mutex
	saved map[string]*Snapshot
	err   error
}

func newMemRepo() *memRepo { return &memRepo{saved: map[string]*Snapshot{}} }

func (m *memRepo) Kind() string { return "mem" }

func (m *memRepo) Save(_ context.Context, name string, snap *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saved[name] = snap
	return nil
}

func (m *memRepo) Load(_ context.Context, name string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.saved[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s, nil
}

func TestStoreSearchBeforeBuild(t *testing.T) {
	s := NewStore(newMemRepo(), Cosine, nil)
	if _, err := s.Search([]float32{1}, 1); !errors.Is(err, domain.ErrNoStoreLoaded) {
		t.Fatalf("expected ErrNoStoreLoaded, got %v", err)
	}
	if err := s.Save(context.Background(), "x"); !errors.Is(err, domain.ErrNoStoreLoaded) {
		t.Fatalf("expected ErrNoStoreLoaded on save, got %v", err)
	}
	if s.Info().State != StateEmpty {
		t.Errorf("expected empty state, got %v", s.Info().State)
	}
}

func TestStoreBuildSaveLoad(t *testing.T) {
	repo := newMemRepo()
	ctx := context.Background()
	s := NewStore(repo, Cosine, nil)
	if err := s.Build(items([]float32{1, 0}, []float32{0, 1})); err != nil {
		t.Fatal(err)
	}
	if s.Info().State != StateBuilt {
		t.Fatalf("expected built, got %v", s.Info().State)
	}
	if err := s.Save(ctx, "bio"); err != nil {
		t.Fatal(err)
	}

	other := NewStore(repo, L2, nil)
	if err := other.Load(ctx, "bio"); err != nil {
		t.Fatal(err)
	}
	info := other.Info()
	if info.State != StateLoaded || info.Collection != "bio" || info.Chunks != 2 || info.Metric != Cosine {
		t.Errorf("unexpected info %+v", info)
	}
	want, _ := s.Search([]float32{0.2, 1}, 2)
	got, err := other.Search([]float32{0.2, 1}, 2)
	if err != nil {
		t.Fatal(err)
	}
	for i := range want {
		if want[i] != got[i] {
			t.Errorf("result %d: %+v != %+v", i, got[i], want[i])
		}
	}
}

func TestStoreFailedLoadKeepsCurrent(t *testing.T) {
	repo := newMemRepo()
	ctx := context.Background()
	s := NewStore(repo, Cosine, nil)
	if err := s.Build(items([]float32{1, 0})); err != nil {
		t.Fatal(err)
	}

	err := s.Load(ctx, "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var cerr *domain.CollectionError
	if !errors.As(err, &cerr) || cerr.Name != "missing" {
		t.Errorf("expected a CollectionError naming the collection, got %v", err)
	}

	repo.saved["broken"] = &Snapshot{Metric: Cosine, Dimension: 1, Chunks: []domain.Chunk{{Index: 0}}}
	if err := s.Load(ctx, "broken"); !errors.Is(err, domain.ErrCorruptCollection) {
		t.Fatalf("expected ErrCorruptCollection, got %v", err)
	}

	if s.Info().State != StateBuilt || s.Info().Chunks != 1 {
		t.Errorf("current index changed: %+v", s.Info())
	}
}

func TestStoreBuildErrorKeepsCurrent(t *testing.T) {
	s := NewStore(newMemRepo(), Cosine, nil)
	if err := s.Build(items([]float32{1, 0}, []float32{0, 1})); err != nil {
		t.Fatal(err)
	}
	if err := s.Build(items([]float32{1}, []float32{1, 2})); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if s.Info().Chunks != 2 {
		t.Errorf("expected the previous index to survive, got %+v", s.Info())
	}
}

func TestStoreRejectsBadNames(t *testing.T) {
	s := NewStore(newMemRepo(), Cosine, nil)
	if err := s.Load(context.Background(), "../etc"); !errors.Is(err, domain.ErrInvalidCollectionName) {
		t.Fatalf("expected ErrInvalidCollectionName, got %v", err)
	}
}

func TestStoreConcurrentSearchAndLoad(t *testing.T) {
	repo := newMemRepo()
	ctx := context.Background()
	s := NewStore(repo, Cosine, nil)
	if err := s.Build(items([]float32{1, 0}, []float32{0, 1})); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, "c"); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := s.Search([]float32{1, 1}, 1); err != nil {
				t.Error(err)
			}
		}()
		go func() {
			defer wg.Done()
			if err := s.Load(ctx, "c"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
}

func TestStoreReplace(t *testing.T) {
	repo := newMemRepo()
	ctx := context.Background()
	s := NewStore(repo, Cosine, nil)
	if err := s.Replace(ctx, "bio", items([]float32{1, 0}, []float32{0, 1})); err != nil {
		t.Fatal(err)
	}
	if info := s.Info(); info.State != StateBuilt || info.Collection != "bio" || info.Chunks != 2 {
		t.Fatalf("unexpected info %+v", info)
	}
	if snap := repo.saved["bio"]; snap == nil || len(snap.Chunks) != 2 {
		t.Fatalf("expected bio to be saved, got %+v", snap)
	}

	repo.err = errors.New("disk full")
	if err := s.Replace(ctx, "chem", items([]float32{1, 1})); !errors.Is(err, repo.err) {
		t.Fatalf("expected the save error, got %v", err)
	}
	if info := s.Info(); info.Collection != "bio" || info.Chunks != 2 {
		t.Errorf("a failed save must keep the previous index current, got %+v", info)
	}

	repo.err = nil
	if err := s.Replace(ctx, "chem", items([]float32{1}, []float32{1, 2})); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if _, ok := repo.saved["chem"]; ok {
		t.Error("an index that failed to build must not be saved")
	}
	if err := s.Replace(ctx, "a/b", items([]float32{1})); !errors.Is(err, domain.ErrInvalidCollectionName) {
		t.Errorf("expected ErrInvalidCollectionName, got %v", err)
	}
}
