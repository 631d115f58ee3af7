package chromemstore

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/philippgille/chromem-go"

	"studyrag/internal/domain"
	"studyrag/internal/vectorstore"
)

func unit(v ...float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}

func sampleSnapshot() *vectorstore.Snapshot {
	return &vectorstore.Snapshot{
		Metric:    vectorstore.Cosine,
		Dimension: 3,
		Chunks: []domain.Chunk{
			{Index: 0, Text: "The Calvin cycle fixes carbon.", Page: 3, SourceID: "bio.pdf", Offset: 0},
			{Index: 1, Text: "ATP is the energy currency.", Page: 4, SourceID: "bio.pdf", Offset: 120},
			{Index: 2, Text: "", Page: 4, SourceID: "bio.pdf", Offset: 300},
		},
		Vectors: [][]float32{unit(1, 0, 0), unit(1, 1, 0), unit(0, 0.5, 2)},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	repo := New(t.TempDir())
	ctx := context.Background()
	want := sampleSnapshot()

	if err := repo.Save(ctx, "bio", want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := repo.Load(ctx, "bio")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Metric != vectorstore.Cosine || got.Dimension != 3 || len(got.Chunks) != 3 {
		t.Fatalf("unexpected snapshot header %+v", got)
	}
	for i := range want.Chunks {
		if got.Chunks[i] != want.Chunks[i] {
			t.Errorf("chunk %d: got %+v want %+v", i, got.Chunks[i], want.Chunks[i])
		}
		for j := range want.Vectors[i] {
			if d := math.Abs(float64(got.Vectors[i][j] - want.Vectors[i][j])); d > 1e-6 {
				t.Errorf("vector %d[%d] differs by %g", i, j, d)
			}
		}
	}
}

func TestSaveEmptyCollection(t *testing.T) {
	repo := New(t.TempDir())
	ctx := context.Background()
	if err := repo.Save(ctx, "empty", &vectorstore.Snapshot{Metric: vectorstore.Cosine}); err != nil {
		t.Fatal(err)
	}
	got, err := repo.Load(ctx, "empty")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Chunks) != 0 {
		t.Errorf("expected no chunks, got %d", len(got.Chunks))
	}
}

func TestSaveRejectsL2(t *testing.T) {
	snap := sampleSnapshot()
	snap.Metric = vectorstore.L2
	if err := New(t.TempDir()).Save(context.Background(), "x", snap); !errors.Is(err, ErrUnsupportedMetric) {
		t.Fatalf("expected ErrUnsupportedMetric, got %v", err)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := New(t.TempDir()).Load(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadCorrupt(t *testing.T) {
	ctx := context.Background()

	t.Run("garbage file", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "bad.gob.gz"), []byte("garbage"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := New(dir).Load(ctx, "bad"); !errors.Is(err, domain.ErrCorruptCollection) {
			t.Fatalf("expected ErrCorruptCollection, got %v", err)
		}
	})

	t.Run("count mismatch", func(t *testing.T) {
		dir := t.TempDir()
		db := chromem.NewDB()
		col, err := db.CreateCollection("short", nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		meta := map[string]string{keyPage: "1", keySource: "a.txt", keyOffset: "0", keyTotal: "3"}
		err = col.AddDocuments(ctx, []chromem.Document{
			{ID: "0", Metadata: meta, Embedding: unit(1, 0), Content: "a"},
			{ID: "1", Metadata: meta, Embedding: unit(0, 1), Content: "b"},
		}, 1)
		if err != nil {
			t.Fatal(err)
		}
		if err := db.ExportToFile(filepath.Join(dir, "short.gob.gz"), true, "", "short"); err != nil {
			t.Fatal(err)
		}
		if _, err := New(dir).Load(ctx, "short"); !errors.Is(err, domain.ErrCorruptCollection) {
			t.Fatalf("expected ErrCorruptCollection, got %v", err)
		}
	})
}
