package embedding

import (
	"context"
	"testing"

	"studyrag/internal/domain"
)

func TestDeterministicVectorIsStable(t *testing.T) {
	a := DeterministicVector("Photosynthesis converts light energy.", 384)
	b := DeterministicVector("Photosynthesis converts light energy.", 384)
	if len(a) != 384 {
		t.Fatalf("expected 384 values, got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("component %d differs: %v != %v", i, a[i], b[i])
		}
		if a[i] < -1 || a[i] >= 1 {
			t.Fatalf("component %d out of range: %v", i, a[i])
		}
	}
}

func TestDeterministicVectorChangesWithText(t *testing.T) {
	a := DeterministicVector("mitochondria", 64)
	b := DeterministicVector("mitochondrib", 64)
	same := 0
	for i := range a {
		if a[i] == b[i] {
			same++
		}
	}
	if same == len(a) {
		t.Fatal("a one-character change should alter the vector")
	}
}

func TestDeterministicProvider(t *testing.T) {
	d := NewDeterministic(0)
	if d.Dimension() != DefaultDimension || d.Name() != "deterministic" {
		t.Fatalf("unexpected provider %s/%d", d.Name(), d.Dimension())
	}
	ctx := context.Background()
	texts := []string{"alpha", "beta", "alpha"}
	batch := d.EmbedBatch(ctx, texts, domain.IntentDocument)
	for i, text := range texts {
		single := d.Embed(ctx, text, domain.IntentQuery)
		for j := range single {
			if batch[i][j] != single[j] {
				t.Fatalf("batch[%d] differs from single embed at %d", i, j)
			}
		}
	}
}
