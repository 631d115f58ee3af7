// Package embedding turns text into fixed-dimension vectors. Every provider
// satisfies domain.Embedder; remote providers degrade to the deterministic
// vector instead of failing.
package embedding

import (
	"context"

	"studyrag/internal/domain"
	"studyrag/internal/fn"
)

// Backend is a remote embedding service. A failed call is reported through the
// Result so the caller decides how to degrade.
type Backend interface {
	Name() string
	Embed(ctx context.Context, text string) fn.Result[[]float32]
}

var (
	_ domain.Embedder = (*Deterministic)(nil)
	_ domain.Embedder = (*Remote)(nil)
)
