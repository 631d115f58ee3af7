package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math/rand/v2"

	"studyrag/internal/domain"
)

// DeterministicVector derives a vector from the SHA-256 digest of text. The
// digest seeds a PCG generator and every component is drawn uniformly from
// [-1, 1). Equal text and dimension always give bit-identical output.
func DeterministicVector(text string, dim int) []float32 {
	sum := sha256.Sum256([]byte(text))
	r := rand.New(rand.NewPCG(
		binary.BigEndian.Uint64(sum[0:8]),
		binary.BigEndian.Uint64(sum[8:16]),
	))
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(r.Float64()*2 - 1)
	}
	return v
}

// Deterministic is the offline provider. It needs no network and is also the
// fallback used by Remote.
type Deterministic struct {
	dim int
}

func NewDeterministic(dim int) *Deterministic {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &Deterministic{dim: dim}
}

// DefaultDimension matches the output of the common small embedding models.
const DefaultDimension = 384

func (d *Deterministic) Name() string   { return "deterministic" }
func (d *Deterministic) Dimension() int { return d.dim }

func (d *Deterministic) Embed(_ context.Context, text string, _ domain.Intent) []float32 {
	return DeterministicVector(text, d.dim)
}

func (d *Deterministic) EmbedBatch(ctx context.Context, texts []string, intent domain.Intent) [][]float32 {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = d.Embed(ctx, t, intent)
	}
	return out
}
