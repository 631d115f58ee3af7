package vectorstore

import (
	"fmt"
	"math"
)

// Metric is the distance used to rank neighbours.
type Metric string

const (
	Cosine Metric = "cosine"
	L2     Metric = "l2"
)

func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case "", Cosine:
		return Cosine, nil
	case L2:
		return L2, nil
	}
	return "", fmt.Errorf("unknown metric %q", s)
}

// score maps a distance to a similarity where larger is nearer. Cosine vectors
// are unit length already, so the dot product is the cosine similarity.
func (m Metric) score(a, b []float32) float64 {
	if m == L2 {
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return 1 / (1 + math.Sqrt(sum))
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// normalize returns a unit-length copy of v. The zero vector is returned as is.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}
