// Package mock provides a deterministic embedder for tests and examples.
package mock

import (
	"context"
	"hash/fnv"
	"math"
)

// Embedder generates deterministic embeddings from a text hash: identical
// text always yields an identical unit vector, so exact-repeat calls land at
// cosine distance zero while unrelated text lands far away. It carries no
// real semantics.
type Embedder struct {
	dimensions int
}

// New creates a mock embedder with the given vector size. Sizes below 1
// default to 384 (the all-MiniLM-L6-v2 footprint).
func New(dimensions int) *Embedder {
	if dimensions < 1 {
		dimensions = 384
	}
	return &Embedder{dimensions: dimensions}
}

// Embed derives a unit vector from the FNV hash of the text, expanded
// through a linear congruential generator.
func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, e.dimensions)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(vec), nil
}

// Dimensions returns the embedding size.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}
