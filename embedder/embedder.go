// Package embedder defines the text-to-vector collaborator consumed by the
// cache engine and the search helpers.
//
// Implementations: embedder/mock (deterministic, for tests and examples),
// embedder/onnx (local models, behind the onnx build tag), or any
// API-backed embedder the host application provides.
package embedder

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the embedding backend cannot be reached.
// Callers on the caching path treat it as a cache miss.
var ErrUnavailable = errors.New("embedding backend unavailable")

// Embedder converts text to vector embeddings.
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}
