// Package store defines the vector storage gateway consumed by the SDK.
//
// Implementations answer approximate-nearest-neighbor searches over stored
// execution records and plain filtered fetches. The SDK never depends on a
// concrete engine; store/chromem provides an embedded implementation.
package store

import (
	"context"
	"time"

	"github.com/vectorwave/vectorwave-go/core"
)

// Field names a sortable record attribute for Fetch ordering.
type Field string

const (
	FieldTimestamp Field = "timestamp"
	FieldDuration  Field = "duration_ms"
)

// Filter restricts which records an operation considers. Zero values mean
// "no constraint".
type Filter struct {
	FunctionName string
	Statuses     []core.Status
	TraceID      string

	// Tags must all be present with equal values.
	Tags map[string]string

	// Since keeps records captured at or after the given instant.
	Since time.Time

	// RequireEmbedding keeps only records that carry a vector.
	RequireEmbedding bool
}

// Matches reports whether a record satisfies the filter.
func (f Filter) Matches(rec *core.ExecutionRecord) bool {
	if f.FunctionName != "" && rec.FunctionName != f.FunctionName {
		return false
	}
	if f.TraceID != "" && rec.TraceID != f.TraceID {
		return false
	}
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if rec.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	for k, v := range f.Tags {
		if rec.Tags[k] != v {
			return false
		}
	}
	if !f.Since.IsZero() && rec.Timestamp.Before(f.Since) {
		return false
	}
	if f.RequireEmbedding && len(rec.Embedding) == 0 {
		return false
	}
	return true
}

// Query shapes a Fetch: filter, ordering, and bound.
type Query struct {
	Filter     Filter
	OrderBy    Field
	Descending bool
	Limit      int
}

// Hit is one similarity-search result. Distance is cosine distance on the
// gateway's single scale: 0 identical, larger is less similar.
type Hit struct {
	Record   core.ExecutionRecord
	Distance float64
}

// Gateway is the full storage contract. Components that need less declare
// narrower interfaces at their point of use.
type Gateway interface {
	// Append persists records, assigning and returning their ids in order.
	Append(ctx context.Context, records ...core.ExecutionRecord) ([]string, error)

	// Search returns the nearest record within threshold (a maximum cosine
	// distance), or nil when no candidate qualifies.
	Search(ctx context.Context, vector []float32, filter Filter, threshold float64) (*Hit, error)

	// Similar returns up to limit nearest records with no distance cutoff,
	// ordered by ascending distance.
	Similar(ctx context.Context, vector []float32, filter Filter, limit int) ([]Hit, error)

	// Fetch returns records matching the query in its requested order.
	Fetch(ctx context.Context, q Query) ([]core.ExecutionRecord, error)

	// Update rewrites fields of a stored record. Supported keys:
	// "return_value" (string) and "tags" (map[string]string, merged).
	Update(ctx context.Context, id string, fields map[string]any) error
}
