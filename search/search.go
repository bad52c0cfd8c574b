// Package search provides query helpers over the execution log: recent
// errors, slow calls, trace reconstruction, and semantic error search.
package search

import (
	"context"
	"fmt"
	"time"

	"github.com/vectorwave/vectorwave-go/core"
	"github.com/vectorwave/vectorwave-go/embedder"
	"github.com/vectorwave/vectorwave-go/store"
)

// Gateway is the storage slice the helpers read through.
type Gateway interface {
	Fetch(ctx context.Context, q store.Query) ([]core.ExecutionRecord, error)
	Similar(ctx context.Context, vector []float32, filter store.Filter, limit int) ([]store.Hit, error)
}

// Explorer answers read-only questions about logged executions.
type Explorer struct {
	store    Gateway
	embedder embedder.Embedder
}

// New creates an Explorer. The embedder may be nil when semantic error
// search is not needed.
func New(gw Gateway, emb embedder.Embedder) *Explorer {
	return &Explorer{store: gw, embedder: emb}
}

// RecentErrors returns ERROR records captured within the window, newest
// first, optionally restricted to one error code tag.
func (e *Explorer) RecentErrors(ctx context.Context, window time.Duration, errorCode string, limit int) ([]core.ExecutionRecord, error) {
	filter := store.Filter{
		Statuses: []core.Status{core.StatusError},
		Since:    time.Now().UTC().Add(-window),
	}
	if errorCode != "" {
		filter.Tags = map[string]string{"error_code": errorCode}
	}
	return e.store.Fetch(ctx, store.Query{
		Filter:     filter,
		OrderBy:    store.FieldTimestamp,
		Descending: true,
		Limit:      limit,
	})
}

// Slowest returns the records with the highest durations.
func (e *Explorer) Slowest(ctx context.Context, limit int) ([]core.ExecutionRecord, error) {
	return e.store.Fetch(ctx, store.Query{
		OrderBy:    store.FieldDuration,
		Descending: true,
		Limit:      limit,
	})
}

// ByTraceID returns every span of one call chain in capture order.
func (e *Explorer) ByTraceID(ctx context.Context, traceID string) ([]core.ExecutionRecord, error) {
	return e.store.Fetch(ctx, store.Query{
		Filter:  store.Filter{TraceID: traceID},
		OrderBy: store.FieldTimestamp,
	})
}

// ErrorsByMessage searches ERROR records semantically: the query text is
// embedded and matched against stored failure embeddings.
func (e *Explorer) ErrorsByMessage(ctx context.Context, query string, limit int) ([]store.Hit, error) {
	if e.embedder == nil {
		return nil, fmt.Errorf("semantic error search requires an embedder")
	}
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return e.store.Similar(ctx, vec, store.Filter{
		Statuses:         []core.Status{core.StatusError},
		RequireEmbedding: true,
	}, limit)
}
