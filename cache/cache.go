// Package cache decides whether an incoming call can be answered from a
// semantically similar past execution instead of running the function.
//
// The engine embeds the canonical call text, searches the store within the
// configured distance threshold, and on a hit returns the stored value and
// logs a synthetic CACHE_HIT record. Every fault on this path degrades to a
// cache miss: caching must never abort or corrupt the caller's normal
// execution.
package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"

	"github.com/vectorwave/vectorwave-go/core"
	"github.com/vectorwave/vectorwave-go/embedder"
	"github.com/vectorwave/vectorwave-go/observe"
	"github.com/vectorwave/vectorwave-go/store"
	"github.com/vectorwave/vectorwave-go/trace"
)

// Searcher is the slice of the storage gateway the engine reads through.
type Searcher interface {
	Search(ctx context.Context, vector []float32, filter store.Filter, threshold float64) (*store.Hit, error)
}

// Enqueuer receives the synthetic CACHE_HIT records.
type Enqueuer interface {
	Enqueue(rec core.ExecutionRecord)
}

// Result is a qualifying cache decision.
type Result struct {
	// Value is the stored return value, deserialized.
	Value any

	// Distance is the cosine distance to the record the value came from.
	Distance float64

	// SourceID identifies that record.
	SourceID string

	// Vector is the input embedding computed for the decision, reused by
	// the hit record so it is never computed twice.
	Vector []float32
}

// Engine is the semantic cache decision engine.
type Engine struct {
	store    Searcher
	embedder embedder.Embedder
	logger   Enqueuer
	sink     observe.Sink

	// vectors memoizes text -> embedding so exact-repeat calls skip the
	// embedding backend entirely.
	vectors *ristretto.Cache

	sensitive    map[string]struct{}
	globalTags   map[string]string
	tagAllowlist []string
}

// Option configures the engine.
type Option func(*Engine)

// WithLogger sets where CACHE_HIT records go. Without one, hits are
// returned but not logged.
func WithLogger(logger Enqueuer) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithSink sets the observability sink.
func WithSink(sink observe.Sink) Option {
	return func(e *Engine) {
		if sink != nil {
			e.sink = sink
		}
	}
}

// WithSensitiveKeys masks the named parameters out of embedding text and
// persisted inputs.
func WithSensitiveKeys(keys []string) Option {
	return func(e *Engine) { e.sensitive = core.SensitiveSet(keys) }
}

// WithGlobalTags attaches tags to every record the engine logs.
func WithGlobalTags(tags map[string]string) Option {
	return func(e *Engine) { e.globalTags = tags }
}

// WithTagAllowlist names call parameters promoted to per-record tags.
func WithTagAllowlist(keys []string) Option {
	return func(e *Engine) { e.tagAllowlist = keys }
}

// New creates a decision engine.
func New(searcher Searcher, emb embedder.Embedder, opts ...Option) (*Engine, error) {
	vectors, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1 << 14,
		MaxCost:     32 << 20, // 32 MiB of cached vectors
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	e := &Engine{
		store:    searcher,
		embedder: emb,
		sink:     observe.NopSink{},
		vectors:  vectors,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Decide checks the store for a semantically similar past execution.
// threshold is the maximum qualifying cosine distance; zero or negative
// disables caching and returns immediately without any embedding work.
// ok is false on a miss — including every internal failure.
func (e *Engine) Decide(ctx context.Context, functionName string, params map[string]any, threshold float64) (*Result, bool) {
	if threshold <= 0 {
		return nil, false
	}

	text := core.EmbeddingText(functionName, params, e.sensitive)
	vec, err := e.Vector(ctx, text)
	if err != nil {
		e.sink.Report("cache_unavailable", map[string]any{
			"error":         err.Error(),
			"function_name": functionName,
			"stage":         "embed",
		})
		return nil, false
	}

	// A hit's payload is a verbatim copy of a successful execution, so
	// CACHE_HIT records are themselves valid cache sources.
	filter := store.Filter{
		FunctionName: functionName,
		Statuses:     []core.Status{core.StatusSuccess, core.StatusCacheHit},
	}
	hit, err := e.store.Search(ctx, vec, filter, threshold)
	if err != nil {
		e.sink.Report("cache_unavailable", map[string]any{
			"error":         err.Error(),
			"function_name": functionName,
			"stage":         "search",
		})
		return nil, false
	}
	if hit == nil {
		return nil, false
	}

	result := &Result{
		Value:    core.DecodeReturnValue(hit.Record.ReturnValue),
		Distance: hit.Distance,
		SourceID: hit.Record.ID,
		Vector:   vec,
	}
	e.logHit(ctx, functionName, params, hit, vec)
	return result, true
}

// Vector embeds text through the memoizing layer.
func (e *Engine) Vector(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.vectors.Get(text); ok {
		if vec, ok := cached.([]float32); ok {
			return vec, nil
		}
	}
	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.vectors.Set(text, vec, int64(4*len(vec)))
	return vec, nil
}

// Tags assembles the global tags plus allow-listed call arguments.
func (e *Engine) Tags(params map[string]any) map[string]string {
	tags := make(map[string]string, len(e.globalTags)+len(e.tagAllowlist))
	for k, v := range e.globalTags {
		tags[k] = v
	}
	for _, key := range e.tagAllowlist {
		if v, ok := params[key]; ok {
			tags[key] = argString(v)
		}
	}
	return tags
}

// logHit enqueues the synthetic CACHE_HIT record. Failure here is isolated
// from the returned cached value.
func (e *Engine) logHit(ctx context.Context, functionName string, params map[string]any, hit *store.Hit, vec []float32) {
	if e.logger == nil {
		return
	}

	// A hit inside an active chain records under that chain; a hit with no
	// ambient context is the root of its own chain.
	var traceID, parentSpanID string
	if span, ok := trace.Current(ctx); ok {
		traceID = span.TraceID
		parentSpanID = span.SpanID
	} else {
		traceID = uuid.New().String()
	}

	e.logger.Enqueue(core.ExecutionRecord{
		FunctionName:        functionName,
		FunctionFingerprint: core.Fingerprint(functionName),
		TraceID:             traceID,
		SpanID:              uuid.New().String(),
		ParentSpanID:        parentSpanID,
		Timestamp:           time.Now().UTC(),
		DurationMS:          0, // no work performed
		Status:              core.StatusCacheHit,
		Inputs:              core.MaskInputs(params, e.sensitive),
		ReturnValue:         hit.Record.ReturnValue,
		Embedding:           vec,
		Tags:                e.Tags(params),
	})
}

func argString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	enc, err := core.EncodeReturnValue(v)
	if err != nil {
		return ""
	}
	return enc
}
