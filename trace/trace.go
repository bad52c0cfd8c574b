// Package trace propagates call-chain identity through context.Context.
//
// A trace identifies one end-to-end call chain; a span identifies one call
// within it. The ambient span rides on the context, so propagation follows
// the logical call graph: goroutines and interleaved chains each carry their
// own context value and can never observe each other's span identity.
// Teardown is inherent — the derived context goes out of scope when the call
// returns, on every exit path including cancellation.
package trace

import (
	"context"

	"github.com/google/uuid"
)

// Span is the ambient trace state visible to one executing call.
type Span struct {
	// TraceID is established by the root call of a chain and inherited
	// unchanged by every nested call.
	TraceID string

	// SpanID identifies this call. It becomes the ParentSpanID of any
	// record created inside it.
	SpanID string

	// ParentSpanID is the caller's span, empty at the root.
	ParentSpanID string
}

type ctxKey struct{}

// EnterRoot starts a fresh chain: new trace id, new root span. The returned
// context carries the span for the duration of the call.
func EnterRoot(ctx context.Context) (context.Context, Span) {
	span := Span{
		TraceID: uuid.New().String(),
		SpanID:  uuid.New().String(),
	}
	return context.WithValue(ctx, ctxKey{}, span), span
}

// EnterChild starts a nested span within the ambient chain. ok is false when
// no ambient context exists; callers should EnterRoot instead.
func EnterChild(ctx context.Context) (context.Context, Span, bool) {
	parent, ok := Current(ctx)
	if !ok {
		return ctx, Span{}, false
	}
	span := Span{
		TraceID:      parent.TraceID,
		SpanID:       uuid.New().String(),
		ParentSpanID: parent.SpanID,
	}
	return context.WithValue(ctx, ctxKey{}, span), span, true
}

// Enter pushes a span for an instrumented call: a child when an ambient
// chain exists, a fresh root otherwise.
func Enter(ctx context.Context) (context.Context, Span) {
	if child, span, ok := EnterChild(ctx); ok {
		return child, span
	}
	return EnterRoot(ctx)
}

// Current reads the ambient span without owning it.
func Current(ctx context.Context) (Span, bool) {
	span, ok := ctx.Value(ctxKey{}).(Span)
	return span, ok
}
