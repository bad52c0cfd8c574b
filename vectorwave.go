// Package vectorwave instruments function calls with execution logging,
// semantic result caching, and offline analysis (regression replay, golden
// dataset curation, drift detection).
//
// A Runtime owns the shared machinery: the storage gateway, the embedder,
// the semantic cache engine, the write-behind batch logger, and the replay
// registry. Instrument wraps a function once at registration time; every
// call then flows through the cache decision, trace propagation, and
// logging without the wrapped function knowing any of it exists.
//
//	rt, _ := vectorwave.New(gateway, emb)
//	add := rt.Instrument("billing.add", []string{"a", "b"},
//		func(ctx context.Context, args map[string]any) (any, error) {
//			return args["a"].(float64) + args["b"].(float64), nil
//		})
//	out, err := add(ctx, map[string]any{"a": 1.0, "b": 2.0})
package vectorwave

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/vectorwave/vectorwave-go/batch"
	"github.com/vectorwave/vectorwave-go/cache"
	"github.com/vectorwave/vectorwave-go/config"
	"github.com/vectorwave/vectorwave-go/core"
	"github.com/vectorwave/vectorwave-go/dataset"
	"github.com/vectorwave/vectorwave-go/embedder"
	"github.com/vectorwave/vectorwave-go/heal"
	"github.com/vectorwave/vectorwave-go/observe"
	"github.com/vectorwave/vectorwave-go/replay"
	"github.com/vectorwave/vectorwave-go/search"
	"github.com/vectorwave/vectorwave-go/store"
	"github.com/vectorwave/vectorwave-go/trace"
)

// Func is the shape of an instrumentable function.
type Func = replay.Func

// ErrorCoder lets wrapped functions attach a stable error code to their
// failures; the code becomes an error_code tag on the ERROR record.
type ErrorCoder interface {
	ErrorCode() string
}

// Runtime wires the SDK together for one process.
type Runtime struct {
	settings  *config.Settings
	store     store.Gateway
	embedder  embedder.Embedder
	sink      observe.Sink
	sensitive map[string]struct{}

	cache    *cache.Engine
	logger   *batch.Logger
	registry *replay.MapRegistry
	dataset  *dataset.Manager
	monitor  *dataset.Monitor
}

// Option configures the Runtime.
type Option func(*Runtime)

// WithSettings supplies settings instead of reading the environment.
func WithSettings(s *config.Settings) Option {
	return func(r *Runtime) { r.settings = s }
}

// WithSink sets the observability sink for every component.
func WithSink(sink observe.Sink) Option {
	return func(r *Runtime) {
		if sink != nil {
			r.sink = sink
		}
	}
}

// New creates a Runtime over a storage gateway and an embedder. Settings
// default to the environment (config.LoadOrDefault); the sink defaults to a
// zap-backed one.
func New(gw store.Gateway, emb embedder.Embedder, opts ...Option) (*Runtime, error) {
	r := &Runtime{
		store:    gw,
		embedder: emb,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.settings == nil {
		r.settings = config.LoadOrDefault()
	}
	if err := r.settings.Validate(); err != nil {
		return nil, err
	}
	if r.sink == nil {
		r.sink = observe.NewZapSink(nil)
	}
	r.sensitive = core.SensitiveSet(r.settings.SensitiveKeys)

	r.logger = batch.New(gw,
		batch.WithBatchSize(r.settings.BatchSize),
		batch.WithFlushInterval(r.settings.FlushInterval),
		batch.WithQueueSize(r.settings.QueueSize),
		batch.WithSink(r.sink),
	)

	engine, err := cache.New(gw, emb,
		cache.WithLogger(r.logger),
		cache.WithSink(r.sink),
		cache.WithSensitiveKeys(r.settings.SensitiveKeys),
		cache.WithGlobalTags(r.settings.GlobalTags),
		cache.WithTagAllowlist(r.settings.TagAllowlist),
	)
	if err != nil {
		r.logger.Close()
		return nil, fmt.Errorf("create cache engine: %w", err)
	}
	r.cache = engine

	r.registry = replay.NewRegistry()
	r.dataset = dataset.New(gw, dataset.WithMargins(dataset.Margins{
		Steady:    r.settings.SteadyMargin,
		Discovery: r.settings.DiscoveryMargin,
	}))
	r.monitor = dataset.NewMonitor(r.dataset, r.settings.DriftThreshold, r.sink)

	return r, nil
}

// CallOption adjusts one instrumented function.
type CallOption func(*callConfig)

type callConfig struct {
	threshold     *float64
	tags          map[string]string
	captureReturn bool
}

// WithCacheThreshold overrides the process-wide cache threshold for this
// function. Zero disables caching for it.
func WithCacheThreshold(t float64) CallOption {
	return func(c *callConfig) { c.threshold = &t }
}

// WithTags attaches extra tags to every record of this function.
func WithTags(tags map[string]string) CallOption {
	return func(c *callConfig) { c.tags = tags }
}

// WithoutReturnCapture skips return-value storage and embedding for this
// function, which also removes it from semantic caching and replay.
func WithoutReturnCapture() CallOption {
	return func(c *callConfig) { c.captureReturn = false }
}

// Instrument wraps fn with the cache decision, trace propagation, and
// write-behind logging, and registers it for replay under name. params are
// the function's declared parameter names; record inputs are always
// restricted to them.
func (r *Runtime) Instrument(name string, params []string, fn Func, opts ...CallOption) Func {
	cfg := callConfig{captureReturn: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	// Replay resolves the raw function so regression runs exercise current
	// code instead of bouncing off the cache.
	r.registry.Register(replay.Target{Name: name, Params: params, Fn: fn})

	fingerprint := core.Fingerprint(name)
	threshold := r.settings.CacheThreshold
	if cfg.threshold != nil {
		threshold = *cfg.threshold
	}

	return func(ctx context.Context, args map[string]any) (any, error) {
		inputs := core.FilterInputs(args, params)

		// The decision runs before this call's span is pushed, so a
		// synthetic hit record attaches to the caller's span.
		if cfg.captureReturn {
			if res, ok := r.cache.Decide(ctx, name, inputs, threshold); ok {
				return res.Value, nil
			}
		}

		ctx, span := trace.Enter(ctx)

		start := time.Now()
		out, err := fn(ctx, args)
		duration := float64(time.Since(start)) / float64(time.Millisecond)

		r.record(ctx, name, fingerprint, span, inputs, out, err, duration, &cfg)
		return out, err
	}
}

// record builds and enqueues the execution record. Everything in here is
// best-effort: the caller already has its result.
func (r *Runtime) record(ctx context.Context, name, fingerprint string, span trace.Span, inputs map[string]any, out any, callErr error, duration float64, cfg *callConfig) {
	rec := core.ExecutionRecord{
		FunctionName:        name,
		FunctionFingerprint: fingerprint,
		TraceID:             span.TraceID,
		SpanID:              span.SpanID,
		ParentSpanID:        span.ParentSpanID,
		Timestamp:           time.Now().UTC(),
		DurationMS:          duration,
		Status:              core.StatusSuccess,
		Inputs:              core.MaskInputs(inputs, r.sensitive),
	}

	tags := r.cache.Tags(inputs)
	for k, v := range cfg.tags {
		tags[k] = v
	}

	if callErr != nil {
		rec.Status = core.StatusError
		rec.ErrorMessage = callErr.Error()
		if coder, ok := callErr.(ErrorCoder); ok {
			tags["error_code"] = coder.ErrorCode()
		}
	} else if cfg.captureReturn {
		encoded, err := core.EncodeReturnValue(out)
		if err != nil {
			r.sink.Report("record_encode_failure", map[string]any{
				"error":         err.Error(),
				"function_name": name,
			})
		} else {
			rec.ReturnValue = encoded
		}
	}
	rec.Tags = tags

	if cfg.captureReturn || callErr != nil {
		text := core.EmbeddingText(name, inputs, r.sensitive)
		if callErr != nil {
			text = core.ErrorText(text, callErr.Error())
		}
		vec, err := r.cache.Vector(ctx, text)
		if err != nil {
			r.sink.Report("embedding_failure", map[string]any{
				"error":         err.Error(),
				"function_name": name,
			})
		} else {
			rec.Embedding = vec
			r.monitor.Observe(ctx, name, vec)
		}
	}

	r.logger.Enqueue(rec)
}

// Registry exposes the replay registry, for registering targets that are
// not instrumented.
func (r *Runtime) Registry() *replay.MapRegistry {
	return r.registry
}

// Replayer builds a regression replayer over this runtime's store and
// registry.
func (r *Runtime) Replayer() *replay.Replayer {
	return replay.New(r.store, r.registry,
		replay.WithDefaultLimit(r.settings.ReplayLimit),
		replay.WithSink(r.sink),
	)
}

// Dataset exposes the golden dataset manager and classifier.
func (r *Runtime) Dataset() *dataset.Manager {
	return r.dataset
}

// Explorer builds the execution-log search helpers.
func (r *Runtime) Explorer() *search.Explorer {
	return search.New(r.store, r.embedder)
}

// Healer builds an LLM diagnoser over this runtime's store.
func (r *Runtime) Healer(client *anthropic.Client) *heal.Healer {
	return heal.New(r.store, client, heal.WithModel(r.settings.HealerModel))
}

// Drain blocks until every record logged so far has been flushed.
func (r *Runtime) Drain(ctx context.Context) error {
	return r.logger.Drain(ctx)
}

// Close flushes buffered records and stops the background flusher.
func (r *Runtime) Close() {
	r.logger.Close()
}
