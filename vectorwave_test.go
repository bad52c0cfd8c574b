package vectorwave_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vectorwave "github.com/vectorwave/vectorwave-go"
	"github.com/vectorwave/vectorwave-go/config"
	"github.com/vectorwave/vectorwave-go/core"
	"github.com/vectorwave/vectorwave-go/embedder/mock"
	"github.com/vectorwave/vectorwave-go/observe"
	"github.com/vectorwave/vectorwave-go/replay"
	"github.com/vectorwave/vectorwave-go/store"
	"github.com/vectorwave/vectorwave-go/store/chromem"
)

func testSettings() *config.Settings {
	s := config.Default()
	s.BatchSize = 1
	s.FlushInterval = 10 * time.Millisecond
	return s
}

func newRuntime(t *testing.T, s *config.Settings) (*vectorwave.Runtime, *chromem.Store) {
	t.Helper()
	st, err := chromem.New()
	require.NoError(t, err)
	rt, err := vectorwave.New(st, mock.New(32),
		vectorwave.WithSettings(s),
		vectorwave.WithSink(observe.NopSink{}),
	)
	require.NoError(t, err)
	t.Cleanup(rt.Close)
	return rt, st
}

func fetchAll(t *testing.T, st *chromem.Store, filter store.Filter) []core.ExecutionRecord {
	t.Helper()
	records, err := st.Fetch(context.Background(), store.Query{Filter: filter})
	require.NoError(t, err)
	return records
}

func TestInstrument_LogsSuccessfulExecution(t *testing.T) {
	ctx := context.Background()
	rt, st := newRuntime(t, testSettings())

	add := rt.Instrument("calc.add", []string{"a", "b"},
		func(_ context.Context, args map[string]any) (any, error) {
			return args["a"].(float64) + args["b"].(float64), nil
		})

	out, err := add(ctx, map[string]any{"a": float64(1), "b": float64(2)})
	require.NoError(t, err)
	assert.Equal(t, float64(3), out)

	require.NoError(t, rt.Drain(ctx))

	records := fetchAll(t, st, store.Filter{FunctionName: "calc.add"})
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, core.StatusSuccess, rec.Status)
	assert.Equal(t, "3", rec.ReturnValue)
	assert.Equal(t, map[string]any{"a": float64(1), "b": float64(2)}, rec.Inputs)
	assert.NotEmpty(t, rec.TraceID)
	assert.NotEmpty(t, rec.SpanID)
	assert.Empty(t, rec.ParentSpanID, "a top-level call roots its own chain")
	assert.NotEmpty(t, rec.Embedding)
	assert.NotEmpty(t, rec.FunctionFingerprint)
	assert.GreaterOrEqual(t, rec.DurationMS, float64(0))
}

func TestInstrument_LogsFailureWithErrorCode(t *testing.T) {
	ctx := context.Background()
	rt, st := newRuntime(t, testSettings())

	boom := rt.Instrument("pay.charge", []string{"amount"},
		func(context.Context, map[string]any) (any, error) {
			return nil, codedError{code: "CARD_DECLINED", msg: "card declined"}
		})

	_, err := boom(ctx, map[string]any{"amount": float64(10)})
	require.Error(t, err, "the caller still sees the failure")

	require.NoError(t, rt.Drain(ctx))

	records := fetchAll(t, st, store.Filter{FunctionName: "pay.charge"})
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, core.StatusError, rec.Status)
	assert.Equal(t, "card declined", rec.ErrorMessage)
	assert.Empty(t, rec.ReturnValue)
	assert.Equal(t, "CARD_DECLINED", rec.Tags["error_code"])
	assert.NotEmpty(t, rec.Embedding, "failures embed too, for semantic error search")
}

type codedError struct {
	code string
	msg  string
}

func (e codedError) Error() string     { return e.msg }
func (e codedError) ErrorCode() string { return e.code }

func TestInstrument_NestedCallsShareOneTrace(t *testing.T) {
	ctx := context.Background()
	rt, st := newRuntime(t, testSettings())

	inner := rt.Instrument("flow.inner", nil,
		func(context.Context, map[string]any) (any, error) {
			return "inner done", nil
		})
	outer := rt.Instrument("flow.outer", nil,
		func(ctx context.Context, _ map[string]any) (any, error) {
			return inner(ctx, nil)
		})

	_, err := outer(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, rt.Drain(ctx))

	outerRecs := fetchAll(t, st, store.Filter{FunctionName: "flow.outer"})
	innerRecs := fetchAll(t, st, store.Filter{FunctionName: "flow.inner"})
	require.Len(t, outerRecs, 1)
	require.Len(t, innerRecs, 1)

	assert.Equal(t, outerRecs[0].TraceID, innerRecs[0].TraceID)
	assert.Equal(t, outerRecs[0].SpanID, innerRecs[0].ParentSpanID)
	assert.Empty(t, outerRecs[0].ParentSpanID)
}

func TestInstrument_CacheHitRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := testSettings()
	s.CacheThreshold = 0.1
	rt, st := newRuntime(t, s)

	var executions atomic.Int32
	total := rt.Instrument("orders.total", []string{"id"},
		func(context.Context, map[string]any) (any, error) {
			executions.Add(1)
			return 42, nil
		})

	out, err := total(ctx, map[string]any{"id": float64(7)})
	require.NoError(t, err)
	assert.Equal(t, 42, out)
	require.NoError(t, rt.Drain(ctx))

	// Identical inputs embed identically, so the second call lands at
	// distance zero and is served from the log.
	out, err = total(ctx, map[string]any{"id": float64(7)})
	require.NoError(t, err)
	assert.Equal(t, float64(42), out, "cached values come back through canonical decoding")
	assert.Equal(t, int32(1), executions.Load(), "the function must not run again")

	require.NoError(t, rt.Drain(ctx))
	hits := fetchAll(t, st, store.Filter{
		FunctionName: "orders.total",
		Statuses:     []core.Status{core.StatusCacheHit},
	})
	require.Len(t, hits, 1)
	assert.Equal(t, float64(0), hits[0].DurationMS)
	assert.Equal(t, "42", hits[0].ReturnValue)
	assert.NotEmpty(t, hits[0].Embedding)
}

func TestInstrument_CacheDisabledByDefault(t *testing.T) {
	ctx := context.Background()
	rt, _ := newRuntime(t, testSettings())

	var executions atomic.Int32
	fn := rt.Instrument("f", []string{"a"},
		func(context.Context, map[string]any) (any, error) {
			executions.Add(1)
			return 1, nil
		})

	for i := 0; i < 3; i++ {
		_, err := fn(ctx, map[string]any{"a": float64(1)})
		require.NoError(t, err)
		require.NoError(t, rt.Drain(ctx))
	}
	assert.Equal(t, int32(3), executions.Load())
}

func TestInstrument_PerCallThresholdOverride(t *testing.T) {
	ctx := context.Background()
	s := testSettings()
	s.CacheThreshold = 0.1
	rt, _ := newRuntime(t, s)

	var executions atomic.Int32
	fn := rt.Instrument("f", []string{"a"},
		func(context.Context, map[string]any) (any, error) {
			executions.Add(1)
			return 1, nil
		},
		vectorwave.WithCacheThreshold(0), // opt this one function out
	)

	for i := 0; i < 2; i++ {
		_, err := fn(ctx, map[string]any{"a": float64(1)})
		require.NoError(t, err)
		require.NoError(t, rt.Drain(ctx))
	}
	assert.Equal(t, int32(2), executions.Load())
}

func TestInstrument_ExtraneousInputsDropped(t *testing.T) {
	ctx := context.Background()
	rt, st := newRuntime(t, testSettings())

	fn := rt.Instrument("f", []string{"a"},
		func(_ context.Context, args map[string]any) (any, error) {
			return args["a"], nil
		})

	_, err := fn(ctx, map[string]any{
		"a":        float64(10),
		"team":     "backend",
		"priority": "high",
	})
	require.NoError(t, err)
	require.NoError(t, rt.Drain(ctx))

	records := fetchAll(t, st, store.Filter{FunctionName: "f"})
	require.Len(t, records, 1)
	assert.Equal(t, map[string]any{"a": float64(10)}, records[0].Inputs)
}

func TestInstrument_SensitiveInputsMasked(t *testing.T) {
	ctx := context.Background()
	s := testSettings()
	s.SensitiveKeys = []string{"api_key"}
	rt, st := newRuntime(t, s)

	fn := rt.Instrument("auth.login", []string{"user", "api_key"},
		func(context.Context, map[string]any) (any, error) {
			return true, nil
		})

	_, err := fn(ctx, map[string]any{"user": "ada", "api_key": "secret"})
	require.NoError(t, err)
	require.NoError(t, rt.Drain(ctx))

	records := fetchAll(t, st, store.Filter{FunctionName: "auth.login"})
	require.Len(t, records, 1)
	assert.Equal(t, map[string]any{"user": "ada"}, records[0].Inputs)
}

func TestInstrument_Tags(t *testing.T) {
	ctx := context.Background()
	s := testSettings()
	s.GlobalTags = map[string]string{"service": "billing"}
	s.TagAllowlist = []string{"team"}
	rt, st := newRuntime(t, s)

	fn := rt.Instrument("f", []string{"a", "team"},
		func(context.Context, map[string]any) (any, error) {
			return 1, nil
		},
		vectorwave.WithTags(map[string]string{"tier": "gold"}),
	)

	_, err := fn(ctx, map[string]any{"a": float64(1), "team": "backend"})
	require.NoError(t, err)
	require.NoError(t, rt.Drain(ctx))

	records := fetchAll(t, st, store.Filter{FunctionName: "f"})
	require.Len(t, records, 1)
	assert.Equal(t, map[string]string{
		"service": "billing",
		"team":    "backend",
		"tier":    "gold",
	}, records[0].Tags)
}

func TestInstrument_WithoutReturnCapture(t *testing.T) {
	ctx := context.Background()
	rt, st := newRuntime(t, testSettings())

	fn := rt.Instrument("f", nil,
		func(context.Context, map[string]any) (any, error) {
			return "not stored", nil
		},
		vectorwave.WithoutReturnCapture(),
	)

	out, err := fn(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "not stored", out, "the caller still gets the value")
	require.NoError(t, rt.Drain(ctx))

	records := fetchAll(t, st, store.Filter{FunctionName: "f"})
	require.Len(t, records, 1)
	assert.Empty(t, records[0].ReturnValue)
	assert.Empty(t, records[0].Embedding)
}

func TestReplay_EndToEnd(t *testing.T) {
	ctx := context.Background()
	rt, _ := newRuntime(t, testSettings())

	triple := rt.Instrument("calc.triple", []string{"a"},
		func(_ context.Context, args map[string]any) (any, error) {
			return args["a"].(float64) * 3, nil
		})

	_, err := triple(ctx, map[string]any{"a": float64(1)})
	require.NoError(t, err)
	require.NoError(t, rt.Drain(ctx))

	// Unchanged behavior replays clean.
	out, err := rt.Replayer().Replay(ctx, "calc.triple")
	require.NoError(t, err)
	assert.Equal(t, replay.Outcome{Passed: 1}, out)

	// Swap in a regressed implementation; replay resolves fresh and
	// catches the divergence.
	rt.Registry().Register(replay.Target{
		Name:   "calc.triple",
		Params: []string{"a"},
		Fn: func(context.Context, map[string]any) (any, error) {
			return 99, nil
		},
	})

	out, err = rt.Replayer().Replay(ctx, "calc.triple")
	require.NoError(t, err)
	assert.Equal(t, 1, out.Failed)
	require.Len(t, out.Failures, 1)
	assert.Equal(t, float64(3), out.Failures[0].Expected)
	assert.Equal(t, float64(99), out.Failures[0].Actual)
}

func TestReplay_SkipsCachedExecutions(t *testing.T) {
	ctx := context.Background()
	s := testSettings()
	s.CacheThreshold = 0.1
	rt, _ := newRuntime(t, s)

	var executions atomic.Int32
	fn := rt.Instrument("f", []string{"a"},
		func(_ context.Context, args map[string]any) (any, error) {
			executions.Add(1)
			return args["a"], nil
		})

	_, err := fn(ctx, map[string]any{"a": float64(5)})
	require.NoError(t, err)
	require.NoError(t, rt.Drain(ctx))
	_, err = fn(ctx, map[string]any{"a": float64(5)}) // cache hit
	require.NoError(t, err)
	require.NoError(t, rt.Drain(ctx))
	require.Equal(t, int32(1), executions.Load())

	// Replay always runs the real function, so both stored records (the
	// original and the synthetic hit) replay against live code.
	out, err := rt.Replayer().Replay(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, replay.Outcome{Passed: 2}, out)
	assert.Equal(t, int32(3), executions.Load())
}

func TestRuntime_RejectsInvalidSettings(t *testing.T) {
	st, err := chromem.New()
	require.NoError(t, err)

	s := config.Default()
	s.SteadyMargin = 0.9
	s.DiscoveryMargin = 0.1

	_, err = vectorwave.New(st, mock.New(32), vectorwave.WithSettings(s))
	assert.Error(t, err)
}

func TestRuntime_ExplorerSeesLoggedErrors(t *testing.T) {
	ctx := context.Background()
	rt, _ := newRuntime(t, testSettings())

	fn := rt.Instrument("f", nil,
		func(context.Context, map[string]any) (any, error) {
			return nil, errors.New("kaput")
		})
	_, err := fn(ctx, nil)
	require.Error(t, err)
	require.NoError(t, rt.Drain(ctx))

	records, err := rt.Explorer().RecentErrors(ctx, time.Minute, "", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "kaput", records[0].ErrorMessage)
}
