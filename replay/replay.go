// Package replay re-executes historically logged inputs against current
// code to detect regressions.
package replay

import (
	"context"
	"fmt"

	"github.com/vectorwave/vectorwave-go/core"
	"github.com/vectorwave/vectorwave-go/observe"
	"github.com/vectorwave/vectorwave-go/store"
)

// Store is the slice of the storage gateway the replayer needs: reads for
// everything, writes only on the baseline-update path.
type Store interface {
	Fetch(ctx context.Context, q store.Query) ([]core.ExecutionRecord, error)
	Update(ctx context.Context, id string, fields map[string]any) error
}

// Mismatch describes one diverging record.
type Mismatch struct {
	ID       string
	Inputs   map[string]any
	Expected any
	Actual   any
}

// Outcome aggregates one replay run. Failures preserves fetch order.
type Outcome struct {
	Passed   int
	Failed   int
	Updated  int
	Failures []Mismatch
}

// Replayer re-runs stored executions through the live function registry.
type Replayer struct {
	store    Store
	registry Registry
	sink     observe.Sink
	limit    int
}

// Option configures a Replayer.
type Option func(*Replayer)

// WithDefaultLimit sets the fetch bound used when a run does not override it.
func WithDefaultLimit(n int) Option {
	return func(r *Replayer) {
		if n > 0 {
			r.limit = n
		}
	}
}

// WithSink sets the observability sink.
func WithSink(sink observe.Sink) Option {
	return func(r *Replayer) {
		if sink != nil {
			r.sink = sink
		}
	}
}

// New creates a Replayer.
func New(st Store, registry Registry, opts ...Option) *Replayer {
	r := &Replayer{
		store:    st,
		registry: registry,
		sink:     observe.NopSink{},
		limit:    50,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunOption adjusts one replay run.
type RunOption func(*runConfig)

type runConfig struct {
	limit          int
	updateBaseline bool
}

// WithLimit bounds how many recent records are replayed.
func WithLimit(n int) RunOption {
	return func(c *runConfig) {
		if n > 0 {
			c.limit = n
		}
	}
}

// WithUpdateBaseline rewrites diverging stored values to the freshly
// produced result instead of counting them as failures.
func WithUpdateBaseline() RunOption {
	return func(c *runConfig) { c.updateBaseline = true }
}

// Replay fetches the most recent records for name, invokes the live target
// with each record's stored inputs (filtered to the target's current
// declared parameters), and compares results after canonical normalization.
//
// Target faults — an error return or a panic — count as failed cases with a
// textual actual value; they never propagate out of Replay. Only resolution
// and fetch failures are returned as errors.
func (r *Replayer) Replay(ctx context.Context, name string, opts ...RunOption) (Outcome, error) {
	cfg := runConfig{limit: r.limit}
	for _, opt := range opts {
		opt(&cfg)
	}

	// Resolve fresh so replay reflects the code as it is now, not as it
	// was when the records were written.
	target, err := r.registry.Resolve(name)
	if err != nil {
		return Outcome{}, err
	}

	records, err := r.store.Fetch(ctx, store.Query{
		Filter:     store.Filter{FunctionName: name},
		OrderBy:    store.FieldTimestamp,
		Descending: true,
		Limit:      cfg.limit,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("fetch records for %q: %w", name, err)
	}

	var out Outcome
	for i := range records {
		r.replayOne(ctx, target, &records[i], cfg.updateBaseline, &out)
	}
	return out, nil
}

func (r *Replayer) replayOne(ctx context.Context, target Target, rec *core.ExecutionRecord, updateBaseline bool, out *Outcome) {
	if rec.ReturnValue == "" {
		r.sink.Report("malformed_record", map[string]any{
			"error":     "missing return value",
			"record_id": rec.ID,
		})
		return
	}

	args := core.FilterInputs(rec.Inputs, target.Params)

	actual, err := invoke(ctx, target, args)
	if err != nil {
		out.Failed++
		out.Failures = append(out.Failures, Mismatch{
			ID:       rec.ID,
			Inputs:   args,
			Expected: core.DecodeReturnValue(rec.ReturnValue),
			Actual:   fmt.Sprintf("target failed: %v", err),
		})
		return
	}

	actualText, err := core.EncodeReturnValue(actual)
	if err != nil {
		out.Failed++
		out.Failures = append(out.Failures, Mismatch{
			ID:       rec.ID,
			Inputs:   args,
			Expected: core.DecodeReturnValue(rec.ReturnValue),
			Actual:   fmt.Sprintf("unencodable result: %v", err),
		})
		return
	}

	if core.NormalizeValue(rec.ReturnValue) == core.NormalizeValue(actualText) {
		out.Passed++
		return
	}

	if updateBaseline {
		if err := r.store.Update(ctx, rec.ID, map[string]any{"return_value": actualText}); err != nil {
			r.sink.Report("baseline_update_failure", map[string]any{
				"error":     err.Error(),
				"record_id": rec.ID,
			})
			out.Failed++
			out.Failures = append(out.Failures, Mismatch{
				ID:       rec.ID,
				Inputs:   args,
				Expected: core.DecodeReturnValue(rec.ReturnValue),
				Actual:   core.DecodeReturnValue(actualText),
			})
			return
		}
		out.Updated++
		return
	}

	out.Failed++
	out.Failures = append(out.Failures, Mismatch{
		ID:       rec.ID,
		Inputs:   args,
		Expected: core.DecodeReturnValue(rec.ReturnValue),
		Actual:   core.DecodeReturnValue(actualText),
	})
}

// invoke runs the target, converting panics into errors so a crashing
// target is a failed case rather than a crashed replay run.
func invoke(ctx context.Context, target Target, args map[string]any) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return target.Fn(ctx, args)
}
