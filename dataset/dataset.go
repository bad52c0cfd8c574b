// Package dataset curates which historical executions are representative.
//
// The classifier buckets candidate executions by embedding distance to a
// golden baseline: close enough to be steady state, far enough to be a
// meaningful discovery, or too far to matter at all. The golden baseline
// itself is a set of operator-designated records whose embedding mean is the
// center point.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/vectorwave/vectorwave-go/core"
	"github.com/vectorwave/vectorwave-go/observe"
	"github.com/vectorwave/vectorwave-go/store"
)

// Classification buckets a candidate relative to the golden center.
type Classification string

const (
	// Steady means the execution matches the established pattern.
	Steady Classification = "STEADY"

	// Discovery means the execution is related but novel — worth review.
	Discovery Classification = "DISCOVERY"
)

// tag keys marking golden records.
const (
	goldenTag     = "golden"
	goldenNoteTag = "golden_note"
)

// ErrNoGolden is returned when a function has no registered golden records.
var ErrNoGolden = errors.New("no golden baseline registered")

// Candidate is one classified execution.
type Candidate struct {
	ID               string
	DistanceToCenter float64
	Classification   Classification
	ReturnValue      string
}

// Margins are the classifier thresholds; Steady must not exceed Discovery.
type Margins struct {
	Steady    float64
	Discovery float64
}

func (m Margins) validate() error {
	if m.Steady > m.Discovery {
		return fmt.Errorf("steady margin %.3f exceeds discovery margin %.3f", m.Steady, m.Discovery)
	}
	return nil
}

// Store is the gateway slice the manager uses: reads for classification,
// one tag write for golden registration.
type Store interface {
	Fetch(ctx context.Context, q store.Query) ([]core.ExecutionRecord, error)
	Update(ctx context.Context, id string, fields map[string]any) error
}

// Manager classifies executions and maintains the golden baseline.
type Manager struct {
	store   Store
	margins Margins
	limit   int
}

// Option configures a Manager.
type Option func(*Manager)

// WithMargins sets the default classification margins.
func WithMargins(m Margins) Option {
	return func(mgr *Manager) { mgr.margins = m }
}

// WithDefaultLimit sets the fetch bound for Recommend.
func WithDefaultLimit(n int) Option {
	return func(mgr *Manager) {
		if n > 0 {
			mgr.limit = n
		}
	}
}

// New creates a Manager.
func New(st Store, opts ...Option) *Manager {
	m := &Manager{
		store:   st,
		margins: Margins{Steady: 0.25, Discovery: 0.40},
		limit:   20,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterGolden marks a stored execution as part of the golden baseline.
// Re-registering the same record is a harmless overwrite.
func (m *Manager) RegisterGolden(ctx context.Context, id string, note string) error {
	tags := map[string]string{goldenTag: "true"}
	if note != "" {
		tags[goldenNoteTag] = note
	}
	if err := m.store.Update(ctx, id, map[string]any{"tags": tags}); err != nil {
		return fmt.Errorf("register golden %s: %w", id, err)
	}
	return nil
}

/// GoldenCenter computes the center point for a function: the elementwise
// mean of all golden record embeddings.
func (m *Manager) GoldenCenter(ctx context.Context, functionName string) ([]float32, error) {
	records, err := m.store.Fetch(ctx, store.Query{
		Filter: store.Filter{
			FunctionName:     functionName,
			Tags:             map[string]string{goldenTag: "true"},
			RequireEmbedding: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch golden records for %q: %w", functionName, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%q: %w", functionName, ErrNoGolden)
	}

	vectors := make([][]float32, len(records))
	for i := range records {
		vectors[i] = records[i].Embedding
	}
	return meanVector(vectors), nil
}

// Classify buckets the most recent embedded executions of targetFunction by
// distance to goldenEmbedding. Candidates beyond the discovery margin are
// excluded from the result entirely. The result is ordered by ascending
// distance, ties broken by record recency (more recent first). Read-only.
func (m *Manager) Classify(ctx context.Context, targetFunction string, goldenEmbedding []float32, margins Margins, limit int) ([]Candidate, error) {
	if err := margins.validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = m.limit
	}

	records, err := m.store.Fetch(ctx, store.Query{
		Filter: store.Filter{
			FunctionName:     targetFunction,
			RequireEmbedding: true,
		},
		OrderBy:    store.FieldTimestamp,
		Descending: true,
		Limit:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch candidates for %q: %w", targetFunction, err)
	}

	// records arrive newest first, so a stable sort on distance leaves
	// equal-distance candidates ordered by recency.
	candidates := make([]Candidate, 0, len(records))
	for i := range records {
		dist := CosineDistance(records[i].Embedding, goldenEmbedding)
		if dist > margins.Discovery {
			continue
		}
		class := Discovery
		if dist <= margins.Steady {
			class = Steady
		}
		candidates = append(candidates, Candidate{
			ID:               records[i].ID,
			DistanceToCenter: dist,
			Classification:   class,
			ReturnValue:      records[i].ReturnValue,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].DistanceToCenter < candidates[j].DistanceToCenter
	})
	return candidates, nil
}

// Recommend classifies recent executions against the function's golden
// center using the manager's default margins.
func (m *Manager) Recommend(ctx context.Context, targetFunction string, limit int) ([]Candidate, error) {
	center, err := m.GoldenCenter(ctx, targetFunction)
	if err != nil {
		return nil, err
	}
	return m.Classify(ctx, targetFunction, center, m.margins, limit)
}

// Monitor watches live execution embeddings for semantic drift away from
/// the golden center. Detection only: it reports to the sink and never
// fails or blocks the instrumented call.
type Monitor struct {
	manager   *Manager
	threshold float64
	sink      observe.Sink
}

// NewMonitor creates a drift monitor.
func NewMonitor(manager *Manager, threshold float64, sink observe.Sink) *Monitor {
	if sink == nil {
		sink = observe.NopSink{}
	}
	return &Monitor{manager: manager, threshold: threshold, sink: sink}
}

// Observe checks one execution embedding against the function's golden
// center. Functions without a golden baseline are ignored.
func (mon *Monitor) Observe(ctx context.Context, functionName string, embedding []float32) {
	if mon.threshold <= 0 || len(embedding) == 0 {
		return
	}
	center, err := mon.manager.GoldenCenter(ctx, functionName)
	if err != nil {
		if !errors.Is(err, ErrNoGolden) {
			mon.sink.Report("drift_check_failure", map[string]any{
				"error":         err.Error(),
				"function_name": functionName,
			})
		}
		return
	}
	dist := CosineDistance(embedding, center)
	if dist > mon.threshold {
		mon.sink.Report("semantic_drift", map[string]any{
			"function_name": functionName,
			"distance":      dist,
			"threshold":     mon.threshold,
		})
	}
}
