// Package chromem implements the storage gateway on chromem-go, a pure Go
// embedded vector database.
//
// chromem answers similarity queries only, so the store keeps a synchronized
// side index of full records alongside the vector collections. The index
// serves ordered fetches and field updates; chromem serves nearest-neighbor
// search. Records live in one collection per function name, mirroring how
// searches are always function-scoped.
package chromem

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/vectorwave/vectorwave-go/core"
	"github.com/vectorwave/vectorwave-go/store"
)

// Store is an embedded, in-memory storage gateway.
type Store struct {
	db *chromem.DB

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
	records     map[string]*core.ExecutionRecord
	order       []string // ids in append order
}

// New creates an empty store.
func New() (*Store, error) {
	return &Store{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
		records:     make(map[string]*core.ExecutionRecord),
	}, nil
}

// collection returns the vector collection for a function, creating it on
// first use. Caller must hold mu.
func (s *Store) collection(functionName string) (*chromem.Collection, error) {
	if col, ok := s.collections[functionName]; ok {
		return col, nil
	}
	col, err := s.db.CreateCollection(collectionName(functionName), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	s.collections[functionName] = col
	return col, nil
}

func collectionName(functionName string) string {
	// chromem collection names must be non-empty; fingerprints are safe
	// identifiers regardless of what characters the function name carries.
	return "fn_" + core.Fingerprint(functionName)
}

// Append implements store.Gateway. Ids are assigned here; records without a
// timestamp are stamped with the current UTC time.
func (s *Store) Append(ctx context.Context, records ...core.ExecutionRecord) ([]string, error) {
	ids := make([]string, 0, len(records))

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range records {
		rec := cloneRecord(records[i])
		if rec.ID == "" {
			rec.ID = core.NewRecordID()
		}
		if rec.Timestamp.IsZero() {
			rec.Timestamp = time.Now().UTC()
		}

		if len(rec.Embedding) > 0 {
			col, err := s.collection(rec.FunctionName)
			if err != nil {
				return ids, err
			}
			if err := col.AddDocument(ctx, documentFor(rec)); err != nil {
				return ids, fmt.Errorf("add document: %w", err)
			}
		}

		s.records[rec.ID] = rec
		s.order = append(s.order, rec.ID)
		ids = append(ids, rec.ID)
	}
	return ids, nil
}

func documentFor(rec *core.ExecutionRecord) chromem.Document {
	return chromem.Document{
		ID:        rec.ID,
		Content:   rec.ReturnValue,
		Embedding: rec.Embedding,
		Metadata: map[string]string{
			"function_name": rec.FunctionName,
			"status":        string(rec.Status),
			"trace_id":      rec.TraceID,
		},
	}
}

// Search implements store.Gateway: nearest qualifying record within the
// cosine-distance threshold, or nil.
func (s *Store) Search(ctx context.Context, vector []float32, filter store.Filter, threshold float64) (*store.Hit, error) {
	hits, err := s.similar(ctx, vector, filter, 1, threshold)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}
	return &hits[0], nil
}

// Similar implements store.Gateway: up to limit nearest records, ascending
// distance, no cutoff.
func (s *Store) Similar(ctx context.Context, vector []float32, filter store.Filter, limit int) ([]store.Hit, error) {
	return s.similar(ctx, vector, filter, limit, -1)
}

func (s *Store) similar(ctx context.Context, vector []float32, filter store.Filter, limit int, threshold float64) ([]store.Hit, error) {
	if limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var cols []*chromem.Collection
	if filter.FunctionName != "" {
		if col, ok := s.collections[filter.FunctionName]; ok {
			cols = append(cols, col)
		}
	} else {
		for _, col := range s.collections {
			cols = append(cols, col)
		}
	}

	var hits []store.Hit
	for _, col := range cols {
		count := col.Count()
		if count == 0 {
			continue
		}
		// Over-fetch so post-filtering on status and tags still finds the
		// nearest qualifying candidates; chromem caps nResults at the
		// collection size.
		k := limit * 4
		if k < 8 {
			k = 8
		}
		if k > count {
			k = count
		}
		results, err := col.QueryEmbedding(ctx, vector, k, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("query embedding: %w", err)
		}
		for _, res := range results {
			rec, ok := s.records[res.ID]
			if !ok {
				continue
			}
			dist := 1 - float64(res.Similarity)
			if threshold >= 0 && dist > threshold {
				continue
			}
			if !filter.Matches(rec) {
				continue
			}
			hits = append(hits, store.Hit{Record: *rec, Distance: dist})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Fetch implements store.Gateway.
func (s *Store) Fetch(_ context.Context, q store.Query) ([]core.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.ExecutionRecord
	for _, id := range s.order {
		rec := s.records[id]
		if q.Filter.Matches(rec) {
			out = append(out, *rec)
		}
	}

	field := q.OrderBy
	if field == "" {
		field = store.FieldTimestamp
	}
	sort.SliceStable(out, func(i, j int) bool {
		var less bool
		switch field {
		case store.FieldDuration:
			less = out[i].DurationMS < out[j].DurationMS
		default:
			less = out[i].Timestamp.Before(out[j].Timestamp)
		}
		if q.Descending {
			return !less && !equalField(field, &out[i], &out[j])
		}
		return less
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func equalField(field store.Field, a, b *core.ExecutionRecord) bool {
	switch field {
	case store.FieldDuration:
		return a.DurationMS == b.DurationMS
	default:
		return a.Timestamp.Equal(b.Timestamp)
	}
}

// Update implements store.Gateway. Re-running an update with the same fields
// is safe: the write is a plain overwrite.
func (s *Store) Update(ctx context.Context, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("update %s: record not found", id)
	}

	for key, value := range fields {
		switch key {
		case "return_value":
			v, ok := value.(string)
			if !ok {
				return fmt.Errorf("update %s: return_value must be a string", id)
			}
			rec.ReturnValue = v
		case "tags":
			tags, ok := value.(map[string]string)
			if !ok {
				return fmt.Errorf("update %s: tags must be map[string]string", id)
			}
			if rec.Tags == nil {
				rec.Tags = make(map[string]string, len(tags))
			}
			for k, v := range tags {
				rec.Tags[k] = v
			}
		default:
			return fmt.Errorf("update %s: unsupported field %q", id, key)
		}
	}

	if len(rec.Embedding) > 0 {
		col, err := s.collection(rec.FunctionName)
		if err != nil {
			return err
		}
		// Re-adding under the same id overwrites the stored document.
		if err := col.AddDocument(ctx, documentFor(rec)); err != nil {
			return fmt.Errorf("rewrite document: %w", err)
		}
	}
	return nil
}

func cloneRecord(rec core.ExecutionRecord) *core.ExecutionRecord {
	out := rec
	if rec.Inputs != nil {
		out.Inputs = make(map[string]any, len(rec.Inputs))
		for k, v := range rec.Inputs {
			out.Inputs[k] = v
		}
	}
	if rec.Tags != nil {
		out.Tags = make(map[string]string, len(rec.Tags))
		for k, v := range rec.Tags {
			out.Tags[k] = v
		}
	}
	return &out
}
