package search_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectorwave/vectorwave-go/core"
	"github.com/vectorwave/vectorwave-go/embedder/mock"
	"github.com/vectorwave/vectorwave-go/search"
	"github.com/vectorwave/vectorwave-go/store/chromem"
)

func seedStore(t *testing.T) *chromem.Store {
	t.Helper()
	st, err := chromem.New()
	require.NoError(t, err)

	ctx := context.Background()
	emb := mock.New(32)
	now := time.Now().UTC()

	embed := func(text string) []float32 {
		vec, err := emb.Embed(ctx, text)
		require.NoError(t, err)
		return vec
	}

	_, err = st.Append(ctx,
		core.ExecutionRecord{
			FunctionName: "pay.charge",
			Status:       core.StatusError,
			ErrorMessage: "card declined",
			Timestamp:    now.Add(-time.Minute),
			DurationMS:   120,
			TraceID:      "t1",
			Tags:         map[string]string{"error_code": "CARD_DECLINED"},
			Embedding:    embed("pay.charge(amount=10) error: card declined"),
		},
		core.ExecutionRecord{
			FunctionName: "pay.charge",
			Status:       core.StatusError,
			ErrorMessage: "network timeout",
			Timestamp:    now.Add(-2 * time.Hour),
			DurationMS:   5000,
			TraceID:      "t2",
			Tags:         map[string]string{"error_code": "TIMEOUT"},
			Embedding:    embed("pay.charge(amount=10) error: network timeout"),
		},
		core.ExecutionRecord{
			FunctionName: "pay.refund",
			Status:       core.StatusSuccess,
			Timestamp:    now.Add(-30 * time.Second),
			DurationMS:   40,
			TraceID:      "t1",
		},
	)
	require.NoError(t, err)
	return st
}

func TestRecentErrors(t *testing.T) {
	st := seedStore(t)
	explorer := search.New(st, nil)

	// Only the declined charge falls inside the window.
	records, err := explorer.RecentErrors(context.Background(), time.Hour, "", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "card declined", records[0].ErrorMessage)

	// A wider window picks up both, newest first.
	records, err = explorer.RecentErrors(context.Background(), 3*time.Hour, "", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "card declined", records[0].ErrorMessage)
	assert.Equal(t, "network timeout", records[1].ErrorMessage)
}

func TestRecentErrors_ByErrorCode(t *testing.T) {
	st := seedStore(t)
	explorer := search.New(st, nil)

	records, err := explorer.RecentErrors(context.Background(), 3*time.Hour, "TIMEOUT", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "network timeout", records[0].ErrorMessage)
}

func TestSlowest(t *testing.T) {
	st := seedStore(t)
	explorer := search.New(st, nil)

	records, err := explorer.Slowest(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, float64(5000), records[0].DurationMS)
	assert.Equal(t, float64(120), records[1].DurationMS)
}

func TestByTraceID(t *testing.T) {
	st := seedStore(t)
	explorer := search.New(st, nil)

	records, err := explorer.ByTraceID(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.True(t, records[0].Timestamp.Before(records[1].Timestamp), "chains read in capture order")
}

func TestErrorsByMessage(t *testing.T) {
	st := seedStore(t)
	explorer := search.New(st, mock.New(32))

	hits, err := explorer.ErrorsByMessage(context.Background(),
		"pay.charge(amount=10) error: card declined", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "card declined", hits[0].Record.ErrorMessage)
	assert.InDelta(t, 0, hits[0].Distance, 1e-5)
}

func TestErrorsByMessage_RequiresEmbedder(t *testing.T) {
	st := seedStore(t)
	explorer := search.New(st, nil)

	_, err := explorer.ErrorsByMessage(context.Background(), "anything", 5)
	assert.Error(t, err)
}
