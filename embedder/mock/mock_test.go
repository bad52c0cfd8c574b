package mock_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectorwave/vectorwave-go/embedder/mock"
)

func TestEmbed_Deterministic(t *testing.T) {
	emb := mock.New(64)

	a, err := emb.Embed(context.Background(), "orders.place(item=widget)")
	require.NoError(t, err)
	b, err := emb.Embed(context.Background(), "orders.place(item=widget)")
	require.NoError(t, err)

	assert.Equal(t, a, b, "identical text must embed identically")
}

func TestEmbed_DistinctTexts(t *testing.T) {
	emb := mock.New(64)

	a, err := emb.Embed(context.Background(), "one")
	require.NoError(t, err)
	b, err := emb.Embed(context.Background(), "two")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestEmbed_UnitNorm(t *testing.T) {
	emb := mock.New(384)
	vec, err := emb.Embed(context.Background(), "anything at all")
	require.NoError(t, err)
	require.Len(t, vec, 384)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestDimensions_Default(t *testing.T) {
	assert.Equal(t, 384, mock.New(0).Dimensions())
	assert.Equal(t, 16, mock.New(16).Dimensions())
}
