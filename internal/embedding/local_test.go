package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalProviderDeterministic(t *testing.T) {
	provider := NewLocalProvider(64)

	first, _, err := provider.EmbedBatch(context.Background(), []string{"osmosis moves water"})
	require.NoError(t, err)
	second, _, err := provider.EmbedBatch(context.Background(), []string{"osmosis moves water"})
	require.NoError(t, err)

	assert.Equal(t, first[0], second[0])
}

func TestLocalProviderVectorsAreNormalized(t *testing.T) {
	provider := NewLocalProvider(64)

	vectors, itemErrs, err := provider.EmbedBatch(context.Background(),
		[]string{"the cell membrane", "photosynthesis in chloroplasts"})

	require.NoError(t, err)
	for _, itemErr := range itemErrs {
		assert.NoError(t, itemErr)
	}
	for _, v := range vectors {
		require.Len(t, v, 64)
		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
	}
}

func TestLocalProviderSimilarTextsScoreHigher(t *testing.T) {
	provider := NewLocalProvider(256)

	vectors, _, err := provider.EmbedBatch(context.Background(), []string{
		"water moves across the cell membrane by osmosis",
		"osmosis moves water across the membrane of a cell",
		"the industrial revolution transformed European manufacturing",
	})
	require.NoError(t, err)

	related := dot(vectors[0], vectors[1])
	unrelated := dot(vectors[0], vectors[2])
	assert.Greater(t, related, unrelated)
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
