package ai

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestHashEmbedding(t *testing.T) {
	v := HashEmbedding("photosynthesis converts light", 64)
	require.Len(t, v, 64)
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	require.InDelta(t, 1.0, norm, 1e-5)
	require.Equal(t, v, HashEmbedding("photosynthesis converts light", 64))

	zero := HashEmbedding("   ", 16)
	require.Len(t, zero, 16)
	for _, x := range zero {
		require.Zero(t, x)
	}
	require.Len(t, HashEmbedding("x", 0), DefaultLocalDimensions)
}

func TestLocalProviderSimilarity(t *testing.T) {
	p, err := NewProvider("local", map[string]interface{}{"dimensions": 256})
	require.NoError(t, err)
	e := NewEmbedder(p, "hashing", 256)
	ctx := context.Background()
	doc, err := e.Embed(ctx, "Photosynthesis converts light energy into chemical energy in plants", TaskTypeDocument)
	require.NoError(t, err)
	other, err := e.Embed(ctx, "The French revolution began in 1789", TaskTypeDocument)
	require.NoError(t, err)
	q, err := e.Embed(ctx, "What does photosynthesis convert?", TaskTypeQuery)
	require.NoError(t, err)
	require.Greater(t, cosine(q, doc), cosine(q, other))

	_, err = p.Generate(ctx, "hashing", &GenerateRequest{Prompt: "x"})
	require.ErrorIs(t, err, ErrUnavailable)
}
