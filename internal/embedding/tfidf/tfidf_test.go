package tfidf

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedder_NotPrepared(t *testing.T) {
	e := NewEmbedder()
	_, err := e.EmbedQuery(context.Background(), "anything")
	assert.Error(t, err)

	m, err := e.EmbedChunks(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestEmbedder_PrepareEmptyCorpus(t *testing.T) {
	assert.Error(t, NewEmbedder().Prepare(context.Background(), nil))
}

func TestEmbedder_VocabularyDimension(t *testing.T) {
	e := NewEmbedder()
	corpus := []string{"The cat sat on the mat", "A dog chased the cat"}
	require.NoError(t, e.Prepare(context.Background(), corpus))
	// cat, chased, dog, mat, sat
	assert.Equal(t, 5, e.Dimension())

	m, err := e.EmbedChunks(context.Background(), corpus)
	require.NoError(t, err)
	require.Len(t, m, 2)
	for _, row := range m {
		assert.Len(t, row, 5)
	}
}

func TestEmbedder_DeterministicAcrossPrepares(t *testing.T) {
	corpus := []string{"red apples grow", "green pears ripen", "apples and pears"}
	a, b := NewEmbedder(), NewEmbedder()
	require.NoError(t, a.Prepare(context.Background(), corpus))
	require.NoError(t, b.Prepare(context.Background(), corpus))

	va, err := a.EmbedQuery(context.Background(), "apples")
	require.NoError(t, err)
	vb, err := b.EmbedQuery(context.Background(), "apples")
	require.NoError(t, err)
	assert.Equal(t, va, vb)
}

func TestEmbedder_StopwordOnlyCorpus(t *testing.T) {
	e := NewEmbedder()
	require.NoError(t, e.Prepare(context.Background(), []string{"the and of", "a an"}))
	assert.Equal(t, 1, e.Dimension())

	v, err := e.EmbedQuery(context.Background(), "the")
	require.NoError(t, err)
	assert.Equal(t, []float32{0}, v)
}
