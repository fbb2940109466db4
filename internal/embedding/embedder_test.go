package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slowEmbedder struct{ delay time.Duration }

func (s *slowEmbedder) Name() string { return "slow" }

func (s *slowEmbedder) Prepare(ctx context.Context, corpus []string) error { return nil }

func (s *slowEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	select {
	case <-time.After(s.delay):
		return []float32{1}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *slowEmbedder) EmbedChunks(ctx context.Context, texts []string) ([][]float32, error) {
	v, err := s.EmbedQuery(ctx, "")
	if err != nil {
		return nil, err
	}
	return [][]float32{v}, nil
}

func TestWithTimeout_DeadlineIsModelFailure(t *testing.T) {
	e := WithTimeout(&slowEmbedder{delay: time.Second}, 10*time.Millisecond)

	_, err := e.EmbedQuery(context.Background(), "q")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelFailure)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = e.EmbedChunks(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, ErrModelFailure)
}

func TestWithTimeout_FastCallPasses(t *testing.T) {
	e := WithTimeout(&slowEmbedder{}, time.Second)
	v, err := e.EmbedQuery(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, v)
	assert.Equal(t, "slow", e.Name())
}

func TestWithTimeout_ZeroIsPassthrough(t *testing.T) {
	inner := &slowEmbedder{}
	assert.Same(t, Embedder(inner), WithTimeout(inner, 0))
}

func TestFailure(t *testing.T) {
	assert.NoError(t, Failure("x", nil))

	base := errors.New("boom")
	err := Failure("x", base)
	assert.ErrorIs(t, err, ErrModelFailure)
	assert.ErrorIs(t, err, base)
	assert.Same(t, err, Failure("y", err))
}
