package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrModelFailure marks errors raised by the underlying embedding model,
// as opposed to content or contract problems.
var ErrModelFailure = errors.New("embedding model failure")

// Embedder maps text to dense float32 vectors. Every vector produced by one
// embedder after Prepare shares the same dimension.
type Embedder interface {
	Name() string
	// Prepare lets corpus-fitted models (TF-IDF) learn from the chunks about
	// to be indexed. Fixed models treat it as a no-op.
	Prepare(ctx context.Context, corpus []string) error
	// EmbedQuery encodes exactly one string.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// EmbedChunks encodes texts in one batch, row i for texts[i]. An empty
	// input yields a zero-row matrix and no error.
	EmbedChunks(ctx context.Context, texts []string) ([][]float32, error)
}

// Failure wraps err as a model failure attributed to the named embedder.
// Errors that already carry ErrModelFailure are returned unchanged.
func Failure(name string, err error) error {
	if err == nil || errors.Is(err, ErrModelFailure) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrModelFailure, name, err)
}

// WithTimeout bounds every call to e by d. A non-positive d returns e as is.
func WithTimeout(e Embedder, d time.Duration) Embedder {
	if d <= 0 {
		return e
	}
	return &timeoutEmbedder{inner: e, timeout: d}
}

type timeoutEmbedder struct {
	inner   Embedder
	timeout time.Duration
}

func (t *timeoutEmbedder) Name() string { return t.inner.Name() }

func (t *timeoutEmbedder) Prepare(ctx context.Context, corpus []string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.check(ctx, t.inner.Prepare(ctx, corpus))
}

func (t *timeoutEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	v, err := t.inner.EmbedQuery(ctx, text)
	if err = t.check(ctx, err); err != nil {
		return nil, err
	}
	return v, nil
}

func (t *timeoutEmbedder) EmbedChunks(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	m, err := t.inner.EmbedChunks(ctx, texts)
	if err = t.check(ctx, err); err != nil {
		return nil, err
	}
	return m, nil
}

func (t *timeoutEmbedder) check(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: timed out after %s: %w", ErrModelFailure, t.inner.Name(), t.timeout, context.DeadlineExceeded)
	}
	return err
}
