// Package vectorstore defines the nearest-neighbor index contract used by
// the retrieval service. Callers depend only on Builder and Index, so the
// flat implementation can be swapped for an approximate one.
package vectorstore

import (
	"errors"

	"docqa/internal/domain"
)

var (
	// ErrEmptyIndex is returned when searching an index built from zero rows.
	ErrEmptyIndex = errors.New("vector index is empty")
	// ErrDimensionMismatch is returned for ragged rows or a query whose
	// width differs from the index.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")
)

// Builder constructs a fresh index over a full embedding matrix.
// Row i of embeddings becomes index row i. Zero rows yield an empty index,
// not an error.
type Builder interface {
	Build(embeddings [][]float32) (Index, error)
}

// Index answers top-k queries over the rows it was built with.
type Index interface {
	Len() int
	Dimension() int
	// Search returns up to min(k, Len()) matches by ascending distance,
	// ties broken by ascending row.
	Search(query []float32, k int) ([]domain.Match, error)
}
