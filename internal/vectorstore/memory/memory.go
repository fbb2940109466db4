package memory

import (
	"cmp"
	"fmt"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
)

// DefaultParallelThreshold is the row count from which Search splits the
// distance scan across workers.
const DefaultParallelThreshold = 4096

// Options tunes the distance scan.
type Options struct {
	// ParallelThreshold is the minimum row count for a parallel scan;
	// zero selects DefaultParallelThreshold, negative disables it.
	ParallelThreshold int
	// Workers bounds scan goroutines; zero selects GOMAXPROCS.
	Workers int
}

// Builder builds Flat indexes.
type Builder struct {
	opts Options
}

// NewBuilder returns a flat index builder.
func NewBuilder(opts Options) *Builder {
	if opts.ParallelThreshold == 0 {
		opts.ParallelThreshold = DefaultParallelThreshold
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	return &Builder{opts: opts}
}

// Build copies embeddings into a row-major matrix. The dimension is taken
// from the first row; any row of a different width is rejected.
func (b *Builder) Build(embeddings [][]float32) (vectorstore.Index, error) {
	if len(embeddings) == 0 {
		return &Flat{opts: b.opts}, nil
	}
	dim := len(embeddings[0])
	if dim == 0 {
		return nil, fmt.Errorf("%w: row 0 has no components", vectorstore.ErrDimensionMismatch)
	}
	data := make([]float32, 0, len(embeddings)*dim)
	for i, row := range embeddings {
		if len(row) != dim {
			return nil, fmt.Errorf("%w: row %d has %d components, want %d", vectorstore.ErrDimensionMismatch, i, len(row), dim)
		}
		data = append(data, row...)
	}
	return &Flat{opts: b.opts, dimension: dim, rows: len(embeddings), data: data}, nil
}

// Flat is an exhaustive squared-L2 index. It is immutable after Build and
// safe for concurrent searches.
type Flat struct {
	opts      Options
	dimension int
	rows      int
	data      []float32
}

// Len returns the number of indexed rows.
func (f *Flat) Len() int {
	if f == nil {
		return 0
	}
	return f.rows
}

// Dimension returns the width of indexed rows, zero when empty.
func (f *Flat) Dimension() int {
	if f == nil {
		return 0
	}
	return f.dimension
}

// Search scores every row against query and returns the k nearest.
func (f *Flat) Search(query []float32, k int) ([]domain.Match, error) {
	if f.Len() == 0 {
		return nil, vectorstore.ErrEmptyIndex
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: got %d", vectorstore.ErrInvalidK, k)
	}
	if len(query) != f.dimension {
		return nil, fmt.Errorf("%w: query has %d components, index has %d", vectorstore.ErrDimensionMismatch, len(query), f.dimension)
	}

	dists := make([]float32, f.rows)
	if f.opts.ParallelThreshold > 0 && f.rows >= f.opts.ParallelThreshold && f.opts.Workers > 1 {
		f.scanParallel(query, dists)
	} else {
		f.scan(query, dists, 0, f.rows)
	}

	matches := make([]domain.Match, f.rows)
	for i, d := range dists {
		matches[i] = domain.Match{Row: i, Distance: d}
	}
	slices.SortFunc(matches, func(a, b domain.Match) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.Row, b.Row)
	})
	return matches[:min(k, f.rows)], nil
}

func (f *Flat) scan(query, dists []float32, from, to int) {
	d := f.dimension
	for i := from; i < to; i++ {
		dists[i] = squaredL2(f.data[i*d:(i+1)*d], query)
	}
}

// scanParallel splits rows into contiguous stripes; each worker writes only
// its own stripe of dists.
func (f *Flat) scanParallel(query, dists []float32) {
	workers := min(f.opts.Workers, f.rows)
	stripe := (f.rows + workers - 1) / workers
	var g errgroup.Group
	for from := 0; from < f.rows; from += stripe {
		to := min(from+stripe, f.rows)
		g.Go(func() error {
			f.scan(query, dists, from, to)
			return nil
		})
	}
	_ = g.Wait()
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return sum
}
