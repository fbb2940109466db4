package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"docqa/internal/chunker"
	"docqa/internal/domain"
	"docqa/internal/embedding"
	"docqa/internal/metrics"
	"docqa/internal/vectorstore"
)

// DefaultTopK is used when Retrieve is called with k <= 0.
const DefaultTopK = 10

// ErrIndexNotReady is returned by Retrieve before any successful build.
var ErrIndexNotReady = errors.New("retrieval index not built")

// Reasons attached to empty-document warnings.
const (
	ReasonNoLines      = "no_lines"
	ReasonNoChunks     = "no_chunks"
	ReasonNoEmbeddings = "no_embeddings"
)

// Options configures optional collaborators of a RetrievalService.
type Options struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	// Cache reuses the current index when the next build reads byte-identical
	// text. Any other document replaces it.
	Cache bool
}

// State is the index state of one document. It is replaced wholesale by
// every build.
type State struct {
	Status domain.Status
	Path   string
	Hash   string
	Chunks []domain.Chunk
	Index  vectorstore.Index
}

// RetrievalService builds a per-document index and answers top-k queries on
// it. All methods are serialized, so one service backs one document session.
type RetrievalService struct {
	mu       sync.Mutex
	chunker  domain.Chunker
	embedder embedding.Embedder
	builder  vectorstore.Builder
	log      *zap.Logger
	metrics  *metrics.Metrics
	cache    bool
	state    State
}

// NewRetrievalService wires the chunker, embedder and index builder.
func NewRetrievalService(ch domain.Chunker, emb embedding.Embedder, builder vectorstore.Builder, opts Options) *RetrievalService {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &RetrievalService{
		chunker:  ch,
		embedder: emb,
		builder:  builder,
		log:      log.Named("retrieval"),
		metrics:  opts.Metrics,
		cache:    opts.Cache,
	}
}

// BuildIndex reads the extracted text at path and replaces the current
// index with one built from it. Documents with nothing to index produce
// StatusEmpty and a nil error. On error the service is left uninitialized.
func (s *RetrievalService) BuildIndex(ctx context.Context, path string) (domain.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()

	data, err := os.ReadFile(path)
	if err != nil {
		return s.fail(start, fmt.Errorf("read extracted text: %w", err))
	}
	hash := contentHash(data)
	if s.cache && s.state.Status != domain.StatusUninitialized && s.state.Hash == hash {
		s.log.Debug("index cache hit", zap.String("path", path), zap.Stringer("status", s.state.Status))
		s.metrics.ObserveBuild("cached", len(s.state.Chunks), time.Since(start))
		s.state.Path = path
		return s.state.Status, nil
	}
	s.state = State{}

	lines, err := chunker.SplitLines(bytes.NewReader(data))
	if err != nil {
		return s.fail(start, fmt.Errorf("split extracted text: %w", err))
	}
	if len(lines) == 0 {
		return s.empty(start, path, hash, ReasonNoLines), nil
	}
	chunks := s.chunker.Chunk(lines)
	if len(chunks) == 0 {
		return s.empty(start, path, hash, ReasonNoChunks), nil
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	if err := s.embedder.Prepare(ctx, texts); err != nil {
		return s.fail(start, embedding.Failure(s.embedder.Name(), err))
	}
	vectors, err := s.embedder.EmbedChunks(ctx, texts)
	if err != nil {
		return s.fail(start, embedding.Failure(s.embedder.Name(), err))
	}
	if len(vectors) == 0 {
		return s.empty(start, path, hash, ReasonNoEmbeddings), nil
	}
	if len(vectors) != len(chunks) {
		return s.fail(start, fmt.Errorf("%w: %s returned %d rows for %d chunks",
			vectorstore.ErrDimensionMismatch, s.embedder.Name(), len(vectors), len(chunks)))
	}

	index, err := s.builder.Build(vectors)
	if err != nil {
		return s.fail(start, fmt.Errorf("build index: %w", err))
	}
	if index == nil || index.Len() == 0 {
		return s.empty(start, path, hash, ReasonNoEmbeddings), nil
	}

	s.state = State{
		Status: domain.StatusReady,
		Path:   path,
		Hash:   hash,
		Chunks: chunks,
		Index:  index,
	}
	elapsed := time.Since(start)
	s.metrics.ObserveBuild(domain.StatusReady.String(), len(chunks), elapsed)
	s.log.Info("index built",
		zap.String("path", path),
		zap.Int("chunks", len(chunks)),
		zap.Int("dimension", index.Dimension()),
		zap.String("embedder", s.embedder.Name()),
		zap.Duration("duration", elapsed),
	)
	return domain.StatusReady, nil
}

// Retrieve returns the texts of the k chunks nearest to query, nearest
// first. An empty document yields an empty slice and a nil error.
func (s *RetrievalService) Retrieve(ctx context.Context, query string, k int) ([]string, error) {
	results, err := s.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Chunk.Text
	}
	return texts, nil
}

// Search is Retrieve with chunk positions and distances attached.
func (s *RetrievalService) Search(ctx context.Context, query string, k int) ([]domain.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()

	switch s.state.Status {
	case domain.StatusUninitialized:
		s.metrics.ObserveRetrieve("error", time.Since(start))
		return nil, ErrIndexNotReady
	case domain.StatusEmpty:
		s.metrics.ObserveRetrieve("empty", time.Since(start))
		return []domain.SearchResult{}, nil
	}
	if k <= 0 {
		k = DefaultTopK
	}

	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		s.metrics.ObserveRetrieve("error", time.Since(start))
		return nil, embedding.Failure(s.embedder.Name(), err)
	}
	matches, err := s.state.Index.Search(vec, k)
	if err != nil {
		s.metrics.ObserveRetrieve("error", time.Since(start))
		return nil, fmt.Errorf("search index: %w", err)
	}

	results := make([]domain.SearchResult, 0, len(matches))
	for _, m := range matches {
		if m.Row < 0 || m.Row >= len(s.state.Chunks) {
			continue
		}
		results = append(results, domain.SearchResult{Chunk: s.state.Chunks[m.Row], Distance: m.Distance})
	}
	s.metrics.ObserveRetrieve("hit", time.Since(start))
	s.log.Debug("retrieved", zap.Int("k", k), zap.Int("results", len(results)))
	return results, nil
}

// Status reports the lifecycle state of the current index.
func (s *RetrievalService) Status() domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Status
}

// Chunks returns a copy of the current chunk sequence.
func (s *RetrievalService) Chunks() []domain.Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Chunk, len(s.state.Chunks))
	copy(out, s.state.Chunks)
	return out
}

func (s *RetrievalService) empty(start time.Time, path, hash, reason string) domain.Status {
	s.state = State{Status: domain.StatusEmpty, Path: path, Hash: hash}
	s.metrics.ObserveBuild(domain.StatusEmpty.String(), 0, time.Since(start))
	s.log.Warn("empty document, nothing to index", zap.String("path", path), zap.String("reason", reason))
	return domain.StatusEmpty
}

func (s *RetrievalService) fail(start time.Time, err error) (domain.Status, error) {
	s.state = State{}
	s.metrics.ObserveBuild("error", 0, time.Since(start))
	return domain.StatusUninitialized, err
}

func contentHash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
