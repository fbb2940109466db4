package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"docqa/internal/chunker"
	"docqa/internal/domain"
	"docqa/internal/embedding"
	"docqa/internal/embedding/hashing"
	"docqa/internal/metrics"
	"docqa/internal/vectorstore"
	"docqa/internal/vectorstore/memory"
)

// countingEmbedder wraps a real embedder and counts batch calls.
type countingEmbedder struct {
	embedding.Embedder
	batches int
}

func (c *countingEmbedder) EmbedChunks(ctx context.Context, texts []string) ([][]float32, error) {
	c.batches++
	return c.Embedder.EmbedChunks(ctx, texts)
}

type stubEmbedder struct {
	chunks   func(texts []string) ([][]float32, error)
	query    func(text string) ([]float32, error)
	prepared []string
}

func (s *stubEmbedder) Name() string { return "stub" }

func (s *stubEmbedder) Prepare(ctx context.Context, corpus []string) error {
	s.prepared = corpus
	return nil
}

func (s *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if s.query != nil {
		return s.query(text)
	}
	return []float32{0, 0}, nil
}

func (s *stubEmbedder) EmbedChunks(ctx context.Context, texts []string) ([][]float32, error) {
	return s.chunks(texts)
}

func writeText(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "extracted.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func distinctLines(n int) []string {
	topics := []string{"solar", "river", "granite", "violin", "harvest", "glacier", "market", "orbit", "forest", "engine"}
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("%s note %d describes item %d", topics[i%len(topics)], i, i*7)
	}
	return lines
}

func newService(emb embedding.Embedder, opts Options) *RetrievalService {
	return NewRetrievalService(chunker.NewLineChunker(3), emb, memory.NewBuilder(memory.Options{}), opts)
}

func TestRetrieve_BeforeBuild(t *testing.T) {
	svc := newService(hashing.NewEmbedder(32), Options{})
	assert.Equal(t, domain.StatusUninitialized, svc.Status())

	_, err := svc.Retrieve(context.Background(), "anything", 5)
	assert.ErrorIs(t, err, ErrIndexNotReady)
}

func TestBuildIndex_EmptyFile(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	m := metrics.New()
	svc := newService(hashing.NewEmbedder(32), Options{Logger: zap.New(core), Metrics: m})

	status, err := svc.BuildIndex(context.Background(), writeText(t, ""))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEmpty, status)

	got, err := svc.Retrieve(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, ReasonNoLines, entries[0].ContextMap()["reason"])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Builds().WithLabelValues("empty")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Retrievals().WithLabelValues("empty")))
}

func TestBuildIndex_BlankLinesOnly(t *testing.T) {
	svc := newService(hashing.NewEmbedder(32), Options{})
	status, err := svc.BuildIndex(context.Background(), writeText(t, "\n   \n\t\t\n\n"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEmpty, status)

	for _, k := range []int{0, 1, 5, 1000} {
		got, err := svc.Retrieve(context.Background(), "query", k)
		require.NoError(t, err)
		assert.Empty(t, got)
	}
}

func TestBuildIndex_ZeroRowEmbeddings(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	emb := &stubEmbedder{chunks: func(texts []string) ([][]float32, error) { return [][]float32{}, nil }}
	svc := newService(emb, Options{Logger: zap.New(core)})

	status, err := svc.BuildIndex(context.Background(), writeText(t, "a\nb\n"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEmpty, status)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, ReasonNoEmbeddings, logs.All()[0].ContextMap()["reason"])
}

func TestBuildIndex_ThirtyLines(t *testing.T) {
	lines := distinctLines(30)
	svc := newService(hashing.NewEmbedder(128), Options{})
	status, err := svc.BuildIndex(context.Background(), writeText(t, strings.Join(lines, "\n")))
	require.NoError(t, err)
	require.Equal(t, domain.StatusReady, status)

	chunks := svc.Chunks()
	require.Len(t, chunks, 10)
	assert.Equal(t, strings.Join(lines[12:15], " "), chunks[4].Text)

	results, err := svc.Search(context.Background(), chunks[4].Text, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, 4, results[0].Chunk.Index)
	assert.InDelta(t, 0, results[0].Distance, 1e-5)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i-1].Distance, results[i].Distance)
	}

	texts, err := svc.Retrieve(context.Background(), chunks[4].Text, 3)
	require.NoError(t, err)
	require.Len(t, texts, 3)
	for i := range texts {
		assert.Equal(t, results[i].Chunk.Text, texts[i])
	}
}

func TestRetrieve_KLargerThanChunks(t *testing.T) {
	svc := newService(hashing.NewEmbedder(64), Options{})
	_, err := svc.BuildIndex(context.Background(), writeText(t, strings.Join(distinctLines(30), "\n")))
	require.NoError(t, err)

	got, err := svc.Retrieve(context.Background(), "glacier orbit", 100)
	require.NoError(t, err)
	require.Len(t, got, 10)

	want := map[string]int{}
	for _, ch := range svc.Chunks() {
		want[ch.Text] = 1
	}
	seen := map[string]int{}
	for _, text := range got {
		seen[text]++
	}
	assert.Equal(t, want, seen)
}

func TestRetrieve_DefaultK(t *testing.T) {
	svc := newService(hashing.NewEmbedder(64), Options{})
	_, err := svc.BuildIndex(context.Background(), writeText(t, strings.Join(distinctLines(45), "\n")))
	require.NoError(t, err)

	got, err := svc.Retrieve(context.Background(), "market", 0)
	require.NoError(t, err)
	assert.Len(t, got, DefaultTopK)
}

func TestBuildIndex_Deterministic(t *testing.T) {
	path := writeText(t, strings.Join(distinctLines(20), "\n"))
	a := newService(hashing.NewEmbedder(64), Options{})
	b := newService(hashing.NewEmbedder(64), Options{})
	_, err := a.BuildIndex(context.Background(), path)
	require.NoError(t, err)
	_, err = b.BuildIndex(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, a.Chunks(), b.Chunks())

	r1, err := a.Retrieve(context.Background(), "violin harvest", 4)
	require.NoError(t, err)
	r2, err := a.Retrieve(context.Background(), "violin harvest", 4)
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
}

func TestBuildIndex_ModelFailure(t *testing.T) {
	boom := errors.New("runtime crashed")
	fail := false
	emb := &stubEmbedder{chunks: func(texts []string) ([][]float32, error) {
		if fail {
			return nil, boom
		}
		rows := make([][]float32, len(texts))
		for i := range rows {
			rows[i] = []float32{float32(i), 0}
		}
		return rows, nil
	}}
	svc := newService(emb, Options{})

	path := writeText(t, "one\ntwo\nthree\nfour\n")
	_, err := svc.BuildIndex(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, domain.StatusReady, svc.Status())

	fail = true
	status, err := svc.BuildIndex(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, embedding.ErrModelFailure)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, domain.StatusUninitialized, status)

	// the previous index is gone
	_, err = svc.Retrieve(context.Background(), "one", 1)
	assert.ErrorIs(t, err, ErrIndexNotReady)
}

func TestRetrieve_QueryModelFailure(t *testing.T) {
	emb := &stubEmbedder{
		chunks: func(texts []string) ([][]float32, error) { return [][]float32{{1, 0}}, nil },
		query:  func(string) ([]float32, error) { return nil, errors.New("oom") },
	}
	svc := newService(emb, Options{})
	_, err := svc.BuildIndex(context.Background(), writeText(t, "only line"))
	require.NoError(t, err)

	_, err = svc.Retrieve(context.Background(), "q", 1)
	assert.ErrorIs(t, err, embedding.ErrModelFailure)
}

func TestBuildIndex_RaggedEmbeddings(t *testing.T) {
	emb := &stubEmbedder{chunks: func(texts []string) ([][]float32, error) {
		return [][]float32{{1, 2, 3}, {1, 2}}, nil
	}}
	svc := newService(emb, Options{})

	_, err := svc.BuildIndex(context.Background(), writeText(t, "a\nb\nc\nd\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
	assert.NotErrorIs(t, err, embedding.ErrModelFailure)
	assert.Equal(t, domain.StatusUninitialized, svc.Status())
}

func TestBuildIndex_RowCountMismatch(t *testing.T) {
	emb := &stubEmbedder{chunks: func(texts []string) ([][]float32, error) {
		return [][]float32{{1}}, nil
	}}
	svc := newService(emb, Options{})

	_, err := svc.BuildIndex(context.Background(), writeText(t, "a\nb\nc\nd\n"))
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
}

func TestBuildIndex_PreparesWithChunkTexts(t *testing.T) {
	emb := &stubEmbedder{chunks: func(texts []string) ([][]float32, error) {
		return [][]float32{{1}, {2}}, nil
	}}
	svc := newService(emb, Options{})
	_, err := svc.BuildIndex(context.Background(), writeText(t, "A\nB\nC\nD\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"A B C", "D"}, emb.prepared)
}

func TestBuildIndex_MissingFile(t *testing.T) {
	svc := newService(hashing.NewEmbedder(8), Options{})
	_, err := svc.BuildIndex(context.Background(), filepath.Join(t.TempDir(), "nope.txt"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.NotErrorIs(t, err, embedding.ErrModelFailure)
}

func TestBuildIndex_RebuildReplacesDocument(t *testing.T) {
	svc := newService(hashing.NewEmbedder(64), Options{})
	_, err := svc.BuildIndex(context.Background(), writeText(t, strings.Join(distinctLines(9), "\n")))
	require.NoError(t, err)
	require.Len(t, svc.Chunks(), 3)

	status, err := svc.BuildIndex(context.Background(), writeText(t, "fresh content only"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReady, status)
	got, err := svc.Retrieve(context.Background(), "anything", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh content only"}, got)

	status, err = svc.BuildIndex(context.Background(), writeText(t, "\n\n"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEmpty, status)
	assert.Empty(t, svc.Chunks())
}

func TestBuildIndex_Cache(t *testing.T) {
	content := strings.Join(distinctLines(12), "\n")

	emb := &countingEmbedder{Embedder: hashing.NewEmbedder(32)}
	svc := newService(emb, Options{Cache: true})
	first := writeText(t, content)
	second := writeText(t, content)

	_, err := svc.BuildIndex(context.Background(), first)
	require.NoError(t, err)
	_, err = svc.BuildIndex(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, 1, emb.batches)

	_, err = svc.BuildIndex(context.Background(), writeText(t, content+"\nextra line"))
	require.NoError(t, err)
	assert.Equal(t, 2, emb.batches)

	// the earlier document is no longer cached
	_, err = svc.BuildIndex(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, 3, emb.batches)
}

func TestBuildIndex_NoCacheAlwaysRebuilds(t *testing.T) {
	emb := &countingEmbedder{Embedder: hashing.NewEmbedder(32)}
	svc := newService(emb, Options{})
	path := writeText(t, "same\ntext\n")

	for range 3 {
		_, err := svc.BuildIndex(context.Background(), path)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, emb.batches)
}
