package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/answer"
	"docqa/internal/chunker"
	"docqa/internal/domain"
	"docqa/internal/embedding/hashing"
	"docqa/internal/extract"
	"docqa/internal/interactionlog"
	"docqa/internal/metrics"
	"docqa/internal/service"
	"docqa/internal/vectorstore/memory"
)

type recordingGenerator struct {
	calls int
	err   error
}

func (g *recordingGenerator) Name() string { return "recording" }

func (g *recordingGenerator) Generate(ctx context.Context, query string, chunks []string) (string, error) {
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return fmt.Sprintf("%d chunks for %q", len(chunks), query), nil
}

type fixture struct {
	coord    *Coordinator
	gen      *recordingGenerator
	logPath  string
	metrics  *metrics.Metrics
	messages []Message
}

func newFixture(t *testing.T, topK int) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		gen:     &recordingGenerator{},
		logPath: filepath.Join(dir, "logs", "interactions.csv"),
		metrics: metrics.New(),
	}
	retrieval := service.NewRetrievalService(
		chunker.NewLineChunker(3),
		hashing.NewEmbedder(64),
		memory.NewBuilder(memory.Options{}),
		service.Options{},
	)
	n := 0
	f.coord = NewCoordinator(extract.New(filepath.Join(dir, "extracted")), retrieval, f.gen, Options{
		Metrics:      f.metrics,
		Interactions: interactionlog.New(f.logPath),
		TopK:         topK,
		OnMessage:    func(m Message) { f.messages = append(f.messages, m) },
		NewTraceID: func() string {
			n++
			return fmt.Sprintf("trace-%d", n)
		},
	})
	return f
}

func (f *fixture) kinds() []Kind {
	out := make([]Kind, len(f.messages))
	for i, m := range f.messages {
		out[i] = m.Kind()
	}
	return out
}

func writeDoc(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func logRows(t *testing.T, path string) [][]string {
	t.Helper()
	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close()
	rows, err := csv.NewReader(fh).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCoordinator_UploadAndAsk(t *testing.T) {
	f := newFixture(t, 2)
	lines := make([]string, 12)
	for i := range lines {
		lines[i] = fmt.Sprintf("fact %d about topic %d", i, i%4)
	}
	doc := writeDoc(t, "facts.txt", strings.Join(lines, "\n"))

	res, err := f.coord.Upload(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReady, res.Status)
	assert.Equal(t, 4, res.Chunks)
	assert.Equal(t, "trace-1", res.TraceID)
	assert.Equal(t, domain.StatusReady, f.coord.Status())

	resp, err := f.coord.Ask(context.Background(), "topic 3")
	require.NoError(t, err)
	assert.Equal(t, `2 chunks for "topic 3"`, resp.Answer)
	assert.Len(t, resp.Sources, 2)
	assert.Equal(t, "trace-2", resp.TraceID)
	assert.Contains(t, resp.Timings, StageRetrieval)
	assert.Contains(t, resp.Timings, StageGeneration)

	assert.Equal(t, []Kind{
		KindDocumentUpload, KindBuildRequest, KindBuildResult,
		KindRetrieveRequest, KindRetrieveResult, KindAnswerResponse, KindLogRequest,
	}, f.kinds())
	for _, m := range f.messages[3:] {
		assert.Equal(t, "trace-2", m.Route().TraceID)
	}
	upload := f.messages[0].(DocumentUpload)
	assert.Equal(t, AgentUI, upload.Sender)
	assert.Equal(t, AgentIngestion, upload.Receiver)
	assert.Equal(t, "txt", upload.DocumentType)

	rows := logRows(t, f.logPath)
	require.Len(t, rows, 2)
	assert.Equal(t, interactionlog.Header, rows[0])
	assert.Equal(t, "trace-2", rows[1][0])
	assert.Equal(t, "facts.txt", rows[1][2])
	assert.Equal(t, "topic 3", rows[1][3])
	assert.Equal(t, "success", rows[1][7])

	count, err := testutil.GatherAndCount(f.metrics.Registry(), "docqa_pipeline_stage_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestCoordinator_EmptyDocument(t *testing.T) {
	f := newFixture(t, 5)
	res, err := f.coord.Upload(context.Background(), writeDoc(t, "blank.md", "\n \n\n"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEmpty, res.Status)
	assert.Zero(t, res.Chunks)

	resp, err := f.coord.Ask(context.Background(), "anything there?")
	require.NoError(t, err)
	assert.Equal(t, answer.NoContentAnswer, resp.Answer)
	assert.Empty(t, resp.Sources)
	assert.Zero(t, f.gen.calls)
	assert.NotContains(t, resp.Timings, StageGeneration)
}

func TestCoordinator_AskBeforeUpload(t *testing.T) {
	f := newFixture(t, 3)
	_, err := f.coord.Ask(context.Background(), "q")
	assert.ErrorIs(t, err, ErrNoDocument)
	assert.Empty(t, f.messages)
}

func TestCoordinator_FailedUploadClearsDocument(t *testing.T) {
	f := newFixture(t, 3)
	_, err := f.coord.Upload(context.Background(), writeDoc(t, "ok.txt", "some text"))
	require.NoError(t, err)

	_, err = f.coord.Upload(context.Background(), writeDoc(t, "deck.pptx", "binary"))
	assert.ErrorIs(t, err, extract.ErrUnsupportedType)
	assert.Equal(t, domain.StatusUninitialized, f.coord.Status())

	_, err = f.coord.Ask(context.Background(), "q")
	assert.ErrorIs(t, err, ErrNoDocument)
}

func TestCoordinator_GeneratorErrorIsLogged(t *testing.T) {
	f := newFixture(t, 3)
	boom := errors.New("generator down")
	f.gen.err = boom
	_, err := f.coord.Upload(context.Background(), writeDoc(t, "doc.csv", "a,b\nc,d\n"))
	require.NoError(t, err)

	_, err = f.coord.Ask(context.Background(), "a")
	assert.ErrorIs(t, err, boom)

	rows := logRows(t, f.logPath)
	require.Len(t, rows, 2)
	assert.Equal(t, "error", rows[1][7])
	assert.Equal(t, "generator down", rows[1][8])
	assert.Equal(t, "csv", rows[1][6])
}

func TestRetrieveResult_Texts(t *testing.T) {
	r := RetrieveResult{Results: []domain.SearchResult{
		{Chunk: domain.Chunk{Index: 2, Text: "b"}},
		{Chunk: domain.Chunk{Index: 0, Text: "a"}},
	}}
	assert.Equal(t, []string{"b", "a"}, r.Texts())
	assert.Empty(t, RetrieveResult{}.Texts())
}
