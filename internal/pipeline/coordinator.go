// Package pipeline drives a document through extraction and indexing, and
// questions through retrieval, answer generation and interaction logging.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"docqa/internal/answer"
	"docqa/internal/domain"
	"docqa/internal/extract"
	"docqa/internal/interactionlog"
	"docqa/internal/metrics"
)

// ErrNoDocument is returned by Ask before a document has been uploaded.
var ErrNoDocument = errors.New("no document uploaded")

// Stage names a timed pipeline step.
type Stage string

const (
	StageIngestion  Stage = "ingestion"
	StageIndexing   Stage = "indexing"
	StageRetrieval  Stage = "retrieval"
	StageGeneration Stage = "generation"
	StageLogging    Stage = "logging"
)

// Timings holds the duration of each stage that ran.
type Timings map[Stage]time.Duration

// Total sums all stage durations.
func (t Timings) Total() time.Duration {
	var sum time.Duration
	for _, d := range t {
		sum += d
	}
	return sum
}

// Extractor converts an uploaded file into a text file.
type Extractor interface {
	Extract(ctx context.Context, src string) (string, error)
}

// Retriever indexes one document and searches it.
type Retriever interface {
	BuildIndex(ctx context.Context, path string) (domain.Status, error)
	Search(ctx context.Context, query string, k int) ([]domain.SearchResult, error)
	Chunks() []domain.Chunk
}

// InteractionLog persists answered questions.
type InteractionLog interface {
	Write(rec interactionlog.Record) error
}

// Options configures optional collaborators of a Coordinator.
type Options struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	// Interactions may be nil to disable interaction logging.
	Interactions InteractionLog
	// TopK is the number of chunks retrieved per question; <= 0 lets the
	// retriever pick its default.
	TopK int
	// OnMessage, if set, is called synchronously for every message hop.
	OnMessage func(Message)
	// NewTraceID overrides trace id generation.
	NewTraceID func() string
}

type document struct {
	path     string
	textPath string
	docType  string
	status   domain.Status
}

// Coordinator runs the upload and ask flows. Calls are serialized, so one
// coordinator serves one document session.
type Coordinator struct {
	mu           sync.Mutex
	extractor    Extractor
	retriever    Retriever
	generator    answer.Generator
	interactions InteractionLog
	log          *zap.Logger
	metrics      *metrics.Metrics
	topK         int
	onMessage    func(Message)
	newTraceID   func() string
	doc          *document
}

// NewCoordinator wires the pipeline stages.
func NewCoordinator(ex Extractor, r Retriever, gen answer.Generator, opts Options) *Coordinator {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	newID := opts.NewTraceID
	if newID == nil {
		newID = uuid.NewString
	}
	return &Coordinator{
		extractor:    ex,
		retriever:    r,
		generator:    gen,
		interactions: opts.Interactions,
		log:          log.Named("pipeline"),
		metrics:      opts.Metrics,
		topK:         opts.TopK,
		onMessage:    opts.OnMessage,
		newTraceID:   newID,
	}
}

// Upload extracts text from path and replaces the current index with it.
// A failed upload leaves the coordinator without a document.
func (c *Coordinator) Upload(ctx context.Context, path string) (BuildResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.doc = nil
	traceID := c.newTraceID()
	timings := Timings{}
	docType := extract.DocumentType(path)

	c.send(DocumentUpload{
		Envelope:     Envelope{Sender: AgentUI, Receiver: AgentIngestion, TraceID: traceID},
		FilePath:     path,
		DocumentType: docType,
	})
	var textPath string
	err := c.stage(timings, StageIngestion, traceID, func() error {
		var err error
		textPath, err = c.extractor.Extract(ctx, path)
		return err
	})
	if err != nil {
		return BuildResult{}, fmt.Errorf("ingest %s: %w", filepath.Base(path), err)
	}

	c.send(BuildRequest{
		Envelope: Envelope{Sender: AgentIngestion, Receiver: AgentRetrieval, TraceID: traceID},
		TextPath: textPath,
	})
	var status domain.Status
	err = c.stage(timings, StageIndexing, traceID, func() error {
		var err error
		status, err = c.retriever.BuildIndex(ctx, textPath)
		return err
	})
	if err != nil {
		return BuildResult{}, fmt.Errorf("index %s: %w", filepath.Base(path), err)
	}

	res := BuildResult{
		Envelope: Envelope{Sender: AgentRetrieval, Receiver: AgentUI, TraceID: traceID},
		Status:   status,
		Chunks:   len(c.retriever.Chunks()),
	}
	c.send(res)
	c.doc = &document{path: path, textPath: textPath, docType: docType, status: status}
	c.log.Info("document ready",
		zap.String("trace_id", traceID),
		zap.String("file", filepath.Base(path)),
		zap.Stringer("status", status),
		zap.Int("chunks", res.Chunks),
		zap.Duration("total", timings.Total()),
	)
	return res, nil
}

// Ask answers question from the uploaded document. An empty document
// yields answer.NoContentAnswer with no sources.
func (c *Coordinator) Ask(ctx context.Context, question string) (AnswerResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.doc == nil {
		return AnswerResponse{}, ErrNoDocument
	}
	traceID := c.newTraceID()
	timings := Timings{}

	req := RetrieveRequest{
		Envelope: Envelope{Sender: AgentUI, Receiver: AgentRetrieval, TraceID: traceID},
		Query:    question,
		K:        c.topK,
	}
	c.send(req)
	var results []domain.SearchResult
	err := c.stage(timings, StageRetrieval, traceID, func() error {
		var err error
		results, err = c.retriever.Search(ctx, req.Query, req.K)
		return err
	})
	if err != nil {
		c.record(timings, traceID, question, "", nil, err)
		return AnswerResponse{}, fmt.Errorf("retrieve: %w", err)
	}

	retrieved := RetrieveResult{
		Envelope: Envelope{Sender: AgentRetrieval, Receiver: AgentLLM, TraceID: traceID},
		Query:    question,
		Results:  results,
	}
	c.send(retrieved)
	sources := retrieved.Texts()

	text := answer.NoContentAnswer
	if len(sources) > 0 {
		err = c.stage(timings, StageGeneration, traceID, func() error {
			var err error
			text, err = c.generator.Generate(ctx, question, sources)
			return err
		})
		if err != nil {
			c.record(timings, traceID, question, "", sources, err)
			return AnswerResponse{}, fmt.Errorf("generate answer: %w", err)
		}
	}

	resp := AnswerResponse{
		Envelope: Envelope{Sender: AgentLLM, Receiver: AgentUI, TraceID: traceID},
		Question: question,
		Answer:   text,
		Sources:  sources,
		Timings:  timings,
	}
	c.send(resp)
	c.record(timings, traceID, question, text, sources, nil)
	c.log.Info("question answered",
		zap.String("trace_id", traceID),
		zap.Int("sources", len(sources)),
		zap.Duration("retrieval", timings[StageRetrieval]),
		zap.Duration("generation", timings[StageGeneration]),
		zap.Duration("total", timings.Total()),
	)
	return resp, nil
}

// Status reports the index state of the uploaded document.
func (c *Coordinator) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.doc == nil {
		return domain.StatusUninitialized
	}
	return c.doc.status
}

func (c *Coordinator) record(timings Timings, traceID, question, text string, sources []string, failure error) {
	if c.interactions == nil {
		return
	}
	rec := interactionlog.Record{
		TraceID:      traceID,
		Time:         time.Now(),
		FileName:     filepath.Base(c.doc.path),
		Question:     question,
		Answer:       text,
		Sources:      sources,
		DocumentType: c.doc.docType,
		Status:       "success",
	}
	if failure != nil {
		rec.Status = "error"
		rec.Error = failure.Error()
	}
	c.send(LogRequest{
		Envelope: Envelope{Sender: AgentCoordinator, Receiver: AgentLogging, TraceID: traceID},
		Record:   rec,
	})
	// a lost log line must not fail the question
	_ = c.stage(timings, StageLogging, traceID, func() error {
		return c.interactions.Write(rec)
	})
}

func (c *Coordinator) stage(timings Timings, s Stage, traceID string, fn func() error) error {
	start := time.Now()
	err := fn()
	d := time.Since(start)
	timings[s] = d
	c.metrics.ObserveStage(string(s), d)
	if err != nil {
		c.log.Error("stage failed", zap.String("stage", string(s)), zap.String("trace_id", traceID), zap.Duration("duration", d), zap.Error(err))
		return err
	}
	c.log.Debug("stage done", zap.String("stage", string(s)), zap.String("trace_id", traceID), zap.Duration("duration", d))
	return nil
}

func (c *Coordinator) send(m Message) {
	r := m.Route()
	c.log.Debug("message",
		zap.String("sender", r.Sender),
		zap.String("receiver", r.Receiver),
		zap.String("kind", string(m.Kind())),
		zap.String("trace_id", r.TraceID),
	)
	if c.onMessage != nil {
		c.onMessage(m)
	}
}
