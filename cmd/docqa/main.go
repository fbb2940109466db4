package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"docqa/internal/answer"
	"docqa/internal/chunker"
	"docqa/internal/config"
	"docqa/internal/domain"
	"docqa/internal/embedding"
	"docqa/internal/embedding/hashing"
	"docqa/internal/embedding/openai"
	"docqa/internal/embedding/tfidf"
	"docqa/internal/extract"
	"docqa/internal/interactionlog"
	"docqa/internal/logger"
	"docqa/internal/metrics"
	"docqa/internal/pipeline"
	"docqa/internal/service"
	"docqa/internal/tui"
	"docqa/internal/vectorstore"
	"docqa/internal/vectorstore/memory"
)

func main() {
	_ = godotenv.Load()

	var cfgPath, question string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/docqa/config.yaml if not provided)")
	flag.StringVar(&question, "ask", "", "Answer one question and exit instead of opening the TUI")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Println("Usage: docqa [--config=config.yaml] [--ask=\"question\"] <document.(txt|md|csv|pdf)>")
		os.Exit(1)
	}
	doc := flag.Arg(0)

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	interactive := question == ""
	logCfg := logger.Config{Level: cfg.Log.Level, Development: cfg.Log.Development, OutputPaths: cfg.Log.OutputPaths}
	if interactive && len(logCfg.OutputPaths) == 0 {
		// stderr would corrupt the TUI
		logCfg.OutputPaths = []string{"docqa.log"}
	}
	lg, err := logger.New(logCfg)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Addr != "" {
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metricsMux(m), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				lg.Error("metrics server stopped", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		lg.Info("serving metrics", zap.String("addr", cfg.Metrics.Addr))
	}

	coord, err := assemble(cfg, lg, m)
	if err != nil {
		lg.Error("assemble pipeline", zap.Error(err))
		log.Fatalf("%v", err)
	}

	res, err := coord.Upload(ctx, doc)
	if err != nil {
		lg.Error("upload failed", zap.String("document", doc), zap.Error(err))
		log.Fatalf("upload failed: %v", err)
	}
	summary := fmt.Sprintf("%s: %d chunks indexed", filepath.Base(doc), res.Chunks)
	if res.Status == domain.StatusEmpty {
		summary = fmt.Sprintf("%s: no text found, answers will be empty", filepath.Base(doc))
	}

	if !interactive {
		resp, err := coord.Ask(ctx, question)
		if err != nil {
			log.Fatalf("ask failed: %v", err)
		}
		fmt.Println(resp.Answer)
		for i, src := range resp.Sources {
			fmt.Printf("\n[%d] %s\n", i+1, src)
		}
		return
	}

	model := tui.New(coord, "Document QA", summary, 2*time.Minute)
	if _, err := tea.NewProgram(model, tea.WithContext(ctx)).Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		log.Fatal(err)
	}
}

func metricsMux(m *metrics.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}

func assemble(cfg *config.AppConfig, lg *zap.Logger, m *metrics.Metrics) (*pipeline.Coordinator, error) {
	var ch domain.Chunker
	switch cfg.Chunker.Type {
	case "lines", "":
		ch = chunker.NewLineChunker(cfg.Chunker.GroupSize)
	default:
		return nil, fmt.Errorf("unknown chunker: %s", cfg.Chunker.Type)
	}

	var emb embedding.Embedder
	switch cfg.Embedder.Type {
	case "hashing", "":
		emb = hashing.NewEmbedder(cfg.Embedder.Dimension)
	case "tfidf":
		emb = tfidf.NewEmbedder()
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			return nil, errors.New("openai embedder config missing")
		}
		o := cfg.Embedder.OpenAI
		client, err := openai.NewClient(openai.Config{
			BaseURL:     o.BaseURL,
			APIKeyEnv:   o.APIKeyEnv,
			Model:       o.Model,
			BatchSize:   o.BatchSize,
			Parallelism: o.Parallelism,
			MaxRetries:  o.MaxRetries,
			Dimensions:  o.Dimensions,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		emb = client
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
	emb = embedding.WithTimeout(emb, time.Duration(cfg.Embedder.TimeoutSecs)*time.Second)

	var builder vectorstore.Builder
	switch cfg.Index.Type {
	case "flat", "":
		builder = memory.NewBuilder(memory.Options{
			ParallelThreshold: cfg.Index.ParallelThreshold,
			Workers:           cfg.Index.Workers,
		})
	default:
		return nil, fmt.Errorf("unknown index: %s", cfg.Index.Type)
	}

	var gen answer.Generator
	switch cfg.Answer.Type {
	case "extractive", "":
		gen = answer.NewExtractive(cfg.Answer.MaxSentences)
	case "openai":
		if cfg.Answer.OpenAI == nil {
			return nil, errors.New("openai answer config missing")
		}
		o := cfg.Answer.OpenAI
		g, err := answer.NewOpenAIGenerator(answer.OpenAIConfig{
			BaseURL:     o.BaseURL,
			APIKeyEnv:   o.APIKeyEnv,
			Model:       o.Model,
			MaxTokens:   o.MaxTokens,
			Temperature: o.Temperature,
			Stop:        o.Stop,
			HTTPClient:  &http.Client{Timeout: time.Duration(o.TimeoutSecs) * time.Second},
		}, lg)
		if err != nil {
			return nil, fmt.Errorf("openai answer init failed: %w", err)
		}
		gen = g
	default:
		return nil, fmt.Errorf("unknown answer generator: %s", cfg.Answer.Type)
	}

	retrieval := service.NewRetrievalService(ch, emb, builder, service.Options{
		Logger:  lg,
		Metrics: m,
		Cache:   cfg.Retrieval.Cache,
	})
	opts := pipeline.Options{Logger: lg, Metrics: m, TopK: cfg.Retrieval.TopK}
	if cfg.InteractionLog.Enabled {
		opts.Interactions = interactionlog.New(cfg.InteractionLog.Path)
	}
	return pipeline.NewCoordinator(extract.New(cfg.Extract.OutputDir), retrieval, gen, opts), nil
}
