package answer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIConfig configures the chat-completion generator.
type OpenAIConfig struct {
	BaseURL     string
	APIKeyEnv   string
	Model       string
	MaxTokens   int
	Temperature float32
	Stop        []string
	HTTPClient  *http.Client
}

// OpenAIGenerator asks an OpenAI-compatible chat model to answer from the
// retrieved context.
type OpenAIGenerator struct {
	api         *goopenai.Client
	model       string
	maxTokens   int
	temperature float32
	stop        []string
	log         *zap.Logger
}

// NewOpenAIGenerator creates a chat generator. The API key is read from
// the environment variable named by cfg.APIKeyEnv.
func NewOpenAIGenerator(cfg OpenAIConfig, log *zap.Logger) (*OpenAIGenerator, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = goopenai.GPT4oMini
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 200
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.3
	}
	if cfg.Stop == nil {
		cfg.Stop = []string{"</s>", "Question:"}
	}
	if log == nil {
		log = zap.NewNop()
	}
	apiCfg := goopenai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		apiCfg.HTTPClient = cfg.HTTPClient
	}
	return &OpenAIGenerator{
		api:         goopenai.NewClientWithConfig(apiCfg),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		stop:        cfg.Stop,
		log:         log.Named("answer"),
	}, nil
}

// Name returns the identifier of this generator.
func (g *OpenAIGenerator) Name() string { return "openai" }

// Generate sends the prompt to the chat model. Provider failures do not
// fail the request: the answer text becomes "[LLM Error] <message>" and
// the error is logged. Context cancellation is returned as an error.
func (g *OpenAIGenerator) Generate(ctx context.Context, query string, chunks []string) (string, error) {
	if len(chunks) == 0 {
		return NoContentAnswer, nil
	}
	prompt := BuildPrompt(query, chunks)
	g.log.Debug("prompt", zap.Int("chunks", len(chunks)), zap.Int("bytes", len(prompt)))

	resp, err := g.api.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: g.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
		Stop:        g.stop,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		g.log.Error("chat completion failed", zap.String("model", g.model), zap.Error(err))
		return llmError(err), nil
	}
	if len(resp.Choices) == 0 {
		err := errors.New("empty completion")
		g.log.Error("chat completion failed", zap.String("model", g.model), zap.Error(err))
		return llmError(err), nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func llmError(err error) string {
	return "[LLM Error] " + err.Error()
}
