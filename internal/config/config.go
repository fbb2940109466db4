package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string   `yaml:"level"`
	Development bool     `yaml:"development"`
	OutputPaths []string `yaml:"output_paths,omitempty"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type      string `yaml:"type"`
	GroupSize int    `yaml:"group_size"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	BatchSize   int    `yaml:"batch_size"`
	Parallelism int    `yaml:"parallelism"`
	MaxRetries  int    `yaml:"max_retries"`
	Dimensions  int    `yaml:"dimensions,omitempty"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type        string                `yaml:"type"`
	Dimension   int                   `yaml:"dimension"`
	TimeoutSecs int                   `yaml:"timeout_secs"`
	OpenAI      *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// IndexConfig selects and configures the vector index.
type IndexConfig struct {
	Type              string `yaml:"type"`
	ParallelThreshold int    `yaml:"parallel_threshold"`
	Workers           int    `yaml:"workers"`
}

// RetrievalConfig configures query-time retrieval.
type RetrievalConfig struct {
	TopK  int  `yaml:"top_k"`
	Cache bool `yaml:"cache"`
}

// OpenAIChatConfig holds configuration for the chat-completion answerer.
type OpenAIChatConfig struct {
	BaseURL     string   `yaml:"base_url"`
	APIKeyEnv   string   `yaml:"api_key_env"`
	Model       string   `yaml:"model"`
	MaxTokens   int      `yaml:"max_tokens"`
	Temperature float32  `yaml:"temperature"`
	Stop        []string `yaml:"stop,omitempty"`
	TimeoutSecs int      `yaml:"timeout_secs"`
}

// AnswerConfig selects and configures the answer generator.
type AnswerConfig struct {
	Type         string            `yaml:"type"`
	MaxSentences int               `yaml:"max_sentences"`
	OpenAI       *OpenAIChatConfig `yaml:"openai,omitempty"`
}

// ExtractConfig configures document text extraction.
type ExtractConfig struct {
	OutputDir string `yaml:"output_dir"`
}

// InteractionLogConfig configures the CSV interaction log.
type InteractionLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MetricsConfig configures the prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Log            LogConfig            `yaml:"log"`
	Chunker        ChunkerConfig        `yaml:"chunker"`
	Embedder       EmbedderConfig       `yaml:"embedder"`
	Index          IndexConfig          `yaml:"index"`
	Retrieval      RetrievalConfig      `yaml:"retrieval"`
	Answer         AnswerConfig         `yaml:"answer"`
	Extract        ExtractConfig        `yaml:"extract"`
	InteractionLog InteractionLogConfig `yaml:"interaction_log"`
	Metrics        MetricsConfig        `yaml:"metrics"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/docqa/config.yaml.
// If neither exists, it writes defaults to ~/.config/docqa/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "docqa", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "lines"
	}
	if cfg.Chunker.GroupSize <= 0 {
		cfg.Chunker.GroupSize = 3
	}

	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	if cfg.Embedder.Dimension <= 0 {
		cfg.Embedder.Dimension = 384
	}
	if cfg.Embedder.TimeoutSecs == 0 {
		cfg.Embedder.TimeoutSecs = 30
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		o := cfg.Embedder.OpenAI
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "text-embedding-3-small"
		}
		if o.BatchSize == 0 {
			o.BatchSize = 32
		}
		if o.Parallelism == 0 {
			o.Parallelism = 4
		}
		if o.MaxRetries == 0 {
			o.MaxRetries = 2
		}
	}

	if cfg.Index.Type == "" {
		cfg.Index.Type = "flat"
	}
	if cfg.Index.ParallelThreshold == 0 {
		cfg.Index.ParallelThreshold = 4096
	}
	if cfg.Retrieval.TopK <= 0 {
		cfg.Retrieval.TopK = 10
	}

	if cfg.Answer.Type == "" {
		cfg.Answer.Type = "extractive"
	}
	if cfg.Answer.MaxSentences <= 0 {
		cfg.Answer.MaxSentences = 3
	}
	if cfg.Answer.Type == "openai" {
		if cfg.Answer.OpenAI == nil {
			cfg.Answer.OpenAI = &OpenAIChatConfig{}
		}
		o := cfg.Answer.OpenAI
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "gpt-4o-mini"
		}
		if o.MaxTokens == 0 {
			o.MaxTokens = 200
		}
		if o.Temperature == 0 {
			o.Temperature = 0.3
		}
		if o.Stop == nil {
			o.Stop = []string{"</s>", "Question:"}
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 60
		}
	}

	if cfg.Extract.OutputDir == "" {
		cfg.Extract.OutputDir = "extracted_data"
	}
	if cfg.InteractionLog.Path == "" {
		cfg.InteractionLog.Path = filepath.Join("logs", "interaction_logs.csv")
	}
}
