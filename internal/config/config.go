package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"

	"studyrag/internal/vectorstore"
)

// EnvPrefix namespaces the environment overrides, e.g. STUDYRAG_EMBEDDER_TYPE.
const EnvPrefix = "STUDYRAG_"

// ChunkerConfig configures how text blocks are split into chunks.
type ChunkerConfig struct {
	ChunkSize  int      `yaml:"chunk_size" env:"CHUNK_SIZE"`
	Overlap    int      `yaml:"overlap" env:"OVERLAP"`
	Separators []string `yaml:"separators,omitempty"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url,omitempty" env:"BASE_URL"`
	APIKeyEnv   string `yaml:"api_key_env,omitempty" env:"API_KEY_ENV"`
	Model       string `yaml:"model,omitempty" env:"MODEL"`
	TimeoutSecs int    `yaml:"timeout_secs,omitempty" env:"TIMEOUT_SECS"`
}

// OllamaEmbedderConfig holds configuration for a local Ollama server.
type OllamaEmbedderConfig struct {
	URL         string `yaml:"url,omitempty" env:"URL"`
	Model       string `yaml:"model,omitempty" env:"MODEL"`
	TimeoutSecs int    `yaml:"timeout_secs,omitempty" env:"TIMEOUT_SECS"`
}

type BreakerConfig struct {
	FailThreshold int `yaml:"fail_threshold" env:"FAIL_THRESHOLD"`
	CooldownSecs  int `yaml:"cooldown_secs" env:"COOLDOWN_SECS"`
}

// RateLimitConfig bounds remote embedding calls. PerSecond <= 0 disables the limit.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second" env:"PER_SECOND"`
	Burst     int     `yaml:"burst" env:"BURST"`
}

// EmbedderConfig selects and configures the embedding provider.
type EmbedderConfig struct {
	Type           string               `yaml:"type" env:"TYPE"`
	Dimension      int                  `yaml:"dimension" env:"DIMENSION"`
	DocumentPrefix string               `yaml:"document_prefix,omitempty" env:"DOCUMENT_PREFIX"`
	QueryPrefix    string               `yaml:"query_prefix,omitempty" env:"QUERY_PREFIX"`
	Workers        int                  `yaml:"workers" env:"WORKERS"`
	OpenAI         OpenAIEmbedderConfig `yaml:"openai,omitempty" envPrefix:"OPENAI_"`
	Ollama         OllamaEmbedderConfig `yaml:"ollama,omitempty" envPrefix:"OLLAMA_"`
	Breaker        BreakerConfig        `yaml:"breaker" envPrefix:"BREAKER_"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit" envPrefix:"RATE_LIMIT_"`
}

// QdrantConfig contains connection details for a Qdrant server (gRPC port).
type QdrantConfig struct {
	Addr        string `yaml:"addr,omitempty" env:"ADDR"`
	APIKey      string `yaml:"api_key,omitempty" env:"API_KEY"`
	TimeoutSecs int    `yaml:"timeout_secs,omitempty" env:"TIMEOUT_SECS"`
}

// VectorStoreConfig selects where collections are persisted and the metric
// used for new indexes.
type VectorStoreConfig struct {
	Type   string       `yaml:"type" env:"TYPE"`
	Dir    string       `yaml:"dir,omitempty" env:"DIR"`
	Metric string       `yaml:"metric" env:"METRIC"`
	Qdrant QdrantConfig `yaml:"qdrant,omitempty" envPrefix:"QDRANT_"`
}

type RetrievalConfig struct {
	TopK       int    `yaml:"top_k" env:"TOP_K"`
	Collection string `yaml:"collection" env:"COLLECTION"`
}

// GeneratorConfig configures the optional answer generator.
type GeneratorConfig struct {
	Type               string  `yaml:"type" env:"TYPE"`
	BaseURL            string  `yaml:"base_url,omitempty" env:"BASE_URL"`
	APIKeyEnv          string  `yaml:"api_key_env,omitempty" env:"API_KEY_ENV"`
	Model              string  `yaml:"model,omitempty" env:"MODEL"`
	Temperature        float32 `yaml:"temperature,omitempty" env:"TEMPERATURE"`
	MaxTokens          int     `yaml:"max_tokens,omitempty" env:"MAX_TOKENS"`
	TimeoutSecs        int     `yaml:"timeout_secs,omitempty" env:"TIMEOUT_SECS"`
	PromptTemplatePath string  `yaml:"prompt_template_path,omitempty" env:"PROMPT_TEMPLATE_PATH"`
}

// EventsConfig enables NATS notifications when NATSURL is set.
type EventsConfig struct {
	NATSURL       string `yaml:"nats_url,omitempty" env:"NATS_URL"`
	SubjectPrefix string `yaml:"subject_prefix" env:"SUBJECT_PREFIX"`
}

// LogConfig configures the slog handler. An empty File logs next to the
// user config file so the terminal UI stays clean.
type LogConfig struct {
	Level string `yaml:"level" env:"LEVEL"`
	File  string `yaml:"file,omitempty" env:"FILE"`
}

type SummarizerConfig struct {
	MaxSentences int `yaml:"max_sentences" env:"MAX_SENTENCES"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Chunker     ChunkerConfig     `yaml:"chunker" envPrefix:"CHUNKER_"`
	Embedder    EmbedderConfig    `yaml:"embedder" envPrefix:"EMBEDDER_"`
	VectorStore VectorStoreConfig `yaml:"vector_store" envPrefix:"VECTOR_STORE_"`
	Retrieval   RetrievalConfig   `yaml:"retrieval" envPrefix:"RETRIEVAL_"`
	Generator   GeneratorConfig   `yaml:"generator" envPrefix:"GENERATOR_"`
	Events      EventsConfig      `yaml:"events" envPrefix:"EVENTS_"`
	Summarizer  SummarizerConfig  `yaml:"summarizer" envPrefix:"SUMMARIZER_"`
	Log         LogConfig         `yaml:"log" envPrefix:"LOG_"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Environment variables override file values.
func Load(path string) (*AppConfig, error) {
	return load(path, nil)
}

// load takes an explicit environment so tests need not touch the process env.
// A nil environ means the process environment.
func load(path string, environ map[string]string) (*AppConfig, error) {
	cfg := &AppConfig{}
	overlapSet := false
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		var probe struct {
			Chunker struct {
				Overlap *int `yaml:"overlap"`
			} `yaml:"chunker"`
		}
		_ = yaml.Unmarshal(data, &probe)
		overlapSet = probe.Chunker.Overlap != nil
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix, Environment: environ}); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}
	if lookupEnv(environ, EnvPrefix+"CHUNKER_OVERLAP") {
		overlapSet = true
	}
	applyConfigDefaults(cfg)
	// 0 is a valid overlap, so only an absent key gets the default
	if !overlapSet {
		cfg.Chunker.Overlap = defaultOverlap(cfg.Chunker.ChunkSize)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/studyrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/studyrag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := DefaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	if err := Save(userPath, defaultConfig()); err != nil {
		return nil, "", err
	}
	cfg, err := Load(userPath)
	return cfg, userPath, err
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

func DefaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "studyrag", "config.yaml"), nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "studyrag-data"
	}
	return filepath.Join(home, ".local", "share", "studyrag", "collections")
}

func lookupEnv(environ map[string]string, key string) bool {
	if environ == nil {
		_, ok := os.LookupEnv(key)
		return ok
	}
	_, ok := environ[key]
	return ok
}

// defaultOverlap is 200 runes, or a fifth of chunkSize when 200 would not fit.
func defaultOverlap(chunkSize int) int {
	if chunkSize > 200 {
		return 200
	}
	return chunkSize / 5
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Chunker:     ChunkerConfig{ChunkSize: 1000, Overlap: 200},
		Embedder:    EmbedderConfig{Type: "deterministic", Dimension: 384, Workers: 4},
		VectorStore: VectorStoreConfig{Type: "fs", Metric: "cosine"},
		Retrieval:   RetrievalConfig{TopK: 4, Collection: "default"},
		Generator:   GeneratorConfig{Type: "none"},
		Summarizer:  SummarizerConfig{MaxSentences: 3},
		Log:         LogConfig{Level: "info"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 1000
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "deterministic"
	}
	if cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = 384
	}
	if cfg.Embedder.Workers == 0 {
		cfg.Embedder.Workers = 4
	}
	if cfg.Embedder.Breaker.FailThreshold == 0 {
		cfg.Embedder.Breaker.FailThreshold = 3
	}
	if cfg.Embedder.Breaker.CooldownSecs == 0 {
		cfg.Embedder.Breaker.CooldownSecs = 30
	}
	if cfg.Embedder.RateLimit.Burst == 0 {
		cfg.Embedder.RateLimit.Burst = 1
	}
	switch cfg.Embedder.Type {
	case "openai":
		o := &cfg.Embedder.OpenAI
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "text-embedding-3-small"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 30
		}
	case "ollama":
		o := &cfg.Embedder.Ollama
		if o.URL == "" {
			o.URL = "http://localhost:11434/api"
		}
		if o.Model == "" {
			o.Model = "nomic-embed-text"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 30
		}
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "fs"
	}
	if cfg.VectorStore.Dir == "" && cfg.VectorStore.Type != "qdrant" {
		cfg.VectorStore.Dir = defaultDataDir()
	}
	if cfg.VectorStore.Metric == "" {
		cfg.VectorStore.Metric = "cosine"
	}
	if cfg.VectorStore.Type == "qdrant" {
		if cfg.VectorStore.Qdrant.Addr == "" {
			cfg.VectorStore.Qdrant.Addr = "localhost:6334"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 10
		}
	}

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 4
	}
	if cfg.Retrieval.Collection == "" {
		cfg.Retrieval.Collection = "default"
	}
	if cfg.Generator.Type == "" {
		cfg.Generator.Type = "none"
	}
	if cfg.Generator.Type == "openai" {
		if cfg.Generator.APIKeyEnv == "" {
			cfg.Generator.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Generator.Model == "" {
			cfg.Generator.Model = "gpt-4o-mini"
		}
		if cfg.Generator.TimeoutSecs == 0 {
			cfg.Generator.TimeoutSecs = 60
		}
	}
	if cfg.Events.SubjectPrefix == "" {
		cfg.Events.SubjectPrefix = "studyrag.collection"
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 3
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// Validate rejects settings no component can run with.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Chunker.ChunkSize < 1 {
		errs = append(errs, fmt.Errorf("chunker.chunk_size must be positive, got %d", c.Chunker.ChunkSize))
	}
	if c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.ChunkSize {
		errs = append(errs, fmt.Errorf("chunker.overlap must be in [0, chunk_size), got %d", c.Chunker.Overlap))
	}
	switch c.Embedder.Type {
	case "deterministic", "openai", "ollama":
	default:
		errs = append(errs, fmt.Errorf("unknown embedder: %s", c.Embedder.Type))
	}
	if c.Embedder.Dimension < 1 {
		errs = append(errs, fmt.Errorf("embedder.dimension must be positive, got %d", c.Embedder.Dimension))
	}
	metric, err := vectorstore.ParseMetric(c.VectorStore.Metric)
	if err != nil {
		errs = append(errs, err)
	}
	switch c.VectorStore.Type {
	case "fs":
	case "chromem":
		if metric == vectorstore.L2 {
			errs = append(errs, errors.New("chromem vector store supports only the cosine metric"))
		}
	case "qdrant":
		if c.VectorStore.Qdrant.Addr == "" {
			errs = append(errs, errors.New("vector_store.qdrant.addr is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown vector store: %s", c.VectorStore.Type))
	}
	if c.Retrieval.TopK < 1 {
		errs = append(errs, fmt.Errorf("retrieval.top_k must be at least 1, got %d", c.Retrieval.TopK))
	}
	switch c.Generator.Type {
	case "none", "openai":
	default:
		errs = append(errs, fmt.Errorf("unknown generator: %s", c.Generator.Type))
	}
	return errors.Join(errs...)
}

func Seconds(n int) time.Duration { return time.Duration(n) * time.Second }
