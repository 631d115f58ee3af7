// Package openai is an embedding backend for OpenAI-compatible /embeddings endpoints.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"studyrag/internal/domain"
	"studyrag/internal/fn"
)

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
	// Dimensions is forwarded to models that support shortened embeddings.
	Dimensions int
}

// Client calls CreateEmbeddings once per text. It never retries; retry and
// degradation are the caller's concern.
type Client struct {
	api        *goopenai.Client
	model      string
	dimensions int
}

// NewClient creates a client. A missing API key is only an error for the
// default OpenAI endpoint; local compatible servers usually need none.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Model == "" {
		cfg.Model = string(goopenai.SmallEmbedding3)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	key := ""
	if cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	if key == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	clientCfg := goopenai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &Client{
		api:        goopenai.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}, nil
}

func (c *Client) Name() string { return "openai:" + c.model }

func (c *Client) Embed(ctx context.Context, text string) fn.Result[[]float32] {
	resp := fn.FromPair(c.api.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input:      []string{text},
		Model:      goopenai.EmbeddingModel(c.model),
		Dimensions: c.dimensions,
	})).MapErr(unavailable)
	return fn.MapResult(resp, firstEmbedding).AndThen(nonEmpty)
}

func firstEmbedding(resp goopenai.EmbeddingResponse) []float32 {
	if len(resp.Data) == 0 {
		return nil
	}
	return resp.Data[0].Embedding
}

func nonEmpty(v []float32) fn.Result[[]float32] {
	if len(v) == 0 {
		return fn.Errf[[]float32]("%w: no embedding returned", domain.ErrBackendUnavailable)
	}
	return fn.Ok(v)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
}
