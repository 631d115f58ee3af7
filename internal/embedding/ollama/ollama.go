// Package ollama is an embedding backend for a local Ollama server.
package ollama

import (
	"context"
	"fmt"
	"time"

	"github.com/philippgille/chromem-go"

	"studyrag/internal/domain"
	"studyrag/internal/fn"
)

const DefaultURL = "http://localhost:11434/api"

// Client wraps the Ollama embedding function shipped with chromem-go.
// The chromem client sets no HTTP timeout, so every call is bounded by timeout.
type Client struct {
	model   string
	timeout time.Duration
	embed   chromem.EmbeddingFunc
}

func NewClient(model, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{model: model, timeout: timeout, embed: chromem.NewEmbeddingFuncOllama(model, baseURL)}
}

func (c *Client) Name() string { return "ollama:" + c.model }

func (c *Client) Embed(ctx context.Context, text string) fn.Result[[]float32] {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return fn.FromPair(c.embed(ctx, text)).MapErr(unavailable)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
}
