package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	openaiEmbed "github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino/components/embedding"
)

// Embedding provider names accepted by NewEmbedder.
const (
	ProviderOpenAI = "openai"
	ProviderHTTP   = "http"
	ProviderNone   = "none"
)

// EmbedderConfig selects and configures the embedding provider.
type EmbedderConfig struct {
	Provider string
	APIKey   string
	BaseURL  string
	Model    string
	Endpoint string
	Dim      int
	Timeout  time.Duration
}

// NewEmbedder builds the embedding provider named by cfg.Provider.
func NewEmbedder(ctx context.Context, cfg EmbedderConfig) (embedding.Embedder, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai embedder: API key is required")
		}
		emb, err := openaiEmbed.NewEmbedder(ctx, &openaiEmbed.EmbeddingConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("create openai embedder: %w", err)
		}
		return emb, nil
	case ProviderHTTP:
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("http embedder: endpoint is required")
		}
		return NewHTTPEmbedder(cfg.Endpoint, cfg.Timeout), nil
	case ProviderNone, "":
		return ZeroEmbedder{Dim: cfg.Dim}, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// HTTPEmbedder calls an embedding sidecar that accepts {"texts": [...]} and
// returns {"embeddings": [[...], ...]} in input order.
type HTTPEmbedder struct {
	endpoint string // e.g., "http://embed:8001/embed"
	client   *http.Client
}

// NewHTTPEmbedder creates an HTTPEmbedder. A zero timeout means 10s.
func NewHTTPEmbedder(endpoint string, timeout time.Duration) *HTTPEmbedder {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPEmbedder{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type embedRequest struct {
	Texts []string `json:"texts"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// EmbedStrings implements embedding.Embedder.
func (e *HTTPEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	bodyBytes, err := json.Marshal(embedRequest{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed HTTP request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed service returned %d: %s", resp.StatusCode, string(respBody))
	}

	var embedResp embedResponse
	if err := json.Unmarshal(respBody, &embedResp); err != nil {
		return nil, fmt.Errorf("unmarshal embed response: %w", err)
	}

	if len(embedResp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed service returned %d embeddings for %d texts", len(embedResp.Embeddings), len(texts))
	}

	return embedResp.Embeddings, nil
}

// ZeroEmbedder returns zero vectors. Embedding scores are then always 0 and
// ranking relies on the other signals.
type ZeroEmbedder struct {
	Dim int
}

// EmbedStrings implements embedding.Embedder.
func (z ZeroEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range out {
		out[i] = make([]float64, z.Dim)
	}
	return out, nil
}
