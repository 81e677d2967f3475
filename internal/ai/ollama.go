package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	appErr "github.com/xxxsen/voicerag/internal/pkg/errors"
)

const defaultOllamaBaseURL = "http://localhost:11434"

type ollamaConfig struct {
	BaseURL string `json:"base_url"`
}

// ollamaEmbedProvider uses a local ollama daemon. all-minilm yields the
// 384-dimensional vectors the default collection expects.
type ollamaEmbedProvider struct {
	baseURL string
	client  *http.Client
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (p *ollamaEmbedProvider) Name() string {
	return "ollama"
}

func (p *ollamaEmbedProvider) Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error) {
	data, err := json.Marshal(ollamaEmbedRequest{Model: model, Prompt: text})
	if err != nil {
		return nil, err
	}
	endpoint := strings.TrimRight(p.baseURL, "/") + "/api/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: ollama request: %w", appErr.ErrExternalService, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: ollama request failed: %s: %s", appErr.ErrExternalService, resp.Status, strings.TrimSpace(string(raw)))
	}
	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode ollama response: %w", appErr.ErrExternalService, err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("%w: ollama returned empty embedding", appErr.ErrExternalService)
	}
	return out.Embedding, nil
}

func createOllamaEmbedFactory(args interface{}) (IEmbedProvider, error) {
	cfg := &ollamaConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	return &ollamaEmbedProvider{baseURL: baseURL, client: &http.Client{}}, nil
}

func init() {
	RegisterEmbed("ollama", createOllamaEmbedFactory)
}
