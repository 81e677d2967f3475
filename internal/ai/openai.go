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

const (
	defaultGroqBaseURL       = "https://api.groq.com/openai/v1"
	defaultOpenAIBaseURL     = "https://api.openai.com/v1"
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

type openAIConfig struct {
	APIKey      string `json:"api_key"`
	APIKeyEnv   string `json:"api_key_env"`
	BaseURL     string `json:"base_url"`
	HTTPReferer string `json:"http_referer"`
	XTitle      string `json:"x_title"`
	Dimensions  int    `json:"dimensions"`
}

// openAIProvider talks to any OpenAI-compatible chat endpoint. Groq and
// OpenRouter are the same wire format with a different base URL.
type openAIProvider struct {
	name    string
	cred    credential
	baseURL string
	headers map[string]string
	client  *http.Client
}

type openAIChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type openAIEmbedRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (p *openAIProvider) Name() string {
	return p.name
}

func (p *openAIProvider) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	apiKey := p.cred.resolve()
	if apiKey == "" {
		return fmt.Errorf("%s api key missing: %w", p.name, appErr.ErrConfiguration)
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	endpoint := strings.TrimRight(p.baseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s request: %w", appErr.ErrExternalService, p.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: %s request failed: %s: %s", appErr.ErrExternalService, p.name, resp.Status, strings.TrimSpace(string(raw)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %w", appErr.ErrExternalService, p.name, err)
	}
	return nil
}

func (p *openAIProvider) Chat(ctx context.Context, req ChatRequest) (string, error) {
	var out openAIChatResponse
	err := p.post(ctx, "/chat/completions", openAIChatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
	}, &out)
	if err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: %s response has no choices", appErr.ErrExternalService, p.name)
	}
	return out.Choices[0].Message.Content, nil
}

type openAIEmbedProvider struct {
	*openAIProvider
	dimensions int
}

func (p *openAIEmbedProvider) Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error) {
	var out openAIEmbedResponse
	err := p.post(ctx, "/embeddings", openAIEmbedRequest{
		Model:      model,
		Input:      text,
		Dimensions: p.dimensions,
	}, &out)
	if err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("%w: %s response has no embeddings", appErr.ErrExternalService, p.name)
	}
	return out.Data[0].Embedding, nil
}

func newOpenAICompatible(name, defaultBaseURL, defaultKeyEnv string, args interface{}) (*openAIProvider, *openAIConfig, error) {
	cfg := &openAIConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, nil, err
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	keyEnv := strings.TrimSpace(cfg.APIKeyEnv)
	if keyEnv == "" {
		keyEnv = defaultKeyEnv
	}
	headers := map[string]string{}
	if v := strings.TrimSpace(cfg.HTTPReferer); v != "" {
		headers["HTTP-Referer"] = v
	}
	if v := strings.TrimSpace(cfg.XTitle); v != "" {
		headers["X-Title"] = v
	}
	return &openAIProvider{
		name:    name,
		cred:    credential{apiKey: cfg.APIKey, apiKeyEnv: keyEnv},
		baseURL: baseURL,
		headers: headers,
		client:  &http.Client{},
	}, cfg, nil
}

func chatFactory(name, baseURL, keyEnv string) ProviderFactory {
	return func(args interface{}) (IChatProvider, error) {
		p, _, err := newOpenAICompatible(name, baseURL, keyEnv, args)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

func createOpenAIEmbedFactory(args interface{}) (IEmbedProvider, error) {
	p, cfg, err := newOpenAICompatible("openai", defaultOpenAIBaseURL, "OPENAI_API_KEY", args)
	if err != nil {
		return nil, err
	}
	return &openAIEmbedProvider{openAIProvider: p, dimensions: cfg.Dimensions}, nil
}

func init() {
	Register("groq", chatFactory("groq", defaultGroqBaseURL, "GROQ_API_KEY"))
	Register("openai", chatFactory("openai", defaultOpenAIBaseURL, "OPENAI_API_KEY"))
	Register("openrouter", chatFactory("openrouter", defaultOpenRouterBaseURL, "OPENROUTER_API_KEY"))
	RegisterEmbed("openai", createOpenAIEmbedFactory)
}
