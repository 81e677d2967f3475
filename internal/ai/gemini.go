package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	appErr "github.com/xxxsen/voicerag/internal/pkg/errors"
)

type geminiConfig struct {
	APIKey     string `json:"api_key"`
	APIKeyEnv  string `json:"api_key_env"`
	Dimensions int32  `json:"dimensions"`
}

type geminiProvider struct {
	cred       credential
	dimensions int32
	newClient  func(ctx context.Context, apiKey string) (*genai.Client, error)

	mu     sync.Mutex
	key    string
	cached *genai.Client
}

func (p *geminiProvider) Name() string {
	return "gemini"
}

// client returns the long-lived client for the current key. The key is
// still resolved per call; a rotated key gets a fresh client.
func (p *geminiProvider) client(ctx context.Context) (*genai.Client, error) {
	apiKey := p.cred.resolve()
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key missing: %w", appErr.ErrConfiguration)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached != nil && p.key == apiKey {
		return p.cached, nil
	}
	client, err := p.newClient(ctx, apiKey)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini client: %w", appErr.ErrExternalService, err)
	}
	p.key, p.cached = apiKey, client
	return client, nil
}

func newGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
}

func (p *geminiProvider) Chat(ctx context.Context, req ChatRequest) (string, error) {
	client, err := p.client(ctx)
	if err != nil {
		return "", err
	}
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: msg.Content}}}
		case "assistant":
			contents = append(contents, &genai.Content{Role: "model", Parts: []*genai.Part{{Text: msg.Content}}})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: msg.Content}}})
		}
	}
	resp, err := client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return "", fmt.Errorf("%w: gemini generate: %w", appErr.ErrExternalService, err)
	}
	return resp.Text(), nil
}

func (p *geminiProvider) Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error) {
	client, err := p.client(ctx)
	if err != nil {
		return nil, err
	}
	config := &genai.EmbedContentConfig{TaskType: taskType}
	if p.dimensions > 0 {
		config.OutputDimensionality = genai.Ptr(p.dimensions)
	}
	resp, err := client.Models.EmbedContent(
		ctx,
		model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: text}}}},
		config,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini embed: %w", appErr.ErrExternalService, err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embedding values returned", appErr.ErrExternalService)
	}
	return resp.Embeddings[0].Values, nil
}

func createGeminiProvider(args interface{}) (*geminiProvider, error) {
	cfg := &geminiConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	keyEnv := strings.TrimSpace(cfg.APIKeyEnv)
	if keyEnv == "" {
		keyEnv = "GEMINI_API_KEY"
	}
	return &geminiProvider{
		cred:       credential{apiKey: cfg.APIKey, apiKeyEnv: keyEnv},
		dimensions: cfg.Dimensions,
		newClient:  newGeminiClient,
	}, nil
}

func init() {
	Register("gemini", func(args interface{}) (IChatProvider, error) {
		return createGeminiProvider(args)
	})
	RegisterEmbed("gemini", func(args interface{}) (IEmbedProvider, error) {
		return createGeminiProvider(args)
	})
}
