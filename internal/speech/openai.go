package speech

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

const defaultOpenAISpeechURL = "https://api.openai.com/v1"

type openAIConfig struct {
	APIKey    string `json:"api_key"`
	APIKeyEnv string `json:"api_key_env"`
	BaseURL   string `json:"base_url"`
	Model     string `json:"model"`
	Voice     string `json:"voice"`
}

type openAISynthesizer struct {
	apiKey    string
	apiKeyEnv string
	baseURL   string
	model     string
	voice     string
	client    *http.Client
}

type openAISpeechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

func init() {
	Register("openai", createOpenAISynthesizer)
}

func createOpenAISynthesizer(lang string, args interface{}) (Synthesizer, error) {
	cfg := &openAIConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	s := &openAISynthesizer{
		apiKey:    cfg.APIKey,
		apiKeyEnv: cfg.APIKeyEnv,
		baseURL:   strings.TrimSpace(cfg.BaseURL),
		model:     cfg.Model,
		voice:     cfg.Voice,
		client:    &http.Client{},
	}
	if s.apiKeyEnv == "" {
		s.apiKeyEnv = "OPENAI_API_KEY"
	}
	if s.baseURL == "" {
		s.baseURL = defaultOpenAISpeechURL
	}
	if s.model == "" {
		s.model = "tts-1"
	}
	if s.voice == "" {
		s.voice = "alloy"
	}
	return s, nil
}

func (s *openAISynthesizer) Name() string {
	return "openai"
}

func (s *openAISynthesizer) Synthesize(ctx context.Context, text string) (*Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: no text to speak", appErr.ErrSynthesis)
	}
	apiKey := resolveKey(s.apiKey, s.apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: openai speech api key missing", appErr.ErrSynthesis)
	}
	data, err := json.Marshal(openAISpeechRequest{Model: s.model, Input: text, Voice: s.voice, ResponseFormat: "mp3"})
	if err != nil {
		return nil, err
	}
	endpoint := strings.TrimRight(s.baseURL, "/") + "/audio/speech"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", appErr.ErrSynthesis, err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: openai speech request: %w", appErr.ErrSynthesis, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read openai speech body: %w", appErr.ErrSynthesis, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: openai speech failed: %s: %s", appErr.ErrSynthesis, resp.Status, strings.TrimSpace(string(body)))
	}
	return &Audio{Data: body, ContentType: "audio/mpeg", Ext: ".mp3"}, nil
}
