package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/xxxsen/voicerag/internal/ai"
	"github.com/xxxsen/voicerag/internal/model"
	"github.com/xxxsen/voicerag/internal/speech"
)

// bagEmbedder maps text onto a tiny bag-of-letters vector so similar words
// land close together.
type bagEmbedder struct {
	mu      sync.Mutex
	calls   int
	failOn  string
	failErr error
}

func (b *bagEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	if b.failOn != "" && strings.Contains(text, b.failOn) {
		return nil, b.failErr
	}
	vec := make([]float32, 4)
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'g':
			vec[0]++
		case r >= 'h' && r <= 'n':
			vec[1]++
		case r >= 'o' && r <= 'u':
			vec[2]++
		case r >= 'v' && r <= 'z':
			vec[3]++
		}
	}
	return vec, nil
}

func (b *bagEmbedder) ModelName() string { return "bag" }

type fakeRunner struct {
	mu      sync.Mutex
	calls   int
	agent   ai.Agent
	prompts []string
	answer  string
	err     error
}

func (f *fakeRunner) Run(ctx context.Context, agent ai.Agent, input string) (*ai.RunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.agent = agent
	f.prompts = append(f.prompts, input)
	if f.err != nil {
		return nil, f.err
	}
	return &ai.RunResult{FinalOutput: f.answer}, nil
}

type fakeRetriever struct {
	results []model.SearchResult
	lastK   int
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, k int) []model.SearchResult {
	f.lastK = k
	return f.results
}

type fakeSynth struct {
	err error
}

func (f *fakeSynth) Name() string { return "fake" }

func (f *fakeSynth) Synthesize(ctx context.Context, text string) (*speech.Audio, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &speech.Audio{Data: []byte("mp3:" + text), ContentType: "audio/mpeg", Ext: ".mp3"}, nil
}

var errBoom = errors.New("boom")
