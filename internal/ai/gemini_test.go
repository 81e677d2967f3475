package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	appErr "github.com/xxxsen/voicerag/internal/pkg/errors"
)

func TestGeminiClient_ReusedPerKey(t *testing.T) {
	t.Setenv("VOICERAG_TEST_GEMINI_KEY", "")
	p, err := createGeminiProvider(map[string]interface{}{"api_key_env": "VOICERAG_TEST_GEMINI_KEY"})
	require.NoError(t, err)
	var built []string
	p.newClient = func(ctx context.Context, apiKey string) (*genai.Client, error) {
		built = append(built, apiKey)
		return &genai.Client{}, nil
	}
	ctx := context.Background()

	_, err = p.client(ctx)
	require.True(t, errors.Is(err, appErr.ErrConfiguration))
	_, err = p.Chat(ctx, ChatRequest{Model: "gemini-2.0-flash", Messages: []ChatMessage{{Role: "user", Content: "hi"}}})
	require.True(t, errors.Is(err, appErr.ErrConfiguration))
	_, err = p.Embed(ctx, "text-embedding-004", "hi", TaskRetrievalQuery)
	require.True(t, errors.Is(err, appErr.ErrConfiguration))
	require.Empty(t, built)

	t.Setenv("VOICERAG_TEST_GEMINI_KEY", "key-1")
	first, err := p.client(ctx)
	require.NoError(t, err)
	second, err := p.client(ctx)
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Equal(t, []string{"key-1"}, built)

	t.Setenv("VOICERAG_TEST_GEMINI_KEY", "key-2")
	third, err := p.client(ctx)
	require.NoError(t, err)
	require.NotSame(t, first, third)
	require.Equal(t, []string{"key-1", "key-2"}, built)
}

func TestGeminiClient_BuildFailureIsExternal(t *testing.T) {
	p, err := createGeminiProvider(map[string]interface{}{"api_key": "k"})
	require.NoError(t, err)
	p.newClient = func(ctx context.Context, apiKey string) (*genai.Client, error) {
		return nil, errors.New("dial failed")
	}
	_, err = p.client(context.Background())
	require.True(t, errors.Is(err, appErr.ErrExternalService))
	require.Nil(t, p.cached)
}
