package speech

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/voicerag/internal/config"
	appErr "github.com/xxxsen/voicerag/internal/pkg/errors"
)

func TestSplitText(t *testing.T) {
	long := strings.Repeat("a", 130)
	tests := []struct {
		name string
		text string
		max  int
		want []string
	}{
		{name: "empty", text: "   ", max: 10, want: nil},
		{name: "fits", text: "Paris is nice.", max: 100, want: []string{"Paris is nice."}},
		{name: "wraps on space", text: "aaa bbb ccc", max: 7, want: []string{"aaa bbb", "ccc"}},
		{name: "hard split", text: long, max: 100, want: []string{long[:100], long[100:]}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, splitText(tt.text, tt.max))
		})
	}
}

func TestGoogleSynthesize_ConcatenatesParts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		require.Equal(t, "fr", r.URL.Query().Get("tl"))
		require.LessOrEqual(t, len([]rune(r.URL.Query().Get("q"))), googleMaxRunes)
		_, _ = w.Write([]byte("<" + r.URL.Query().Get("idx") + ">"))
	}))
	defer srv.Close()

	syn, err := New(config.SpeechConfig{Provider: "google", Lang: "fr", Data: map[string]interface{}{"base_url": srv.URL}})
	require.NoError(t, err)
	text := strings.Repeat("word ", 50)
	audio, err := syn.Synthesize(context.Background(), text)
	require.NoError(t, err)
	require.Equal(t, int32(3), atomic.LoadInt32(&calls))
	require.Equal(t, "<0><1><2>", string(audio.Data))
	require.Equal(t, ".mp3", audio.Ext)
}

func TestGoogleSynthesize_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	syn, err := New(config.SpeechConfig{Provider: "google", Data: map[string]interface{}{"base_url": srv.URL}})
	require.NoError(t, err)
	_, err = syn.Synthesize(context.Background(), "hello")
	require.True(t, errors.Is(err, appErr.ErrSynthesis))

	_, err = syn.Synthesize(context.Background(), "")
	require.True(t, errors.Is(err, appErr.ErrSynthesis))
}

func TestOpenAISynthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/audio/speech", r.URL.Path)
		require.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte("mp3"))
	}))
	defer srv.Close()

	syn, err := New(config.SpeechConfig{Provider: "openai", Data: map[string]interface{}{"base_url": srv.URL, "api_key": "k"}})
	require.NoError(t, err)
	audio, err := syn.Synthesize(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, []byte("mp3"), audio.Data)
}

func TestNoneSynthesizer(t *testing.T) {
	syn, err := New(config.SpeechConfig{Provider: "none"})
	require.NoError(t, err)
	_, err = syn.Synthesize(context.Background(), "hello")
	require.True(t, errors.Is(err, appErr.ErrSynthesis))
}
