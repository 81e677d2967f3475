package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/voicerag/internal/ai"
	"github.com/xxxsen/voicerag/internal/config"
	"github.com/xxxsen/voicerag/internal/filestore"
	"github.com/xxxsen/voicerag/internal/model"
	appErr "github.com/xxxsen/voicerag/internal/pkg/errors"
	"github.com/xxxsen/voicerag/internal/session"
)

var testAgent = ai.Agent{
	Name:         "Guide",
	Instructions: "Use the context and history to answer concisely.",
	Model:        "llama-3.3-70b-versatile",
}

func newTestFiles(t *testing.T) filestore.Store {
	t.Helper()
	fs, err := filestore.New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{"dir": t.TempDir()}})
	require.NoError(t, err)
	return fs
}

func newTestChat(t *testing.T, retriever Retriever, runner AgentRunner, synth *fakeSynth) (*ChatService, session.Store, filestore.Store) {
	t.Helper()
	sessions := session.NewMemoryStore()
	files := newTestFiles(t)
	svc := NewChatService(sessions, retriever, runner, synth, files, nil, ChatConfig{
		Agent:         testAgent,
		TopK:          3,
		HistoryWindow: 5,
		NameMaxChars:  25,
	})
	return svc, sessions, files
}

func TestAsk_FirstTurnWithEmptyStore(t *testing.T) {
	ctx := context.Background()
	retriever := NewRetrievalService(&bagEmbedder{}, newTestVectorStore(t), 3, nil)
	runner := &fakeRunner{answer: "Paris."}
	svc, sessions, files := newTestChat(t, retriever, runner, &fakeSynth{})

	sess, err := svc.CreateSession(ctx)
	require.NoError(t, err)
	res, err := svc.Ask(ctx, sess.ID, "What is the capital of France?")
	require.NoError(t, err)

	require.Equal(t, 1, runner.calls)
	require.Equal(t, testAgent, runner.agent)
	require.Equal(t, "History:\n\n\nContext:\n\n\nUser: What is the capital of France?", runner.prompts[0])

	require.Equal(t, "Paris.", res.Answer)
	require.Empty(t, res.Sources)
	require.Equal(t, "What is the capital of Fr...", res.SessionName)
	require.Empty(t, res.SpeechError)
	require.True(t, strings.HasPrefix(res.AudioKey, SpeechKeyPrefix))
	require.Equal(t, "/api/v1/files/"+res.AudioKey, res.AudioURL)

	rc, err := files.Open(ctx, res.AudioKey)
	require.NoError(t, err)
	audio, _ := io.ReadAll(rc)
	_ = rc.Close()
	require.Equal(t, "mp3:Paris.", string(audio))

	got, err := sessions.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, []model.Message{
		{Role: model.RoleUser, Content: "What is the capital of France?", Ctime: got.Messages[0].Ctime},
		{Role: model.RoleAssistant, Content: "Paris.", Ctime: got.Messages[1].Ctime},
	}, got.Messages)
}

func TestAsk_PromptCarriesContextAndHistory(t *testing.T) {
	ctx := context.Background()
	retriever := &fakeRetriever{results: []model.SearchResult{
		{Chunk: model.Chunk{Content: "Paris is the capital of France."}, Score: 0.9},
		{Chunk: model.Chunk{Content: "France is in Europe."}, Score: 0.5},
	}}
	runner := &fakeRunner{answer: "ok"}
	svc, sessions, _ := newTestChat(t, retriever, runner, &fakeSynth{})
	sess, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	for i := 1; i <= 4; i++ {
		_, err := svc.Ask(ctx, sess.ID, fmt.Sprintf("q%d", i))
		require.NoError(t, err)
	}
	require.Equal(t, 3, retriever.lastK)
	last := runner.prompts[3]
	require.Equal(t, "History:\nassistant: ok\nuser: q2\nassistant: ok\nuser: q3\nassistant: ok"+
		"\n\nContext:\nParis is the capital of France.\nFrance is in Europe."+
		"\n\nUser: q4", last)

	got, err := sessions.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 8)
	require.Equal(t, "q1...", got.Name)
}

func TestAsk_LLMFailurePersistsNothing(t *testing.T) {
	ctx := context.Background()
	runner := &fakeRunner{err: fmt.Errorf("groq: %w", appErr.ErrConfiguration)}
	svc, sessions, files := newTestChat(t, &fakeRetriever{}, runner, &fakeSynth{})
	sess, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	_, err = svc.Ask(ctx, sess.ID, "hello there")
	require.True(t, errors.Is(err, appErr.ErrConfiguration))

	got, err := sessions.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Empty(t, got.Messages)
	require.Equal(t, model.DefaultSessionName, got.Name)
	list, err := files.List(ctx, SpeechKeyPrefix)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestAsk_SpeechFailureKeepsTurn(t *testing.T) {
	ctx := context.Background()
	runner := &fakeRunner{answer: "Paris."}
	svc, sessions, _ := newTestChat(t, &fakeRetriever{}, runner, &fakeSynth{err: fmt.Errorf("%w: offline", appErr.ErrSynthesis)})
	sess, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	res, err := svc.Ask(ctx, sess.ID, "capital?")
	require.NoError(t, err)
	require.Equal(t, "Paris.", res.Answer)
	require.Empty(t, res.AudioKey)
	require.Contains(t, res.SpeechError, "offline")

	got, err := sessions.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
}

func TestAsk_Validation(t *testing.T) {
	ctx := context.Background()
	runner := &fakeRunner{answer: "x"}
	svc, _, _ := newTestChat(t, &fakeRetriever{}, runner, &fakeSynth{})

	_, err := svc.Ask(ctx, "missing", "hi")
	require.True(t, errors.Is(err, appErr.ErrNotFound))

	sess, err := svc.CreateSession(ctx)
	require.NoError(t, err)
	_, err = svc.Ask(ctx, sess.ID, "   ")
	require.True(t, errors.Is(err, appErr.ErrInvalid))
	require.Equal(t, 0, runner.calls)
}

func TestAsk_UnknownSessionsLeaveNoLocks(t *testing.T) {
	ctx := context.Background()
	runner := &fakeRunner{answer: "x"}
	svc, _, _ := newTestChat(t, &fakeRetriever{}, runner, &fakeSynth{})

	for i := 0; i < 100; i++ {
		_, err := svc.Ask(ctx, fmt.Sprintf("bogus-%d", i), "hi")
		require.True(t, errors.Is(err, appErr.ErrNotFound))
	}
	require.Len(t, svc.locks, 0)
	require.Equal(t, 0, runner.calls)

	sess, err := svc.CreateSession(ctx)
	require.NoError(t, err)
	_, err = svc.Ask(ctx, sess.ID, "hi")
	require.NoError(t, err)
	require.Len(t, svc.locks, 1)
}

func TestAsk_SessionsDoNotShareHistory(t *testing.T) {
	ctx := context.Background()
	runner := &fakeRunner{answer: "ok"}
	svc, _, _ := newTestChat(t, &fakeRetriever{}, runner, &fakeSynth{})
	a, err := svc.CreateSession(ctx)
	require.NoError(t, err)
	b, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	_, err = svc.Ask(ctx, a.ID, "about a")
	require.NoError(t, err)
	_, err = svc.Ask(ctx, b.ID, "about b")
	require.NoError(t, err)
	require.Equal(t, "History:\n\n\nContext:\n\n\nUser: about b", runner.prompts[1])
}

func TestAsk_ConcurrentTurnsOnOneSessionAreSerialized(t *testing.T) {
	ctx := context.Background()
	runner := &fakeRunner{answer: "ok"}
	svc, sessions, _ := newTestChat(t, &fakeRetriever{}, runner, &fakeSynth{})
	sess, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Ask(ctx, sess.ID, fmt.Sprintf("q%d", i))
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := sessions.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 20)
	for i := 0; i < 20; i += 2 {
		require.Equal(t, model.RoleUser, got.Messages[i].Role)
		require.Equal(t, model.RoleAssistant, got.Messages[i+1].Role)
	}
}

func TestSessionNameFromQuery(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{query: "What is the capital of France?", want: "What is the capital of Fr..."},
		{query: "short", want: "short..."},
		{query: strings.Repeat("é", 30), want: strings.Repeat("é", 25) + "..."},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, SessionNameFromQuery(tt.query, 25))
	}
}

func TestRetrieve_FailuresYieldEmpty(t *testing.T) {
	ctx := context.Background()
	st := newTestVectorStore(t)
	emb := &bagEmbedder{failOn: "bad", failErr: errBoom}
	svc := NewRetrievalService(emb, st, 3, nil)

	require.Empty(t, svc.Retrieve(ctx, "", 3))
	require.Empty(t, svc.Retrieve(ctx, "bad query", 3))
	require.Empty(t, svc.Retrieve(ctx, "anything", 3))
}

func TestRetrieve_TopK(t *testing.T) {
	ctx := context.Background()
	st := newTestVectorStore(t)
	emb := &bagEmbedder{}
	for i, text := range []string{"aaaa", "aaah", "zzzz", "oooo", "hhhh"} {
		vec, _ := emb.Embed(ctx, text, "")
		require.NoError(t, st.Upsert(ctx, &model.Chunk{ID: fmt.Sprintf("c%d", i), Content: text, Embedding: vec}))
	}
	svc := NewRetrievalService(emb, st, 3, nil)

	res := svc.Retrieve(ctx, "aaaa", 0)
	require.Len(t, res, 3)
	require.Equal(t, "aaaa", res[0].Chunk.Content)
	require.Equal(t, "aaah", res[1].Chunk.Content)
	require.Len(t, svc.Retrieve(ctx, "aaaa", 1), 1)
}
