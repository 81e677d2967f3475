package handler_test

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/xxxsen/common/webapi"

	"github.com/xxxsen/voicerag/internal/ai"
	"github.com/xxxsen/voicerag/internal/chunker"
	"github.com/xxxsen/voicerag/internal/config"
	"github.com/xxxsen/voicerag/internal/filestore"
	"github.com/xxxsen/voicerag/internal/handler"
	"github.com/xxxsen/voicerag/internal/metrics"
	"github.com/xxxsen/voicerag/internal/middleware"
	"github.com/xxxsen/voicerag/internal/model"
	"github.com/xxxsen/voicerag/internal/service"
	"github.com/xxxsen/voicerag/internal/session"
	"github.com/xxxsen/voicerag/internal/speech"
	"github.com/xxxsen/voicerag/internal/vectorstore"
)

type constEmbedder struct{}

func (constEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	return []float32{1, 0, 0, 0}, nil
}

func (constEmbedder) ModelName() string { return "const" }

type echoRunner struct {
	mu      sync.Mutex
	prompts []string
}

func (r *echoRunner) Run(ctx context.Context, agent ai.Agent, input string) (*ai.RunResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts = append(r.prompts, input)
	idx := strings.LastIndex(input, "User: ")
	return &ai.RunResult{FinalOutput: "**answer** to " + input[idx+len("User: "):]}, nil
}

type staticRetriever struct{}

func (staticRetriever) Retrieve(ctx context.Context, query string, k int) []model.SearchResult {
	return []model.SearchResult{{Chunk: model.Chunk{DocumentID: "manual.pdf", Content: "the pump runs at 40 psi"}, Score: 0.9}}
}

type testEnv struct {
	router http.Handler
	files  filestore.Store
	runner *echoRunner
}

func setupRouter(t *testing.T, chatLimitMS int) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	files, err := filestore.New(config.FileStoreConfig{
		Type: "local",
		Data: map[string]interface{}{"dir": t.TempDir()},
	})
	require.NoError(t, err)

	store, err := vectorstore.New("sqlite", vectorstore.Options{Collection: "handler_test", Dimension: 4},
		map[string]interface{}{"path": ":memory:"})
	require.NoError(t, err)
	require.NoError(t, store.EnsureCollection(ctx))
	t.Cleanup(func() { _ = store.Close() })

	synth, err := speech.New(config.SpeechConfig{Provider: "none"})
	require.NoError(t, err)

	splitter, err := chunker.New(500, 50)
	require.NoError(t, err)

	m := metrics.New(prometheus.NewRegistry())
	runner := &echoRunner{}
	ingest := service.NewIngestService(constEmbedder{}, store, splitter, service.NewDocumentRegistry(), m)
	chat := service.NewChatService(session.NewMemoryStore(), staticRetriever{}, runner, synth, files, m, service.ChatConfig{
		Agent:         ai.Agent{Name: "Pump Assistant", Instructions: "answer from context"},
		TopK:          3,
		HistoryWindow: 5,
		NameMaxChars:  25,
	})

	deps := handler.RouterDeps{
		Sessions:    handler.NewSessionHandler(chat),
		Chat:        handler.NewChatHandler(chat),
		Documents:   handler.NewDocumentHandler(ingest, 1024*1024),
		Files:       handler.NewFileHandler(files),
		Metrics:     m.Handler(),
		ChatLimitMS: chatLimitMS,
	}
	engine, err := webapi.NewEngine(
		"/api/v1",
		"",
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(nil),
		),
	)
	require.NoError(t, err)
	return &testEnv{router: engine, files: files, runner: runner}
}
