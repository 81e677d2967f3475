package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/voicerag/internal/ai"
	"github.com/xxxsen/voicerag/internal/filestore"
	"github.com/xxxsen/voicerag/internal/metrics"
	"github.com/xxxsen/voicerag/internal/model"
	appErr "github.com/xxxsen/voicerag/internal/pkg/errors"
	"github.com/xxxsen/voicerag/internal/session"
	"github.com/xxxsen/voicerag/internal/speech"
)

const SpeechKeyPrefix = "speech_"

type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) []model.SearchResult
}

type AgentRunner interface {
	Run(ctx context.Context, agent ai.Agent, input string) (*ai.RunResult, error)
}

type ChatConfig struct {
	Agent         ai.Agent
	TopK          int
	HistoryWindow int
	NameMaxChars  int
}

type TurnResult struct {
	SessionID   string               `json:"session_id"`
	SessionName string               `json:"session_name"`
	Query       string               `json:"query"`
	Answer      string               `json:"answer"`
	AudioKey    string               `json:"audio_key,omitempty"`
	AudioURL    string               `json:"audio_url,omitempty"`
	SpeechError string               `json:"speech_error,omitempty"`
	Sources     []model.SearchResult `json:"sources"`
}

type ChatService struct {
	sessions  session.Store
	retriever Retriever
	runner    AgentRunner
	speech    speech.Synthesizer
	files     filestore.Store
	metrics   *metrics.Metrics
	cfg       ChatConfig

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewChatService(
	sessions session.Store,
	retriever Retriever,
	runner AgentRunner,
	synth speech.Synthesizer,
	files filestore.Store,
	m *metrics.Metrics,
	cfg ChatConfig,
) *ChatService {
	return &ChatService{
		sessions:  sessions,
		retriever: retriever,
		runner:    runner,
		speech:    synth,
		files:     files,
		metrics:   m,
		cfg:       cfg,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (s *ChatService) CreateSession(ctx context.Context) (*model.ChatSession, error) {
	sess, err := s.sessions.Create(ctx)
	if err != nil {
		return nil, err
	}
	logutil.GetLogger(ctx).Info("session created", zap.String("session_id", sess.ID))
	return sess, nil
}

func (s *ChatService) ListSessions(ctx context.Context) ([]*model.ChatSession, error) {
	return s.sessions.List(ctx)
}

func (s *ChatService) GetSession(ctx context.Context, id string) (*model.ChatSession, error) {
	return s.sessions.Get(ctx, id)
}

func (s *ChatService) sessionLock(id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// Ask runs one conversational turn: retrieve context, read recent history,
// call the model, persist both messages and try to voice the answer. Nothing
// is written when the model call fails.
func (s *ChatService) Ask(ctx context.Context, sessionID, query string) (*TurnResult, error) {
	start := time.Now()
	res, err := s.ask(ctx, sessionID, query)
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.ObserveTurn(status, time.Since(start))
	return res, err
}

func (s *ChatService) ask(ctx context.Context, sessionID, query string) (*TurnResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is required: %w", appErr.ErrInvalid)
	}
	// Unknown ids never get a lock entry.
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	logger := logutil.GetLogger(ctx).With(zap.String("session_id", sessionID))

	sources := s.retriever.Retrieve(ctx, query, s.cfg.TopK)
	history, err := s.sessions.Recent(ctx, sessionID, s.cfg.HistoryWindow)
	if err != nil {
		return nil, err
	}
	prompt := BuildPrompt(history, sources, query)
	logger.Debug("prompt composed", zap.Int("sources", len(sources)), zap.Int("history", len(history)))

	out, err := s.runner.Run(ctx, s.cfg.Agent, prompt)
	if err != nil {
		return nil, err
	}
	answer := out.FinalOutput

	if _, err := s.sessions.SetNameOnce(ctx, sessionID, SessionNameFromQuery(query, s.cfg.NameMaxChars)); err != nil {
		return nil, err
	}
	if _, err := s.sessions.Append(ctx, sessionID, model.RoleUser, query); err != nil {
		return nil, err
	}
	if _, err := s.sessions.Append(ctx, sessionID, model.RoleAssistant, answer); err != nil {
		return nil, err
	}
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	result := &TurnResult{
		SessionID:   sessionID,
		SessionName: sess.Name,
		Query:       query,
		Answer:      answer,
		Sources:     sources,
	}
	key, err := s.synthesize(ctx, answer)
	if err != nil {
		s.metrics.IncSpeechFailure()
		logger.Warn("speech synthesis failed, reply stays text only", zap.Error(err))
		result.SpeechError = err.Error()
		return result, nil
	}
	result.AudioKey = key
	result.AudioURL = s.files.URL(key, "")
	return result, nil
}

func (s *ChatService) synthesize(ctx context.Context, text string) (string, error) {
	if s.speech == nil || s.files == nil {
		return "", fmt.Errorf("%w: speech output not configured", appErr.ErrSynthesis)
	}
	audio, err := s.speech.Synthesize(ctx, text)
	if err != nil {
		return "", err
	}
	ext := audio.Ext
	if ext == "" {
		ext = ".mp3"
	}
	key := SpeechKeyPrefix + uuid.NewString() + ext
	if err := s.files.Save(ctx, key, bytes.NewReader(audio.Data), int64(len(audio.Data))); err != nil {
		return "", fmt.Errorf("%w: save audio: %w", appErr.ErrSynthesis, err)
	}
	return key, nil
}

// BuildPrompt renders the single user message sent to the model.
func BuildPrompt(history []model.Message, sources []model.SearchResult, query string) string {
	lines := make([]string, 0, len(history))
	for _, msg := range history {
		lines = append(lines, string(msg.Role)+": "+msg.Content)
	}
	contents := make([]string, 0, len(sources))
	for _, src := range sources {
		contents = append(contents, src.Chunk.Content)
	}
	return "History:\n" + strings.Join(lines, "\n") +
		"\n\nContext:\n" + strings.Join(contents, "\n") +
		"\n\nUser: " + query
}

// SessionNameFromQuery keeps the first limit runes of the query and always
// appends "...".
func SessionNameFromQuery(query string, limit int) string {
	runes := []rune(query)
	if limit > 0 && len(runes) > limit {
		runes = runes[:limit]
	}
	return string(runes) + "..."
}
