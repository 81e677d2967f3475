package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xxxsen/voicerag/internal/model"
	appErr "github.com/xxxsen/voicerag/internal/pkg/errors"
)

type memoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*model.ChatSession
	now      func() time.Time
}

func init() {
	Register("memory", func(args interface{}) (Store, error) {
		return NewMemoryStore(), nil
	})
}

// NewMemoryStore keeps sessions for the lifetime of the process only.
func NewMemoryStore() Store {
	return &memoryStore{
		sessions: make(map[string]*model.ChatSession),
		now:      time.Now,
	}
}

func (s *memoryStore) Create(ctx context.Context) (*model.ChatSession, error) {
	now := s.now().UnixMilli()
	sess := &model.ChatSession{
		ID:       uuid.NewString(),
		Name:     model.DefaultSessionName,
		Messages: []model.Message{},
		Ctime:    now,
		Mtime:    now,
	}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return sess.Clone(), nil
}

func (s *memoryStore) Get(ctx context.Context, id string) (*model.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, appErr.ErrNotFound)
	}
	return sess.Clone(), nil
}

func (s *memoryStore) List(ctx context.Context) ([]*model.ChatSession, error) {
	s.mu.RLock()
	out := make([]*model.ChatSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Ctime != out[j].Ctime {
			return out[i].Ctime > out[j].Ctime
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *memoryStore) Append(ctx context.Context, id string, role model.Role, content string) (*model.Message, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("role %q: %w", role, appErr.ErrInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, appErr.ErrNotFound)
	}
	msg := model.Message{Role: role, Content: content, Ctime: s.now().UnixMilli()}
	sess.Messages = append(sess.Messages, msg)
	sess.Mtime = msg.Ctime
	return &msg, nil
}

func (s *memoryStore) Recent(ctx context.Context, id string, n int) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, appErr.ErrNotFound)
	}
	if n <= 0 {
		return []model.Message{}, nil
	}
	start := len(sess.Messages) - n
	if start < 0 {
		start = 0
	}
	out := make([]model.Message, len(sess.Messages)-start)
	copy(out, sess.Messages[start:])
	return out, nil
}

func (s *memoryStore) SetNameOnce(ctx context.Context, id string, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false, fmt.Errorf("session %s: %w", id, appErr.ErrNotFound)
	}
	if sess.Name != model.DefaultSessionName {
		return false, nil
	}
	sess.Name = name
	sess.Mtime = s.now().UnixMilli()
	return true, nil
}

func (s *memoryStore) Close() error {
	return nil
}
