package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xxxsen/voicerag/internal/config"
	"github.com/xxxsen/voicerag/internal/model"
)

// Store owns chat sessions and their append-only message logs. Every value
// it returns is a copy.
type Store interface {
	Create(ctx context.Context) (*model.ChatSession, error)
	Get(ctx context.Context, id string) (*model.ChatSession, error)
	List(ctx context.Context) ([]*model.ChatSession, error)
	Append(ctx context.Context, id string, role model.Role, content string) (*model.Message, error)
	// Recent returns the last n messages in their original order.
	Recent(ctx context.Context, id string, n int) ([]model.Message, error)
	// SetNameOnce renames a session that still carries the default name.
	SetNameOnce(ctx context.Context, id string, name string) (bool, error)
	Close() error
}

type Factory func(args interface{}) (Store, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func New(cfg config.SessionStoreConfig) (Store, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Type))
	if key == "" {
		return nil, fmt.Errorf("session_store.type is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported session store type: %s", cfg.Type)
	}
	return factory(cfg.Data)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode session store config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode session store config: %w", err)
	}
	return nil
}
