package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/xxxsen/voicerag/internal/config"
)

// Audio is one synthesized clip.
type Audio struct {
	Data        []byte
	ContentType string
	Ext         string
}

type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text string) (*Audio, error)
}

type Factory func(lang string, args interface{}) (Synthesizer, error)

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

func New(cfg config.SpeechConfig) (Synthesizer, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if key == "" {
		return nil, fmt.Errorf("speech.provider is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported speech provider: %s", cfg.Provider)
	}
	return factory(cfg.Lang, cfg.Data)
}

func resolveKey(apiKey, envName string) string {
	if key := strings.TrimSpace(apiKey); key != "" {
		return key
	}
	if envName == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(envName))
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode speech config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode speech config: %w", err)
	}
	return nil
}
