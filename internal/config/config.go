package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xxxsen/common/logger"
	"gopkg.in/yaml.v3"
)

const (
	DefaultCollection     = "voice-rag-agent"
	DefaultDimension      = 384
	DefaultChunkSize      = 500
	DefaultChunkOverlap   = 50
	DefaultTopK           = 3
	DefaultHistoryWindow  = 5
	DefaultNameMaxChars   = 25
	DefaultTemperature    = 0.5
	DefaultLLMModel       = "llama-3.3-70b-versatile"
	DefaultEmbeddingModel = "all-minilm"
	DefaultInstructions   = "Use the context and history to answer concisely."
	DefaultAgentName      = "Guide"
	DefaultUploadLimit    = 20 * 1024 * 1024
)

type Config struct {
	Port         int                `json:"port"`
	LogConfig    logger.LogConfig   `json:"log_config"`
	CORS         []string           `json:"cors"`
	RateLimitMS  int                `json:"rate_limit_ms"`
	LLM          LLMConfig          `json:"llm"`
	Embedding    EmbeddingConfig    `json:"embedding"`
	VectorStore  VectorStoreConfig  `json:"vector_store"`
	Chunker      ChunkerConfig      `json:"chunker"`
	Chat         ChatConfig         `json:"chat"`
	SessionStore SessionStoreConfig `json:"session_store"`
	Speech       SpeechConfig       `json:"speech"`
	FileStore    FileStoreConfig    `json:"file_store"`
	Upload       UploadConfig       `json:"upload"`
	Metrics      MetricsConfig      `json:"metrics"`
}

// LLMConfig selects the hosted chat-completion provider. Data carries the
// provider specific arguments (api_key, api_key_env, base_url, ...).
type LLMConfig struct {
	Provider       string                 `json:"provider"`
	Model          string                 `json:"model"`
	Temperature    *float64               `json:"temperature"`
	TimeoutSeconds int                    `json:"timeout_seconds"`
	Data           map[string]interface{} `json:"data"`
}

type EmbeddingConfig struct {
	Provider        string                 `json:"provider"`
	Model           string                 `json:"model"`
	CacheSize       int                    `json:"cache_size"`
	CacheTTLSeconds int                    `json:"cache_ttl_seconds"`
	Data            map[string]interface{} `json:"data"`
}

type VectorStoreConfig struct {
	Type       string                 `json:"type"`
	Collection string                 `json:"collection"`
	Dimension  int                    `json:"dimension"`
	Data       map[string]interface{} `json:"data"`
}

type ChunkerConfig struct {
	Size    int `json:"size"`
	Overlap int `json:"overlap"`
}

type ChatConfig struct {
	TopK          int    `json:"top_k"`
	HistoryWindow int    `json:"history_window"`
	NameMaxChars  int    `json:"name_max_chars"`
	AgentName     string `json:"agent_name"`
	Instructions  string `json:"instructions"`
}

type SessionStoreConfig struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

type SpeechConfig struct {
	Provider       string                 `json:"provider"`
	Lang           string                 `json:"lang"`
	RetentionHours int                    `json:"retention_hours"`
	CleanupSpec    string                 `json:"cleanup_spec"`
	Data           map[string]interface{} `json:"data"`
}

type FileStoreConfig struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

type UploadConfig struct {
	MaxBytes int64  `json:"max_bytes"`
	WatchDir string `json:"watch_dir"`
}

type MetricsConfig struct {
	Disable bool `json:"disable"`
}

// Load reads a JSON config, or a YAML one when the file extension says so.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		data, err = yamlToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a config usable without any file: local sqlite vectors,
// in-memory sessions and a local file store under ./data.
func Default() *Config {
	cfg := &Config{Port: 8080}
	applyDefaults(cfg)
	return cfg
}

// yamlToJSON round-trips through a generic map so the json tags stay the
// single source of field names.
func yamlToJSON(data []byte) ([]byte, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return json.Marshal(raw)
}

func applyDefaults(cfg *Config) {
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "groq"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = DefaultLLMModel
	}
	if cfg.LLM.Temperature == nil {
		t := DefaultTemperature
		cfg.LLM.Temperature = &t
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "ollama"
	}
	if cfg.Embedding.Model == "" && cfg.Embedding.Provider == "ollama" {
		cfg.Embedding.Model = DefaultEmbeddingModel
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1024
	}
	if cfg.Embedding.CacheTTLSeconds == 0 {
		cfg.Embedding.CacheTTLSeconds = 3600
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "sqlite"
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = DefaultCollection
	}
	if cfg.VectorStore.Dimension == 0 {
		cfg.VectorStore.Dimension = DefaultDimension
	}
	if cfg.VectorStore.Type == "sqlite" && cfg.VectorStore.Data == nil {
		cfg.VectorStore.Data = map[string]interface{}{"path": filepath.Join("data", "vectors.db")}
	}
	if cfg.Chunker.Size == 0 {
		cfg.Chunker.Size = DefaultChunkSize
	}
	if cfg.Chunker.Overlap == 0 {
		cfg.Chunker.Overlap = DefaultChunkOverlap
	}
	if cfg.Chat.TopK == 0 {
		cfg.Chat.TopK = DefaultTopK
	}
	if cfg.Chat.HistoryWindow == 0 {
		cfg.Chat.HistoryWindow = DefaultHistoryWindow
	}
	if cfg.Chat.NameMaxChars == 0 {
		cfg.Chat.NameMaxChars = DefaultNameMaxChars
	}
	if cfg.Chat.AgentName == "" {
		cfg.Chat.AgentName = DefaultAgentName
	}
	if cfg.Chat.Instructions == "" {
		cfg.Chat.Instructions = DefaultInstructions
	}
	if cfg.SessionStore.Type == "" {
		cfg.SessionStore.Type = "memory"
	}
	if cfg.Speech.Provider == "" {
		cfg.Speech.Provider = "google"
	}
	if cfg.Speech.Lang == "" {
		cfg.Speech.Lang = "en"
	}
	if cfg.Speech.CleanupSpec == "" {
		cfg.Speech.CleanupSpec = "*/30 * * * *"
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	if cfg.FileStore.Type == "local" && cfg.FileStore.Data == nil {
		cfg.FileStore.Data = map[string]interface{}{"dir": filepath.Join("data", "audio")}
	}
	if cfg.Upload.MaxBytes == 0 {
		cfg.Upload.MaxBytes = DefaultUploadLimit
	}
}

func validate(cfg *Config) error {
	if cfg.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if cfg.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}
	if cfg.Chunker.Size <= 0 {
		return fmt.Errorf("chunker.size must be positive")
	}
	if cfg.Chunker.Overlap < 0 || cfg.Chunker.Overlap >= cfg.Chunker.Size {
		return fmt.Errorf("chunker.overlap must be in [0, chunker.size)")
	}
	if cfg.VectorStore.Dimension <= 0 {
		return fmt.Errorf("vector_store.dimension must be positive")
	}
	if cfg.Chat.TopK < 0 || cfg.Chat.HistoryWindow < 0 {
		return fmt.Errorf("chat.top_k and chat.history_window must not be negative")
	}
	if cfg.Speech.RetentionHours < 0 {
		return fmt.Errorf("speech.retention_hours must not be negative")
	}
	switch cfg.FileStore.Type {
	case "local", "s3":
	default:
		return fmt.Errorf("file_store.type must be local or s3")
	}
	return nil
}
