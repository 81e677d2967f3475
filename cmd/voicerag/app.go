package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/voicerag/internal/ai"
	"github.com/xxxsen/voicerag/internal/chunker"
	"github.com/xxxsen/voicerag/internal/config"
	"github.com/xxxsen/voicerag/internal/embedcache"
	"github.com/xxxsen/voicerag/internal/filestore"
	"github.com/xxxsen/voicerag/internal/metrics"
	"github.com/xxxsen/voicerag/internal/service"
	"github.com/xxxsen/voicerag/internal/session"
	"github.com/xxxsen/voicerag/internal/speech"
	"github.com/xxxsen/voicerag/internal/vectorstore"
)

type app struct {
	ingest   *service.IngestService
	chat     *service.ChatService
	files    filestore.Store
	metrics  *metrics.Metrics
	vectors  vectorstore.Store
	sessions session.Store
}

// buildApp wires one embedder and one vector store shared by ingestion and
// retrieval. A nil registry disables metrics.
func buildApp(ctx context.Context, cfg *config.Config, reg *prometheus.Registry) (*app, error) {
	var m *metrics.Metrics
	if reg != nil {
		m = metrics.New(reg)
	}

	embedProvider, err := ai.NewEmbedProvider(cfg.Embedding.Provider, cfg.Embedding.Data)
	if err != nil {
		return nil, fmt.Errorf("init embedding provider: %w", err)
	}
	embedder := embedcache.WithDimension(ai.NewEmbedder(embedProvider, cfg.Embedding.Model), cfg.VectorStore.Dimension)
	embedder = embedcache.WrapLruCacheToEmbedder(embedder, cfg.Embedding.CacheSize, time.Duration(cfg.Embedding.CacheTTLSeconds)*time.Second)

	vectors, err := vectorstore.New(cfg.VectorStore.Type, vectorstore.Options{
		Collection: cfg.VectorStore.Collection,
		Dimension:  cfg.VectorStore.Dimension,
	}, cfg.VectorStore.Data)
	if err != nil {
		return nil, fmt.Errorf("init vector store: %w", err)
	}
	if err := vectors.EnsureCollection(ctx); err != nil {
		_ = vectors.Close()
		return nil, fmt.Errorf("ensure collection %s: %w", cfg.VectorStore.Collection, err)
	}
	if count, err := vectors.Count(ctx); err == nil {
		logutil.GetLogger(ctx).Info("vector store ready",
			zap.String("type", vectors.Type()),
			zap.String("collection", cfg.VectorStore.Collection),
			zap.Int("points", count),
		)
	}

	splitter, err := chunker.New(cfg.Chunker.Size, cfg.Chunker.Overlap)
	if err != nil {
		_ = vectors.Close()
		return nil, fmt.Errorf("init chunker: %w", err)
	}

	chatProvider, err := ai.NewProvider(cfg.LLM.Provider, cfg.LLM.Data)
	if err != nil {
		_ = vectors.Close()
		return nil, fmt.Errorf("init llm provider: %w", err)
	}
	runner := ai.NewRunner(chatProvider,
		ai.WithTemperature(*cfg.LLM.Temperature),
		ai.WithTimeout(time.Duration(cfg.LLM.TimeoutSeconds)*time.Second),
	)

	sessions, err := session.New(cfg.SessionStore)
	if err != nil {
		_ = vectors.Close()
		return nil, fmt.Errorf("init session store: %w", err)
	}
	synth, err := speech.New(cfg.Speech)
	if err != nil {
		_ = vectors.Close()
		_ = sessions.Close()
		return nil, fmt.Errorf("init speech: %w", err)
	}
	files, err := filestore.New(cfg.FileStore)
	if err != nil {
		_ = vectors.Close()
		_ = sessions.Close()
		return nil, fmt.Errorf("init file store: %w", err)
	}

	ingest := service.NewIngestService(embedder, vectors, splitter, service.NewDocumentRegistry(), m)
	retrieval := service.NewRetrievalService(embedder, vectors, cfg.Chat.TopK, m)
	chat := service.NewChatService(sessions, retrieval, runner, synth, files, m, service.ChatConfig{
		Agent: ai.Agent{
			Name:         cfg.Chat.AgentName,
			Instructions: cfg.Chat.Instructions,
			Model:        cfg.LLM.Model,
		},
		TopK:          cfg.Chat.TopK,
		HistoryWindow: cfg.Chat.HistoryWindow,
		NameMaxChars:  cfg.Chat.NameMaxChars,
	})
	return &app{
		ingest:   ingest,
		chat:     chat,
		files:    files,
		metrics:  m,
		vectors:  vectors,
		sessions: sessions,
	}, nil
}

func (a *app) Close() {
	if err := a.sessions.Close(); err != nil {
		logutil.GetLogger(context.Background()).Error("close session store failed", zap.Error(err))
	}
	if err := a.vectors.Close(); err != nil {
		logutil.GetLogger(context.Background()).Error("close vector store failed", zap.Error(err))
	}
}
