package service

import (
	"context"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/voicerag/internal/ai"
	"github.com/xxxsen/voicerag/internal/metrics"
	"github.com/xxxsen/voicerag/internal/model"
	"github.com/xxxsen/voicerag/internal/vectorstore"
)

type RetrievalService struct {
	embedder ai.IEmbedder
	store    vectorstore.Store
	topK     int
	metrics  *metrics.Metrics
}

func NewRetrievalService(embedder ai.IEmbedder, store vectorstore.Store, topK int, m *metrics.Metrics) *RetrievalService {
	return &RetrievalService{embedder: embedder, store: store, topK: topK, metrics: m}
}

// Retrieve returns at most k chunks, most similar first. Any failure yields
// an empty result and is logged at warn.
func (s *RetrievalService) Retrieve(ctx context.Context, query string, k int) []model.SearchResult {
	if k <= 0 {
		k = s.topK
	}
	logger := logutil.GetLogger(ctx)
	if strings.TrimSpace(query) == "" || k <= 0 {
		s.metrics.IncRetrievalMiss()
		return nil
	}
	vec, err := s.embedder.Embed(ctx, query, ai.TaskRetrievalQuery)
	if err != nil {
		logger.Warn("embed query failed, continue without context", zap.Error(err))
		s.metrics.IncRetrievalMiss()
		return nil
	}
	results, err := s.store.Search(ctx, vec, k)
	if err != nil {
		logger.Warn("vector search failed, continue without context", zap.Error(err))
		s.metrics.IncRetrievalMiss()
		return nil
	}
	if len(results) > k {
		results = results[:k]
	}
	if len(results) == 0 {
		s.metrics.IncRetrievalMiss()
	}
	logger.Debug("retrieved context", zap.Int("count", len(results)))
	return results
}
