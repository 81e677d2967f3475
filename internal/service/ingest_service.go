package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/voicerag/internal/ai"
	"github.com/xxxsen/voicerag/internal/chunker"
	"github.com/xxxsen/voicerag/internal/metrics"
	"github.com/xxxsen/voicerag/internal/model"
	"github.com/xxxsen/voicerag/internal/pdftext"
	appErr "github.com/xxxsen/voicerag/internal/pkg/errors"
	"github.com/xxxsen/voicerag/internal/vectorstore"
)

type IngestResult struct {
	Document model.Document `json:"document"`
	Skipped  bool           `json:"skipped"`
}

type IngestService struct {
	embedder ai.IEmbedder
	store    vectorstore.Store
	splitter *chunker.Splitter
	registry *DocumentRegistry
	metrics  *metrics.Metrics
	extract  func(data []byte) ([]pdftext.Page, error)
	now      func() time.Time
}

func NewIngestService(
	embedder ai.IEmbedder,
	store vectorstore.Store,
	splitter *chunker.Splitter,
	registry *DocumentRegistry,
	m *metrics.Metrics,
) *IngestService {
	return &IngestService{
		embedder: embedder,
		store:    store,
		splitter: splitter,
		registry: registry,
		metrics:  m,
		extract:  pdftext.Extract,
		now:      time.Now,
	}
}

// Ingest extracts, splits, embeds and stores one PDF. A file name that was
// already ingested, or is being ingested, is skipped without any work. On
// failure the chunks already written stay in the store and the name is left
// unregistered so the upload can be retried.
func (s *IngestService) Ingest(ctx context.Context, name string, data []byte) (*IngestResult, error) {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || len(data) == 0 {
		return nil, fmt.Errorf("document name and content are required: %w", appErr.ErrInvalid)
	}
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return nil, fmt.Errorf("document %s is not a pdf: %w", name, appErr.ErrInvalid)
	}
	logger := logutil.GetLogger(ctx).With(zap.String("document", name))
	if !s.registry.Begin(name) {
		logger.Info("document already processed, skip ingest")
		s.metrics.ObserveIngest("skipped", 0)
		return &IngestResult{Document: model.Document{Name: name}, Skipped: true}, nil
	}
	start := s.now()
	doc, err := s.ingest(ctx, name, data)
	if err != nil {
		s.registry.Abort(name)
		s.metrics.ObserveIngest("error", doc.Chunks)
		logger.Error("ingest document failed", zap.Int("written_chunks", doc.Chunks), zap.Error(err))
		return nil, err
	}
	s.registry.Complete(doc)
	s.metrics.ObserveIngest("ok", doc.Chunks)
	logger.Info("ingest document finished",
		zap.Int("pages", doc.Pages),
		zap.Int("chunks", doc.Chunks),
		zap.Duration("cost", time.Since(start)),
	)
	return &IngestResult{Document: doc}, nil
}

func (s *IngestService) ingest(ctx context.Context, name string, data []byte) (model.Document, error) {
	doc := model.Document{Name: name, Ctime: s.now().UnixMilli()}
	pages, err := s.extract(data)
	if err != nil {
		return doc, fmt.Errorf("%w: extract %s: %w", appErr.ErrIngestion, name, err)
	}
	doc.Pages = len(pages)
	for _, page := range pages {
		for _, window := range s.splitter.Split(page.Text) {
			vec, err := s.embedder.Embed(ctx, window.Content, ai.TaskRetrievalDocument)
			if err != nil {
				return doc, fmt.Errorf("%w: embed page %d offset %d: %w", appErr.ErrIngestion, page.Number, window.Offset, err)
			}
			chunk := &model.Chunk{
				ID:         uuid.NewString(),
				DocumentID: name,
				Page:       page.Number,
				Position:   window.Offset,
				Content:    window.Content,
				Embedding:  vec,
				Ctime:      s.now().UnixMilli(),
			}
			if err := s.store.Upsert(ctx, chunk); err != nil {
				return doc, fmt.Errorf("%w: store page %d offset %d: %w", appErr.ErrIngestion, page.Number, window.Offset, err)
			}
			doc.Chunks++
			logutil.GetLogger(ctx).Debug("chunk stored",
				zap.String("chunk_id", chunk.ID),
				zap.Int("page", page.Number),
				zap.Int("position", window.Offset),
			)
		}
	}
	return doc, nil
}

func (s *IngestService) Documents() []model.Document {
	return s.registry.List()
}
