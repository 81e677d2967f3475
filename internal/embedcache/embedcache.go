package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/voicerag/internal/ai"
	appErr "github.com/xxxsen/voicerag/internal/pkg/errors"
)

// WrapLruCacheToEmbedder puts an expiring LRU in front of e. Chunks re-ingested with the same
// text and repeated questions skip the embedding round trip.
func WrapLruCacheToEmbedder(e ai.IEmbedder, size int, ttl time.Duration) ai.IEmbedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &lruEmbedder{
		next:  e,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

// WithDimension rejects vectors whose length differs from dim.
func WithDimension(e ai.IEmbedder, dim int) ai.IEmbedder {
	if e == nil || dim <= 0 {
		return e
	}
	return &dimensionGuard{next: e, dim: dim}
}

type lruEmbedder struct {
	next  ai.IEmbedder
	cache *expirable.LRU[string, []float32]
}

func (l *lruEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	key := cacheKey(l.next.ModelName(), taskType, text)
	if cached, ok := l.cache.Get(key); ok {
		logutil.GetLogger(ctx).Debug("embedding cache hit", zap.String("task_type", taskType))
		return cloneEmbedding(cached), nil
	}
	res, err := l.next.Embed(ctx, text, taskType)
	if err != nil {
		return nil, err
	}
	l.cache.Add(key, cloneEmbedding(res))
	return res, nil
}

func (l *lruEmbedder) ModelName() string {
	return l.next.ModelName()
}

type dimensionGuard struct {
	next ai.IEmbedder
	dim  int
}

func (d *dimensionGuard) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	res, err := d.next.Embed(ctx, text, taskType)
	if err != nil {
		return nil, err
	}
	if len(res) != d.dim {
		return nil, fmt.Errorf("%w: model %s returned %d dims, want %d", appErr.ErrDimensionMismatch, d.next.ModelName(), len(res), d.dim)
	}
	return res, nil
}

func (d *dimensionGuard) ModelName() string {
	return d.next.ModelName()
}

func cacheKey(model, taskType, text string) string {
	sum := sha256.Sum256([]byte(text))
	return model + "|" + taskType + "|" + hex.EncodeToString(sum[:])
}

func cloneEmbedding(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
