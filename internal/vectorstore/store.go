package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/xxxsen/voicerag/internal/model"
	appErr "github.com/xxxsen/voicerag/internal/pkg/errors"
)

// Store is a named collection of fixed-dimension vectors compared by cosine
// similarity.
type Store interface {
	Type() string
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, chunk *model.Chunk) error
	Search(ctx context.Context, vector []float32, topK int) ([]model.SearchResult, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

type Options struct {
	Collection string
	Dimension  int
}

type Factory func(opts Options, args interface{}) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	mu.Lock()
	factories[key] = factory
	mu.Unlock()
}

func New(name string, opts Options, args interface{}) (Store, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	mu.RLock()
	factory := factories[key]
	mu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported vector store: %s", name)
	}
	if strings.TrimSpace(opts.Collection) == "" {
		return nil, fmt.Errorf("vector store collection is required")
	}
	if opts.Dimension <= 0 {
		return nil, fmt.Errorf("vector store dimension must be positive")
	}
	return factory(opts, args)
}

func checkDimension(vec []float32, dim int) error {
	if len(vec) != dim {
		return fmt.Errorf("%w: got %d, want %d", appErr.ErrDimensionMismatch, len(vec), dim)
	}
	return nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// rankByCosine scores every candidate against query and keeps the best topK.
func rankByCosine(query []float32, candidates []model.Chunk, topK int) []model.SearchResult {
	results := make([]model.SearchResult, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, model.SearchResult{Chunk: c, Score: cosineSimilarity(query, c.Embedding)})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode vector store config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode vector store config: %w", err)
	}
	return nil
}
