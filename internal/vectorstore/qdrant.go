package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xxxsen/voicerag/internal/model"
	appErr "github.com/xxxsen/voicerag/internal/pkg/errors"
)

const defaultQdrantURL = "http://localhost:6333"

type qdrantConfig struct {
	URL            string `json:"url"`
	APIKey         string `json:"api_key"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type qdrantStore struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client
}

type qdrantPoint struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector"`
	Payload map[string]interface{} `json:"payload"`
}

type qdrantPayload struct {
	DocumentID string `json:"document_id"`
	Page       int    `json:"page"`
	Position   int    `json:"position"`
	Content    string `json:"content"`
	Ctime      int64  `json:"ctime"`
}

type qdrantSearchResponse struct {
	Result []struct {
		ID      interface{}   `json:"id"`
		Score   float32       `json:"score"`
		Payload qdrantPayload `json:"payload"`
	} `json:"result"`
}

type qdrantCollectionResponse struct {
	Result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size int `json:"size"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

type qdrantCountResponse struct {
	Result struct {
		Count int `json:"count"`
	} `json:"result"`
}

func init() {
	Register("qdrant", createQdrantStore)
}

func createQdrantStore(opts Options, args interface{}) (Store, error) {
	cfg := &qdrantConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if base == "" {
		base = defaultQdrantURL
	}
	client := &http.Client{}
	if cfg.TimeoutSeconds > 0 {
		client.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &qdrantStore{
		url:        base,
		apiKey:     cfg.APIKey,
		collection: opts.Collection,
		dimension:  opts.Dimension,
		client:     client,
	}, nil
}

func (s *qdrantStore) Type() string {
	return "qdrant"
}

func (s *qdrantStore) collectionURL(suffix string) string {
	return s.url + "/collections/" + url.PathEscape(s.collection) + suffix
}

func (s *qdrantStore) EnsureCollection(ctx context.Context) error {
	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     s.dimension,
			"distance": "Cosine",
		},
	}
	status, err := s.do(ctx, http.MethodPut, s.collectionURL(""), body, nil)
	if err == nil {
		return nil
	}
	if !collectionExists(status, err) {
		return err
	}
	var info qdrantCollectionResponse
	if _, err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil, &info); err != nil {
		return err
	}
	if size := info.Result.Config.Params.Vectors.Size; size != 0 && size != s.dimension {
		return fmt.Errorf("%w: collection %s has dimension %d, want %d", appErr.ErrDimensionMismatch, s.collection, size, s.dimension)
	}
	return nil
}

// collectionExists reports a create that failed only because the collection
// is already there. Older qdrant releases answer 400 instead of 409.
func collectionExists(status int, err error) bool {
	switch status {
	case http.StatusConflict:
		return true
	case http.StatusBadRequest:
		return strings.Contains(err.Error(), "already exists")
	}
	return false
}

func (s *qdrantStore) Upsert(ctx context.Context, chunk *model.Chunk) error {
	if err := checkDimension(chunk.Embedding, s.dimension); err != nil {
		return err
	}
	point := qdrantPoint{
		ID:     chunk.ID,
		Vector: chunk.Embedding,
		Payload: map[string]interface{}{
			"document_id": chunk.DocumentID,
			"page":        chunk.Page,
			"position":    chunk.Position,
			"content":     chunk.Content,
			"ctime":       chunk.Ctime,
		},
	}
	_, err := s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), map[string]interface{}{
		"points": []qdrantPoint{point},
	}, nil)
	return err
}

func (s *qdrantStore) Search(ctx context.Context, vector []float32, topK int) ([]model.SearchResult, error) {
	if err := checkDimension(vector, s.dimension); err != nil {
		return nil, err
	}
	var resp qdrantSearchResponse
	_, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), map[string]interface{}{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	results := make([]model.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, model.SearchResult{
			Chunk: model.Chunk{
				ID:         fmt.Sprint(r.ID),
				DocumentID: r.Payload.DocumentID,
				Page:       r.Payload.Page,
				Position:   r.Payload.Position,
				Content:    r.Payload.Content,
				Ctime:      r.Payload.Ctime,
			},
			Score: r.Score,
		})
	}
	return results, nil
}

func (s *qdrantStore) Count(ctx context.Context) (int, error) {
	var resp qdrantCountResponse
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/count"), map[string]interface{}{"exact": true}, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

func (s *qdrantStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *qdrantStore) do(ctx context.Context, method, endpoint string, body interface{}, out interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: qdrant %s: %w", appErr.ErrExternalService, method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("%w: qdrant %s %s failed: %s: %s", appErr.ErrExternalService, method, endpoint, resp.Status, strings.TrimSpace(string(raw)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("%w: decode qdrant response: %w", appErr.ErrExternalService, err)
		}
	}
	return resp.StatusCode, nil
}
