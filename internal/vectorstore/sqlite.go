package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/didi/gendry/builder"
	_ "modernc.org/sqlite"

	"github.com/xxxsen/voicerag/internal/model"
	appErr "github.com/xxxsen/voicerag/internal/pkg/errors"
)

const (
	defaultSqlitePath = "data/vectors.db"
	tableCollections  = "vr_collections"
	tablePoints       = "vr_points"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS vr_collections (
		name TEXT PRIMARY KEY,
		dimension INTEGER NOT NULL,
		distance TEXT NOT NULL,
		ctime INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS vr_points (
		id TEXT PRIMARY KEY,
		collection TEXT NOT NULL,
		document_id TEXT NOT NULL,
		page INTEGER NOT NULL,
		position INTEGER NOT NULL,
		content TEXT NOT NULL,
		embedding TEXT NOT NULL,
		ctime INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_vr_points_collection ON vr_points(collection)`,
}

type sqliteConfig struct {
	Path string `json:"path"`
}

// sqliteStore keeps vectors as JSON next to their payload and scores them in
// process. It is the embedded default and suits collections of a few
// thousand chunks.
type sqliteStore struct {
	db         *sql.DB
	collection string
	dimension  int
}

func init() {
	Register("sqlite", createSqliteStore)
}

func createSqliteStore(opts Options, args interface{}) (Store, error) {
	cfg := &sqliteConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = defaultSqlitePath
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create vector store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqliteStore{db: db, collection: opts.Collection, dimension: opts.Dimension}, nil
}

func (s *sqliteStore) Type() string {
	return "sqlite"
}

func (s *sqliteStore) EnsureCollection(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply vector schema: %w", err)
		}
	}
	sqlStr, args, err := builder.BuildSelect(tableCollections, map[string]interface{}{"name": s.collection}, []string{"dimension"})
	if err != nil {
		return err
	}
	var dim int
	err = s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&dim)
	switch {
	case err == nil:
		if dim != s.dimension {
			return fmt.Errorf("%w: collection %s has dimension %d, want %d", appErr.ErrDimensionMismatch, s.collection, dim, s.dimension)
		}
		return nil
	case errors.Is(err, sql.ErrNoRows):
	default:
		return err
	}
	data := map[string]interface{}{
		"name":      s.collection,
		"dimension": s.dimension,
		"distance":  "cosine",
		"ctime":     time.Now().UnixMilli(),
	}
	sqlStr, args, err = builder.BuildInsert(tableCollections, []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr = strings.Replace(sqlStr, "INSERT INTO", "INSERT OR IGNORE INTO", 1)
	_, err = s.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (s *sqliteStore) Upsert(ctx context.Context, chunk *model.Chunk) error {
	if err := checkDimension(chunk.Embedding, s.dimension); err != nil {
		return err
	}
	blob, err := json.Marshal(chunk.Embedding)
	if err != nil {
		return err
	}
	data := map[string]interface{}{
		"id":          chunk.ID,
		"collection":  s.collection,
		"document_id": chunk.DocumentID,
		"page":        chunk.Page,
		"position":    chunk.Position,
		"content":     chunk.Content,
		"embedding":   string(blob),
		"ctime":       chunk.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert(tablePoints, []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr = strings.Replace(sqlStr, "INSERT INTO", "INSERT OR REPLACE INTO", 1)
	_, err = s.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (s *sqliteStore) Search(ctx context.Context, vector []float32, topK int) ([]model.SearchResult, error) {
	if err := checkDimension(vector, s.dimension); err != nil {
		return nil, err
	}
	sqlStr, args, err := builder.BuildSelect(tablePoints, map[string]interface{}{"collection": s.collection},
		[]string{"id", "document_id", "page", "position", "content", "embedding", "ctime"})
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var candidates []model.Chunk
	for rows.Next() {
		var item model.Chunk
		var blob string
		if err := rows.Scan(&item.ID, &item.DocumentID, &item.Page, &item.Position, &item.Content, &blob, &item.Ctime); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(blob), &item.Embedding); err != nil {
			return nil, fmt.Errorf("decode vector %s: %w", item.ID, err)
		}
		candidates = append(candidates, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rankByCosine(vector, candidates, topK), nil
}

func (s *sqliteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM "+tablePoints+" WHERE collection = ?", s.collection).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
