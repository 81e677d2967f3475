package vectorstore

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/voicerag/internal/model"
	appErr "github.com/xxxsen/voicerag/internal/pkg/errors"
)

var identRegex = regexp.MustCompile(`[^a-z0-9_]+`)

type pgvectorConfig struct {
	DSN string `json:"dsn"`
}

// pgvectorStore keeps one table per collection and lets postgres rank rows
// with the <=> cosine distance operator.
type pgvectorStore struct {
	db        *sqlx.DB
	table     string
	dimension int
}

type pgvectorRow struct {
	ID         string  `db:"id"`
	DocumentID string  `db:"document_id"`
	Page       int     `db:"page"`
	Position   int     `db:"position"`
	Content    string  `db:"content"`
	Ctime      int64   `db:"ctime"`
	Distance   float64 `db:"distance"`
}

func init() {
	Register("pgvector", createPgvectorStore)
}

func createPgvectorStore(opts Options, args interface{}) (Store, error) {
	cfg := &pgvectorConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("pgvector dsn is required")
	}
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &pgvectorStore{db: db, table: tableName(opts.Collection), dimension: opts.Dimension}, nil
}

func tableName(collection string) string {
	return "vr_" + identRegex.ReplaceAllString(strings.ToLower(collection), "_")
}

func (s *pgvectorStore) Type() string {
	return "pgvector"
}

func (s *pgvectorStore) EnsureCollection(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			page INTEGER NOT NULL,
			position INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			ctime BIGINT NOT NULL
		)`, s.table, s.dimension),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure pgvector collection: %w", err)
		}
	}
	var dim int
	err := s.db.GetContext(ctx, &dim, `SELECT atttypmod FROM pg_attribute
		WHERE attrelid = $1::regclass AND attname = 'embedding'`, s.table)
	if err != nil {
		return fmt.Errorf("inspect pgvector collection: %w", err)
	}
	if dim > 0 && dim != s.dimension {
		return fmt.Errorf("%w: table %s has dimension %d, want %d", appErr.ErrDimensionMismatch, s.table, dim, s.dimension)
	}
	return nil
}

func (s *pgvectorStore) Upsert(ctx context.Context, chunk *model.Chunk) error {
	if err := checkDimension(chunk.Embedding, s.dimension); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, upsertQuery(s.table),
		chunk.ID, chunk.DocumentID, chunk.Page, chunk.Position, chunk.Content,
		pgvector.NewVector(chunk.Embedding), chunk.Ctime)
	return err
}

func (s *pgvectorStore) Search(ctx context.Context, vector []float32, topK int) ([]model.SearchResult, error) {
	if err := checkDimension(vector, s.dimension); err != nil {
		return nil, err
	}
	var rows []pgvectorRow
	if err := s.db.SelectContext(ctx, &rows, searchQuery(s.table), pgvector.NewVector(vector), topK); err != nil {
		return nil, err
	}
	return rowsToResults(rows), nil
}

func upsertQuery(table string) string {
	return sqlx.Rebind(sqlx.DOLLAR, fmt.Sprintf(`INSERT INTO %s (id, document_id, page, position, content, embedding, ctime)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, embedding = EXCLUDED.embedding`, table))
}

// searchQuery ranks by cosine distance, nearest first.
func searchQuery(table string) string {
	return sqlx.Rebind(sqlx.DOLLAR, fmt.Sprintf(`SELECT id, document_id, page, position, content, ctime, embedding <=> ? AS distance
		FROM %s ORDER BY distance LIMIT ?`, table))
}

func rowsToResults(rows []pgvectorRow) []model.SearchResult {
	results := make([]model.SearchResult, 0, len(rows))
	for _, r := range rows {
		results = append(results, model.SearchResult{
			Chunk: model.Chunk{
				ID:         r.ID,
				DocumentID: r.DocumentID,
				Page:       r.Page,
				Position:   r.Position,
				Content:    r.Content,
				Ctime:      r.Ctime,
			},
			Score: float32(1 - r.Distance),
		})
	}
	return results
}

func (s *pgvectorStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, fmt.Sprintf("SELECT COUNT(1) FROM %s", s.table)); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *pgvectorStore) Close() error {
	return s.db.Close()
}
