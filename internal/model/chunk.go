package model

// Chunk is one overlapping text window of a source document together with
// its embedding. Chunks are written once and never mutated.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Page       int       `json:"page"`
	Position   int       `json:"position"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"-"`
	Ctime      int64     `json:"ctime"`
}

type SearchResult struct {
	Chunk Chunk   `json:"chunk"`
	Score float32 `json:"score"`
}
