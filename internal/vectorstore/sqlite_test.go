package vectorstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/voicerag/internal/model"
	appErr "github.com/xxxsen/voicerag/internal/pkg/errors"
)

func newTestSqlite(t *testing.T, dim int) (Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vectors.db")
	st, err := New("sqlite", Options{Collection: "test", Dimension: dim}, map[string]interface{}{"path": path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.EnsureCollection(context.Background()))
	return st, path
}

func TestSqliteStore_SearchOrdersByCosine(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestSqlite(t, 3)

	chunks := []*model.Chunk{
		{ID: "a", DocumentID: "doc.pdf", Content: "east", Embedding: []float32{1, 0, 0}},
		{ID: "b", DocumentID: "doc.pdf", Content: "north", Embedding: []float32{0, 1, 0}},
		{ID: "c", DocumentID: "doc.pdf", Content: "north-east", Embedding: []float32{1, 1, 0}},
		{ID: "d", DocumentID: "doc.pdf", Content: "up", Embedding: []float32{0, 0, 1}},
	}
	for _, c := range chunks {
		require.NoError(t, st.Upsert(ctx, c))
	}
	n, err := st.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, n)

	res, err := st.Search(ctx, []float32{1, 0.1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, res, 3)
	require.Equal(t, "a", res[0].Chunk.ID)
	require.Equal(t, "c", res[1].Chunk.ID)
	require.Equal(t, "b", res[2].Chunk.ID)
	require.GreaterOrEqual(t, res[0].Score, res[1].Score)
	require.Equal(t, "east", res[0].Chunk.Content)
}

func TestSqliteStore_SearchSmallCollection(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestSqlite(t, 2)

	res, err := st.Search(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Empty(t, res)

	require.NoError(t, st.Upsert(ctx, &model.Chunk{ID: "x", Embedding: []float32{1, 0}}))
	res, err = st.Search(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, res, 1)
}

func TestSqliteStore_RejectsWrongDimension(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestSqlite(t, 3)

	err := st.Upsert(ctx, &model.Chunk{ID: "x", Embedding: []float32{1, 0}})
	require.True(t, errors.Is(err, appErr.ErrDimensionMismatch))
	_, err = st.Search(ctx, []float32{1}, 3)
	require.True(t, errors.Is(err, appErr.ErrDimensionMismatch))
}

func TestSqliteStore_EnsureCollectionIdempotent(t *testing.T) {
	ctx := context.Background()
	st, path := newTestSqlite(t, 3)
	require.NoError(t, st.EnsureCollection(ctx))
	require.NoError(t, st.Close())

	other, err := New("sqlite", Options{Collection: "test", Dimension: 4}, map[string]interface{}{"path": path})
	require.NoError(t, err)
	defer other.Close()
	err = other.EnsureCollection(ctx)
	require.True(t, errors.Is(err, appErr.ErrDimensionMismatch))
}

func TestNew_Validation(t *testing.T) {
	_, err := New("unknown", Options{Collection: "c", Dimension: 3}, nil)
	require.Error(t, err)
	_, err = New("sqlite", Options{Collection: "", Dimension: 3}, nil)
	require.Error(t, err)
	_, err = New("sqlite", Options{Collection: "c", Dimension: 0}, nil)
	require.Error(t, err)
}

func TestCosineSimilarity(t *testing.T) {
	require.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-6)
	require.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	require.Equal(t, float32(0), cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
	require.Equal(t, float32(0), cosineSimilarity([]float32{1}, []float32{1, 1}))
}
