package embedcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	appErr "github.com/xxxsen/voicerag/internal/pkg/errors"
)

type countingEmbedder struct {
	calls int
	vec   []float32
}

func (c *countingEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	c.calls++
	return append([]float32(nil), c.vec...), nil
}

func (c *countingEmbedder) ModelName() string { return "fake" }

func TestWrap_CachesByTextAndTask(t *testing.T) {
	base := &countingEmbedder{vec: []float32{1, 2}}
	e := WrapLruCacheToEmbedder(base, 16, time.Minute)

	v1, err := e.Embed(context.Background(), "hello", "q")
	require.NoError(t, err)
	v1[0] = 99
	v2, err := e.Embed(context.Background(), "hello", "q")
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2}, v2)
	require.Equal(t, 1, base.calls)

	_, err = e.Embed(context.Background(), "hello", "doc")
	require.NoError(t, err)
	require.Equal(t, 2, base.calls)
}

func TestWrap_DisabledReturnsInner(t *testing.T) {
	base := &countingEmbedder{}
	require.Same(t, base, WrapLruCacheToEmbedder(base, 0, time.Minute))
}

func TestWithDimension(t *testing.T) {
	e := WithDimension(&countingEmbedder{vec: []float32{1, 2, 3}}, 3)
	_, err := e.Embed(context.Background(), "x", "")
	require.NoError(t, err)

	e = WithDimension(&countingEmbedder{vec: []float32{1, 2}}, 3)
	_, err = e.Embed(context.Background(), "x", "")
	require.True(t, errors.Is(err, appErr.ErrDimensionMismatch))
}
