package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDims = 4

func newTestVectorStore(t *testing.T) *HNSWStore {
	t.Helper()
	s, err := NewHNSWStore(DefaultVectorStoreConfig(testDims))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestHNSWStore_AddAndSearch(t *testing.T) {
	s := newTestVectorStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx,
		[]string{"a", "b", "c"},
		[][]float32{
			{1, 0, 0, 0},
			{0, 1, 0, 0},
			{0, 0, 1, 0},
		}))

	results, err := s.Search(ctx, []float32{1, 0.1, 0, 0}, 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a", results[0].ChunkID)
	assert.Greater(t, results[0].Score, float32(0.9))
}

func TestHNSWStore_UpsertReplacesVector(t *testing.T) {
	s := newTestVectorStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, []string{"a"}, [][]float32{{1, 0, 0, 0}}))
	require.NoError(t, s.Add(ctx, []string{"a"}, [][]float32{{0, 0, 0, 1}}))

	assert.Equal(t, 1, s.Count())

	results, err := s.Search(ctx, []float32{0, 0, 0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ChunkID)
	assert.Greater(t, results[0].Score, float32(0.99))
}

func TestHNSWStore_DeleteIsLazyButHidden(t *testing.T) {
	s := newTestVectorStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx,
		[]string{"keep", "drop"},
		[][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}))

	require.NoError(t, s.Delete(ctx, []string{"drop"}))
	assert.False(t, s.Contains("drop"))
	assert.Equal(t, 1, s.Count())

	// Deleted IDs never surface in results.
	results, err := s.Search(ctx, []float32{0, 1, 0, 0}, 5)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "drop", r.ChunkID)
	}

	// Deleting again is a no-op.
	require.NoError(t, s.Delete(ctx, []string{"drop"}))
}

func TestHNSWStore_DimensionMismatch(t *testing.T) {
	s := newTestVectorStore(t)
	ctx := context.Background()

	err := s.Add(ctx, []string{"a"}, [][]float32{{1, 0}})
	require.Error(t, err)
	assert.IsType(t, ErrDimensionMismatch{}, err)

	_, err = s.Search(ctx, []float32{1, 0}, 1)
	require.Error(t, err)
}

func TestHNSWStore_EmptySearch(t *testing.T) {
	s := newTestVectorStore(t)

	results, err := s.Search(context.Background(), []float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHNSWStore_SaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vector.hnsw")
	ctx := context.Background()

	s := newTestVectorStore(t)
	require.NoError(t, s.Add(ctx,
		[]string{"x", "y"},
		[][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}))
	require.NoError(t, s.Save(path))

	loaded, err := NewHNSWStore(DefaultVectorStoreConfig(testDims))
	require.NoError(t, err)
	defer loaded.Close()
	require.NoError(t, loaded.Load(path))

	assert.Equal(t, 2, loaded.Count())
	assert.True(t, loaded.Contains("x"))

	results, err := loaded.Search(ctx, []float32{0, 1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "y", results[0].ChunkID)
}

func TestHNSWStore_ClosedOperationsFail(t *testing.T) {
	s, err := NewHNSWStore(DefaultVectorStoreConfig(testDims))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.Error(t, s.Add(context.Background(), []string{"a"}, [][]float32{{1, 0, 0, 0}}))
	_, err = s.Search(context.Background(), []float32{1, 0, 0, 0}, 1)
	assert.Error(t, err)
	assert.Equal(t, 0, s.Count())
	assert.False(t, s.Contains("a"))
}
