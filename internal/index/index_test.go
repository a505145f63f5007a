package index

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localrag/localrag/internal/embed"
	"github.com/localrag/localrag/internal/identity"
	"github.com/localrag/localrag/internal/store"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()

	keyword, err := store.NewSQLiteKeywordIndex("")
	require.NoError(t, err)

	embedder := embed.NewStaticEmbedder()
	vector, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(embedder.Dimensions()))
	require.NoError(t, err)

	ix := New(keyword, vector, embedder, Options{}, nil)
	t.Cleanup(func() { _ = ix.Close() })
	return ix
}

func TestIndex_UpsertAndSearch(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	id := identity.Identity("/docs/welcome.txt")
	n, err := ix.Upsert(ctx, id, "hello world, this is a welcome document about greetings")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	results, err := ix.Search(ctx, "hello greetings", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, id, results[0].Chunk.Source)
	assert.Equal(t, ChunkID(id, 0), results[0].Chunk.ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
}

func TestIndex_UpsertReplacesOldContent(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	id := identity.Identity("/docs/welcome.txt")
	_, err := ix.Upsert(ctx, id, "hello world greeting")
	require.NoError(t, err)

	_, err = ix.Upsert(ctx, id, "goodbye world farewell")
	require.NoError(t, err)

	// Old content is gone from keyword search.
	results, err := ix.Search(ctx, "hello greeting", 5)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotContains(t, r.Chunk.Content, "hello")
	}

	results, err = ix.Search(ctx, "goodbye farewell", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "goodbye world farewell", results[0].Chunk.Content)

	// No stale chunks: exactly one chunk, one vector.
	stats, err := ix.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, 1, stats.Chunks)
	assert.Equal(t, 1, stats.Vectors)
}

func TestIndex_UpsertShrinkingDocumentLeavesNoOrphans(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	long := ""
	for i := 0; i < 50; i++ {
		long += "paragraph about distributed systems and consensus protocols\n\n"
	}

	id := identity.Identity("/docs/shrink.txt")
	n, err := ix.Upsert(ctx, id, long)
	require.NoError(t, err)
	require.Greater(t, n, 1)

	n, err = ix.Upsert(ctx, id, "short replacement text")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stats, err := ix.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Chunks)
	assert.Equal(t, 1, stats.Vectors)
}

func TestIndex_RemoveIsIdempotent(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	id := identity.Identity("/docs/gone.txt")
	_, err := ix.Upsert(ctx, id, "content that will be removed")
	require.NoError(t, err)

	require.NoError(t, ix.Remove(ctx, id))
	require.NoError(t, ix.Remove(ctx, id))
	require.NoError(t, ix.Remove(ctx, identity.Identity("/docs/never-indexed.txt")))

	stats, err := ix.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Chunks)
	assert.Equal(t, 0, stats.Vectors)
}

func TestIndex_UpsertEmptyTextRemovesDocument(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	id := identity.Identity("/docs/emptied.txt")
	_, err := ix.Upsert(ctx, id, "some initial content here")
	require.NoError(t, err)

	n, err := ix.Upsert(ctx, id, "   \n  ")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	stats, err := ix.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Chunks)
}

func TestIndex_SearchRanksTopicalMatchFirst(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	_, err := ix.Upsert(ctx, identity.Identity("/docs/cooking.txt"),
		"recipes for baking bread with sourdough starter and flour")
	require.NoError(t, err)
	_, err = ix.Upsert(ctx, identity.Identity("/docs/astronomy.txt"),
		"telescopes observe distant galaxies and nebulae at night")
	require.NoError(t, err)

	results, err := ix.Search(ctx, "sourdough bread baking", 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, identity.Identity("/docs/cooking.txt"), results[0].Chunk.Source)
	assert.True(t, results[0].InBothLists)
}

func TestIndex_RemoveByEquivalentPathForm(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	// A relative path and its absolute form normalize to the same
	// identity, so chunks added under one are removable under the other.
	rel := "docs/consistency.txt"
	abs, err := filepath.Abs(rel)
	require.NoError(t, err)

	relID := identity.MustNormalize(rel)
	absID := identity.MustNormalize(abs)
	require.Equal(t, relID, absID)

	_, err = ix.Upsert(ctx, relID, "content added under the relative form")
	require.NoError(t, err)

	require.NoError(t, ix.Remove(ctx, absID))

	stats, err := ix.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Chunks)
	assert.Equal(t, 0, stats.Vectors)
}

func TestIndex_SearchEmptyIndex(t *testing.T) {
	ix := newTestIndex(t)

	results, err := ix.Search(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestIndex_PersistAndReload(t *testing.T) {
	dir := t.TempDir()
	keywordPath := filepath.Join(dir, "keyword.db")
	vectorPath := filepath.Join(dir, "vector.hnsw")
	ctx := context.Background()

	keyword, err := store.NewSQLiteKeywordIndex(keywordPath)
	require.NoError(t, err)
	embedder := embed.NewStaticEmbedder()
	vector, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(embedder.Dimensions()))
	require.NoError(t, err)

	ix := New(keyword, vector, embedder, Options{VectorPath: vectorPath}, nil)
	id := identity.Identity("/docs/durable.txt")
	_, err = ix.Upsert(ctx, id, "durable content survives a restart")
	require.NoError(t, err)
	require.NoError(t, ix.Close())

	keyword2, err := store.NewSQLiteKeywordIndex(keywordPath)
	require.NoError(t, err)
	vector2, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(embedder.Dimensions()))
	require.NoError(t, err)
	require.NoError(t, vector2.Load(vectorPath))

	ix2 := New(keyword2, vector2, embed.NewStaticEmbedder(), Options{VectorPath: vectorPath}, nil)
	defer ix2.Close()

	results, err := ix2.Search(ctx, "durable restart", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, id, results[0].Chunk.Source)

	stats, err := ix2.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Vectors)
}
