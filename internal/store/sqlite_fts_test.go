package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localrag/localrag/internal/identity"
)

func newMemoryIndex(t *testing.T) *SQLiteKeywordIndex {
	t.Helper()
	idx, err := NewSQLiteKeywordIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func testChunk(source identity.Identity, i, n int, content string) Chunk {
	return Chunk{
		ID:          string(source) + "#" + string(rune('0'+i)),
		Source:      source,
		Index:       i,
		Count:       n,
		Content:     content,
		ProcessedAt: time.Now(),
	}
}

func TestKeywordIndex_IndexAndSearch(t *testing.T) {
	idx := newMemoryIndex(t)
	ctx := context.Background()

	src := identity.Identity("/docs/notes.txt")
	require.NoError(t, idx.IndexChunks(ctx, []Chunk{
		testChunk(src, 0, 2, "kubernetes deployment rollout strategy"),
		testChunk(src, 1, 2, "gardening tips for spring tomatoes"),
	}))

	results, err := idx.Search(ctx, "kubernetes rollout", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, string(src)+"#0", results[0].ChunkID)
	assert.Greater(t, results[0].Score, 0.0)
}

func TestKeywordIndex_UpsertReplacesContent(t *testing.T) {
	idx := newMemoryIndex(t)
	ctx := context.Background()

	src := identity.Identity("/docs/a.txt")
	chunk := testChunk(src, 0, 1, "original topic alpha")
	require.NoError(t, idx.IndexChunks(ctx, []Chunk{chunk}))

	chunk.Content = "replacement topic bravo"
	require.NoError(t, idx.IndexChunks(ctx, []Chunk{chunk}))

	// Old content no longer matches.
	results, err := idx.Search(ctx, "alpha", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	// New content matches, and there is exactly one chunk.
	results, err = idx.Search(ctx, "bravo", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestKeywordIndex_IDsBySourceInChunkOrder(t *testing.T) {
	idx := newMemoryIndex(t)
	ctx := context.Background()

	src := identity.Identity("/docs/multi.txt")
	other := identity.Identity("/docs/other.txt")
	require.NoError(t, idx.IndexChunks(ctx, []Chunk{
		testChunk(src, 2, 3, "part three"),
		testChunk(src, 0, 3, "part one"),
		testChunk(src, 1, 3, "part two"),
		testChunk(other, 0, 1, "unrelated"),
	}))

	ids, err := idx.IDsBySource(ctx, src)
	require.NoError(t, err)
	require.Len(t, ids, 3)
	assert.Equal(t, string(src)+"#0", ids[0])
	assert.Equal(t, string(src)+"#1", ids[1])
	assert.Equal(t, string(src)+"#2", ids[2])
}

func TestKeywordIndex_IDsBySourceUnknownIsEmpty(t *testing.T) {
	idx := newMemoryIndex(t)

	ids, err := idx.IDsBySource(context.Background(), identity.Identity("/docs/never-indexed.txt"))
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestKeywordIndex_DeleteRemovesFromSearch(t *testing.T) {
	idx := newMemoryIndex(t)
	ctx := context.Background()

	src := identity.Identity("/docs/a.txt")
	chunk := testChunk(src, 0, 1, "ephemeral content")
	require.NoError(t, idx.IndexChunks(ctx, []Chunk{chunk}))

	require.NoError(t, idx.Delete(ctx, []string{chunk.ID}))

	results, err := idx.Search(ctx, "ephemeral", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	// Deleting again is a no-op.
	require.NoError(t, idx.Delete(ctx, []string{chunk.ID}))
}

func TestKeywordIndex_GetChunksPreservesOrder(t *testing.T) {
	idx := newMemoryIndex(t)
	ctx := context.Background()

	src := identity.Identity("/docs/a.txt")
	c0 := testChunk(src, 0, 2, "zero")
	c1 := testChunk(src, 1, 2, "one")
	require.NoError(t, idx.IndexChunks(ctx, []Chunk{c0, c1}))

	chunks, err := idx.GetChunks(ctx, []string{c1.ID, c0.ID, "missing-id"})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, c1.ID, chunks[0].ID)
	assert.Equal(t, c0.ID, chunks[1].ID)
	assert.Equal(t, src, chunks[0].Source)
	assert.Equal(t, "one", chunks[0].Content)
}

func TestKeywordIndex_EmptyQuery(t *testing.T) {
	idx := newMemoryIndex(t)

	results, err := idx.Search(context.Background(), "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestKeywordIndex_StopWordOnlyQuery(t *testing.T) {
	idx := newMemoryIndex(t)

	results, err := idx.Search(context.Background(), "the of and", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestKeywordIndex_Counts(t *testing.T) {
	idx := newMemoryIndex(t)
	ctx := context.Background()

	a := identity.Identity("/docs/a.txt")
	b := identity.Identity("/docs/b.txt")
	require.NoError(t, idx.IndexChunks(ctx, []Chunk{
		testChunk(a, 0, 2, "alpha"),
		testChunk(a, 1, 2, "beta"),
		testChunk(b, 0, 1, "gamma"),
	}))

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	sources, err := idx.SourceCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sources)
}

func TestKeywordIndex_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keyword.db")
	ctx := context.Background()

	idx, err := NewSQLiteKeywordIndex(path)
	require.NoError(t, err)

	src := identity.Identity("/docs/durable.txt")
	require.NoError(t, idx.IndexChunks(ctx, []Chunk{testChunk(src, 0, 1, "durable content survives restarts")}))
	require.NoError(t, idx.Close())

	reopened, err := NewSQLiteKeywordIndex(path)
	require.NoError(t, err)
	defer reopened.Close()

	results, err := reopened.Search(ctx, "durable", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestTokenize(t *testing.T) {
	tokens := Tokenize("The quick brown Fox, and a dog! 42")
	assert.Equal(t, []string{"quick", "brown", "fox", "dog", "42"}, tokens)
}
