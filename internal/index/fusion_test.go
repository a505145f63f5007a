package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localrag/localrag/internal/store"
)

func keywordList(ids ...string) []*store.KeywordResult {
	out := make([]*store.KeywordResult, len(ids))
	for i, id := range ids {
		out[i] = &store.KeywordResult{ChunkID: id, Score: float64(len(ids) - i)}
	}
	return out
}

func vectorList(ids ...string) []*store.VectorResult {
	out := make([]*store.VectorResult, len(ids))
	for i, id := range ids {
		out[i] = &store.VectorResult{ChunkID: id, Score: float32(len(ids)-i) / float32(len(ids))}
	}
	return out
}

func TestRRFFusion_BothListsWinOverSingle(t *testing.T) {
	f := NewRRFFusion(60)

	// "shared" ranks second in both lists, "kw" and "vec" each lead one.
	results := f.Fuse(
		keywordList("kw", "shared"),
		vectorList("vec", "shared"),
		DefaultWeights(),
	)

	require.Len(t, results, 3)
	assert.Equal(t, "shared", results[0].ChunkID)
	assert.True(t, results[0].InBothLists)
	assert.InDelta(t, 1.0, results[0].RRFScore, 1e-9)
}

func TestRRFFusion_SingleSourceStillScored(t *testing.T) {
	f := NewRRFFusion(60)

	results := f.Fuse(keywordList("only-kw"), nil, DefaultWeights())

	require.Len(t, results, 1)
	r := results[0]
	assert.Equal(t, 1, r.KeywordRank)
	assert.Equal(t, 0, r.VectorRank)
	assert.False(t, r.InBothLists)
	assert.InDelta(t, 1.0, r.RRFScore, 1e-9)
}

func TestRRFFusion_WeightsShiftRanking(t *testing.T) {
	f := NewRRFFusion(60)
	keyword := keywordList("kw-top")
	vector := vectorList("vec-top")

	results := f.Fuse(keyword, vector, Weights{Keyword: 0.9, Vector: 0.1})
	assert.Equal(t, "kw-top", results[0].ChunkID)

	results = f.Fuse(keyword, vector, Weights{Keyword: 0.1, Vector: 0.9})
	assert.Equal(t, "vec-top", results[0].ChunkID)
}

func TestRRFFusion_TieBreaksByChunkID(t *testing.T) {
	f := NewRRFFusion(60)

	// Symmetric inputs give identical RRF scores and keyword scores.
	keyword := []*store.KeywordResult{
		{ChunkID: "bravo", Score: 1.0},
		{ChunkID: "alpha", Score: 1.0},
	}
	// Same IDs at the same ranks in the vector list, reversed.
	vector := []*store.VectorResult{
		{ChunkID: "alpha", Score: 0.5},
		{ChunkID: "bravo", Score: 0.5},
	}

	results := f.Fuse(keyword, vector, DefaultWeights())
	require.Len(t, results, 2)
	assert.Equal(t, "alpha", results[0].ChunkID)
	assert.Equal(t, "bravo", results[1].ChunkID)
}

func TestRRFFusion_EmptyInputs(t *testing.T) {
	f := NewRRFFusion(0)
	assert.Equal(t, DefaultRRFConstant, f.K)

	results := f.Fuse(nil, nil, DefaultWeights())
	assert.Empty(t, results)
}

func TestRRFFusion_ScoresNormalizedToUnit(t *testing.T) {
	f := NewRRFFusion(60)

	results := f.Fuse(
		keywordList("a", "b", "c"),
		vectorList("b", "c", "d"),
		DefaultWeights(),
	)

	require.NotEmpty(t, results)
	assert.InDelta(t, 1.0, results[0].RRFScore, 1e-9)
	for _, r := range results {
		assert.LessOrEqual(t, r.RRFScore, 1.0)
		assert.Greater(t, r.RRFScore, 0.0)
	}
}
