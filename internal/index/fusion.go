package index

import (
	"sort"

	"github.com/localrag/localrag/internal/store"
)

// DefaultRRFConstant is the standard RRF smoothing parameter,
// empirically validated across domains.
const DefaultRRFConstant = 60

// Weights distributes influence between the two search sources.
type Weights struct {
	Keyword float64
	Vector  float64
}

// DefaultWeights splits influence evenly.
func DefaultWeights() Weights {
	return Weights{Keyword: 0.5, Vector: 0.5}
}

// FusedResult is a single result after RRF fusion.
type FusedResult struct {
	ChunkID      string
	RRFScore     float64 // combined score, normalized 0-1
	KeywordScore float64 // original BM25 score
	KeywordRank  int     // 1-indexed, 0 if absent
	VectorScore  float64 // original similarity score
	VectorRank   int     // 1-indexed, 0 if absent
	InBothLists  bool
}

// RRFFusion combines keyword and vector results using Reciprocal Rank
// Fusion:
//
//	RRF_score(d) = Σ weight_i / (k + rank_i)
type RRFFusion struct {
	K int
}

// NewRRFFusion creates an RRF fusion with the given k. Non-positive k
// falls back to the default.
func NewRRFFusion(k int) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k}
}

// Fuse combines keyword and vector results. Documents in only one list
// receive the missing source's contribution at missing_rank =
// max(len(keyword), len(vector)) + 1.
func (f *RRFFusion) Fuse(keyword []*store.KeywordResult, vector []*store.VectorResult, weights Weights) []*FusedResult {
	if len(keyword) == 0 && len(vector) == 0 {
		return []*FusedResult{}
	}

	scores := make(map[string]*FusedResult, len(keyword)+len(vector))

	for rank, r := range keyword {
		result := f.getOrCreate(scores, r.ChunkID)
		result.KeywordScore = r.Score
		result.KeywordRank = rank + 1
		result.RRFScore += weights.Keyword / float64(f.K+rank+1)
	}

	for rank, r := range vector {
		result := f.getOrCreate(scores, r.ChunkID)
		result.VectorScore = float64(r.Score)
		result.VectorRank = rank + 1
		result.RRFScore += weights.Vector / float64(f.K+rank+1)

		if result.KeywordRank > 0 {
			result.InBothLists = true
		}
	}

	missingRank := len(keyword)
	if len(vector) > missingRank {
		missingRank = len(vector)
	}
	missingRank++

	for _, r := range scores {
		if r.KeywordRank == 0 && r.VectorRank > 0 {
			r.RRFScore += weights.Keyword / float64(f.K+missingRank)
		}
		if r.VectorRank == 0 && r.KeywordRank > 0 {
			r.RRFScore += weights.Vector / float64(f.K+missingRank)
		}
	}

	results := f.toSortedSlice(scores)
	f.normalize(results)
	return results
}

func (f *RRFFusion) getOrCreate(m map[string]*FusedResult, id string) *FusedResult {
	if r, ok := m[id]; ok {
		return r
	}
	r := &FusedResult{ChunkID: id}
	m[id] = r
	return r
}

func (f *RRFFusion) toSortedSlice(m map[string]*FusedResult) []*FusedResult {
	results := make([]*FusedResult, 0, len(m))
	for _, r := range m {
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		return f.compare(results[i], results[j])
	})

	return results
}

// compare orders results deterministically: higher RRF score, then
// presence in both lists, then keyword score, then chunk ID.
func (f *RRFFusion) compare(a, b *FusedResult) bool {
	if a.RRFScore != b.RRFScore {
		return a.RRFScore > b.RRFScore
	}
	if a.InBothLists != b.InBothLists {
		return a.InBothLists
	}
	if a.KeywordScore != b.KeywordScore {
		return a.KeywordScore > b.KeywordScore
	}
	return a.ChunkID < b.ChunkID
}

// normalize scales RRF scores so the best result is 1.0.
func (f *RRFFusion) normalize(results []*FusedResult) {
	if len(results) == 0 {
		return
	}
	maxScore := results[0].RRFScore
	if maxScore == 0 {
		return
	}
	for _, r := range results {
		r.RRFScore /= maxScore
	}
}
