// Package index ties chunking, embedding, keyword search, and vector
// search together behind a single document-level facade.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/localrag/localrag/internal/chunk"
	"github.com/localrag/localrag/internal/embed"
	"github.com/localrag/localrag/internal/errors"
	"github.com/localrag/localrag/internal/identity"
	"github.com/localrag/localrag/internal/store"
)

// candidateMultiplier oversamples each source before fusion so that
// results strong in only one list can still reach the final top-k.
const candidateMultiplier = 3

// Options configures the index.
type Options struct {
	// ChunkSize is the target chunk size in characters.
	ChunkSize int

	// ChunkOverlap is the context shared between adjacent chunks.
	ChunkOverlap int

	// Weights distributes influence between keyword and vector search.
	Weights Weights

	// RRFConstant is the RRF smoothing parameter k.
	RRFConstant int

	// MaxResults caps the number of search results.
	MaxResults int

	// VectorPath is where the vector index is persisted.
	VectorPath string
}

// WithDefaults fills zero fields with defaults.
func (o Options) WithDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = chunk.DefaultChunkSize
	}
	if o.ChunkOverlap <= 0 {
		o.ChunkOverlap = chunk.DefaultOverlap
	}
	if o.Weights.Keyword == 0 && o.Weights.Vector == 0 {
		o.Weights = DefaultWeights()
	}
	if o.RRFConstant <= 0 {
		o.RRFConstant = DefaultRRFConstant
	}
	if o.MaxResults <= 0 {
		o.MaxResults = 10
	}
	return o
}

// Result is a single search result with its chunk content.
type Result struct {
	Chunk        store.Chunk
	Score        float64
	KeywordScore float64
	VectorScore  float64
	InBothLists  bool
}

// Stats summarizes the index contents.
type Stats struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
	Vectors   int `json:"vectors"`
}

// Index is the document-level facade over the keyword and vector stores.
// Upsert and Remove keep the two stores consistent with each other; the
// keyword index is the source of truth for a document's chunk IDs.
type Index struct {
	keyword  store.KeywordIndex
	vector   store.VectorStore
	embedder embed.Embedder
	splitter *chunk.Splitter
	fusion   *RRFFusion
	opts     Options
	logger   *slog.Logger
}

// New creates an index over the given stores and embedder.
func New(keyword store.KeywordIndex, vector store.VectorStore, embedder embed.Embedder, opts Options, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.WithDefaults()
	return &Index{
		keyword:  keyword,
		vector:   vector,
		embedder: embedder,
		splitter: chunk.NewSplitter(chunk.Options{Size: opts.ChunkSize, Overlap: opts.ChunkOverlap}),
		fusion:   NewRRFFusion(opts.RRFConstant),
		opts:     opts,
		logger:   logger.With("component", "index"),
	}
}

// ChunkID derives the stable chunk ID for a document chunk.
func ChunkID(id identity.Identity, index int) string {
	return fmt.Sprintf("%s#%d", id, index)
}

// Upsert replaces a document's chunks with chunks of the given text.
// Any previously indexed chunks for the identity are removed first, so
// the operation is safe to repeat and never leaves stale chunks behind.
// Returns the number of chunks indexed.
func (ix *Index) Upsert(ctx context.Context, id identity.Identity, text string) (int, error) {
	if err := ix.Remove(ctx, id); err != nil {
		return 0, err
	}

	pieces := ix.splitter.Split(text)
	if len(pieces) == 0 {
		return 0, nil
	}

	now := time.Now()
	chunks := make([]store.Chunk, len(pieces))
	for i, content := range pieces {
		chunks[i] = store.Chunk{
			ID:          ChunkID(id, i),
			Source:      id,
			Index:       i,
			Count:       len(pieces),
			Content:     content,
			ProcessedAt: now,
		}
	}

	vectors, err := ix.embedder.EmbedBatch(ctx, pieces)
	if err != nil {
		return 0, errors.New(errors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("embedding failed for %s", id), err)
	}

	if err := ix.keyword.IndexChunks(ctx, chunks); err != nil {
		return 0, errors.IndexError(fmt.Sprintf("keyword index write failed for %s", id), err)
	}

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	if err := ix.vector.Add(ctx, ids, vectors); err != nil {
		return 0, errors.IndexError(fmt.Sprintf("vector index write failed for %s", id), err)
	}

	ix.logger.Debug("document indexed", "identity", string(id), "chunks", len(chunks))
	return len(chunks), nil
}

// Remove deletes a document's chunks from both stores. Removing a
// document that was never indexed is a no-op.
func (ix *Index) Remove(ctx context.Context, id identity.Identity) error {
	ids, err := ix.keyword.IDsBySource(ctx, id)
	if err != nil {
		return errors.IndexError(fmt.Sprintf("chunk lookup failed for %s", id), err)
	}
	if len(ids) == 0 {
		return nil
	}

	if err := ix.vector.Delete(ctx, ids); err != nil {
		return errors.IndexError(fmt.Sprintf("vector delete failed for %s", id), err)
	}
	if err := ix.keyword.Delete(ctx, ids); err != nil {
		return errors.IndexError(fmt.Sprintf("keyword delete failed for %s", id), err)
	}

	ix.logger.Debug("document removed", "identity", string(id), "chunks", len(ids))
	return nil
}

// Search runs hybrid keyword + vector search and fuses the results with
// RRF. Results carry full chunk content. An empty query yields no
// results.
func (ix *Index) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = ix.opts.MaxResults
	}
	candidates := limit * candidateMultiplier

	keywordResults, err := ix.keyword.Search(ctx, query, candidates)
	if err != nil {
		return nil, errors.IndexError("keyword search failed", err)
	}

	var vectorResults []*store.VectorResult
	queryVec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		// Degrade to keyword-only rather than failing the search.
		ix.logger.Warn("query embedding failed, keyword-only search", "error", err)
	} else {
		vectorResults, err = ix.vector.Search(ctx, queryVec, candidates)
		if err != nil {
			return nil, errors.IndexError("vector search failed", err)
		}
	}

	fused := ix.fusion.Fuse(keywordResults, vectorResults, ix.opts.Weights)
	if len(fused) > limit {
		fused = fused[:limit]
	}
	if len(fused) == 0 {
		return []Result{}, nil
	}

	ids := make([]string, len(fused))
	for i, f := range fused {
		ids[i] = f.ChunkID
	}
	chunks, err := ix.keyword.GetChunks(ctx, ids)
	if err != nil {
		return nil, errors.IndexError("chunk retrieval failed", err)
	}

	byID := make(map[string]store.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	results := make([]Result, 0, len(fused))
	for _, f := range fused {
		c, ok := byID[f.ChunkID]
		if !ok {
			// The chunk was deleted between search and retrieval.
			continue
		}
		results = append(results, Result{
			Chunk:        c,
			Score:        f.RRFScore,
			KeywordScore: f.KeywordScore,
			VectorScore:  f.VectorScore,
			InBothLists:  f.InBothLists,
		})
	}

	return results, nil
}

// Stats returns document, chunk, and vector counts.
func (ix *Index) Stats(ctx context.Context) (Stats, error) {
	chunks, err := ix.keyword.Count(ctx)
	if err != nil {
		return Stats{}, errors.IndexError("chunk count failed", err)
	}
	docs, err := ix.keyword.SourceCount(ctx)
	if err != nil {
		return Stats{}, errors.IndexError("document count failed", err)
	}
	return Stats{
		Documents: docs,
		Chunks:    chunks,
		Vectors:   ix.vector.Count(),
	}, nil
}

// Persist flushes both stores to disk.
func (ix *Index) Persist() error {
	if ix.opts.VectorPath != "" {
		if err := ix.vector.Save(ix.opts.VectorPath); err != nil {
			return errors.IndexError("vector index save failed", err)
		}
	}
	if err := ix.keyword.Checkpoint(); err != nil {
		return errors.IndexError("keyword index checkpoint failed", err)
	}
	return nil
}

// Close persists and closes both stores.
func (ix *Index) Close() error {
	persistErr := ix.Persist()

	if err := ix.keyword.Close(); err != nil && persistErr == nil {
		persistErr = err
	}
	if err := ix.vector.Close(); err != nil && persistErr == nil {
		persistErr = err
	}
	return persistErr
}
