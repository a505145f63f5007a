// Package store provides the persistence layer for indexed chunks:
// keyword search via SQLite FTS5 and vector search via HNSW.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/localrag/localrag/internal/identity"
)

// Chunk is a retrievable unit of document content.
type Chunk struct {
	// ID uniquely identifies the chunk, derived from the source
	// identity and chunk index.
	ID string

	// Source is the identity of the file the chunk came from. It is
	// the join key used to find and remove a document's chunks.
	Source identity.Identity

	// Index is the chunk's position within the document, 0-based.
	Index int

	// Count is the total number of chunks in the document.
	Count int

	// Content is the chunk text.
	Content string

	// ProcessedAt is when the chunk was indexed.
	ProcessedAt time.Time
}

// KeywordResult is a single BM25 search result.
type KeywordResult struct {
	ChunkID string
	Score   float64
}

// KeywordIndex provides BM25 keyword search over chunks and is the
// source of truth for which chunks belong to which document.
type KeywordIndex interface {
	// IndexChunks adds chunks. An existing chunk ID is replaced.
	IndexChunks(ctx context.Context, chunks []Chunk) error

	// Search returns chunk IDs matching the query, best first.
	Search(ctx context.Context, query string, limit int) ([]*KeywordResult, error)

	// Delete removes chunks by ID. Unknown IDs are ignored.
	Delete(ctx context.Context, ids []string) error

	// IDsBySource returns the chunk IDs belonging to a document.
	IDsBySource(ctx context.Context, source identity.Identity) ([]string, error)

	// GetChunks retrieves chunks by ID, preserving request order.
	GetChunks(ctx context.Context, ids []string) ([]Chunk, error)

	// AllIDs returns every chunk ID in the index.
	AllIDs(ctx context.Context) ([]string, error)

	// Count returns the number of indexed chunks.
	Count(ctx context.Context) (int, error)

	// SourceCount returns the number of distinct documents.
	SourceCount(ctx context.Context) (int, error)

	// Checkpoint flushes pending writes to the main database file.
	Checkpoint() error

	Close() error
}

// VectorResult is a single vector search result.
type VectorResult struct {
	ChunkID  string
	Distance float32 // lower is more similar, 0-2 for cosine
	Score    float32 // normalized similarity, 0-1
}

// VectorStore provides approximate nearest neighbor search.
type VectorStore interface {
	// Add inserts vectors with their chunk IDs. Existing IDs are replaced.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search finds the k nearest neighbors of the query vector.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	// Delete removes vectors by chunk ID. Unknown IDs are ignored.
	Delete(ctx context.Context, ids []string) error

	// Contains reports whether a chunk ID exists.
	Contains(id string) bool

	// Count returns the number of live vectors.
	Count() int

	// Save persists the index to disk.
	Save(path string) error

	// Load restores the index from disk.
	Load(path string) error

	Close() error
}

// VectorStoreConfig configures the HNSW vector store.
type VectorStoreConfig struct {
	// Dimensions is the embedding vector size.
	Dimensions int

	// Metric is the distance metric: "cos" or "l2" (default "cos").
	Metric string

	// M is the HNSW max connections per layer.
	M int

	// EfSearch is the HNSW query-time search width.
	EfSearch int
}

// DefaultVectorStoreConfig returns sensible HNSW defaults.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions: dimensions,
		Metric:     "cos",
		M:          16,
		EfSearch:   20,
	}
}

// ErrDimensionMismatch indicates a vector dimension mismatch between
// the store and a caller-provided vector.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
