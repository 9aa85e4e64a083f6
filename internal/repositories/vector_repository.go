package repositories

import (
	"context"
	"fmt"

	"textbook-rag/internal/models"
)

// VectorIndex defines the interface for vector index operations. It
// exclusively owns chunk vectors; retrieval and composition hold no
// persistent state of their own.
//
// Re-ingestion safety: each document's chunks carry a generation number.
// ReplaceDocument stages the next generation and commits it only once every
// chunk is written, so Search never exposes a mix of two generations for
// the same document. A failed replace leaves the previous generation
// intact.
type VectorIndex interface {
	// ReplaceDocument atomically swaps all chunks of a document for the
	// given set (the removal-then-insert logical unit of re-ingestion).
	ReplaceDocument(ctx context.Context, documentID string, chunks []*models.ContentChunk) error

	// Upsert adds or updates chunks within their documents' current
	// generations.
	Upsert(ctx context.Context, chunks []*models.ContentChunk) error

	// Search returns at most k results with similarity >= minSimilarity,
	// ordered by descending similarity; ties break toward the lower chunk
	// index. Results below the floor are excluded, never padded.
	Search(ctx context.Context, queryVector []float32, k int, minSimilarity float32) ([]*models.RetrievedContext, error)

	// DeleteByDocument removes all chunks of a document and returns how
	// many were removed.
	DeleteByDocument(ctx context.Context, documentID string) (int, error)

	// HasChunk reports whether a chunk ID is currently searchable.
	HasChunk(ctx context.Context, chunkID string) (bool, error)

	// Count returns the number of searchable chunks.
	Count(ctx context.Context) (int, error)

	Ping(ctx context.Context) error
	Close() error
}

// VectorIndexError represents errors from the vector index.
type VectorIndexError struct {
	Operation string
	Err       error
	Message   string
}

func (e *VectorIndexError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Operation + ": " + e.Err.Error()
	}
	return e.Operation + ": unknown error"
}

func (e *VectorIndexError) Unwrap() error {
	return e.Err
}

// NewVectorIndexError creates a new vector index error.
func NewVectorIndexError(operation string, err error, message string) *VectorIndexError {
	return &VectorIndexError{Operation: operation, Err: err, Message: message}
}

// DimensionMismatchError reports a vector of the wrong dimensionality.
func DimensionMismatchError(operation string, got, want int) error {
	return NewVectorIndexError(operation, nil,
		fmt.Sprintf("vector dimension mismatch: got %d, want %d", got, want))
}
