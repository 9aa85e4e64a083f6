package models

import (
	"strings"
	"time"
)

// SourceDocument represents one ingestible unit of textbook content.
// Documents are immutable once ingested; re-ingesting the same ID creates a
// new generation in the vector index rather than mutating chunks in place,
// so citations held by in-flight sessions stay stable.
type SourceDocument struct {
	ID         string                 `json:"id"`
	Title      string                 `json:"title"`
	Content    string                 `json:"content"`
	SourcePath string                 `json:"source_path"`
	Section    string                 `json:"section"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// ContentChunk is a bounded slice of a SourceDocument, the unit of embedding
// and retrieval. Chunk indices for a document are contiguous from 0 and
// cover the full document.
type ContentChunk struct {
	ID         string                 `json:"id"`
	DocumentID string                 `json:"document_id"`
	ChunkIndex int                    `json:"chunk_index"`
	Text       string                 `json:"text"`
	Title      string                 `json:"title,omitempty"`
	SourcePath string                 `json:"source_path,omitempty"`
	Section    string                 `json:"section,omitempty"`
	Embedding  []float32              `json:"embedding,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// RetrievedContext is a chunk matched against a query, with its similarity
// score and rank. Produced fresh per query and never persisted.
type RetrievedContext struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Text       string  `json:"text"`
	Title      string  `json:"title,omitempty"`
	SourcePath string  `json:"source_path,omitempty"`
	Section    string  `json:"section,omitempty"`
	Similarity float32 `json:"similarity_score"`
	Rank       int     `json:"rank"`
}

// Validate checks that a document is ingestible.
func (d *SourceDocument) Validate() error {
	if strings.TrimSpace(d.Content) == "" {
		return NewValidationError("content", "content must not be empty")
	}
	if d.Title == "" {
		return NewValidationError("title", "title is required")
	}
	if d.SourcePath == "" {
		return NewValidationError("source_path", "source_path is required")
	}
	return nil
}
