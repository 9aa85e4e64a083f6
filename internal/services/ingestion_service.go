package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"textbook-rag/internal/chunker"
	"textbook-rag/internal/embedding"
	"textbook-rag/internal/models"
	"textbook-rag/internal/repositories"
)

// IngestionService orchestrates the ingestion pipeline: validate the
// document, chunk it, embed every chunk, and atomically replace the
// document's chunks in the vector index. Nothing is committed unless every
// chunk embedded, so a query never sees a half-indexed document.
type IngestionService struct {
	chunker  *chunker.Chunker
	embedder *embedding.Gateway
	index    repositories.VectorIndex
	logger   *log.Logger
}

// NewIngestionService creates a new ingestion service.
func NewIngestionService(ch *chunker.Chunker, embedder *embedding.Gateway, index repositories.VectorIndex, logger *log.Logger) *IngestionService {
	return &IngestionService{chunker: ch, embedder: embedder, index: index, logger: logger}
}

// Ingest processes one document end to end. Re-ingesting an existing
// content ID replaces all of its chunks as a unit. A missing content ID
// gets a server-generated one.
func (s *IngestionService) Ingest(ctx context.Context, req *models.IngestRequest) (*models.IngestResponse, error) {
	contentID := req.ContentID
	if contentID == "" {
		contentID = "content_" + uuid.NewString()
	}

	doc := &models.SourceDocument{
		ID:         contentID,
		Title:      req.Title,
		Content:    req.Content,
		SourcePath: req.SourcePath,
		Section:    req.Section,
		Metadata:   req.Metadata,
		CreatedAt:  time.Now().UTC(),
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	chunks, err := s.chunker.Chunk(doc)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	batch, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(batch.Failed) > 0 {
		// One missing vector poisons the whole document. Keep the
		// previously committed version intact and report the failure.
		var firstErr error
		for _, itemErr := range batch.Failed {
			firstErr = itemErr
			break
		}
		return nil, models.NewConsistencyError(contentID,
			fmt.Errorf("%d of %d chunks failed to embed: %w", len(batch.Failed), len(chunks), firstErr))
	}
	for i, chunk := range chunks {
		chunk.Embedding = batch.Vectors[i]
	}

	if err := s.index.ReplaceDocument(ctx, contentID, chunks); err != nil {
		return nil, err
	}

	s.logger.Printf("Indexed document %s (%d chunks)", contentID, len(chunks))
	return &models.IngestResponse{
		ContentID:     contentID,
		ChunksCreated: len(chunks),
		Status:        models.IngestStatusIndexed,
	}, nil
}

// IngestBatch processes items best-effort: each item succeeds or fails on
// its own and the response reports both counts.
func (s *IngestionService) IngestBatch(ctx context.Context, req *models.BatchIngestRequest) (*models.BatchIngestResponse, error) {
	if len(req.Contents) == 0 {
		return nil, models.NewValidationError("contents", "batch must contain at least one item")
	}

	response := &models.BatchIngestResponse{
		Results: make([]models.BatchIngestItemResult, 0, len(req.Contents)),
	}
	for i := range req.Contents {
		item := req.Contents[i]
		result := models.BatchIngestItemResult{
			ContentID:  item.ContentID,
			SourcePath: item.SourcePath,
		}
		ingested, err := s.Ingest(ctx, &item)
		if err != nil {
			result.Status = models.IngestStatusFailed
			result.Error = err.Error()
			response.FailedCount++
		} else {
			result.ContentID = ingested.ContentID
			result.ChunksCreated = ingested.ChunksCreated
			result.Status = ingested.Status
			response.ProcessedCount++
		}
		response.Results = append(response.Results, result)
	}
	return response, nil
}

// Delete removes all indexed chunks of a document and returns how many
// rows were removed.
func (s *IngestionService) Delete(ctx context.Context, contentID string) (int, error) {
	if contentID == "" {
		return 0, models.NewValidationError("content_id", "content_id is required")
	}
	removed, err := s.index.DeleteByDocument(ctx, contentID)
	if err != nil {
		return 0, err
	}
	s.logger.Printf("Deleted document %s (%d chunks)", contentID, removed)
	return removed, nil
}

// IsIndexed reports whether a document currently has committed chunks.
// Chunk IDs are deterministic, so the first chunk's presence stands for
// the document.
func (s *IngestionService) IsIndexed(ctx context.Context, contentID string) (bool, error) {
	if contentID == "" {
		return false, models.NewValidationError("content_id", "content_id is required")
	}
	return s.index.HasChunk(ctx, fmt.Sprintf("%s_chunk_0", contentID))
}
