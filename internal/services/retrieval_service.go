package services

import (
	"context"
	"log"
	"strings"

	"textbook-rag/internal/embedding"
	"textbook-rag/internal/models"
	"textbook-rag/internal/repositories"
)

// RetrievalConfig holds retrieval tuning parameters.
type RetrievalConfig struct {
	TopK int
	// MinSimilarity is the per-hit floor applied inside the index search.
	MinSimilarity float32
	// ConfidenceThreshold gates the whole result set: when the best hit
	// scores below it, retrieval reports no confident match and returns
	// nothing rather than weakly related text.
	ConfidenceThreshold float32
}

// DefaultRetrievalConfig returns retrieval defaults.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		TopK:                5,
		MinSimilarity:       0.25,
		ConfidenceThreshold: 0.40,
	}
}

// RetrievalService turns a user query into ranked context chunks.
type RetrievalService struct {
	embedder *embedding.Gateway
	index    repositories.VectorIndex
	config   RetrievalConfig
	logger   *log.Logger
}

// NewRetrievalService creates a new retrieval service.
func NewRetrievalService(embedder *embedding.Gateway, index repositories.VectorIndex, config RetrievalConfig, logger *log.Logger) *RetrievalService {
	if config.TopK <= 0 {
		config.TopK = DefaultRetrievalConfig().TopK
	}
	return &RetrievalService{
		embedder: embedder,
		index:    index,
		config:   config,
		logger:   logger,
	}
}

// Retrieve embeds the query and returns the top matching chunks, ordered by
// descending similarity. Selected text, when present, is folded into the
// query so retrieval sees what the reader is looking at. An empty slice
// with a nil error means no confident match.
func (s *RetrievalService) Retrieve(ctx context.Context, query, selectedText string) ([]*models.RetrievedContext, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, models.NewValidationError("query", "query must not be empty")
	}

	searchText := query
	if selectedText = strings.TrimSpace(selectedText); selectedText != "" {
		searchText = selectedText + "\n\n" + query
	}

	vector, err := s.embedder.Embed(ctx, searchText)
	if err != nil {
		return nil, err
	}

	contexts, err := s.index.Search(ctx, vector, s.config.TopK, s.config.MinSimilarity)
	if err != nil {
		return nil, err
	}
	if len(contexts) == 0 {
		return nil, nil
	}

	// Results arrive ranked, so the first one carries the best score.
	if contexts[0].Similarity < s.config.ConfidenceThreshold {
		s.logger.Printf("No confident match for query (best similarity %.3f < %.2f)",
			contexts[0].Similarity, s.config.ConfidenceThreshold)
		return nil, nil
	}
	return contexts, nil
}
