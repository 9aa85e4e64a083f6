package services

import (
	"context"

	"textbook-rag/internal/models"
)

// Generator is the language-generation capability. The composer depends
// only on this interface; concrete adapters are selected at startup so no
// core component knows a specific provider's request shape.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req *GenerationRequest) (string, error)
	Ping(ctx context.Context) error
}

// GenerationRequest carries everything a provider needs for one completion.
type GenerationRequest struct {
	System      string
	Messages    []models.ChatMessage
	Temperature float64
	MaxTokens   int
}
