package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"textbook-rag/internal/models"
	"textbook-rag/internal/repositories"
)

// MaxQueryLength bounds the incoming query text.
const MaxQueryLength = 4000

// ChatService orchestrates one conversation turn: resolve the session,
// replay recent history, retrieve grounding context, compose the answer,
// and persist both sides of the turn.
type ChatService struct {
	sessions  repositories.SessionStore
	retriever *RetrievalService
	composer  *ComposerService
	logger    *log.Logger
}

// NewChatService creates a new chat service.
func NewChatService(sessions repositories.SessionStore, retriever *RetrievalService, composer *ComposerService, logger *log.Logger) *ChatService {
	return &ChatService{
		sessions:  sessions,
		retriever: retriever,
		composer:  composer,
		logger:    logger,
	}
}

// Chat handles one turn. A missing or unknown session ID creates a fresh
// session, so the widget can fire its first message without a handshake.
//
// The query message is persisted before retrieval and composition, so a turn
// that fails mid-way leaves the query in the history without a paired
// response, and a client retry appends the query again. History delivery is
// at-least-once; the later response's QueryID identifies which query it
// answers.
func (s *ChatService) Chat(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, models.NewValidationError("query", "query must not be empty")
	}
	if len(query) > MaxQueryLength {
		return nil, models.NewValidationError("query", "query exceeds maximum length")
	}

	session, err := s.resolveSession(ctx, req)
	if err != nil {
		return nil, err
	}

	// History before this turn; the current query travels in the prompt.
	history, err := s.sessions.GetHistory(ctx, session.ID, DefaultComposerConfig().HistoryWindow)
	if err != nil {
		return nil, err
	}

	queryMessage, err := s.sessions.AppendMessage(ctx, session.ID, &models.Message{
		Kind:         models.MessageKindQuery,
		Text:         query,
		SelectedText: req.SelectedText,
	})
	if err != nil {
		return nil, err
	}

	contexts, err := s.retriever.Retrieve(ctx, query, req.SelectedText)
	if err != nil {
		return nil, err
	}

	response, err := s.composer.Compose(ctx, session.ID, queryMessage.ID, query, history, contexts)
	if err != nil {
		return nil, err
	}

	confidence := response.Confidence
	if _, err := s.sessions.AppendMessage(ctx, session.ID, &models.Message{
		Kind:          models.MessageKindResponse,
		Text:          response.Text,
		QueryID:       queryMessage.ID,
		CitedChunkIDs: response.CitedChunkIDs,
		Confidence:    &confidence,
	}); err != nil {
		return nil, err
	}

	// Track which part of the book the reader is in, from the strongest
	// retrieved context.
	if len(contexts) > 0 && contexts[0].Section != "" {
		if err := s.sessions.TouchSection(ctx, session.ID, contexts[0].Section); err != nil {
			s.logger.Printf("Failed to record section for session %s: %v", session.ID, err)
		}
	}

	sources := make([]models.ChatSource, len(response.Sources))
	for i, source := range response.Sources {
		sources[i] = models.ChatSource{
			ContentID:       source.DocumentID,
			Title:           source.Title,
			SourcePath:      source.SourcePath,
			Section:         source.Section,
			SimilarityScore: source.Similarity,
		}
	}

	return &models.ChatResponse{
		ResponseID: response.ID,
		Answer:     response.Text,
		Sources:    sources,
		SessionID:  session.ID,
		Confidence: response.Confidence,
	}, nil
}

// CreateSession creates a session ahead of the first message.
func (s *ChatService) CreateSession(ctx context.Context, userID string) (*models.ConversationSession, error) {
	return s.sessions.CreateSession(ctx, userID)
}

// History returns a session's most recent messages in order.
func (s *ChatService) History(ctx context.Context, sessionID string, maxMessages int) (*models.SessionHistoryResponse, error) {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	messages, err := s.sessions.GetHistory(ctx, sessionID, maxMessages)
	if err != nil {
		return nil, err
	}
	return &models.SessionHistoryResponse{
		SessionID: session.ID,
		CreatedAt: session.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt: session.UpdatedAt.Format(time.RFC3339Nano),
		IsActive:  session.IsActive,
		Messages:  messages,
	}, nil
}

// EndSession marks a session inactive. Its history stays readable.
func (s *ChatService) EndSession(ctx context.Context, sessionID string) error {
	return s.sessions.Expire(ctx, sessionID)
}

func (s *ChatService) resolveSession(ctx context.Context, req *models.ChatRequest) (*models.ConversationSession, error) {
	if req.SessionID == "" {
		return s.sessions.CreateSession(ctx, req.UserID)
	}
	session, err := s.sessions.GetSession(ctx, req.SessionID)
	if err == nil {
		return session, nil
	}
	if errors.Is(err, models.ErrSessionNotFound) {
		s.logger.Printf("Session %s not found, creating a new one", req.SessionID)
		return s.sessions.CreateSession(ctx, req.UserID)
	}
	return nil, err
}
