package repositories

import (
	"context"

	"textbook-rag/internal/models"
)

// SessionStore defines the interface for conversation session persistence.
// It exclusively owns sessions and their message history.
//
// AppendMessage is the only mutator of history. It assigns each message a
// sequence number at append time, not at request arrival, so concurrent or
// retried appends for the same session still produce a consistent total
// order. Sessions become inactive only through an explicit Expire call.
type SessionStore interface {
	CreateSession(ctx context.Context, userID string) (*models.ConversationSession, error)
	GetSession(ctx context.Context, sessionID string) (*models.ConversationSession, error)

	// AppendMessage assigns the message's sequence number and timestamp and
	// persists it. Safe under concurrent calls for the same session.
	AppendMessage(ctx context.Context, sessionID string, message *models.Message) (*models.Message, error)

	// GetHistory returns the most recent maxMessages messages in
	// chronological order. maxMessages <= 0 means no limit.
	GetHistory(ctx context.Context, sessionID string, maxMessages int) ([]*models.Message, error)

	// TouchSection records the textbook section the conversation moved to.
	TouchSection(ctx context.Context, sessionID, section string) error

	// Expire marks a session inactive.
	Expire(ctx context.Context, sessionID string) error

	Ping(ctx context.Context) error
	Close() error
}

// SessionStoreError represents errors from the session store.
type SessionStoreError struct {
	Operation string
	SessionID string
	Err       error
	Message   string
}

func (e *SessionStoreError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Operation + " (" + e.SessionID + "): " + e.Err.Error()
	}
	return e.Operation + " (" + e.SessionID + "): unknown error"
}

func (e *SessionStoreError) Unwrap() error {
	return e.Err
}

// NewSessionStoreError creates a new session store error.
func NewSessionStoreError(operation, sessionID string, err error, message string) *SessionStoreError {
	return &SessionStoreError{Operation: operation, SessionID: sessionID, Err: err, Message: message}
}

// SessionNotFoundError wraps models.ErrSessionNotFound with store context.
func SessionNotFoundError(operation, sessionID string) error {
	return NewSessionStoreError(operation, sessionID, models.ErrSessionNotFound, "")
}
