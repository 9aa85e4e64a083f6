package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"textbook-rag/internal/models"
)

// MemorySessionStore implements SessionStore in process memory. Used when
// no Redis is configured and by tests.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*sessionRecord
}

type sessionRecord struct {
	session  models.ConversationSession
	sequence int64
	messages []*models.Message
}

// NewMemorySessionStore creates an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*sessionRecord)}
}

// CreateSession creates a new active session with a server-generated ID.
func (m *MemorySessionStore) CreateSession(_ context.Context, userID string) (*models.ConversationSession, error) {
	now := time.Now().UTC()
	session := models.ConversationSession{
		ID:        "session_" + uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
		IsActive:  true,
	}
	m.mu.Lock()
	m.sessions[session.ID] = &sessionRecord{session: session}
	m.mu.Unlock()
	copied := session
	return &copied, nil
}

// GetSession retrieves a session by ID.
func (m *MemorySessionStore) GetSession(_ context.Context, sessionID string) (*models.ConversationSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.sessions[sessionID]
	if !ok {
		return nil, SessionNotFoundError("get_session", sessionID)
	}
	copied := record.session
	copied.SectionHistory = append([]string(nil), record.session.SectionHistory...)
	return &copied, nil
}

// AppendMessage assigns the next sequence number and stores the message.
func (m *MemorySessionStore) AppendMessage(_ context.Context, sessionID string, message *models.Message) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.sessions[sessionID]
	if !ok {
		return nil, SessionNotFoundError("append_message", sessionID)
	}
	record.sequence++
	now := time.Now().UTC()
	message.SessionID = sessionID
	message.Sequence = record.sequence
	if message.ID == "" {
		message.ID = "msg_" + uuid.NewString()
	}
	message.CreatedAt = now
	record.messages = append(record.messages, message)
	record.session.UpdatedAt = now
	return message, nil
}

// GetHistory returns the most recent maxMessages messages in chronological
// order.
func (m *MemorySessionStore) GetHistory(_ context.Context, sessionID string, maxMessages int) ([]*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.sessions[sessionID]
	if !ok {
		return nil, SessionNotFoundError("get_history", sessionID)
	}
	messages := record.messages
	if maxMessages > 0 && len(messages) > maxMessages {
		messages = messages[len(messages)-maxMessages:]
	}
	return append([]*models.Message(nil), messages...), nil
}

// TouchSection records the current section and appends it to the section
// history when new.
func (m *MemorySessionStore) TouchSection(_ context.Context, sessionID, section string) error {
	if section == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.sessions[sessionID]
	if !ok {
		return SessionNotFoundError("touch_section", sessionID)
	}
	seen := false
	for _, s := range record.session.SectionHistory {
		if s == section {
			seen = true
			break
		}
	}
	if !seen {
		record.session.SectionHistory = append(record.session.SectionHistory, section)
	}
	record.session.CurrentSection = section
	record.session.UpdatedAt = time.Now().UTC()
	return nil
}

// Expire marks a session inactive.
func (m *MemorySessionStore) Expire(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.sessions[sessionID]
	if !ok {
		return SessionNotFoundError("expire", sessionID)
	}
	record.session.IsActive = false
	record.session.UpdatedAt = time.Now().UTC()
	return nil
}

// Ping always succeeds for the in-memory store.
func (m *MemorySessionStore) Ping(context.Context) error { return nil }

// Close releases all sessions.
func (m *MemorySessionStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = make(map[string]*sessionRecord)
	return nil
}
