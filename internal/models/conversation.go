package models

import "time"

// MessageKind distinguishes the two message variants within a session.
type MessageKind string

const (
	MessageKindQuery    MessageKind = "query"
	MessageKindResponse MessageKind = "response"
)

// ConversationSession is an append-only sequence of turns for one
// conversation. Messages are ordered by the sequence number the session
// store assigns at append time; a session becomes inactive only through an
// explicit expire call.
type ConversationSession struct {
	ID             string    `json:"session_id"`
	UserID         string    `json:"user_id,omitempty"`
	CurrentSection string    `json:"current_section,omitempty"`
	SectionHistory []string  `json:"section_history,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	IsActive       bool      `json:"is_active"`
}

// Message is one turn in a session: either a user query or a generated
// response. Sequence is assigned by the session store and defines the total
// order within the session.
type Message struct {
	ID        string      `json:"id"`
	SessionID string      `json:"session_id"`
	Sequence  int64       `json:"sequence"`
	Kind      MessageKind `json:"kind"`
	Text      string      `json:"text"`

	// Query fields
	SelectedText string `json:"selected_text,omitempty"`

	// Response fields
	QueryID       string   `json:"query_id,omitempty"`
	CitedChunkIDs []string `json:"cited_chunk_ids,omitempty"`
	Confidence    *float32 `json:"confidence,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// GeneratedResponse is the composer's output for one query: the answer
// text, the context chunks actually cited, and a confidence score in [0,1].
type GeneratedResponse struct {
	ID            string              `json:"response_id"`
	SessionID     string              `json:"session_id"`
	QueryID       string              `json:"query_id"`
	Text          string              `json:"answer"`
	Sources       []*RetrievedContext `json:"sources"`
	CitedChunkIDs []string            `json:"cited_chunk_ids"`
	Confidence    float32             `json:"confidence"`
	CreatedAt     time.Time           `json:"created_at"`
}
