package repositories

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"textbook-rag/internal/models"
)

const (
	// Redis key prefixes
	sessionKeyPrefix  = "session:"
	sessionSeqSuffix  = ":seq"
	sessionMsgsSuffix = ":messages"
	sessionIndexKey   = "sessions:index"
)

// RedisSessionStore implements SessionStore on Redis. Session fields live
// in a hash, the message history in a sorted set scored by sequence number,
// and the sequence counter in its own key so INCR hands out a strictly
// increasing number per session regardless of append interleaving.
type RedisSessionStore struct {
	client *redis.Client
}

// NewRedisSessionStore creates a new Redis-backed session store.
func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

// CreateSession creates a new active session with a server-generated ID.
func (r *RedisSessionStore) CreateSession(ctx context.Context, userID string) (*models.ConversationSession, error) {
	now := time.Now().UTC()
	session := &models.ConversationSession{
		ID:        "session_" + uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
		IsActive:  true,
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, sessionKeyPrefix+session.ID,
		"id", session.ID,
		"user_id", session.UserID,
		"created_at", now.Format(time.RFC3339Nano),
		"updated_at", now.Format(time.RFC3339Nano),
		"is_active", "1",
		"current_section", "",
		"section_history", "[]",
	)
	pipe.SAdd(ctx, sessionIndexKey, session.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, NewSessionStoreError("create_session", session.ID, err, "")
	}
	return session, nil
}

// GetSession retrieves a session by ID.
func (r *RedisSessionStore) GetSession(ctx context.Context, sessionID string) (*models.ConversationSession, error) {
	fields, err := r.client.HGetAll(ctx, sessionKeyPrefix+sessionID).Result()
	if err != nil {
		return nil, NewSessionStoreError("get_session", sessionID, err, "")
	}
	if len(fields) == 0 {
		return nil, SessionNotFoundError("get_session", sessionID)
	}
	return sessionFromFields(sessionID, fields)
}

// AppendMessage assigns the next sequence number and persists the message.
func (r *RedisSessionStore) AppendMessage(ctx context.Context, sessionID string, message *models.Message) (*models.Message, error) {
	exists, err := r.client.Exists(ctx, sessionKeyPrefix+sessionID).Result()
	if err != nil {
		return nil, NewSessionStoreError("append_message", sessionID, err, "")
	}
	if exists == 0 {
		return nil, SessionNotFoundError("append_message", sessionID)
	}

	seq, err := r.client.Incr(ctx, sessionKeyPrefix+sessionID+sessionSeqSuffix).Result()
	if err != nil {
		return nil, NewSessionStoreError("append_message", sessionID, err, "failed to assign sequence number")
	}

	now := time.Now().UTC()
	message.SessionID = sessionID
	message.Sequence = seq
	if message.ID == "" {
		message.ID = "msg_" + uuid.NewString()
	}
	message.CreatedAt = now

	data, err := json.Marshal(message)
	if err != nil {
		return nil, NewSessionStoreError("append_message", sessionID, err, "failed to marshal message")
	}

	pipe := r.client.TxPipeline()
	pipe.ZAdd(ctx, sessionKeyPrefix+sessionID+sessionMsgsSuffix, redis.Z{
		Score:  float64(seq),
		Member: string(data),
	})
	pipe.HSet(ctx, sessionKeyPrefix+sessionID, "updated_at", now.Format(time.RFC3339Nano))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, NewSessionStoreError("append_message", sessionID, err, "")
	}
	return message, nil
}

// GetHistory returns the most recent maxMessages messages in chronological
// order.
func (r *RedisSessionStore) GetHistory(ctx context.Context, sessionID string, maxMessages int) ([]*models.Message, error) {
	exists, err := r.client.Exists(ctx, sessionKeyPrefix+sessionID).Result()
	if err != nil {
		return nil, NewSessionStoreError("get_history", sessionID, err, "")
	}
	if exists == 0 {
		return nil, SessionNotFoundError("get_history", sessionID)
	}

	start := int64(0)
	if maxMessages > 0 {
		start = int64(-maxMessages)
	}
	raw, err := r.client.ZRange(ctx, sessionKeyPrefix+sessionID+sessionMsgsSuffix, start, -1).Result()
	if err != nil {
		return nil, NewSessionStoreError("get_history", sessionID, err, "")
	}

	messages := make([]*models.Message, 0, len(raw))
	for _, item := range raw {
		var message models.Message
		if err := json.Unmarshal([]byte(item), &message); err != nil {
			return nil, NewSessionStoreError("get_history", sessionID, err, "failed to unmarshal message")
		}
		messages = append(messages, &message)
	}
	return messages, nil
}

// TouchSection records the current section and appends it to the section
// history when new.
func (r *RedisSessionStore) TouchSection(ctx context.Context, sessionID, section string) error {
	if section == "" {
		return nil
	}
	session, err := r.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	history := session.SectionHistory
	seen := false
	for _, s := range history {
		if s == section {
			seen = true
			break
		}
	}
	if !seen {
		history = append(history, section)
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return NewSessionStoreError("touch_section", sessionID, err, "")
	}
	err = r.client.HSet(ctx, sessionKeyPrefix+sessionID,
		"current_section", section,
		"section_history", string(historyJSON),
		"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return NewSessionStoreError("touch_section", sessionID, err, "")
	}
	return nil
}

// Expire marks a session inactive. The history stays readable.
func (r *RedisSessionStore) Expire(ctx context.Context, sessionID string) error {
	exists, err := r.client.Exists(ctx, sessionKeyPrefix+sessionID).Result()
	if err != nil {
		return NewSessionStoreError("expire", sessionID, err, "")
	}
	if exists == 0 {
		return SessionNotFoundError("expire", sessionID)
	}
	err = r.client.HSet(ctx, sessionKeyPrefix+sessionID,
		"is_active", "0",
		"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return NewSessionStoreError("expire", sessionID, err, "")
	}
	return nil
}

// Ping checks Redis availability.
func (r *RedisSessionStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close is a no-op; the shared Redis client is owned by the server.
func (r *RedisSessionStore) Close() error { return nil }

func sessionFromFields(sessionID string, fields map[string]string) (*models.ConversationSession, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return nil, NewSessionStoreError("get_session", sessionID, err, "corrupt created_at")
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, fields["updated_at"])
	if err != nil {
		return nil, NewSessionStoreError("get_session", sessionID, err, "corrupt updated_at")
	}
	active, _ := strconv.ParseBool(fields["is_active"])

	var sectionHistory []string
	if raw := fields["section_history"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &sectionHistory); err != nil {
			return nil, NewSessionStoreError("get_session", sessionID, err, "corrupt section_history")
		}
	}

	return &models.ConversationSession{
		ID:             sessionID,
		UserID:         fields["user_id"],
		CurrentSection: fields["current_section"],
		SectionHistory: sectionHistory,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
		IsActive:       active,
	}, nil
}
