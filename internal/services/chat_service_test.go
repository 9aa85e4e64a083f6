package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"textbook-rag/internal/chunker"
	"textbook-rag/internal/embedding"
	"textbook-rag/internal/models"
	"textbook-rag/internal/repositories"
)

// keywordEmbed maps any text mentioning photosynthesis onto one axis and
// everything else onto another, so retrieval outcomes are exact.
func keywordEmbed(text string) []float32 {
	if strings.Contains(strings.ToLower(text), "photosynthesis") {
		return []float32{1, 0, 0, 0}
	}
	return []float32{0, 1, 0, 0}
}

type chatFixture struct {
	chat      *ChatService
	ingestion *IngestionService
	sessions  repositories.SessionStore
	generator *MockGenerator
}

func setupTestChat(t *testing.T) *chatFixture {
	t.Helper()
	index := repositories.NewMemoryVectorIndex(4)
	sessions := repositories.NewMemorySessionStore()
	provider := &vectorProvider{dimension: 4, embedFn: keywordEmbed}
	gateway := embedding.NewGateway(provider, embedding.Config{
		MaxRetries: 1,
		BaseDelay:  time.Millisecond,
		Timeout:    time.Second,
	}, testLogger())

	generator := new(MockGenerator)
	retriever := NewRetrievalService(gateway, index, DefaultRetrievalConfig(), testLogger())
	composer := NewComposerService(generator, DefaultComposerConfig(), testLogger())
	return &chatFixture{
		chat:      NewChatService(sessions, retriever, composer, testLogger()),
		ingestion: NewIngestionService(chunker.New(chunker.DefaultConfig()), gateway, index, testLogger()),
		sessions:  sessions,
		generator: generator,
	}
}

func (f *chatFixture) ingestPhotosynthesis(t *testing.T) {
	t.Helper()
	_, err := f.ingestion.Ingest(context.Background(), &models.IngestRequest{
		ContentID:  "bio-ch3",
		Content:    "Photosynthesis converts light energy into chemical energy inside chloroplasts.",
		Title:      "Cell Biology",
		SourcePath: "/biology/photosynthesis",
		Section:    "chapter-3",
	})
	require.NoError(t, err)
}

func TestChatRejectsEmptyQuery(t *testing.T) {
	f := setupTestChat(t)

	_, err := f.chat.Chat(context.Background(), &models.ChatRequest{Query: "  "})

	assert.True(t, models.IsValidation(err))
}

func TestChatRejectsOversizedQuery(t *testing.T) {
	f := setupTestChat(t)

	_, err := f.chat.Chat(context.Background(), &models.ChatRequest{
		Query: strings.Repeat("q", MaxQueryLength+1),
	})

	assert.True(t, models.IsValidation(err))
}

func TestChatColdIndexReturnsNoMatch(t *testing.T) {
	f := setupTestChat(t)

	resp, err := f.chat.Chat(context.Background(), &models.ChatRequest{
		Query: "tell me about photosynthesis",
	})

	require.NoError(t, err)
	assert.Equal(t, NoMatchAnswer, resp.Answer)
	assert.Equal(t, float32(0), resp.Confidence)
	assert.Empty(t, resp.Sources)
	assert.NotEmpty(t, resp.SessionID, "a session is created even for a no-match turn")
	f.generator.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestChatGroundedTurn(t *testing.T) {
	ctx := context.Background()
	f := setupTestChat(t)
	f.ingestPhotosynthesis(t)
	f.generator.On("Generate", mock.Anything, mock.Anything).
		Return("Light becomes chemical energy [S1].", nil)

	resp, err := f.chat.Chat(ctx, &models.ChatRequest{
		Query: "how does photosynthesis work?",
	})

	require.NoError(t, err)
	assert.Equal(t, "Light becomes chemical energy [S1].", resp.Answer)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "bio-ch3", resp.Sources[0].ContentID)
	assert.Equal(t, "Cell Biology", resp.Sources[0].Title)
	assert.Equal(t, "/biology/photosynthesis", resp.Sources[0].SourcePath)
	assert.Equal(t, "chapter-3", resp.Sources[0].Section)
	assert.InDelta(t, 1.0, resp.Confidence, 1e-4)

	// Both sides of the turn are persisted in order.
	history, err := f.sessions.GetHistory(ctx, resp.SessionID, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.MessageKindQuery, history[0].Kind)
	assert.Equal(t, models.MessageKindResponse, history[1].Kind)
	assert.Equal(t, history[0].ID, history[1].QueryID)
	require.NotNil(t, history[1].Confidence)
	assert.InDelta(t, 1.0, *history[1].Confidence, 1e-4)

	// The strongest context's section is tracked on the session.
	session, err := f.sessions.GetSession(ctx, resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "chapter-3", session.CurrentSection)
}

func TestChatSessionContinuity(t *testing.T) {
	ctx := context.Background()
	f := setupTestChat(t)
	f.ingestPhotosynthesis(t)

	var lastReq *GenerationRequest
	f.generator.On("Generate", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			lastReq = args.Get(1).(*GenerationRequest)
		}).
		Return("Answer [S1].", nil)

	first, err := f.chat.Chat(ctx, &models.ChatRequest{Query: "what is photosynthesis?"})
	require.NoError(t, err)

	second, err := f.chat.Chat(ctx, &models.ChatRequest{
		Query:     "and where does photosynthesis happen?",
		SessionID: first.SessionID,
	})
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)

	// The second turn replays the first turn as history plus the prompt.
	require.NotNil(t, lastReq)
	require.Len(t, lastReq.Messages, 3)
	assert.Equal(t, "what is photosynthesis?", lastReq.Messages[0].Content)
	assert.Equal(t, "Answer [S1].", lastReq.Messages[1].Content)

	history, err := f.sessions.GetHistory(ctx, first.SessionID, 0)
	require.NoError(t, err)
	require.Len(t, history, 4)
	for i, message := range history {
		assert.Equal(t, int64(i+1), message.Sequence)
	}
}

func TestChatUnknownSessionCreatesFresh(t *testing.T) {
	f := setupTestChat(t)

	resp, err := f.chat.Chat(context.Background(), &models.ChatRequest{
		Query:     "tell me about anything",
		SessionID: "session_gone",
	})

	require.NoError(t, err)
	assert.NotEqual(t, "session_gone", resp.SessionID)
	assert.NotEmpty(t, resp.SessionID)
}

func TestChatHistoryEndpointFlow(t *testing.T) {
	ctx := context.Background()
	f := setupTestChat(t)

	session, err := f.chat.CreateSession(ctx, "user-1")
	require.NoError(t, err)

	_, err = f.chat.Chat(ctx, &models.ChatRequest{
		Query:     "hello there",
		SessionID: session.ID,
	})
	require.NoError(t, err)

	resp, err := f.chat.History(ctx, session.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, session.ID, resp.SessionID)
	assert.True(t, resp.IsActive)
	assert.Len(t, resp.Messages, 2)

	require.NoError(t, f.chat.EndSession(ctx, session.ID))
	resp, err = f.chat.History(ctx, session.ID, 10)
	require.NoError(t, err)
	assert.False(t, resp.IsActive)
}

func TestChatHistoryUnknownSession(t *testing.T) {
	f := setupTestChat(t)

	_, err := f.chat.History(context.Background(), "session_missing", 10)

	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}
