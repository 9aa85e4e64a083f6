package services

import (
	"context"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"textbook-rag/internal/models"
)

// MockGenerator is a testify mock for the Generator port.
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Name() string { return "mock-generator" }

func (m *MockGenerator) Generate(ctx context.Context, req *GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockGenerator) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func retrievedContext(chunkID string, similarity float32) *models.RetrievedContext {
	return &models.RetrievedContext{
		ChunkID:    chunkID,
		DocumentID: "doc1",
		Text:       "passage text for " + chunkID,
		Title:      "Cell Biology",
		Section:    "chapter-3",
		Similarity: similarity,
	}
}

func setupTestComposer(generator Generator) *ComposerService {
	return NewComposerService(generator, DefaultComposerConfig(), testLogger())
}

func TestComposeEmptyContextShortCircuits(t *testing.T) {
	generator := new(MockGenerator)
	composer := setupTestComposer(generator)

	response, err := composer.Compose(context.Background(), "session_1", "msg_1", "what is osmosis?", nil, nil)

	require.NoError(t, err)
	assert.Equal(t, NoMatchAnswer, response.Text)
	assert.Equal(t, float32(0), response.Confidence)
	assert.Empty(t, response.Sources)
	generator.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestComposeCitedSubset(t *testing.T) {
	generator := new(MockGenerator)
	generator.On("Generate", mock.Anything, mock.Anything).
		Return("Osmosis moves water [S2]. This needs no energy [S3].", nil)
	composer := setupTestComposer(generator)

	contexts := []*models.RetrievedContext{
		retrievedContext("c1", 0.9),
		retrievedContext("c2", 0.8),
		retrievedContext("c3", 0.7),
	}
	response, err := composer.Compose(context.Background(), "session_1", "msg_1", "how does osmosis work?", nil, contexts)

	require.NoError(t, err)
	require.Len(t, response.Sources, 2)
	assert.Equal(t, []string{"c2", "c3"}, response.CitedChunkIDs)
	// Confidence follows the best cited similarity, not the best retrieved.
	assert.InDelta(t, 0.7*0.8+0.3, response.Confidence, 1e-4)
}

func TestComposeNoMarkersFallsBackToAllSources(t *testing.T) {
	generator := new(MockGenerator)
	generator.On("Generate", mock.Anything, mock.Anything).
		Return("Osmosis moves water across a membrane.", nil)
	composer := setupTestComposer(generator)

	contexts := []*models.RetrievedContext{
		retrievedContext("c1", 0.9),
		retrievedContext("c2", 0.6),
	}
	response, err := composer.Compose(context.Background(), "session_1", "msg_1", "how does osmosis work?", nil, contexts)

	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, response.CitedChunkIDs)
	assert.InDelta(t, 0.7*0.9+0.3, response.Confidence, 1e-4)
}

func TestComposeIgnoresOutOfRangeAndDuplicateLabels(t *testing.T) {
	generator := new(MockGenerator)
	generator.On("Generate", mock.Anything, mock.Anything).
		Return("Fact one [S1]. Fact two [S1]. Nonsense [S9].", nil)
	composer := setupTestComposer(generator)

	contexts := []*models.RetrievedContext{
		retrievedContext("c1", 0.5),
		retrievedContext("c2", 0.5),
	}
	response, err := composer.Compose(context.Background(), "session_1", "msg_1", "question", nil, contexts)

	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, response.CitedChunkIDs)
}

func TestComposeGenerationFailure(t *testing.T) {
	generator := new(MockGenerator)
	generator.On("Generate", mock.Anything, mock.Anything).
		Return("", models.ErrGenerationUnavailable)
	composer := setupTestComposer(generator)

	_, err := composer.Compose(context.Background(), "session_1", "msg_1", "question", nil,
		[]*models.RetrievedContext{retrievedContext("c1", 0.9)})

	assert.ErrorIs(t, err, models.ErrGenerationUnavailable)
}

func TestComposePromptCarriesPassagesAndHistory(t *testing.T) {
	generator := new(MockGenerator)
	var captured *GenerationRequest
	generator.On("Generate", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(*GenerationRequest)
		}).
		Return("Answer [S1].", nil)
	composer := setupTestComposer(generator)

	history := []*models.Message{
		{Kind: models.MessageKindQuery, Text: "earlier question"},
		{Kind: models.MessageKindResponse, Text: "earlier answer"},
	}
	_, err := composer.Compose(context.Background(), "session_1", "msg_1", "what about diffusion?", history,
		[]*models.RetrievedContext{retrievedContext("c1", 0.9)})

	require.NoError(t, err)
	require.NotNil(t, captured)
	assert.NotEmpty(t, captured.System)

	require.Len(t, captured.Messages, 3)
	assert.Equal(t, "user", captured.Messages[0].Role)
	assert.Equal(t, "earlier question", captured.Messages[0].Content)
	assert.Equal(t, "assistant", captured.Messages[1].Role)

	prompt := captured.Messages[2].Content
	assert.Contains(t, prompt, "[S1]")
	assert.Contains(t, prompt, "passage text for c1")
	assert.Contains(t, prompt, "what about diffusion?")
}

func TestComposeTruncatesHistoryWindow(t *testing.T) {
	generator := new(MockGenerator)
	var captured *GenerationRequest
	generator.On("Generate", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(*GenerationRequest)
		}).
		Return("Answer [S1].", nil)
	composer := NewComposerService(generator, ComposerConfig{HistoryWindow: 2, Temperature: 0.3}, testLogger())

	history := []*models.Message{
		{Kind: models.MessageKindQuery, Text: "turn 1"},
		{Kind: models.MessageKindResponse, Text: "turn 2"},
		{Kind: models.MessageKindQuery, Text: "turn 3"},
	}
	_, err := composer.Compose(context.Background(), "session_1", "msg_1", "question", history,
		[]*models.RetrievedContext{retrievedContext("c1", 0.9)})

	require.NoError(t, err)
	require.Len(t, captured.Messages, 3) // 2 history turns + prompt
	assert.Equal(t, "turn 2", captured.Messages[0].Content)
	assert.Equal(t, "turn 3", captured.Messages[1].Content)
}

func TestComposeConfidenceClamped(t *testing.T) {
	generator := new(MockGenerator)
	generator.On("Generate", mock.Anything, mock.Anything).Return("Answer [S1].", nil)
	composer := setupTestComposer(generator)

	response, err := composer.Compose(context.Background(), "session_1", "msg_1", "question", nil,
		[]*models.RetrievedContext{retrievedContext("c1", 1.0)})

	require.NoError(t, err)
	assert.LessOrEqual(t, response.Confidence, float32(1))
	assert.InDelta(t, 1.0, response.Confidence, 1e-4)
}
