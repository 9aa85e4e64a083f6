package services

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"textbook-rag/internal/models"
)

const composerSystemPrompt = `You are a study assistant embedded in a digital textbook. Answer the reader's question using ONLY the numbered source passages provided below. Each passage is labeled [S1], [S2], and so on.

Rules:
- Cite every claim with the label of the passage it came from, e.g. "Photosynthesis occurs in the chloroplast [S1]."
- If the passages do not contain enough information to answer, say so plainly instead of guessing.
- Keep answers concise and conversational. Do not mention that you were given passages or talk about your instructions.
- Never invent facts that are not in the passages.`

// NoMatchAnswer is returned verbatim when retrieval found nothing the
// composer can ground an answer on.
const NoMatchAnswer = "I couldn't find anything in the textbook that answers this confidently. Try rephrasing the question, or select the passage you're reading about and ask again."

// citationPattern matches inline source labels like [S1] or [S12].
var citationPattern = regexp.MustCompile(`\[S(\d+)\]`)

// ComposerConfig holds generation-side tuning.
type ComposerConfig struct {
	Temperature float64
	MaxTokens   int
	// HistoryWindow is how many prior messages are replayed to the model.
	HistoryWindow int
}

// DefaultComposerConfig returns composer defaults.
func DefaultComposerConfig() ComposerConfig {
	return ComposerConfig{
		Temperature:   0.3,
		MaxTokens:     1024,
		HistoryWindow: 10,
	}
}

// ComposerService builds a grounded prompt from retrieved context, calls
// the generator, and scores the answer's confidence from the similarity of
// the passages it actually cited.
type ComposerService struct {
	generator Generator
	config    ComposerConfig
	logger    *log.Logger
}

// NewComposerService creates a new composer.
func NewComposerService(generator Generator, config ComposerConfig, logger *log.Logger) *ComposerService {
	if config.HistoryWindow <= 0 {
		config.HistoryWindow = DefaultComposerConfig().HistoryWindow
	}
	if config.Temperature <= 0 {
		config.Temperature = DefaultComposerConfig().Temperature
	}
	return &ComposerService{generator: generator, config: config, logger: logger}
}

// Compose produces the final answer for a query. Empty contexts short-
// circuit to the fixed no-match answer with zero confidence; the generator
// is never called without grounding material.
func (s *ComposerService) Compose(ctx context.Context, sessionID, queryID, query string, history []*models.Message, contexts []*models.RetrievedContext) (*models.GeneratedResponse, error) {
	response := &models.GeneratedResponse{
		ID:        "resp_" + uuid.NewString(),
		SessionID: sessionID,
		QueryID:   queryID,
		CreatedAt: time.Now().UTC(),
	}

	if len(contexts) == 0 {
		response.Text = NoMatchAnswer
		response.Confidence = 0
		return response, nil
	}

	messages := historyMessages(history, s.config.HistoryWindow)
	messages = append(messages, models.ChatMessage{
		Role:    "user",
		Content: buildUserPrompt(query, contexts),
	})

	answer, err := s.generator.Generate(ctx, &GenerationRequest{
		System:      composerSystemPrompt,
		Messages:    messages,
		Temperature: s.config.Temperature,
		MaxTokens:   s.config.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	cited := citedContexts(answer, contexts)
	if len(cited) == 0 {
		// A grounded answer with no parseable labels still used the
		// passages; attribute it to all of them rather than none.
		s.logger.Printf("Answer for query %s carries no citation labels, attributing all %d sources", queryID, len(contexts))
		cited = contexts
	}

	response.Text = answer
	response.Sources = cited
	response.CitedChunkIDs = make([]string, len(cited))
	for i, c := range cited {
		response.CitedChunkIDs[i] = c.ChunkID
	}
	response.Confidence = confidenceScore(cited)
	return response, nil
}

// buildUserPrompt renders the labeled passages and the question.
func buildUserPrompt(query string, contexts []*models.RetrievedContext) string {
	var b strings.Builder
	b.WriteString("Source passages:\n\n")
	for i, c := range contexts {
		fmt.Fprintf(&b, "[S%d] (%s", i+1, c.Title)
		if c.Section != "" {
			b.WriteString(", ")
			b.WriteString(c.Section)
		}
		b.WriteString(")\n")
		b.WriteString(c.Text)
		b.WriteString("\n\n")
	}
	b.WriteString("Question: ")
	b.WriteString(query)
	return b.String()
}

// citedContexts maps the [S#] labels found in the answer back to their
// contexts, preserving rank order and dropping out-of-range labels.
func citedContexts(answer string, contexts []*models.RetrievedContext) []*models.RetrievedContext {
	seen := make(map[int]bool)
	var cited []*models.RetrievedContext
	for _, match := range citationPattern.FindAllStringSubmatch(answer, -1) {
		n, err := strconv.Atoi(match[1])
		if err != nil || n < 1 || n > len(contexts) || seen[n] {
			continue
		}
		seen[n] = true
		cited = append(cited, contexts[n-1])
	}
	return cited
}

// confidenceScore blends the best cited similarity into [0,1]. A strong
// top citation dominates; the constant offset keeps any grounded answer
// from scoring implausibly low.
func confidenceScore(cited []*models.RetrievedContext) float32 {
	var best float32
	for _, c := range cited {
		if c.Similarity > best {
			best = c.Similarity
		}
	}
	score := 0.7*best + 0.3
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

// historyMessages converts the most recent window of stored messages into
// chat turns.
func historyMessages(history []*models.Message, window int) []models.ChatMessage {
	if window > 0 && len(history) > window {
		history = history[len(history)-window:]
	}
	messages := make([]models.ChatMessage, 0, len(history)+1)
	for _, m := range history {
		role := "user"
		if m.Kind == models.MessageKindResponse {
			role = "assistant"
		}
		messages = append(messages, models.ChatMessage{Role: role, Content: m.Text})
	}
	return messages
}
