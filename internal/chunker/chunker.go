// Package chunker splits source documents into bounded, deterministic text
// chunks suitable for embedding. Boundaries prefer paragraph breaks, then
// sentence breaks (via prose segmentation), then word breaks for
// pathological sentences. Identical input always yields identical chunks,
// which keeps citations stable across re-runs.
package chunker

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jdkato/prose/v2"

	"textbook-rag/internal/models"
)

// ErrInvalidDocument is returned for documents that cannot be ingested:
// empty content or content above the hard size ceiling.
var ErrInvalidDocument = errors.New("invalid document")

// Config holds chunking parameters.
type Config struct {
	MaxChunkSize    int // upper bound on chunk length in characters
	MinChunkSize    int // chunks below this merge into their predecessor
	MaxDocumentSize int // hard ceiling; larger documents are rejected
}

// DefaultConfig returns chunking parameters tuned for textbook prose.
func DefaultConfig() Config {
	return Config{
		MaxChunkSize:    1200,
		MinChunkSize:    200,
		MaxDocumentSize: 2 * 1024 * 1024,
	}
}

// Chunker splits documents into ContentChunks.
type Chunker struct {
	config Config
}

// New creates a Chunker, applying defaults for unset parameters.
func New(config Config) *Chunker {
	if config.MaxChunkSize <= 0 {
		config.MaxChunkSize = 1200
	}
	if config.MinChunkSize < 0 || config.MinChunkSize >= config.MaxChunkSize {
		config.MinChunkSize = config.MaxChunkSize / 6
	}
	if config.MaxDocumentSize <= 0 {
		config.MaxDocumentSize = 2 * 1024 * 1024
	}
	return &Chunker{config: config}
}

// Chunk splits a document into chunks with contiguous indices starting at 0.
// Concatenating the chunk texts in index order reconstructs the document's
// content modulo whitespace normalization. The returned chunks carry no
// embeddings; the embedding gateway fills those in later.
func (c *Chunker) Chunk(doc *models.SourceDocument) ([]*models.ContentChunk, error) {
	text := normalizeWhitespace(doc.Content)
	if text == "" {
		return nil, fmt.Errorf("%w: document %s has no content", ErrInvalidDocument, doc.ID)
	}
	if len(doc.Content) > c.config.MaxDocumentSize {
		return nil, fmt.Errorf("%w: document %s exceeds %d bytes", ErrInvalidDocument, doc.ID, c.config.MaxDocumentSize)
	}

	pieces := c.split(text)
	pieces = c.mergeSmall(pieces)

	now := time.Now().UTC()
	chunks := make([]*models.ContentChunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = &models.ContentChunk{
			ID:         fmt.Sprintf("%s_chunk_%d", doc.ID, i),
			DocumentID: doc.ID,
			ChunkIndex: i,
			Text:       piece,
			Title:      doc.Title,
			SourcePath: doc.SourcePath,
			Section:    doc.Section,
			Metadata:   doc.Metadata,
			CreatedAt:  now,
		}
	}
	return chunks, nil
}

// split breaks normalized text into pieces no longer than MaxChunkSize,
// preferring paragraph boundaries, then sentence boundaries.
func (c *Chunker) split(text string) []string {
	var pieces []string
	current := ""

	flush := func() {
		if current != "" {
			pieces = append(pieces, current)
			current = ""
		}
	}

	for _, paragraph := range strings.Split(text, "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		if fits(current, paragraph, c.config.MaxChunkSize) {
			current = join(current, paragraph)
			continue
		}
		flush()
		if len(paragraph) <= c.config.MaxChunkSize {
			current = paragraph
			continue
		}
		for _, sentence := range sentences(paragraph) {
			if fits(current, sentence, c.config.MaxChunkSize) {
				current = join(current, sentence)
				continue
			}
			flush()
			if len(sentence) <= c.config.MaxChunkSize {
				current = sentence
				continue
			}
			// A single sentence over the ceiling: fall back to word breaks.
			for _, word := range strings.Fields(sentence) {
				if fits(current, word, c.config.MaxChunkSize) {
					current = join(current, word)
				} else {
					flush()
					current = word
				}
			}
		}
	}
	flush()
	return pieces
}

// mergeSmall folds pieces below MinChunkSize into a neighbor so the index
// never holds near-empty fragments. The merge direction is fixed (into the
// predecessor, else the successor) to keep chunking deterministic. MaxChunkSize
// wins over MinChunkSize: a fragment whose neighbor is already near the
// ceiling stays on its own rather than pushing the merged chunk over it.
func (c *Chunker) mergeSmall(pieces []string) []string {
	if len(pieces) <= 1 {
		return pieces
	}
	merged := make([]string, 0, len(pieces))
	for _, piece := range pieces {
		if len(piece) < c.config.MinChunkSize && len(merged) > 0 &&
			fits(merged[len(merged)-1], piece, c.config.MaxChunkSize) {
			merged[len(merged)-1] = join(merged[len(merged)-1], piece)
			continue
		}
		merged = append(merged, piece)
	}
	if len(merged) >= 2 && len(merged[0]) < c.config.MinChunkSize &&
		fits(merged[0], merged[1], c.config.MaxChunkSize) {
		merged[1] = join(merged[0], merged[1])
		merged = merged[1:]
	}
	return merged
}

// sentences segments a paragraph using prose. Tagging and entity extraction
// are disabled; only the segmenter runs.
func sentences(paragraph string) []string {
	doc, err := prose.NewDocument(paragraph,
		prose.WithTokenization(false),
		prose.WithTagging(false),
		prose.WithExtraction(false))
	if err != nil {
		return []string{paragraph}
	}
	sents := doc.Sentences()
	if len(sents) == 0 {
		return []string{paragraph}
	}
	out := make([]string, 0, len(sents))
	for _, s := range sents {
		if t := strings.TrimSpace(s.Text); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeWhitespace collapses runs of spaces and tabs while preserving
// paragraph breaks (blank lines become exactly one "\n\n").
func normalizeWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	paragraphs := strings.Split(text, "\n\n")
	cleaned := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		p = strings.Join(strings.Fields(p), " ")
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return strings.Join(cleaned, "\n\n")
}

func fits(current, addition string, max int) bool {
	if current == "" {
		return len(addition) <= max
	}
	return len(current)+1+len(addition) <= max
}

func join(current, addition string) string {
	if current == "" {
		return addition
	}
	return current + " " + addition
}
