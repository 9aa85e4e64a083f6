package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"textbook-rag/internal/models"
)

func testDocument(content string) *models.SourceDocument {
	return &models.SourceDocument{
		ID:         "doc1",
		Title:      "Cell Biology",
		Content:    content,
		SourcePath: "/biology/cells",
		Section:    "chapter-3",
	}
}

func TestChunkRejectsEmptyDocument(t *testing.T) {
	c := New(DefaultConfig())

	_, err := c.Chunk(testDocument("   \n\n  "))

	assert.ErrorIs(t, err, ErrInvalidDocument)
}

func TestChunkRejectsOversizedDocument(t *testing.T) {
	c := New(Config{MaxChunkSize: 100, MinChunkSize: 10, MaxDocumentSize: 50})

	_, err := c.Chunk(testDocument(strings.Repeat("word ", 20)))

	assert.ErrorIs(t, err, ErrInvalidDocument)
}

func TestChunkSmallDocumentIsSingleChunk(t *testing.T) {
	c := New(DefaultConfig())

	chunks, err := c.Chunk(testDocument("Mitochondria are the powerhouse of the cell."))

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "doc1_chunk_0", chunks[0].ID)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, "Mitochondria are the powerhouse of the cell.", chunks[0].Text)
}

func TestChunkCarriesDocumentFields(t *testing.T) {
	c := New(DefaultConfig())

	chunks, err := c.Chunk(testDocument("Short content about cells."))

	require.NoError(t, err)
	for _, chunk := range chunks {
		assert.Equal(t, "doc1", chunk.DocumentID)
		assert.Equal(t, "Cell Biology", chunk.Title)
		assert.Equal(t, "/biology/cells", chunk.SourcePath)
		assert.Equal(t, "chapter-3", chunk.Section)
		assert.Nil(t, chunk.Embedding)
	}
}

func TestChunkIndicesAreContiguous(t *testing.T) {
	c := New(Config{MaxChunkSize: 200, MinChunkSize: 40})
	content := longContent(40)

	chunks, err := c.Chunk(testDocument(content))

	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.ChunkIndex)
		assert.Equal(t, fmt.Sprintf("doc1_chunk_%d", i), chunk.ID)
	}
}

func TestChunkRoundTripPreservesContent(t *testing.T) {
	c := New(Config{MaxChunkSize: 200, MinChunkSize: 40})
	content := longContent(30)

	chunks, err := c.Chunk(testDocument(content))
	require.NoError(t, err)

	var joined []string
	for _, chunk := range chunks {
		joined = append(joined, chunk.Text)
	}
	// Chunking normalizes whitespace but never drops or reorders words.
	assert.Equal(t, strings.Fields(content), strings.Fields(strings.Join(joined, " ")))
}

func TestChunkIsDeterministic(t *testing.T) {
	c := New(Config{MaxChunkSize: 250, MinChunkSize: 50})
	content := longContent(25)

	first, err := c.Chunk(testDocument(content))
	require.NoError(t, err)
	second, err := c.Chunk(testDocument(content))
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Text, second[i].Text)
	}
}

func TestChunkMergesTrailingFragment(t *testing.T) {
	// Content sized so the last sentence would land alone in a chunk far
	// below the minimum; it must merge into its predecessor instead.
	c := New(Config{MaxChunkSize: 120, MinChunkSize: 40})
	content := "The cell membrane controls what enters and leaves the cell at all times. " +
		"Osmosis moves water across this membrane without any energy cost. " +
		"It matters."

	chunks, err := c.Chunk(testDocument(content))

	require.NoError(t, err)
	for i, chunk := range chunks {
		if i > 0 {
			assert.GreaterOrEqual(t, len(chunk.Text), 40,
				"chunk %d is a fragment: %q", i, chunk.Text)
		}
	}
}

func TestChunkMergeNeverExceedsCeiling(t *testing.T) {
	// A paragraph near the ceiling followed by a sub-minimum paragraph: the
	// trailing fragment must stay on its own instead of merging the first
	// chunk past MaxChunkSize.
	c := New(Config{MaxChunkSize: 1200, MinChunkSize: 200})
	sentence := "Photosynthesis converts light energy into chemical energy inside the chloroplast stroma."
	long := strings.TrimSpace(strings.Repeat(sentence+" ", 13))
	require.Greater(t, len(long), 1100)
	require.LessOrEqual(t, len(long), 1200)
	short := "The Calvin cycle then fixes carbon dioxide into sugars using that stored energy."
	content := long + "\n\n" + short

	chunks, err := c.Chunk(testDocument(content))

	require.NoError(t, err)
	require.Len(t, chunks, 2)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk.Text), 1200,
			"chunk %d has %d chars", chunk.ChunkIndex, len(chunk.Text))
	}
	assert.Equal(t, short, chunks[1].Text)
}

func TestChunkRespectsParagraphBoundaries(t *testing.T) {
	c := New(Config{MaxChunkSize: 80, MinChunkSize: 10})
	content := "First paragraph about osmosis and diffusion in plant cells here.\n\n" +
		"Second paragraph about photosynthesis and chloroplast structure too."

	chunks, err := c.Chunk(testDocument(content))

	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[0].Text, "osmosis")
	assert.Contains(t, chunks[1].Text, "photosynthesis")
}

func TestChunkSplitsOversizedSentenceOnWords(t *testing.T) {
	c := New(Config{MaxChunkSize: 60, MinChunkSize: 10})
	// One sentence far above the ceiling, no internal punctuation.
	content := strings.TrimSpace(strings.Repeat("verylongword ", 20))

	chunks, err := c.Chunk(testDocument(content))

	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk.Text), 60+13, "chunk text: %q", chunk.Text)
	}
}

// longContent builds n distinct sentences so splits land differently per
// position.
func longContent(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "Sentence number %d explains one more property of the living cell. ", i)
	}
	return strings.TrimSpace(b.String())
}
