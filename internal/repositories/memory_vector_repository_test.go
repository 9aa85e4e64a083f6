package repositories

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"textbook-rag/internal/models"
)

func testChunk(docID string, index int, vector []float32) *models.ContentChunk {
	return &models.ContentChunk{
		ID:         fmt.Sprintf("%s_chunk_%d", docID, index),
		DocumentID: docID,
		ChunkIndex: index,
		Text:       fmt.Sprintf("text of %s chunk %d", docID, index),
		Title:      "Test Title",
		Embedding:  vector,
	}
}

func TestMemoryIndexReplaceAndSearch(t *testing.T) {
	ctx := context.Background()
	index := NewMemoryVectorIndex(3)

	err := index.ReplaceDocument(ctx, "doc1", []*models.ContentChunk{
		testChunk("doc1", 0, []float32{1, 0, 0}),
		testChunk("doc1", 1, []float32{0, 1, 0}),
	})
	require.NoError(t, err)

	results, err := index.Search(ctx, []float32{1, 0, 0}, 5, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "doc1_chunk_0", results[0].ChunkID)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-5)
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, 2, results[1].Rank)
}

func TestMemoryIndexSearchRespectsK(t *testing.T) {
	ctx := context.Background()
	index := NewMemoryVectorIndex(2)

	require.NoError(t, index.ReplaceDocument(ctx, "doc1", []*models.ContentChunk{
		testChunk("doc1", 0, []float32{1, 0}),
		testChunk("doc1", 1, []float32{0.9, 0.1}),
		testChunk("doc1", 2, []float32{0.5, 0.5}),
	}))

	results, err := index.Search(ctx, []float32{1, 0}, 2, 0)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestMemoryIndexSearchFiltersByMinSimilarity(t *testing.T) {
	ctx := context.Background()
	index := NewMemoryVectorIndex(2)

	require.NoError(t, index.ReplaceDocument(ctx, "doc1", []*models.ContentChunk{
		testChunk("doc1", 0, []float32{1, 0}),
		testChunk("doc1", 1, []float32{0, 1}), // orthogonal to the query
	}))

	results, err := index.Search(ctx, []float32{1, 0}, 5, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc1_chunk_0", results[0].ChunkID)
}

func TestMemoryIndexTieBreaksOnLowerChunkIndex(t *testing.T) {
	ctx := context.Background()
	index := NewMemoryVectorIndex(2)

	// Identical vectors: similarity ties exactly.
	require.NoError(t, index.ReplaceDocument(ctx, "doc1", []*models.ContentChunk{
		testChunk("doc1", 1, []float32{1, 0}),
		testChunk("doc1", 0, []float32{1, 0}),
	}))

	results, err := index.Search(ctx, []float32{1, 0}, 5, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "doc1_chunk_0", results[0].ChunkID)
	assert.Equal(t, "doc1_chunk_1", results[1].ChunkID)
}

func TestMemoryIndexNegativeCosineClampsToZero(t *testing.T) {
	ctx := context.Background()
	index := NewMemoryVectorIndex(2)

	require.NoError(t, index.ReplaceDocument(ctx, "doc1", []*models.ContentChunk{
		testChunk("doc1", 0, []float32{-1, 0}),
	}))

	results, err := index.Search(ctx, []float32{1, 0}, 5, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, float32(0), results[0].Similarity)
}

func TestMemoryIndexReplaceSwapsGenerations(t *testing.T) {
	ctx := context.Background()
	index := NewMemoryVectorIndex(2)

	require.NoError(t, index.ReplaceDocument(ctx, "doc1", []*models.ContentChunk{
		testChunk("doc1", 0, []float32{1, 0}),
		testChunk("doc1", 1, []float32{1, 0}),
		testChunk("doc1", 2, []float32{1, 0}),
	}))

	require.NoError(t, index.ReplaceDocument(ctx, "doc1", []*models.ContentChunk{
		testChunk("doc1", 0, []float32{0, 1}),
	}))

	count, err := index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	has, err := index.HasChunk(ctx, "doc1_chunk_2")
	require.NoError(t, err)
	assert.False(t, has)

	results, err := index.Search(ctx, []float32{0, 1}, 5, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc1_chunk_0", results[0].ChunkID)
}

func TestMemoryIndexReplaceWithEmptyRemovesDocument(t *testing.T) {
	ctx := context.Background()
	index := NewMemoryVectorIndex(2)

	require.NoError(t, index.ReplaceDocument(ctx, "doc1", []*models.ContentChunk{
		testChunk("doc1", 0, []float32{1, 0}),
	}))
	require.NoError(t, index.ReplaceDocument(ctx, "doc1", nil))

	count, err := index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMemoryIndexRejectsDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	index := NewMemoryVectorIndex(3)

	err := index.ReplaceDocument(ctx, "doc1", []*models.ContentChunk{
		testChunk("doc1", 0, []float32{1, 0}),
	})
	var indexErr *VectorIndexError
	require.ErrorAs(t, err, &indexErr)

	_, err = index.Search(ctx, []float32{1, 0}, 5, 0)
	require.ErrorAs(t, err, &indexErr)
}

func TestMemoryIndexRejectsForeignChunks(t *testing.T) {
	ctx := context.Background()
	index := NewMemoryVectorIndex(2)

	err := index.ReplaceDocument(ctx, "doc1", []*models.ContentChunk{
		testChunk("doc2", 0, []float32{1, 0}),
	})
	assert.Error(t, err)
}

func TestMemoryIndexDeleteByDocument(t *testing.T) {
	ctx := context.Background()
	index := NewMemoryVectorIndex(2)

	require.NoError(t, index.ReplaceDocument(ctx, "doc1", []*models.ContentChunk{
		testChunk("doc1", 0, []float32{1, 0}),
		testChunk("doc1", 1, []float32{0, 1}),
	}))

	removed, err := index.DeleteByDocument(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	removed, err = index.DeleteByDocument(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestMemoryIndexUpsertReplacesByChunkID(t *testing.T) {
	ctx := context.Background()
	index := NewMemoryVectorIndex(2)

	require.NoError(t, index.Upsert(ctx, []*models.ContentChunk{
		testChunk("doc1", 0, []float32{1, 0}),
	}))
	require.NoError(t, index.Upsert(ctx, []*models.ContentChunk{
		testChunk("doc1", 0, []float32{0, 1}),
		testChunk("doc1", 1, []float32{0, 1}),
	}))

	count, err := index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	results, err := index.Search(ctx, []float32{0, 1}, 5, 0.9)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

// Search during a concurrent replace must observe either the old or the new
// chunk set, never a mixture.
func TestMemoryIndexSearchNeverSeesMixedGenerations(t *testing.T) {
	ctx := context.Background()
	index := NewMemoryVectorIndex(2)

	oldChunks := []*models.ContentChunk{
		testChunk("doc1", 0, []float32{1, 0}),
		testChunk("doc1", 1, []float32{1, 0}),
	}
	newChunks := []*models.ContentChunk{
		testChunk("doc1", 0, []float32{1, 0}),
		testChunk("doc1", 1, []float32{1, 0}),
		testChunk("doc1", 2, []float32{1, 0}),
	}
	require.NoError(t, index.ReplaceDocument(ctx, "doc1", oldChunks))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				results, err := index.Search(ctx, []float32{1, 0}, 10, 0)
				assert.NoError(t, err)
				assert.Contains(t, []int{2, 3}, len(results),
					"search observed a partially replaced document")
			}
		}()
	}

	for i := 0; i < 50; i++ {
		chunks := newChunks
		if i%2 == 1 {
			chunks = oldChunks
		}
		require.NoError(t, index.ReplaceDocument(ctx, "doc1", chunks))
	}
	close(stop)
	wg.Wait()
}
