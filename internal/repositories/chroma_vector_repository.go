package repositories

import (
	"context"
	"fmt"
	"sync"

	"textbook-rag/internal/db"
	"textbook-rag/internal/models"
)

// ChromaVectorIndex implements VectorIndex on ChromaDB. Chunk rows are
// tagged with their document's generation number; the point ID is
// "<chunk_id>@g<generation>" so two generations never collide on upsert,
// and the committed generation per document is tracked here and used to
// filter search results. A replace writes the next generation first, then
// removes older rows, then commits, so readers see the previous committed
// generation until the swap is complete.
type ChromaVectorIndex struct {
	client       *db.ChromaDBClient
	collectionID string
	dimension    int

	mu        sync.RWMutex
	committed map[string]uint64
}

// NewChromaVectorIndex creates the adapter and ensures the collection
// exists with cosine distance.
func NewChromaVectorIndex(ctx context.Context, client *db.ChromaDBClient, collectionName string, dimension int) (*ChromaVectorIndex, error) {
	collectionID, err := client.EnsureCollection(ctx, collectionName)
	if err != nil {
		return nil, NewVectorIndexError("init", err, "")
	}
	return &ChromaVectorIndex{
		client:       client,
		collectionID: collectionID,
		dimension:    dimension,
		committed:    make(map[string]uint64),
	}, nil
}

// ReplaceDocument swaps all chunks of a document for the given set.
func (c *ChromaVectorIndex) ReplaceDocument(ctx context.Context, documentID string, chunks []*models.ContentChunk) error {
	c.mu.RLock()
	previous := c.committed[documentID]
	c.mu.RUnlock()
	generation := previous + 1

	if len(chunks) > 0 {
		if err := c.addGeneration(ctx, documentID, generation, chunks); err != nil {
			// Remove the partially staged generation; the committed one is
			// untouched and still filters into search results.
			_ = c.client.DeleteWhere(ctx, c.collectionID, map[string]interface{}{
				"$and": []map[string]interface{}{
					{"document_id": documentID},
					{"generation": int(generation)},
				},
			})
			return NewVectorIndexError("replace_document", err,
				fmt.Sprintf("failed to stage generation %d of document %s", generation, documentID))
		}
	}

	c.mu.Lock()
	c.committed[documentID] = generation
	c.mu.Unlock()

	// Sweep the superseded rows. A failure here leaves stale rows behind,
	// but they are filtered out of every search by the committed map.
	if previous > 0 || len(chunks) == 0 {
		_ = c.client.DeleteWhere(ctx, c.collectionID, map[string]interface{}{
			"$and": []map[string]interface{}{
				{"document_id": documentID},
				{"generation": map[string]interface{}{"$lt": int(generation)}},
			},
		})
	}
	return nil
}

// Upsert adds or updates chunks within their documents' current
// generations.
func (c *ChromaVectorIndex) Upsert(ctx context.Context, chunks []*models.ContentChunk) error {
	byDoc := make(map[string][]*models.ContentChunk)
	for _, chunk := range chunks {
		byDoc[chunk.DocumentID] = append(byDoc[chunk.DocumentID], chunk)
	}
	for documentID, docChunks := range byDoc {
		c.mu.Lock()
		generation := c.committed[documentID]
		if generation == 0 {
			generation = 1
			c.committed[documentID] = generation
		}
		c.mu.Unlock()
		if err := c.addGeneration(ctx, documentID, generation, docChunks); err != nil {
			return NewVectorIndexError("upsert", err, "")
		}
	}
	return nil
}

// Search queries ChromaDB and filters results to each document's committed
// generation.
func (c *ChromaVectorIndex) Search(ctx context.Context, queryVector []float32, k int, minSimilarity float32) ([]*models.RetrievedContext, error) {
	if len(queryVector) != c.dimension {
		return nil, DimensionMismatchError("search", len(queryVector), c.dimension)
	}
	if k <= 0 {
		return nil, nil
	}

	// Over-fetch to survive the generation filter dropping stale rows.
	result, err := c.client.Query(ctx, c.collectionID, queryVector, k*2, nil)
	if err != nil {
		return nil, NewVectorIndexError("search", err, "")
	}
	if len(result.IDs) == 0 {
		return nil, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var matches []scoredMatch
	for i := range result.IDs[0] {
		metadata := result.Metadatas[0][i]
		documentID, _ := metadata["document_id"].(string)
		if !c.isCommittedLocked(documentID, metadata["generation"]) {
			continue
		}
		// Cosine distance in [0,2]; similarity clamps to [0,1].
		similarity := 1 - result.Distances[0][i]
		if similarity < 0 {
			similarity = 0
		}
		if similarity < minSimilarity {
			continue
		}
		chunkID, _ := metadata["chunk_id"].(string)
		title, _ := metadata["title"].(string)
		sourcePath, _ := metadata["source_path"].(string)
		section, _ := metadata["section"].(string)
		chunkIndex := 0
		if v, ok := metadata["chunk_index"].(float64); ok {
			chunkIndex = int(v)
		}
		matches = append(matches, scoredMatch{
			context: &models.RetrievedContext{
				ChunkID:    chunkID,
				DocumentID: documentID,
				Text:       result.Documents[0][i],
				Title:      title,
				SourcePath: sourcePath,
				Section:    section,
				Similarity: similarity,
			},
			chunkIndex: chunkIndex,
		})
	}

	sortMatches(matches)
	if len(matches) > k {
		matches = matches[:k]
	}
	results := make([]*models.RetrievedContext, len(matches))
	for i, match := range matches {
		match.context.Rank = i + 1
		results[i] = match.context
	}
	return results, nil
}

// DeleteByDocument removes all chunks of a document.
func (c *ChromaVectorIndex) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	existing, err := c.client.Get(ctx, c.collectionID, map[string]interface{}{"document_id": documentID})
	if err != nil {
		return 0, NewVectorIndexError("delete_by_document", err, "")
	}
	if err := c.client.DeleteWhere(ctx, c.collectionID, map[string]interface{}{"document_id": documentID}); err != nil {
		return 0, NewVectorIndexError("delete_by_document", err, "")
	}
	c.mu.Lock()
	delete(c.committed, documentID)
	c.mu.Unlock()
	return len(existing.IDs), nil
}

// HasChunk reports whether a chunk ID belongs to a committed generation.
func (c *ChromaVectorIndex) HasChunk(ctx context.Context, chunkID string) (bool, error) {
	result, err := c.client.Get(ctx, c.collectionID, map[string]interface{}{"chunk_id": chunkID})
	if err != nil {
		return false, NewVectorIndexError("has_chunk", err, "")
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, metadata := range result.Metadatas {
		documentID, _ := metadata["document_id"].(string)
		if c.isCommittedLocked(documentID, metadata["generation"]) {
			return true, nil
		}
	}
	return false, nil
}

// Count returns the number of stored chunk rows, including any stale rows
// awaiting sweep.
func (c *ChromaVectorIndex) Count(ctx context.Context) (int, error) {
	count, err := c.client.Count(ctx, c.collectionID)
	if err != nil {
		return 0, NewVectorIndexError("count", err, "")
	}
	return count, nil
}

// Ping checks ChromaDB availability.
func (c *ChromaVectorIndex) Ping(ctx context.Context) error {
	return c.client.Heartbeat(ctx)
}

// Close is a no-op; the HTTP client holds no persistent connections.
func (c *ChromaVectorIndex) Close() error { return nil }

func (c *ChromaVectorIndex) addGeneration(ctx context.Context, documentID string, generation uint64, chunks []*models.ContentChunk) error {
	ids := make([]string, len(chunks))
	documents := make([]string, len(chunks))
	embeddings := make([][]float32, len(chunks))
	metadatas := make([]map[string]interface{}, len(chunks))
	for i, chunk := range chunks {
		if chunk.DocumentID != documentID {
			return fmt.Errorf("chunk %s belongs to document %s, not %s", chunk.ID, chunk.DocumentID, documentID)
		}
		if len(chunk.Embedding) != c.dimension {
			return DimensionMismatchError("add", len(chunk.Embedding), c.dimension)
		}
		ids[i] = fmt.Sprintf("%s@g%d", chunk.ID, generation)
		documents[i] = chunk.Text
		embeddings[i] = chunk.Embedding
		metadatas[i] = map[string]interface{}{
			"chunk_id":    chunk.ID,
			"document_id": chunk.DocumentID,
			"chunk_index": chunk.ChunkIndex,
			"generation":  int(generation),
			"title":       chunk.Title,
			"source_path": chunk.SourcePath,
			"section":     chunk.Section,
		}
	}
	return c.client.AddDocuments(ctx, c.collectionID, ids, documents, embeddings, metadatas)
}

// isCommittedLocked reports whether a row's generation matches the
// document's committed generation. Documents unknown to this process (rows
// written before a restart) are accepted as committed.
func (c *ChromaVectorIndex) isCommittedLocked(documentID string, rawGeneration interface{}) bool {
	committed, tracked := c.committed[documentID]
	if !tracked {
		return true
	}
	generation, ok := rawGeneration.(float64)
	if !ok {
		return false
	}
	return uint64(generation) == committed
}
