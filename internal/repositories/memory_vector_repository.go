package repositories

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"textbook-rag/internal/models"
)

// MemoryVectorIndex is a brute-force cosine index guarded by a RWMutex.
// Each document's chunks live in one record tagged with a generation
// number; ReplaceDocument builds the next generation off-lock and swaps the
// record in a single critical section, so a concurrent Search observes
// either the old or the new generation for that document, never a mix.
type MemoryVectorIndex struct {
	mu        sync.RWMutex
	dimension int
	docs      map[string]*docRecord
}

type docRecord struct {
	generation uint64
	entries    []indexEntry
}

type indexEntry struct {
	chunk  *models.ContentChunk
	vector []float32
	norm   float32
}

// NewMemoryVectorIndex creates an empty index for vectors of the given
// dimensionality.
func NewMemoryVectorIndex(dimension int) *MemoryVectorIndex {
	return &MemoryVectorIndex{
		dimension: dimension,
		docs:      make(map[string]*docRecord),
	}
}

// ReplaceDocument swaps all chunks of a document for the given set.
func (m *MemoryVectorIndex) ReplaceDocument(_ context.Context, documentID string, chunks []*models.ContentChunk) error {
	entries, err := m.buildEntries("replace_document", documentID, chunks)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var generation uint64 = 1
	if prev, ok := m.docs[documentID]; ok {
		generation = prev.generation + 1
	}
	if len(entries) == 0 {
		delete(m.docs, documentID)
		return nil
	}
	m.docs[documentID] = &docRecord{generation: generation, entries: entries}
	return nil
}

// Upsert adds or updates chunks within their documents' current
// generations.
func (m *MemoryVectorIndex) Upsert(_ context.Context, chunks []*models.ContentChunk) error {
	byDoc := make(map[string][]*models.ContentChunk)
	for _, chunk := range chunks {
		byDoc[chunk.DocumentID] = append(byDoc[chunk.DocumentID], chunk)
	}

	staged := make(map[string][]indexEntry, len(byDoc))
	for documentID, docChunks := range byDoc {
		entries, err := m.buildEntries("upsert", documentID, docChunks)
		if err != nil {
			return err
		}
		staged[documentID] = entries
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for documentID, entries := range staged {
		record, ok := m.docs[documentID]
		if !ok {
			record = &docRecord{generation: 1}
			m.docs[documentID] = record
		}
		for _, entry := range entries {
			replaced := false
			for i := range record.entries {
				if record.entries[i].chunk.ID == entry.chunk.ID {
					record.entries[i] = entry
					replaced = true
					break
				}
			}
			if !replaced {
				record.entries = append(record.entries, entry)
			}
		}
	}
	return nil
}

// Search returns the k nearest chunks above minSimilarity, ordered by
// descending similarity with ties broken by lower chunk index.
func (m *MemoryVectorIndex) Search(_ context.Context, queryVector []float32, k int, minSimilarity float32) ([]*models.RetrievedContext, error) {
	if len(queryVector) != m.dimension {
		return nil, DimensionMismatchError("search", len(queryVector), m.dimension)
	}
	if k <= 0 {
		return nil, nil
	}
	queryNorm := vectorNorm(queryVector)
	if queryNorm == 0 {
		return nil, NewVectorIndexError("search", nil, "query vector has zero norm")
	}

	m.mu.RLock()
	var matches []scoredMatch
	for _, record := range m.docs {
		for _, entry := range record.entries {
			similarity := cosineSimilarity(queryVector, queryNorm, entry.vector, entry.norm)
			if similarity < minSimilarity {
				continue
			}
			matches = append(matches, scoredMatch{
				context: &models.RetrievedContext{
					ChunkID:    entry.chunk.ID,
					DocumentID: entry.chunk.DocumentID,
					Text:       entry.chunk.Text,
					Title:      entry.chunk.Title,
					SourcePath: entry.chunk.SourcePath,
					Section:    entry.chunk.Section,
					Similarity: similarity,
				},
				chunkIndex: entry.chunk.ChunkIndex,
			})
		}
	}
	m.mu.RUnlock()

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
func (m *MemoryVectorIndex) DeleteByDocument(_ context.Context, documentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.docs[documentID]
	if !ok {
		return 0, nil
	}
	delete(m.docs, documentID)
	return len(record.entries), nil
}

// HasChunk reports whether a chunk ID is currently searchable.
func (m *MemoryVectorIndex) HasChunk(_ context.Context, chunkID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, record := range m.docs {
		for _, entry := range record.entries {
			if entry.chunk.ID == chunkID {
				return true, nil
			}
		}
	}
	return false, nil
}

// Count returns the number of searchable chunks.
func (m *MemoryVectorIndex) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, record := range m.docs {
		total += len(record.entries)
	}
	return total, nil
}

// Ping always succeeds for the in-memory index.
func (m *MemoryVectorIndex) Ping(context.Context) error { return nil }

// Close releases the index contents.
func (m *MemoryVectorIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = make(map[string]*docRecord)
	return nil
}

func (m *MemoryVectorIndex) buildEntries(operation, documentID string, chunks []*models.ContentChunk) ([]indexEntry, error) {
	entries := make([]indexEntry, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.DocumentID != documentID {
			return nil, NewVectorIndexError(operation, nil,
				fmt.Sprintf("chunk %s belongs to document %s, not %s", chunk.ID, chunk.DocumentID, documentID))
		}
		if len(chunk.Embedding) != m.dimension {
			return nil, DimensionMismatchError(operation, len(chunk.Embedding), m.dimension)
		}
		norm := vectorNorm(chunk.Embedding)
		if norm == 0 {
			return nil, NewVectorIndexError(operation, nil, "chunk "+chunk.ID+" has zero-norm embedding")
		}
		entries = append(entries, indexEntry{chunk: chunk, vector: chunk.Embedding, norm: norm})
	}
	return entries, nil
}

// scoredMatch pairs a retrieval result with its chunk index for the
// deterministic tie-break.
type scoredMatch struct {
	context    *models.RetrievedContext
	chunkIndex int
}

// sortMatches orders by descending similarity; on equal scores the earlier
// text wins (lower chunk index, then document ID) so search output is
// deterministic.
func sortMatches(matches []scoredMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].context.Similarity != matches[j].context.Similarity {
			return matches[i].context.Similarity > matches[j].context.Similarity
		}
		if matches[i].chunkIndex != matches[j].chunkIndex {
			return matches[i].chunkIndex < matches[j].chunkIndex
		}
		return matches[i].context.DocumentID < matches[j].context.DocumentID
	})
}

// cosineSimilarity returns cosine similarity clamped to [0,1]. Negative
// cosine means "less similar than orthogonal", which for retrieval purposes
// is simply no match.
func cosineSimilarity(a []float32, normA float32, b []float32, normB float32) float32 {
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	similarity := dot / (normA * normB)
	if similarity < 0 {
		return 0
	}
	if similarity > 1 {
		return 1
	}
	return similarity
}

func vectorNorm(v []float32) float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return float32(math.Sqrt(sum))
}
