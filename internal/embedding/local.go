package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
)

// LocalProvider is a deterministic offline embedder: each lowercased token
// is hashed into a fixed number of buckets and the resulting frequency
// vector is L2-normalized. Texts sharing vocabulary land close together
// under cosine similarity, which is enough for development and tests when
// no remote provider is configured.
type LocalProvider struct {
	dimension    int
	maxInputSize int
}

// NewLocalProvider creates a local embedder with the given dimensionality.
func NewLocalProvider(dimension int) *LocalProvider {
	if dimension <= 0 {
		dimension = 256
	}
	return &LocalProvider{dimension: dimension, maxInputSize: 1 << 20}
}

// Name returns the provider identifier.
func (p *LocalProvider) Name() string { return "local" }

// Dimension returns the vector dimensionality.
func (p *LocalProvider) Dimension() int { return p.dimension }

// Ping always succeeds; the provider runs in-process.
func (p *LocalProvider) Ping(context.Context) error { return nil }

// EmbedBatch embeds each text independently; only oversized inputs fail,
// and they fail per-item.
func (p *LocalProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, []error, error) {
	vectors := make([][]float32, len(texts))
	itemErrs := make([]error, len(texts))
	for i, text := range texts {
		if len(text) > p.maxInputSize {
			itemErrs[i] = fmt.Errorf("%w: %d chars (limit %d)", ErrTextTooLong, len(text), p.maxInputSize)
			continue
		}
		vectors[i] = p.embed(text)
	}
	return vectors, itemErrs, nil
}

func (p *LocalProvider) embed(text string) []float32 {
	vec := make([]float32, p.dimension)
	for _, token := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[h.Sum32()%uint32(p.dimension)]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
}
