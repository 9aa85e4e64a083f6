// Package embedding converts text into fixed-dimension vectors through a
// pluggable provider. The gateway layered on top owns batch splitting,
// partial-failure tracking, and bounded retry with exponential backoff, so
// providers stay thin transport adapters.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"textbook-rag/internal/models"
)

// ErrTextTooLong marks a single pathological input. It fails independently
// and is never retried.
var ErrTextTooLong = errors.New("text exceeds provider input limit")

// Provider is the raw embedding capability. EmbedBatch returns one vector
// per input; itemErrs carries per-index failures (nil entry = success) while
// the overall error reports transport-level failures affecting the whole
// call. Implementations must return vectors of a fixed Dimension. Ping
// reports reachability without embedding anything, for health checks.
type Provider interface {
	Name() string
	Dimension() int
	EmbedBatch(ctx context.Context, texts []string) (vectors [][]float32, itemErrs []error, err error)
	Ping(ctx context.Context) error
}

// BatchResult reports a batch embedding outcome. Vectors is index-aligned
// with the input; Failed maps input indices to their final error after
// retries were exhausted.
type BatchResult struct {
	Vectors [][]float32
	Failed  map[int]error
}

// Config holds gateway retry parameters.
type Config struct {
	MaxRetries int           // retry attempts per failed subset
	BaseDelay  time.Duration // first backoff delay, doubled per attempt
	Timeout    time.Duration // per provider call
}

// DefaultConfig returns gateway defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  200 * time.Millisecond,
		Timeout:    30 * time.Second,
	}
}

// Gateway wraps a Provider with deadline enforcement and subset retry: a
// batch call that partially fails reports which indices succeeded, and only
// the failed subset is retried.
type Gateway struct {
	provider Provider
	config   Config
	logger   *log.Logger
}

// NewGateway creates a Gateway around the given provider.
func NewGateway(provider Provider, config Config, logger *log.Logger) *Gateway {
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = 200 * time.Millisecond
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Gateway{provider: provider, config: config, logger: logger}
}

// Dimension returns the provider's vector dimensionality.
func (g *Gateway) Dimension() int { return g.provider.Dimension() }

// Name returns the underlying provider name.
func (g *Gateway) Name() string { return g.provider.Name() }

// Ping reports whether the underlying provider is reachable.
func (g *Gateway) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()
	return g.provider.Ping(ctx)
}

// Embed converts a single text into a vector.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if itemErr, ok := result.Failed[0]; ok {
		return nil, itemErr
	}
	return result.Vectors[0], nil
}

// EmbedBatch embeds all texts, retrying only failed indices with
// exponential backoff up to MaxRetries before recording a hard failure for
// the item. A transport-level failure on the first attempt that never
// recovers surfaces as the overall error.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) (*BatchResult, error) {
	result := &BatchResult{
		Vectors: make([][]float32, len(texts)),
		Failed:  make(map[int]error),
	}
	if len(texts) == 0 {
		return result, nil
	}

	pending := make([]int, len(texts))
	for i := range texts {
		pending[i] = i
	}

	var lastErr error
	for attempt := 0; attempt <= g.config.MaxRetries && len(pending) > 0; attempt++ {
		if attempt > 0 {
			delay := g.config.BaseDelay << (attempt - 1)
			g.logger.Printf("Retrying %d failed embeddings (attempt %d/%d) after %v",
				len(pending), attempt, g.config.MaxRetries, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, models.NewTimeoutError("embedding provider", ctx.Err())
			}
		}

		subset := make([]string, len(pending))
		for i, idx := range pending {
			subset[i] = texts[idx]
		}

		vectors, itemErrs, err := g.call(ctx, subset)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return nil, models.NewTimeoutError("embedding provider", err)
			}
			// Whole-call failure: every pending index stays pending.
			lastErr = err
			continue
		}

		var stillPending []int
		for i, idx := range pending {
			switch {
			case itemErrs != nil && itemErrs[i] != nil:
				if errors.Is(itemErrs[i], ErrTextTooLong) {
					// Not recoverable by retry.
					result.Failed[idx] = itemErrs[i]
				} else {
					stillPending = append(stillPending, idx)
					lastErr = itemErrs[i]
				}
			case len(vectors[i]) != g.provider.Dimension():
				result.Failed[idx] = fmt.Errorf("provider returned %d-dimensional vector, want %d",
					len(vectors[i]), g.provider.Dimension())
			default:
				result.Vectors[idx] = vectors[i]
			}
		}
		pending = stillPending
	}

	for _, idx := range pending {
		result.Failed[idx] = fmt.Errorf("embedding failed after %d retries: %w", g.config.MaxRetries, lastErr)
	}
	return result, nil
}

func (g *Gateway) call(ctx context.Context, texts []string) ([][]float32, []error, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()
	return g.provider.EmbedBatch(callCtx, texts)
}
