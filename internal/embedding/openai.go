package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// OpenAIConfig configures the OpenAI-compatible embeddings provider. Any
// endpoint speaking the /v1/embeddings wire format works (OpenAI, Cohere
// compat, LM Studio, Ollama).
type OpenAIConfig struct {
	BaseURL      string
	APIKeyEnv    string
	Model        string
	Dimension    int
	MaxInputSize int // characters; longer inputs fail per-item
	Timeout      time.Duration
}

// DefaultOpenAIConfig returns provider defaults.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		BaseURL:      "https://api.openai.com/v1",
		APIKeyEnv:    "EMBEDDING_API_KEY",
		Model:        "text-embedding-3-small",
		Dimension:    1536,
		MaxInputSize: 8000,
		Timeout:      30 * time.Second,
	}
}

// OpenAIProvider calls an OpenAI-compatible embeddings endpoint.
type OpenAIProvider struct {
	config     OpenAIConfig
	apiKey     string
	httpClient *http.Client
}

// NewOpenAIProvider creates the provider, reading the API key from the
// configured environment variable.
func NewOpenAIProvider(config OpenAIConfig) (*OpenAIProvider, error) {
	defaults := DefaultOpenAIConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.APIKeyEnv == "" {
		config.APIKeyEnv = defaults.APIKeyEnv
	}
	if config.Model == "" {
		config.Model = defaults.Model
	}
	if config.Dimension <= 0 {
		config.Dimension = defaults.Dimension
	}
	if config.MaxInputSize <= 0 {
		config.MaxInputSize = defaults.MaxInputSize
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}

	key := os.Getenv(config.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing embedding API key in env %s", config.APIKeyEnv)
	}

	return &OpenAIProvider{
		config:     config,
		apiKey:     key,
		httpClient: &http.Client{Timeout: config.Timeout},
	}, nil
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string { return "openai" }

// Dimension returns the configured vector dimensionality.
func (p *OpenAIProvider) Dimension() int { return p.config.Dimension }

// Ping verifies the endpoint is reachable and serving models.
func (p *OpenAIProvider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.BaseURL+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("embeddings endpoint not reachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("embeddings endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

type embeddingsRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// EmbedBatch embeds texts in one API call. Oversized inputs are rejected
// locally with a per-item ErrTextTooLong and excluded from the request, so
// one pathological item never aborts the batch.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, []error, error) {
	vectors := make([][]float32, len(texts))
	itemErrs := make([]error, len(texts))

	var sendable []string
	var sendIdx []int
	for i, text := range texts {
		if len(text) > p.config.MaxInputSize {
			itemErrs[i] = fmt.Errorf("%w: %d chars (limit %d)", ErrTextTooLong, len(text), p.config.MaxInputSize)
			continue
		}
		sendable = append(sendable, text)
		sendIdx = append(sendIdx, i)
	}
	if len(sendable) == 0 {
		return vectors, itemErrs, nil
	}

	body, err := json.Marshal(embeddingsRequest{Input: sendable, Model: p.config.Model})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal embeddings request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create embeddings request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("embeddings request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, nil, fmt.Errorf("embeddings request failed (status %d): %s", resp.StatusCode, string(raw))
	}

	var parsed embeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, nil, fmt.Errorf("failed to decode embeddings response: %w", err)
	}
	if parsed.Error != nil {
		return nil, nil, fmt.Errorf("embeddings provider error: %s", parsed.Error.Message)
	}
	if len(parsed.Data) != len(sendable) {
		return nil, nil, fmt.Errorf("embeddings response has %d vectors, want %d", len(parsed.Data), len(sendable))
	}

	for _, item := range parsed.Data {
		if item.Index < 0 || item.Index >= len(sendIdx) {
			return nil, nil, fmt.Errorf("embeddings response index %d out of range", item.Index)
		}
		vectors[sendIdx[item.Index]] = item.Embedding
	}
	return vectors, itemErrs, nil
}
