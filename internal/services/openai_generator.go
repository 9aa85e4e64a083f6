package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"textbook-rag/internal/models"
)

// OpenAIGeneratorConfig holds settings for an OpenAI-compatible chat
// completion endpoint (OpenAI, LM Studio, vLLM, Ollama all speak it).
type OpenAIGeneratorConfig struct {
	BaseURL   string
	Model     string
	APIKeyEnv string
	Timeout   time.Duration
}

// DefaultOpenAIGeneratorConfig returns generator defaults.
func DefaultOpenAIGeneratorConfig() OpenAIGeneratorConfig {
	return OpenAIGeneratorConfig{
		BaseURL:   "https://api.openai.com/v1",
		Model:     "gpt-4o-mini",
		APIKeyEnv: "GENERATION_API_KEY",
		Timeout:   120 * time.Second, // LLMs can be slow
	}
}

// chatCompletionRequest is the request format for the chat completions API.
type chatCompletionRequest struct {
	Model       string               `json:"model"`
	Messages    []models.ChatMessage `json:"messages"`
	Temperature float64              `json:"temperature"`
	MaxTokens   int                  `json:"max_tokens,omitempty"`
	Stream      bool                 `json:"stream"`
}

// chatCompletionResponse is the response from the chat completions API.
type chatCompletionResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// OpenAIGenerator implements Generator against an OpenAI-compatible chat
// completion endpoint.
type OpenAIGenerator struct {
	config     OpenAIGeneratorConfig
	apiKey     string
	httpClient *http.Client
}

// NewOpenAIGenerator creates a generator from config. The API key is read
// from the environment variable named in config; empty is allowed for
// local endpoints that skip auth.
func NewOpenAIGenerator(config OpenAIGeneratorConfig) *OpenAIGenerator {
	if config.BaseURL == "" {
		config.BaseURL = DefaultOpenAIGeneratorConfig().BaseURL
	}
	if config.Model == "" {
		config.Model = DefaultOpenAIGeneratorConfig().Model
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultOpenAIGeneratorConfig().Timeout
	}
	apiKey := ""
	if config.APIKeyEnv != "" {
		apiKey = os.Getenv(config.APIKeyEnv)
	}
	return &OpenAIGenerator{
		config: config,
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Name returns the generator model identifier.
func (g *OpenAIGenerator) Name() string {
	return "openai:" + g.config.Model
}

// Generate sends a chat completion request and returns the assistant text.
// Any transport or provider failure wraps models.ErrGenerationUnavailable.
func (g *OpenAIGenerator) Generate(ctx context.Context, req *GenerationRequest) (string, error) {
	messages := make([]models.ChatMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, models.ChatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, req.Messages...)

	body := chatCompletionRequest{
		Model:       g.config.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      false,
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", g.config.BaseURL+"/chat/completions", bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrGenerationUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response: %v", models.ErrGenerationUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: provider returned status %d: %s",
			models.ErrGenerationUnavailable, resp.StatusCode, string(respBody))
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return "", fmt.Errorf("%w: failed to parse response: %v", models.ErrGenerationUnavailable, err)
	}

	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices in response", models.ErrGenerationUnavailable)
	}
	return completion.Choices[0].Message.Content, nil
}

// Ping verifies the endpoint is reachable and serving models.
func (g *OpenAIGenerator) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", g.config.BaseURL+"/models", nil)
	if err != nil {
		return err
	}
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("generation endpoint not reachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("generation endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
