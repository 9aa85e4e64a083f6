package db

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ChromaDBClient wraps HTTP calls to the ChromaDB v2 API. Hand-rolled
// rather than the official Go client, which lags behind the v2 wire format.
type ChromaDBClient struct {
	baseURL    string
	rootURL    string
	httpClient *http.Client
}

// ChromaDBConfig holds configuration for the ChromaDB connection.
type ChromaDBConfig struct {
	Host     string
	Port     int
	Tenant   string // default: "default_tenant"
	Database string // default: "default_database"
	Timeout  time.Duration
}

// DefaultChromaDBConfig returns connection defaults.
func DefaultChromaDBConfig() ChromaDBConfig {
	return ChromaDBConfig{
		Host:     "localhost",
		Port:     8000,
		Tenant:   "default_tenant",
		Database: "default_database",
		Timeout:  30 * time.Second,
	}
}

// Collection represents a ChromaDB collection.
type Collection struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	Metadata map[string]interface{} `json:"metadata"`
}

// GetResult is the response shape of a filtered get.
type GetResult struct {
	IDs       []string                 `json:"ids"`
	Documents []string                 `json:"documents"`
	Metadatas []map[string]interface{} `json:"metadatas"`
}

// QueryResult is the response shape of a nearest-neighbor query. The outer
// slice is per query embedding; we always send exactly one.
type QueryResult struct {
	IDs       [][]string                 `json:"ids"`
	Documents [][]string                 `json:"documents"`
	Metadatas [][]map[string]interface{} `json:"metadatas"`
	Distances [][]float32                `json:"distances"`
}

// NewChromaDBClient creates a new ChromaDB client with v2 API support.
func NewChromaDBClient(config ChromaDBConfig) *ChromaDBClient {
	defaults := DefaultChromaDBConfig()
	if config.Tenant == "" {
		config.Tenant = defaults.Tenant
	}
	if config.Database == "" {
		config.Database = defaults.Database
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}

	rootURL := fmt.Sprintf("http://%s:%d", config.Host, config.Port)
	baseURL := fmt.Sprintf("%s/api/v2/tenants/%s/databases/%s", rootURL, config.Tenant, config.Database)

	return &ChromaDBClient{
		baseURL:    baseURL,
		rootURL:    rootURL,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// Heartbeat checks if ChromaDB is alive.
func (c *ChromaDBClient) Heartbeat(ctx context.Context) error {
	var out map[string]interface{}
	return c.do(ctx, http.MethodGet, c.rootURL+"/api/v2/heartbeat", nil, &out)
}

// EnsureCollection returns the ID of the named collection, creating it with
// cosine distance if it does not exist.
func (c *ChromaDBClient) EnsureCollection(ctx context.Context, name string) (string, error) {
	payload := map[string]interface{}{
		"name":          name,
		"metadata":      map[string]interface{}{"hnsw:space": "cosine"},
		"get_or_create": true,
	}
	var collection Collection
	url := fmt.Sprintf("%s/collections", c.baseURL)
	if err := c.do(ctx, http.MethodPost, url, payload, &collection); err != nil {
		return "", fmt.Errorf("ensure collection %s: %w", name, err)
	}
	return collection.ID, nil
}

// DeleteCollection removes a collection by name.
func (c *ChromaDBClient) DeleteCollection(ctx context.Context, name string) error {
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, name)
	return c.do(ctx, http.MethodDelete, url, nil, nil)
}

// AddDocuments upserts documents with embeddings and metadata.
func (c *ChromaDBClient) AddDocuments(ctx context.Context, collectionID string, ids []string, documents []string, embeddings [][]float32, metadatas []map[string]interface{}) error {
	payload := map[string]interface{}{
		"ids":        ids,
		"documents":  documents,
		"embeddings": embeddings,
		"metadatas":  metadatas,
	}
	url := fmt.Sprintf("%s/collections/%s/upsert", c.baseURL, collectionID)
	return c.do(ctx, http.MethodPost, url, payload, nil)
}

// Query runs a nearest-neighbor search with an optional metadata filter.
func (c *ChromaDBClient) Query(ctx context.Context, collectionID string, embedding []float32, nResults int, where map[string]interface{}) (*QueryResult, error) {
	payload := map[string]interface{}{
		"query_embeddings": [][]float32{embedding},
		"n_results":        nResults,
		"include":          []string{"documents", "metadatas", "distances"},
	}
	if len(where) > 0 {
		payload["where"] = where
	}
	var result QueryResult
	url := fmt.Sprintf("%s/collections/%s/query", c.baseURL, collectionID)
	if err := c.do(ctx, http.MethodPost, url, payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Get fetches documents matching a metadata filter.
func (c *ChromaDBClient) Get(ctx context.Context, collectionID string, where map[string]interface{}) (*GetResult, error) {
	payload := map[string]interface{}{
		"where":   where,
		"include": []string{"metadatas"},
	}
	var result GetResult
	url := fmt.Sprintf("%s/collections/%s/get", c.baseURL, collectionID)
	if err := c.do(ctx, http.MethodPost, url, payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteWhere removes all documents matching a metadata filter.
func (c *ChromaDBClient) DeleteWhere(ctx context.Context, collectionID string, where map[string]interface{}) error {
	payload := map[string]interface{}{"where": where}
	url := fmt.Sprintf("%s/collections/%s/delete", c.baseURL, collectionID)
	return c.do(ctx, http.MethodPost, url, payload, nil)
}

// Count returns the number of stored embeddings in a collection.
func (c *ChromaDBClient) Count(ctx context.Context, collectionID string) (int, error) {
	var count int
	url := fmt.Sprintf("%s/collections/%s/count", c.baseURL, collectionID)
	if err := c.do(ctx, http.MethodGet, url, nil, &count); err != nil {
		return 0, err
	}
	return count, nil
}

func (c *ChromaDBClient) do(ctx context.Context, method, url string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s failed (status %d): %s", method, url, resp.StatusCode, string(raw))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
