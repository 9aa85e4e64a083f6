package services

import (
	"context"
	"log"
	"time"

	"textbook-rag/internal/embedding"
	"textbook-rag/internal/repositories"
)

// Health statuses.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
	StatusError    = "error"
)

// DependencyStatus reports one dependency probe.
type DependencyStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthReport aggregates dependency probes. Status is "healthy" when all
// dependencies respond, "degraded" when only the generator is down (the
// service can still ingest and retrieve), and "error" otherwise.
type HealthReport struct {
	Status       string             `json:"status"`
	Timestamp    time.Time          `json:"timestamp"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// HealthService probes the service's dependencies.
type HealthService struct {
	index     repositories.VectorIndex
	sessions  repositories.SessionStore
	embedder  *embedding.Gateway
	generator Generator
	timeout   time.Duration
	logger    *log.Logger
}

// NewHealthService creates a new health service.
func NewHealthService(index repositories.VectorIndex, sessions repositories.SessionStore, embedder *embedding.Gateway, generator Generator, logger *log.Logger) *HealthService {
	return &HealthService{
		index:     index,
		sessions:  sessions,
		embedder:  embedder,
		generator: generator,
		timeout:   5 * time.Second,
		logger:    logger,
	}
}

// Check probes every dependency and aggregates the result.
func (s *HealthService) Check(ctx context.Context) *HealthReport {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	report := &HealthReport{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
	}

	indexStatus := s.probe(ctx, "vector_index", s.index.Ping)
	sessionStatus := s.probe(ctx, "session_store", s.sessions.Ping)
	embedderStatus := s.probe(ctx, "embedding_provider", s.embedder.Ping)
	generatorStatus := s.probe(ctx, "generator", s.generator.Ping)
	report.Dependencies = []DependencyStatus{indexStatus, sessionStatus, embedderStatus, generatorStatus}

	switch {
	case indexStatus.Status != StatusHealthy || sessionStatus.Status != StatusHealthy ||
		embedderStatus.Status != StatusHealthy:
		// Without embeddings neither ingestion nor retrieval works.
		report.Status = StatusError
	case generatorStatus.Status != StatusHealthy:
		// Retrieval still works without the generator.
		report.Status = StatusDegraded
	}
	return report
}

// Ready reports whether the service can take traffic: the index, the
// session store, and the embedding provider must all respond.
func (s *HealthService) Ready(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.index.Ping(ctx) == nil && s.sessions.Ping(ctx) == nil && s.embedder.Ping(ctx) == nil
}

func (s *HealthService) probe(ctx context.Context, name string, ping func(context.Context) error) DependencyStatus {
	status := DependencyStatus{Name: name, Status: StatusHealthy}
	if err := ping(ctx); err != nil {
		s.logger.Printf("Health probe %s failed: %v", name, err)
		status.Status = StatusError
		status.Error = err.Error()
	}
	return status
}
