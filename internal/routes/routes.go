package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"textbook-rag/internal/handlers"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Chat    *handlers.ChatHandler
	Ingest  *handlers.IngestHandler
	Session *handlers.SessionHandler
	Health  *handlers.HealthHandler
}

// RegisterRoutes sets up all application routes
func RegisterRoutes(router *mux.Router, h *Handlers) {
	// Service banner and health endpoints
	router.HandleFunc("/", h.Health.Root).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/health", h.Health.Health).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/health/live", h.Health.Live).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/health/ready", h.Health.Ready).Methods(http.MethodGet)

	// Chat
	router.HandleFunc("/api/v1/chat", h.Chat.Chat).Methods(http.MethodPost)

	// Sessions
	router.HandleFunc("/api/v1/sessions", h.Session.Create).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/conversations/{session_id}", h.Session.History).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/conversations/{session_id}", h.Session.End).Methods(http.MethodDelete)

	// Ingestion
	router.HandleFunc("/api/v1/ingest", h.Ingest.Ingest).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/ingest/batch", h.Ingest.IngestBatch).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/content/{content_id}/status", h.Ingest.Status).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/content/{content_id}", h.Ingest.Delete).Methods(http.MethodDelete)
}
