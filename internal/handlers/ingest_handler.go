package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"textbook-rag/internal/models"
	"textbook-rag/internal/services"
)

// IngestHandler handles HTTP requests for content ingestion.
type IngestHandler struct {
	ingestionService *services.IngestionService
	logger           *log.Logger
}

// NewIngestHandler creates a new ingestion handler.
func NewIngestHandler(ingestionService *services.IngestionService, logger *log.Logger) *IngestHandler {
	return &IngestHandler{
		ingestionService: ingestionService,
		logger:           logger,
	}
}

// Ingest handles single-document ingestion
// @Summary Ingest content
// @Description Chunk, embed, and index one content document. Re-ingesting a content_id replaces its chunks atomically.
// @Tags ingest
// @Accept json
// @Produce json
// @Param request body models.IngestRequest true "Content to index"
// @Success 200 {object} models.IngestResponse
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/ingest [post]
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req models.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Printf("Failed to decode ingest request: %v", err)
		sendError(w, h.logger, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.ingestionService.Ingest(r.Context(), &req)
	if err != nil {
		h.logger.Printf("Ingestion failed: %v", err)
		sendServiceError(w, h.logger, err)
		return
	}

	sendJSON(w, h.logger, http.StatusOK, resp)
}

// IngestBatch handles batch ingestion
// @Summary Ingest a content batch
// @Description Index multiple documents best-effort; per-item outcomes are reported individually.
// @Tags ingest
// @Accept json
// @Produce json
// @Param request body models.BatchIngestRequest true "Batch of content"
// @Success 200 {object} models.BatchIngestResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/ingest/batch [post]
func (h *IngestHandler) IngestBatch(w http.ResponseWriter, r *http.Request) {
	var req models.BatchIngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Printf("Failed to decode batch ingest request: %v", err)
		sendError(w, h.logger, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.ingestionService.IngestBatch(r.Context(), &req)
	if err != nil {
		h.logger.Printf("Batch ingestion failed: %v", err)
		sendServiceError(w, h.logger, err)
		return
	}

	sendJSON(w, h.logger, http.StatusOK, resp)
}

// Status reports whether a document is indexed
// @Summary Content index status
// @Tags ingest
// @Produce json
// @Param content_id path string true "Content ID"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/content/{content_id}/status [get]
func (h *IngestHandler) Status(w http.ResponseWriter, r *http.Request) {
	contentID := mux.Vars(r)["content_id"]

	indexed, err := h.ingestionService.IsIndexed(r.Context(), contentID)
	if err != nil {
		h.logger.Printf("Status check failed for %s: %v", contentID, err)
		sendServiceError(w, h.logger, err)
		return
	}

	status := models.IngestStatusIndexed
	if !indexed {
		status = "not_indexed"
	}
	sendJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"content_id": contentID,
		"status":     status,
	})
}

// Delete removes a document from the index
// @Summary Delete content
// @Tags ingest
// @Produce json
// @Param content_id path string true "Content ID"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/content/{content_id} [delete]
func (h *IngestHandler) Delete(w http.ResponseWriter, r *http.Request) {
	contentID := mux.Vars(r)["content_id"]

	removed, err := h.ingestionService.Delete(r.Context(), contentID)
	if err != nil {
		h.logger.Printf("Delete failed for %s: %v", contentID, err)
		sendServiceError(w, h.logger, err)
		return
	}

	sendJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"content_id":     contentID,
		"chunks_removed": removed,
	})
}
