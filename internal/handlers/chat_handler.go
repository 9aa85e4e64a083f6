package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"textbook-rag/internal/models"
	"textbook-rag/internal/services"
)

// ChatHandler handles HTTP requests for conversation turns.
type ChatHandler struct {
	chatService *services.ChatService
	logger      *log.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(chatService *services.ChatService, logger *log.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		logger:      logger,
	}
}

// Chat handles one conversation turn
// @Summary Ask a question
// @Description Answer a reader question grounded in indexed textbook content. Creates a session when none is given.
// @Tags chat
// @Accept json
// @Produce json
// @Param request body models.ChatRequest true "Chat request"
// @Success 200 {object} models.ChatResponse
// @Failure 400 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/chat [post]
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Printf("Failed to decode chat request: %v", err)
		sendError(w, h.logger, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.chatService.Chat(r.Context(), &req)
	if err != nil {
		h.logger.Printf("Chat turn failed: %v", err)
		sendServiceError(w, h.logger, err)
		return
	}

	sendJSON(w, h.logger, http.StatusOK, resp)
}
