package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"textbook-rag/internal/services"
)

// SessionHandler handles HTTP requests for conversation sessions.
type SessionHandler struct {
	chatService *services.ChatService
	logger      *log.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(chatService *services.ChatService, logger *log.Logger) *SessionHandler {
	return &SessionHandler{
		chatService: chatService,
		logger:      logger,
	}
}

type createSessionRequest struct {
	UserID string `json:"user_id,omitempty"`
}

// Create starts a new session
// @Summary Create a session
// @Description Create a conversation session ahead of the first chat message.
// @Tags sessions
// @Accept json
// @Produce json
// @Param request body createSessionRequest false "Optional user binding"
// @Success 201 {object} models.ConversationSession
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/sessions [post]
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			sendError(w, h.logger, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	session, err := h.chatService.CreateSession(r.Context(), req.UserID)
	if err != nil {
		h.logger.Printf("Session creation failed: %v", err)
		sendServiceError(w, h.logger, err)
		return
	}

	sendJSON(w, h.logger, http.StatusCreated, session)
}

// History returns a session's message history
// @Summary Session history
// @Description Most recent messages of a session in chronological order.
// @Tags sessions
// @Produce json
// @Param session_id path string true "Session ID"
// @Param limit query int false "Maximum messages" default(50)
// @Success 200 {object} models.SessionHistoryResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/conversations/{session_id} [get]
func (h *SessionHandler) History(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	resp, err := h.chatService.History(r.Context(), sessionID, limit)
	if err != nil {
		h.logger.Printf("History fetch failed for %s: %v", sessionID, err)
		sendServiceError(w, h.logger, err)
		return
	}

	sendJSON(w, h.logger, http.StatusOK, resp)
}

// End marks a session inactive
// @Summary End a session
// @Description Mark a session inactive. Its history stays readable.
// @Tags sessions
// @Produce json
// @Param session_id path string true "Session ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/conversations/{session_id} [delete]
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]

	if err := h.chatService.EndSession(r.Context(), sessionID); err != nil {
		h.logger.Printf("Session end failed for %s: %v", sessionID, err)
		sendServiceError(w, h.logger, err)
		return
	}

	sendJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"is_active":  false,
	})
}
