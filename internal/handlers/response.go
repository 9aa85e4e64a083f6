package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"textbook-rag/internal/models"
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func sendJSON(w http.ResponseWriter, logger *log.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Printf("Failed to encode JSON: %v", err)
	}
}

func sendError(w http.ResponseWriter, logger *log.Logger, status int, message string) {
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	sendJSON(w, logger, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Status:  status,
	})
}

// sendServiceError maps a service-layer error onto the HTTP status taxonomy
// and writes it.
func sendServiceError(w http.ResponseWriter, logger *log.Logger, err error) {
	sendError(w, logger, statusForError(err), err.Error())
}

// statusForError maps the error taxonomy to HTTP statuses: invalid input
// 400, unknown session 404, dependency timeout or unavailable generator
// 503, everything else 500.
func statusForError(err error) int {
	switch {
	case models.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrSessionNotFound):
		return http.StatusNotFound
	case models.IsTimeout(err), errors.Is(err, models.ErrGenerationUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
