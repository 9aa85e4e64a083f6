package handlers

import (
	"log"
	"net/http"

	"textbook-rag/internal/services"
)

// ServiceName and ServiceVersion identify the service in the root banner.
const (
	ServiceName    = "textbook-rag"
	ServiceVersion = "1.0.0"
)

// HealthHandler handles health and liveness probes.
type HealthHandler struct {
	healthService *services.HealthService
	logger        *log.Logger
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(healthService *services.HealthService, logger *log.Logger) *HealthHandler {
	return &HealthHandler{
		healthService: healthService,
		logger:        logger,
	}
}

// Health reports aggregate dependency health
// @Summary Service health
// @Description Probe every dependency and report aggregate status.
// @Tags health
// @Produce json
// @Success 200 {object} services.HealthReport
// @Failure 503 {object} services.HealthReport
// @Router /api/v1/health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	report := h.healthService.Check(r.Context())

	status := http.StatusOK
	if report.Status == services.StatusError {
		status = http.StatusServiceUnavailable
	}
	sendJSON(w, h.logger, status, report)
}

// Live is the liveness probe: the process is up
// @Summary Liveness probe
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/health/live [get]
func (h *HealthHandler) Live(w http.ResponseWriter, _ *http.Request) {
	sendJSON(w, h.logger, http.StatusOK, map[string]string{"status": "alive"})
}

// Ready is the readiness probe: required dependencies respond
// @Summary Readiness probe
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /api/v1/health/ready [get]
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.healthService.Ready(r.Context()) {
		sendJSON(w, h.logger, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	sendJSON(w, h.logger, http.StatusOK, map[string]string{"status": "ready"})
}

// Root serves the service banner
// @Summary Service banner
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router / [get]
func (h *HealthHandler) Root(w http.ResponseWriter, _ *http.Request) {
	sendJSON(w, h.logger, http.StatusOK, map[string]string{
		"service": ServiceName,
		"version": ServiceVersion,
		"status":  "running",
	})
}
