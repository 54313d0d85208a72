package handler

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

const (
	statusOK           = "ok"
	tracingReady       = "ready"
	tracingUnavailable = "unavailable"
)

// HealthCheck reports whether the tracing backend can serve flows.
type HealthCheck func(ctx context.Context) error

// HealthHandler creates a handler for the server health. The server is healthy
// while it runs, tracing readiness is reported alongside.
// @Summary Get server and tracing backend health.
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponseDTO "Health"
// @Router /health [get]
func HealthHandler(
	ctx context.Context,
	check HealthCheck,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tracing := tracingReady
		if check != nil {
			if err := check(r.Context()); err != nil {
				logger.Warn("Tracing backend is not ready", zap.Error(err))
				tracing = tracingUnavailable
			}
		}
		writeJSON(w, http.StatusOK, HealthResponseDTO{Status: statusOK, Tracing: tracing}, logger)
	}
}
