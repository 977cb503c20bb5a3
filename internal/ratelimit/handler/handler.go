// Package handler exposes read-only rate limit endpoints.
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"crmdash/internal/ratelimit/models"
	"crmdash/pkg/platform/httputil"
	"crmdash/pkg/platform/sentinel"
	"crmdash/pkg/requestcontext"
)

const (
	StatusPath = "/api/v1/rate-limit/status"
	HealthPath = "/healthz"
)

type StatusService interface {
	Status(ctx context.Context, rc models.RequestContext) (*models.StatusResponse, error)
}

type HealthChecker interface {
	Healthy(ctx context.Context) bool
}

type Handler struct {
	status StatusService
	health HealthChecker
	logger *slog.Logger
}

func New(status StatusService, health HealthChecker, logger *slog.Logger) *Handler {
	return &Handler{status: status, health: health, logger: logger}
}

// Register mounts the status endpoint. It relies on the rate limit
// middleware having stored the verified session in the request context.
func (h *Handler) Register(r chi.Router) {
	r.Get(StatusPath, h.HandleStatus)
}

// HandleStatus reports the caller's current usage without consuming any.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rc := models.RequestContext{
		IPAddress: requestcontext.ClientIP(ctx),
		UserID:    requestcontext.UserID(ctx),
		CompanyID: requestcontext.CompanyID(ctx),
		Path:      r.URL.Path,
	}
	if !rc.Authenticated() {
		httputil.WriteError(w, fmt.Errorf("%w: a valid session is required", sentinel.ErrInvalidToken))
		return
	}

	res, err := h.status.Status(ctx, rc)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read rate limit status", "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandleHealth reports process liveness and the cached shared store verdict.
// A down store is degraded service, not an unhealthy process.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	store := "up"
	if !h.health.Healthy(r.Context()) {
		store = "down"
	}
	httputil.WriteJSON(w, http.StatusOK, &models.HealthResponse{Status: "ok", SharedStore: store})
}
