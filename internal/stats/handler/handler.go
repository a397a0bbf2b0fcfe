package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"escrowops/internal/stats/models"
	"escrowops/pkg/platform/httputil"
	"escrowops/pkg/requestcontext"
)

type Service interface {
	Snapshot(ctx context.Context) (models.Snapshot, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/api/dashboard/stats", h.HandleStats)
}

type statsResponse struct {
	Users          int64       `json:"users"`
	Deals          int64       `json:"deals"`
	Groups         int         `json:"groups"`
	Revenue        json.Number `json:"revenue"`
	GroupsTotal    int         `json:"groups_total"`
	GroupsOccupied int         `json:"groups_occupied"`
	ComputedAt     time.Time   `json:"computed_at"`
}

// HandleStats handles GET /api/dashboard/stats.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap, err := h.service.Snapshot(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load dashboard stats",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statsResponse{
		Users:          snap.Users,
		Deals:          snap.Deals,
		Groups:         snap.Groups,
		Revenue:        json.Number(snap.Revenue.StringFixed(2)),
		GroupsTotal:    snap.GroupsTotal,
		GroupsOccupied: snap.GroupsOccupied,
		ComputedAt:     snap.ComputedAt,
	})
}
