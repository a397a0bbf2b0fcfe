package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"escrowops/internal/export/models"
	"escrowops/pkg/domain"
	"escrowops/pkg/platform/httputil"
	"escrowops/pkg/requestcontext"
)

type Service interface {
	Export(ctx context.Context, actor domain.Actor) (*models.Archive, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/api/export/data", h.HandleExport)
}

// HandleExport handles GET /api/export/data. The archive is assembled
// before the first byte is written, so errors still get a JSON body.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	archive, err := h.service.Export(ctx, requestcontext.Actor(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+archive.Filename()+`"`)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if err := archive.WriteZip(w); err != nil {
		h.logger.ErrorContext(ctx, "export stream interrupted",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
}
