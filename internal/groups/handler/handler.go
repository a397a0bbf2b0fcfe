package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"escrowops/internal/groups/models"
	"escrowops/pkg/domain"
	dErrors "escrowops/pkg/domain-errors"
	"escrowops/pkg/platform/httputil"
	"escrowops/pkg/requestcontext"
)

type Service interface {
	List(ctx context.Context) ([]*models.Group, error)
	Resolve(ctx context.Context, number int) (*models.Group, error)
	Allocate(ctx context.Context, dealID string, requestedBy domain.Actor) (*models.Group, error)
	BindDeal(ctx context.Context, groupID uuid.UUID, dealID string, requestedBy domain.Actor) (*models.Group, error)
	Complete(ctx context.Context, groupID uuid.UUID, dealID string, requestedBy domain.Actor) (*models.Group, error)
	Release(ctx context.Context, groupID uuid.UUID, requestedBy domain.Actor) (*models.Group, error)
	Reset(ctx context.Context, groupID uuid.UUID, requestedBy domain.Actor) (*models.Group, error)
	Lock(ctx context.Context, groupID uuid.UUID, reason string, requestedBy domain.Actor) (*models.Group, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts group endpoints. {id} is a group uuid or its number.
func (h *Handler) Register(r chi.Router) {
	r.Get("/api/groups/manage", h.HandleList)
	r.Post("/api/groups/allocate", h.HandleAllocate)
	r.Post("/api/groups/{id}/bind", h.HandleBind)
	r.Post("/api/groups/{id}/complete", h.HandleComplete)
	r.Post("/api/groups/{id}/release", h.HandleRelease)
	r.Post("/api/groups/{id}/reset", h.HandleReset)
	r.Post("/api/groups/{id}/lock", h.HandleLock)
}

type groupResponse struct {
	ID           string     `json:"id"`
	GroupNumber  int        `json:"group_number"`
	Status       string     `json:"status"`
	CurrentDeal  *string    `json:"current_deal"`
	OccupiedAt   *time.Time `json:"occupied_at,omitempty"`
	LockedReason string     `json:"locked_reason,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func toResponse(g *models.Group) groupResponse {
	resp := groupResponse{
		ID:           g.ID.String(),
		GroupNumber:  g.Number,
		Status:       string(g.Status),
		OccupiedAt:   g.OccupiedAt,
		LockedReason: g.LockedReason,
		UpdatedAt:    g.UpdatedAt,
	}
	if g.DealID != "" {
		deal := g.DealID
		resp.CurrentDeal = &deal
	}
	return resp
}

type listResponse struct {
	Groups    []groupResponse `json:"groups"`
	Total     int             `json:"total"`
	Available int             `json:"available"`
	Occupied  int             `json:"occupied"`
}

// HandleList handles GET /api/groups/manage.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	groups, err := h.service.List(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list groups",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	resp := listResponse{Groups: make([]groupResponse, 0, len(groups)), Total: len(groups)}
	for _, g := range groups {
		resp.Groups = append(resp.Groups, toResponse(g))
		switch g.Status {
		case models.StatusAvailable:
			resp.Available++
		case models.StatusOccupied:
			resp.Occupied++
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type dealRequest struct {
	DealID string `json:"deal_id"`
}

func (req *dealRequest) Validate() error {
	req.DealID = strings.TrimSpace(req.DealID)
	if req.DealID == "" {
		return dErrors.New(dErrors.CodeValidation, "deal_id is required")
	}
	return nil
}

type lockRequest struct {
	Reason string `json:"reason"`
}

func (req *lockRequest) Validate() error {
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	return nil
}

// HandleAllocate handles POST /api/groups/allocate.
func (h *Handler) HandleAllocate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[dealRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	g, err := h.service.Allocate(ctx, req.DealID, requestcontext.Actor(ctx))
	h.respond(w, g, err)
}

// HandleBind handles POST /api/groups/{id}/bind.
func (h *Handler) HandleBind(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.groupID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[dealRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	g, err := h.service.BindDeal(ctx, id, req.DealID, requestcontext.Actor(ctx))
	h.respond(w, g, err)
}

// HandleComplete handles POST /api/groups/{id}/complete.
func (h *Handler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.groupID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[dealRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	g, err := h.service.Complete(ctx, id, req.DealID, requestcontext.Actor(ctx))
	h.respond(w, g, err)
}

// HandleRelease handles POST /api/groups/{id}/release.
func (h *Handler) HandleRelease(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.groupID(w, r)
	if !ok {
		return
	}
	g, err := h.service.Release(ctx, id, requestcontext.Actor(ctx))
	h.respond(w, g, err)
}

// HandleReset handles POST /api/groups/{id}/reset.
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.groupID(w, r)
	if !ok {
		return
	}
	g, err := h.service.Reset(ctx, id, requestcontext.Actor(ctx))
	h.respond(w, g, err)
}

// HandleLock handles POST /api/groups/{id}/lock.
func (h *Handler) HandleLock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.groupID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[lockRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	g, err := h.service.Lock(ctx, id, req.Reason, requestcontext.Actor(ctx))
	h.respond(w, g, err)
}

func (h *Handler) respond(w http.ResponseWriter, g *models.Group, err error) {
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(g))
}

// groupID accepts either the group uuid or its number.
func (h *Handler) groupID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	if id, err := uuid.Parse(raw); err == nil {
		return id, true
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		g, err := h.service.Resolve(r.Context(), n)
		if err != nil {
			httputil.WriteError(w, err)
			return uuid.Nil, false
		}
		return g.ID, true
	}
	httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid group id"))
	return uuid.Nil, false
}
