package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"escrowops/internal/moderator/models"
	"escrowops/internal/moderator/service"
	"escrowops/pkg/domain"
	dErrors "escrowops/pkg/domain-errors"
	"escrowops/pkg/platform/httputil"
	"escrowops/pkg/requestcontext"
)

// Service is the PermissionRegistry as seen by HTTP callers.
type Service interface {
	Authorize(ctx context.Context, actorID string, capability models.Capability) bool
	Upsert(ctx context.Context, in service.UpsertInput, requestedBy domain.Actor) (*models.Moderator, error)
	List(ctx context.Context) ([]*models.Moderator, error)
	RecordDealHandled(ctx context.Context, userID string, requestedBy domain.Actor) (*models.Moderator, error)
	Features(ctx context.Context, actor domain.Actor) (map[models.Feature]bool, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts moderator endpoints. Role checks beyond authentication
// live in the service.
func (h *Handler) Register(r chi.Router) {
	r.Get("/api/moderators/permissions", h.HandleList)
	r.Post("/api/moderators/permissions", h.HandleUpsert)
	r.Get("/api/moderators/{id}/authorize", h.HandleAuthorize)
	r.Post("/api/moderators/{id}/deals-handled", h.HandleDealHandled)
	r.Get("/api/me/features", h.HandleFeatures)
}

type moderatorResponse struct {
	UserID       string    `json:"user_id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	CanBan       bool      `json:"can_ban"`
	CanFreeze    bool      `json:"can_freeze"`
	CanBroadcast bool      `json:"can_broadcast"`
	CanEditFees  bool      `json:"can_edit_fees"`
	DealsHandled uint64    `json:"deals_handled"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toResponse(m *models.Moderator) moderatorResponse {
	return moderatorResponse{
		UserID:       m.UserID,
		Username:     m.Username,
		DisplayName:  m.DisplayName,
		CanBan:       m.Capabilities.Ban,
		CanFreeze:    m.Capabilities.Freeze,
		CanBroadcast: m.Capabilities.Broadcast,
		CanEditFees:  m.Capabilities.EditFees,
		DealsHandled: m.DealsHandled,
		UpdatedAt:    m.UpdatedAt,
	}
}

type listResponse struct {
	Moderators []moderatorResponse `json:"moderators"`
}

// HandleList handles GET /api/moderators/permissions.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := h.service.List(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list moderators",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	resp := listResponse{Moderators: make([]moderatorResponse, 0, len(list))}
	for _, m := range list {
		resp.Moderators = append(resp.Moderators, toResponse(m))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type upsertRequest struct {
	UserID       string `json:"user_id"`
	Username     string `json:"username"`
	DisplayName  string `json:"display_name"`
	CanBan       bool   `json:"can_ban"`
	CanFreeze    bool   `json:"can_freeze"`
	CanBroadcast bool   `json:"can_broadcast"`
	CanEditFees  bool   `json:"can_edit_fees"`
}

func (req *upsertRequest) Validate() error {
	req.UserID = strings.TrimSpace(req.UserID)
	req.Username = strings.TrimSpace(req.Username)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.UserID == "" {
		return dErrors.New(dErrors.CodeValidation, "user_id is required")
	}
	return nil
}

// HandleUpsert handles POST /api/moderators/permissions.
func (h *Handler) HandleUpsert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[upsertRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	m, err := h.service.Upsert(ctx, service.UpsertInput{
		UserID:      req.UserID,
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Capabilities: models.Capabilities{
			Ban:       req.CanBan,
			Freeze:    req.CanFreeze,
			Broadcast: req.CanBroadcast,
			EditFees:  req.CanEditFees,
		},
	}, requestcontext.Actor(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(m))
}

type authorizeResponse struct {
	UserID     string `json:"user_id"`
	Capability string `json:"capability"`
	Allowed    bool   `json:"allowed"`
}

// HandleAuthorize handles GET /api/moderators/{id}/authorize?capability=.
func (h *Handler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "id")
	capability, err := models.ParseCapability(r.URL.Query().Get("capability"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, authorizeResponse{
		UserID:     userID,
		Capability: string(capability),
		Allowed:    h.service.Authorize(ctx, userID, capability),
	})
}

// HandleDealHandled handles POST /api/moderators/{id}/deals-handled.
func (h *Handler) HandleDealHandled(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	m, err := h.service.RecordDealHandled(ctx, chi.URLParam(r, "id"), requestcontext.Actor(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(m))
}

type featuresResponse struct {
	ActorID  string                  `json:"actor_id"`
	Role     string                  `json:"role"`
	Features map[models.Feature]bool `json:"features"`
}

// HandleFeatures handles GET /api/me/features.
func (h *Handler) HandleFeatures(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Actor(ctx)
	features, err := h.service.Features(ctx, actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, featuresResponse{
		ActorID:  actor.ID,
		Role:     string(actor.Role),
		Features: features,
	})
}
