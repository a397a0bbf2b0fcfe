package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"escrowops/internal/botconfig/models"
	"escrowops/pkg/domain"
	"escrowops/pkg/platform/httputil"
	"escrowops/pkg/requestcontext"
)

type Service interface {
	Get(ctx context.Context) (*models.Messages, error)
	Update(ctx context.Context, actor domain.Actor, m models.Messages) (*models.Messages, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/api/bot/messages", h.HandleGet)
	r.Post("/api/bot/messages", h.HandleUpdate)
}

type messagesBody struct {
	WelcomeMessage string            `json:"welcome_message"`
	RulesMessage   string            `json:"rules_message"`
	ErrorMessages  map[string]string `json:"error_messages"`
}

func (req *messagesBody) Validate() error {
	trimmed := make(map[string]string, len(req.ErrorMessages))
	for k, v := range req.ErrorMessages {
		trimmed[strings.TrimSpace(k)] = v
	}
	req.ErrorMessages = trimmed
	return req.messages().Validate()
}

func (req *messagesBody) messages() models.Messages {
	return models.Messages{
		Welcome: req.WelcomeMessage,
		Rules:   req.RulesMessage,
		Errors:  req.ErrorMessages,
	}
}

// HandleGet handles GET /api/bot/messages.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	m, err := h.service.Get(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	errs := m.Errors
	if errs == nil {
		errs = map[string]string{}
	}
	httputil.WriteJSON(w, http.StatusOK, messagesBody{
		WelcomeMessage: m.Welcome,
		RulesMessage:   m.Rules,
		ErrorMessages:  errs,
	})
}

type updateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// HandleUpdate handles POST /api/bot/messages.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[messagesBody](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if _, err := h.service.Update(ctx, requestcontext.Actor(ctx), req.messages()); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updateResponse{Success: true, Message: "Bot messages updated successfully"})
}
