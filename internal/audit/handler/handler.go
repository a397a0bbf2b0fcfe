package handler

import (
	"context"
	"iter"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"escrowops/internal/audit/models"
	dErrors "escrowops/pkg/domain-errors"
	"escrowops/pkg/platform/httputil"
	"escrowops/pkg/requestcontext"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Service is the read side of the audit log.
type Service interface {
	Query(ctx context.Context, f models.Filter) iter.Seq2[models.Entry, error]
}

// Handler exposes audit log queries to the owner.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts audit endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/api/audit/logs", h.HandleList)
	r.Get("/api/deals/{dealID}/logs", h.HandleDealLogs)
}

type listResponse struct {
	TotalLogs    int            `json:"total_logs"`
	Entries      []models.Entry `json:"entries"`
	NextAfterSeq uint64         `json:"next_after_seq,omitempty"`
}

type dealLogsResponse struct {
	DealID    string         `json:"deal_id"`
	TotalLogs int            `json:"total_logs"`
	Logs      []models.Entry `json:"logs"`
}

// HandleList handles GET /api/audit/logs.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	entries, err := h.collect(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	resp := listResponse{TotalLogs: len(entries), Entries: entries}
	if len(entries) == filter.Limit {
		resp.NextAfterSeq = entries[len(entries)-1].Seq
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleDealLogs handles GET /api/deals/{dealID}/logs: every entry tagged
// with the deal, oldest first. A deal with no entries yields an empty list.
func (h *Handler) HandleDealLogs(w http.ResponseWriter, r *http.Request) {
	dealID := strings.TrimSpace(chi.URLParam(r, "dealID"))
	if dealID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "deal id is required"))
		return
	}

	entries, err := h.collect(r.Context(), models.Filter{DealID: dealID, Limit: maxLimit})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, dealLogsResponse{DealID: dealID, TotalLogs: len(entries), Logs: entries})
}

func (h *Handler) collect(ctx context.Context, filter models.Filter) ([]models.Entry, error) {
	entries := make([]models.Entry, 0, min(filter.Limit, defaultLimit))
	for e, err := range h.service.Query(ctx, filter) {
		if err != nil {
			h.logger.ErrorContext(ctx, "audit query failed",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func parseFilter(r *http.Request) (models.Filter, error) {
	q := r.URL.Query()
	f := models.Filter{
		Actor:          strings.TrimSpace(q.Get("actor")),
		ActionContains: strings.TrimSpace(q.Get("action")),
		Target:         strings.TrimSpace(q.Get("target")),
		DealID:         strings.TrimSpace(q.Get("deal_id")),
		Limit:          defaultLimit,
	}
	// action_filter is the dashboard's historical parameter name.
	if f.ActionContains == "" {
		f.ActionContains = strings.TrimSpace(q.Get("action_filter"))
	}
	if v := q.Get("after_seq"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return f, dErrors.New(dErrors.CodeValidation, "after_seq must be a non-negative integer")
		}
		f.AfterSeq = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return f, dErrors.New(dErrors.CodeValidation, "limit must be a positive integer")
		}
		f.Limit = min(n, maxLimit)
	}
	if v := q.Get("outcome"); v != "" {
		o, err := models.ParseOutcome(v)
		if err != nil {
			return f, err
		}
		f.Outcome = o
	}
	return f, nil
}
