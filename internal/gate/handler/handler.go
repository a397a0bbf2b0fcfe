package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"escrowops/internal/gate/models"
	"escrowops/pkg/domain"
	dErrors "escrowops/pkg/domain-errors"
	"escrowops/pkg/platform/httputil"
	"escrowops/pkg/requestcontext"
)

// ConfirmationHeader carries the phase-one token on the key export download.
const ConfirmationHeader = "X-Confirmation-Token"

type Service interface {
	RequestKeyExport(ctx context.Context, actor domain.Actor) (*models.Intent, string, error)
	ConfirmKeyExport(ctx context.Context, actor domain.Actor, intentID, token string) (models.BundleHandle, error)
	OpenBundle(ctx context.Context, actor domain.Actor, handle models.BundleHandle) (io.ReadCloser, error)
	RequestPayout(ctx context.Context, actor domain.Actor, req models.PayoutRequest) (*models.Intent, string, error)
	ConfirmPayout(ctx context.Context, actor domain.Actor, intentID, token string) (*models.Intent, error)
	RejectPayout(ctx context.Context, actor domain.Actor, intentID, reason string) (*models.Intent, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/api/keys/export/request", h.HandleRequestKeyExport)
	r.Get("/api/keys/export", h.HandleKeyExport)
	r.Post("/api/payout/manual", h.HandleRequestPayout)
	r.Post("/api/payout/manual/{intentID}/confirm", h.HandleConfirmPayout)
	r.Post("/api/payout/manual/{intentID}/reject", h.HandleRejectPayout)
}

// intentResponse is phase one's answer. The token is shown exactly once.
type intentResponse struct {
	IntentID          string    `json:"intent_id"`
	Kind              string    `json:"kind"`
	ConfirmationToken string    `json:"confirmation_token"`
	ExpiresAt         time.Time `json:"expires_at"`
	Warning           string    `json:"warning"`
}

func newIntentResponse(intent *models.Intent, token, warning string) intentResponse {
	return intentResponse{
		IntentID:          intent.ID,
		Kind:              string(intent.Kind),
		ConfirmationToken: token,
		ExpiresAt:         intent.ExpiresAt,
		Warning:           warning,
	}
}

// HandleRequestKeyExport handles POST /api/keys/export/request.
func (h *Handler) HandleRequestKeyExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	intent, token, err := h.service.RequestKeyExport(ctx, requestcontext.Actor(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, newIntentResponse(intent, token,
		"Confirming exports every live escrow private key"))
}

// HandleKeyExport handles GET /api/keys/export?intent_id=, streaming the
// bundle as a zip download.
func (h *Handler) HandleKeyExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Actor(ctx)
	intentID := strings.TrimSpace(r.URL.Query().Get("intent_id"))
	token := strings.TrimSpace(r.Header.Get(ConfirmationHeader))
	if intentID == "" || token == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "intent_id and "+ConfirmationHeader+" are required"))
		return
	}

	handle, err := h.service.ConfirmKeyExport(ctx, actor, intentID, token)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	bundle, err := h.service.OpenBundle(ctx, actor, handle)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	defer bundle.Close()

	filename := fmt.Sprintf("rahu_private_keys_%s.zip", requestcontext.Now(ctx).UTC().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, bundle); err != nil {
		h.logger.ErrorContext(ctx, "key bundle stream interrupted",
			"intent_id", intentID,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
}

type payoutRequest struct {
	DealID           string           `json:"deal_id"`
	RecipientAddress string           `json:"recipient_address"`
	Amount           *decimal.Decimal `json:"amount"`
	Reason           string           `json:"reason"`
}

func (req *payoutRequest) Validate() error {
	req.DealID = strings.TrimSpace(req.DealID)
	req.RecipientAddress = strings.TrimSpace(req.RecipientAddress)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Amount == nil {
		return dErrors.New(dErrors.CodeValidation, "amount is required")
	}
	return nil
}

// HandleRequestPayout handles POST /api/payout/manual.
func (h *Handler) HandleRequestPayout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[payoutRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	intent, token, err := h.service.RequestPayout(ctx, requestcontext.Actor(ctx), models.PayoutRequest{
		DealID:    req.DealID,
		Recipient: req.RecipientAddress,
		Amount:    *req.Amount,
		Reason:    req.Reason,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, newIntentResponse(intent, token,
		fmt.Sprintf("Confirming hands a payout of %s to %s to the submission service", intent.Amount.String(), intent.Recipient)))
}

type confirmRequest struct {
	ConfirmationToken string `json:"confirmation_token"`
}

func (req *confirmRequest) Validate() error {
	req.ConfirmationToken = strings.TrimSpace(req.ConfirmationToken)
	if req.ConfirmationToken == "" {
		return dErrors.New(dErrors.CodeValidation, "confirmation_token is required")
	}
	return nil
}

type payoutResponse struct {
	Success       bool        `json:"success"`
	Message       string      `json:"message"`
	TransactionID string      `json:"transaction_id"`
	IntentID      string      `json:"intent_id"`
	DealID        string      `json:"deal_id"`
	Amount        json.Number `json:"amount"`
}

// HandleConfirmPayout handles POST /api/payout/manual/{intentID}/confirm.
func (h *Handler) HandleConfirmPayout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[confirmRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	intent, err := h.service.ConfirmPayout(ctx, requestcontext.Actor(ctx), chi.URLParam(r, "intentID"), req.ConfirmationToken)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, payoutResponse{
		Success:       true,
		Message:       fmt.Sprintf("Manual payout of %s handed off for %s", intent.Amount.String(), intent.Recipient),
		TransactionID: intent.Outcome,
		IntentID:      intent.ID,
		DealID:        intent.DealID,
		Amount:        json.Number(intent.Amount.String()),
	})
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (req *rejectRequest) Validate() error {
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	return nil
}

// HandleRejectPayout handles POST /api/payout/manual/{intentID}/reject.
func (h *Handler) HandleRejectPayout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[rejectRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	intent, err := h.service.RejectPayout(ctx, requestcontext.Actor(ctx), chi.URLParam(r, "intentID"), req.Reason)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"intent_id": intent.ID,
		"state":     string(intent.State),
	})
}
