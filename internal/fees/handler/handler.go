package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"escrowops/internal/fees/models"
	"escrowops/internal/fees/service"
	"escrowops/pkg/domain"
	dErrors "escrowops/pkg/domain-errors"
	"escrowops/pkg/platform/httputil"
	"escrowops/pkg/requestcontext"
)

type Service interface {
	Get(ctx context.Context, network string) (*models.FeeRule, error)
	ListAll(ctx context.Context) ([]*models.FeeRule, error)
	UpdateMany(ctx context.Context, inputs []service.RuleInput, requestedBy domain.Actor) ([]*models.FeeRule, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/api/fees/config", h.HandleList)
	r.Post("/api/fees/config", h.HandleUpdate)
	r.Get("/api/fees/config/{network}", h.HandleGet)
}

// feeRuleResponse keeps the dashboard's wire shape: exactly one of
// gas_deduction and gas_fee_usd is present.
type feeRuleResponse struct {
	Network       string       `json:"network"`
	FeePercentage json.Number  `json:"fee_percentage"`
	GasModel      string       `json:"gas_model"`
	GasDeduction  *json.Number `json:"gas_deduction,omitempty"`
	GasFeeUSD     *json.Number `json:"gas_fee_usd,omitempty"`
	Version       int          `json:"version"`
	UpdatedAt     time.Time    `json:"updated_at"`
	UpdatedBy     string       `json:"updated_by"`
}

func toResponse(r *models.FeeRule) feeRuleResponse {
	amount := json.Number(r.Gas.Amount().String())
	resp := feeRuleResponse{
		Network:       r.Network,
		FeePercentage: json.Number(r.FeePercentage.String()),
		GasModel:      string(r.Gas.Kind()),
		Version:       r.Version,
		UpdatedAt:     r.UpdatedAt,
		UpdatedBy:     r.UpdatedBy,
	}
	switch r.Gas.Kind() {
	case models.GasFlat:
		resp.GasDeduction = &amount
	case models.GasUSD:
		resp.GasFeeUSD = &amount
	}
	return resp
}

type listResponse struct {
	Networks []feeRuleResponse `json:"networks"`
}

func toListResponse(rules []*models.FeeRule) listResponse {
	resp := listResponse{Networks: make([]feeRuleResponse, 0, len(rules))}
	for _, r := range rules {
		resp.Networks = append(resp.Networks, toResponse(r))
	}
	return resp
}

// HandleList handles GET /api/fees/config.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rules, err := h.service.ListAll(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list fee rules",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toListResponse(rules))
}

// HandleGet handles GET /api/fees/config/{network}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	rule, err := h.service.Get(r.Context(), chi.URLParam(r, "network"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(rule))
}

type feeRuleRequest struct {
	Network       string           `json:"network"`
	FeePercentage *decimal.Decimal `json:"fee_percentage"`
	GasDeduction  *decimal.Decimal `json:"gas_deduction"`
	GasFeeUSD     *decimal.Decimal `json:"gas_fee_usd"`
}

func (req feeRuleRequest) toInput() (service.RuleInput, error) {
	if req.FeePercentage == nil {
		return service.RuleInput{}, dErrors.New(dErrors.CodeValidation, "fee_percentage is required for "+req.Network)
	}
	in := service.RuleInput{Network: req.Network, FeePercentage: *req.FeePercentage}
	switch {
	case req.GasDeduction != nil && req.GasFeeUSD != nil:
		return in, dErrors.New(dErrors.CodeValidation, "set only one of gas_deduction and gas_fee_usd for "+req.Network)
	case req.GasDeduction != nil:
		in.Gas = models.FlatGas(*req.GasDeduction)
	case req.GasFeeUSD != nil:
		in.Gas = models.USDGas(*req.GasFeeUSD)
	default:
		return in, dErrors.New(dErrors.CodeValidation, "one of gas_deduction and gas_fee_usd is required for "+req.Network)
	}
	return in, nil
}

// bulkRequest is the dashboard's body: a bare array of rules.
type bulkRequest []feeRuleRequest

func (b *bulkRequest) Validate() error {
	if len(*b) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one fee rule is required")
	}
	for _, req := range *b {
		if _, err := req.toInput(); err != nil {
			return err
		}
	}
	return nil
}

// HandleUpdate handles POST /api/fees/config.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[bulkRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	inputs := make([]service.RuleInput, 0, len(*req))
	for _, rr := range *req {
		in, err := rr.toInput()
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		inputs = append(inputs, in)
	}

	applied, err := h.service.UpdateMany(ctx, inputs, requestcontext.Actor(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toListResponse(applied))
}
