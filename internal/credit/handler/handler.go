package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"canopy/internal/credit"
	"canopy/internal/platform/middleware"
	id "canopy/pkg/domain"
	dErrors "canopy/pkg/domain-errors"
	"canopy/pkg/platform/httputil"
	"canopy/pkg/requestcontext"
)

// Service defines the credit lifecycle operations the handler exposes.
type Service interface {
	Mint(ctx context.Context, caller id.AccountID, req credit.MintRequest) (*credit.Credit, error)
	Transfer(ctx context.Context, caller id.AccountID, creditID id.CreditID, newOwner id.AccountID) (*credit.Credit, error)
	Retire(ctx context.Context, caller id.AccountID, creditID id.CreditID, reason string) (*credit.Credit, error)
	BatchTransfer(ctx context.Context, caller id.AccountID, creditIDs []id.CreditID, newOwner id.AccountID) []credit.BatchResult
	BatchRetire(ctx context.Context, caller id.AccountID, creditIDs []id.CreditID, reason string) []credit.BatchResult
	Get(ctx context.Context, creditID id.CreditID) (*credit.Credit, error)
	ListByOwner(ctx context.Context, owner id.AccountID) ([]*credit.Credit, error)
	ListRetiredByOwner(ctx context.Context, owner id.AccountID) ([]*credit.Credit, error)
	Totals(ctx context.Context) (credit.Totals, error)
}

// Handler exposes the credit registry over HTTP.
type Handler struct {
	credits   Service
	logger    *slog.Logger
	validator middleware.TokenValidator
}

func New(credits Service, logger *slog.Logger, validator middleware.TokenValidator) *Handler {
	return &Handler{credits: credits, logger: logger, validator: validator}
}

// Register mounts the credit routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(router chi.Router) {
		router.Use(middleware.RequireAccount(h.validator, h.logger))
		router.Post("/credits", h.handleMint)
		router.Get("/credits", h.handleList)
		router.Get("/credits/retired", h.handleListRetired)
		router.Get("/credits/{creditID}", h.handleGet)
		router.Post("/credits/{creditID}/transfer", h.handleTransfer)
		router.Post("/credits/{creditID}/retire", h.handleRetire)
		router.Post("/credits/batch/transfer", h.handleBatchTransfer)
		router.Post("/credits/batch/retire", h.handleBatchRetire)
		router.Get("/registry/totals", h.handleTotals)
	})
}

func (h *Handler) handleMint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := requestcontext.AccountID(ctx)

	var req credit.MintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	minted, err := h.credits.Mint(ctx, caller, req)
	if err != nil {
		h.logger.WarnContext(ctx, "mint rejected",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, minted)
}

type transferRequest struct {
	NewOwner string `json:"new_owner"`
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := requestcontext.AccountID(ctx)

	creditID, err := id.ParseCreditID(chi.URLParam(r, "creditID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	newOwner, err := id.ParseAccountID(req.NewOwner)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	transferred, err := h.credits.Transfer(ctx, caller, creditID, newOwner)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, transferred)
}

type retireRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleRetire(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := requestcontext.AccountID(ctx)

	creditID, err := id.ParseCreditID(chi.URLParam(r, "creditID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req retireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	retired, err := h.credits.Retire(ctx, caller, creditID, req.Reason)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, retired)
}

type batchTransferRequest struct {
	CreditIDs []id.CreditID `json:"credit_ids"`
	NewOwner  string        `json:"new_owner"`
}

func (h *Handler) handleBatchTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := requestcontext.AccountID(ctx)

	var req batchTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	newOwner, err := id.ParseAccountID(req.NewOwner)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	results := h.credits.BatchTransfer(ctx, caller, req.CreditIDs, newOwner)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"results": results})
}

type batchRetireRequest struct {
	CreditIDs []id.CreditID `json:"credit_ids"`
	Reason    string        `json:"reason"`
}

func (h *Handler) handleBatchRetire(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := requestcontext.AccountID(ctx)

	var req batchRetireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	results := h.credits.BatchRetire(ctx, caller, req.CreditIDs, req.Reason)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	creditID, err := id.ParseCreditID(chi.URLParam(r, "creditID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	c, err := h.credits.Get(r.Context(), creditID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	credits, err := h.credits.ListByOwner(ctx, requestcontext.AccountID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"credits": credits})
}

func (h *Handler) handleListRetired(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	credits, err := h.credits.ListRetiredByOwner(ctx, requestcontext.AccountID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"credits": credits})
}

func (h *Handler) handleTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := h.credits.Totals(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, totals)
}
