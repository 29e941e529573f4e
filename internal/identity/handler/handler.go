// Package handler exposes the operator surface: role management, the
// environment-seeding faucet, balances, and the per-account event trail.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"canopy/internal/events"
	"canopy/internal/funds"
	"canopy/internal/identity"
	"canopy/internal/platform/middleware"
	id "canopy/pkg/domain"
	dErrors "canopy/pkg/domain-errors"
	"canopy/pkg/platform/httputil"
	"canopy/pkg/requestcontext"
)

// Handler wires identity, funds, and event reads into the admin routes.
type Handler struct {
	roles     *identity.Registry
	ledger    *funds.Ledger
	eventLog  events.Store
	logger    *slog.Logger
	validator middleware.TokenValidator
}

func New(roles *identity.Registry, ledger *funds.Ledger, eventLog events.Store, logger *slog.Logger, validator middleware.TokenValidator) *Handler {
	return &Handler{roles: roles, ledger: ledger, eventLog: eventLog, logger: logger, validator: validator}
}

// Register mounts the admin and account routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(router chi.Router) {
		router.Use(middleware.RequireAccount(h.validator, h.logger))
		router.Post("/admin/roles/grant", h.handleGrant)
		router.Post("/admin/roles/revoke", h.handleRevoke)
		router.Get("/admin/roles/{role}", h.handleListRole)
		router.Post("/admin/faucet", h.handleFaucet)
		router.Get("/funds/balance", h.handleBalance)
		router.Get("/events", h.handleEvents)
	})
}

type roleRequest struct {
	Account string `json:"account"`
	Role    string `json:"role"`
}

func (h *Handler) handleGrant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := requestcontext.AccountID(ctx)

	var req roleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	account, err := id.ParseAccountID(req.Account)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	role, err := identity.ParseRole(req.Role)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.roles.Grant(ctx, caller, account, role); err != nil {
		h.logger.WarnContext(ctx, "role grant rejected",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := requestcontext.AccountID(ctx)

	var req roleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	account, err := id.ParseAccountID(req.Account)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	role, err := identity.ParseRole(req.Role)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.roles.Revoke(ctx, caller, account, role); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.roles.Require(requestcontext.AccountID(ctx), identity.RoleAdmin); err != nil {
		httputil.WriteError(w, err)
		return
	}
	role, err := identity.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"accounts": h.roles.List(role)})
}

type faucetRequest struct {
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
}

// handleFaucet seeds an account balance. Admin-only; this is the single
// place currency enters the system.
func (h *Handler) handleFaucet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := requestcontext.AccountID(ctx)
	if err := h.roles.Require(caller, identity.RoleAdmin); err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req faucetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	account, err := id.ParseAccountID(req.Account)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.ledger.Deposit(ctx, account, req.Amount); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"account": account,
		"balance": h.ledger.Balance(ctx, account),
	})
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account := requestcontext.AccountID(ctx)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"account": account,
		"balance": h.ledger.Balance(ctx, account),
	})
}

// handleEvents returns the caller's own event trail.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	trail, err := h.eventLog.ListByAccount(ctx, requestcontext.AccountID(ctx))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load events"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": trail})
}
