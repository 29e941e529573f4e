package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"canopy/internal/platform/middleware"
	"canopy/internal/reputation"
	id "canopy/pkg/domain"
	dErrors "canopy/pkg/domain-errors"
	"canopy/pkg/platform/httputil"
	"canopy/pkg/requestcontext"
)

// Service defines the reputation operations the handler exposes.
type Service interface {
	CreateProfile(ctx context.Context, account id.AccountID) (*reputation.Profile, error)
	Get(ctx context.Context, account id.AccountID) (*reputation.Profile, error)
	UpdateScore(ctx context.Context, caller, account id.AccountID, category reputation.Category, delta int64, increase bool, reason string) (*reputation.Profile, error)
	AddReview(ctx context.Context, reviewer, reviewee id.AccountID, rating int, comment string, category reputation.Category, tradeRef string) (*reputation.Profile, error)
	RecordTransactionOutcome(ctx context.Context, caller, account id.AccountID, success bool, reason string) (*reputation.Profile, error)
	Badge(ctx context.Context, account id.AccountID) (reputation.Badge, error)
}

// Handler exposes reputation profiles over HTTP.
type Handler struct {
	rep       Service
	logger    *slog.Logger
	validator middleware.TokenValidator
}

func New(rep Service, logger *slog.Logger, validator middleware.TokenValidator) *Handler {
	return &Handler{rep: rep, logger: logger, validator: validator}
}

// Register mounts the reputation routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(router chi.Router) {
		router.Use(middleware.RequireAccount(h.validator, h.logger))
		router.Post("/reputation/profiles", h.handleCreateProfile)
		router.Get("/reputation/{account}", h.handleGet)
		router.Get("/reputation/{account}/badge", h.handleBadge)
		router.Post("/reputation/{account}/score", h.handleUpdateScore)
		router.Post("/reputation/{account}/reviews", h.handleAddReview)
		router.Post("/reputation/{account}/outcomes", h.handleRecordOutcome)
	})
}

// handleCreateProfile creates the caller's own profile.
func (h *Handler) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profile, err := h.rep.CreateProfile(ctx, requestcontext.AccountID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, profile)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	account, err := id.ParseAccountID(chi.URLParam(r, "account"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	profile, err := h.rep.Get(r.Context(), account)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, profile)
}

func (h *Handler) handleBadge(w http.ResponseWriter, r *http.Request) {
	account, err := id.ParseAccountID(chi.URLParam(r, "account"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	badge, err := h.rep.Badge(r.Context(), account)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"badge": string(badge)})
}

type updateScoreRequest struct {
	Category string `json:"category"`
	Delta    int64  `json:"delta"`
	Increase bool   `json:"increase"`
	Reason   string `json:"reason"`
}

func (h *Handler) handleUpdateScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := requestcontext.AccountID(ctx)

	account, err := id.ParseAccountID(chi.URLParam(r, "account"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req updateScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	category, err := reputation.ParseCategory(req.Category)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	profile, err := h.rep.UpdateScore(ctx, caller, account, category, req.Delta, req.Increase, req.Reason)
	if err != nil {
		h.logger.WarnContext(ctx, "score update rejected",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, profile)
}

type addReviewRequest struct {
	Rating   int    `json:"rating"`
	Comment  string `json:"comment"`
	Category string `json:"category"`
	TradeRef string `json:"trade_ref"`
}

func (h *Handler) handleAddReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reviewer := requestcontext.AccountID(ctx)

	reviewee, err := id.ParseAccountID(chi.URLParam(r, "account"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req addReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	category, err := reputation.ParseCategory(req.Category)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	profile, err := h.rep.AddReview(ctx, reviewer, reviewee, req.Rating, req.Comment, category, req.TradeRef)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, profile)
}

type recordOutcomeRequest struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason"`
}

func (h *Handler) handleRecordOutcome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := requestcontext.AccountID(ctx)

	account, err := id.ParseAccountID(chi.URLParam(r, "account"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req recordOutcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	profile, err := h.rep.RecordTransactionOutcome(ctx, caller, account, req.Success, req.Reason)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, profile)
}
