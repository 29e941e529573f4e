package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"canopy/internal/market"
	"canopy/internal/platform/middleware"
	id "canopy/pkg/domain"
	dErrors "canopy/pkg/domain-errors"
	"canopy/pkg/platform/httputil"
	"canopy/pkg/requestcontext"
)

// defaultTradeLimit bounds unpaginated trade listings.
const defaultTradeLimit = 100

// Service defines the order book operations the handler exposes.
type Service interface {
	PlaceBuyOrder(ctx context.Context, buyer id.AccountID, req market.PlaceBuyRequest) (*market.BuyOrder, error)
	PlaceSellOrder(ctx context.Context, seller id.AccountID, req market.PlaceSellRequest) (*market.SellOrder, error)
	CancelOrder(ctx context.Context, caller id.AccountID, orderID id.OrderID) (*market.CancelResult, error)
	GetBuyOrder(ctx context.Context, orderID id.OrderID) (*market.BuyOrder, error)
	GetSellOrder(ctx context.Context, orderID id.OrderID) (*market.SellOrder, error)
	ListOrders(ctx context.Context, account id.AccountID) ([]*market.BuyOrder, []*market.SellOrder, error)
	Trades(ctx context.Context, limit int) ([]*market.Trade, error)
	TradesFor(ctx context.Context, account id.AccountID) ([]*market.Trade, error)
	MarketStats(ctx context.Context) (*market.Stats, error)
}

// Handler exposes the marketplace over HTTP.
type Handler struct {
	market    Service
	logger    *slog.Logger
	validator middleware.TokenValidator
}

func New(svc Service, logger *slog.Logger, validator middleware.TokenValidator) *Handler {
	return &Handler{market: svc, logger: logger, validator: validator}
}

// Register mounts the market routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(router chi.Router) {
		router.Use(middleware.RequireAccount(h.validator, h.logger))
		router.Post("/market/orders/buy", h.handlePlaceBuy)
		router.Post("/market/orders/sell", h.handlePlaceSell)
		router.Delete("/market/orders/{orderID}", h.handleCancel)
		router.Get("/market/orders", h.handleListOrders)
		router.Get("/market/orders/buy/{orderID}", h.handleGetBuy)
		router.Get("/market/orders/sell/{orderID}", h.handleGetSell)
		router.Get("/market/trades", h.handleTrades)
		router.Get("/market/trades/mine", h.handleMyTrades)
		router.Get("/market/stats", h.handleStats)
	})
}

func (h *Handler) handlePlaceBuy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	buyer := requestcontext.AccountID(ctx)

	var req market.PlaceBuyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	order, err := h.market.PlaceBuyOrder(ctx, buyer, req)
	if err != nil {
		h.logger.WarnContext(ctx, "buy order rejected",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, order)
}

func (h *Handler) handlePlaceSell(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	seller := requestcontext.AccountID(ctx)

	var req market.PlaceSellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	order, err := h.market.PlaceSellOrder(ctx, seller, req)
	if err != nil {
		h.logger.WarnContext(ctx, "sell order rejected",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, order)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, err := id.ParseOrderID(chi.URLParam(r, "orderID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.market.CancelOrder(ctx, requestcontext.AccountID(ctx), orderID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	buys, sells, err := h.market.ListOrders(ctx, requestcontext.AccountID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"buy_orders":  buys,
		"sell_orders": sells,
	})
}

func (h *Handler) handleGetBuy(w http.ResponseWriter, r *http.Request) {
	orderID, err := id.ParseOrderID(chi.URLParam(r, "orderID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	order, err := h.market.GetBuyOrder(r.Context(), orderID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, order)
}

func (h *Handler) handleGetSell(w http.ResponseWriter, r *http.Request) {
	orderID, err := id.ParseOrderID(chi.URLParam(r, "orderID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	order, err := h.market.GetSellOrder(r.Context(), orderID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, order)
}

func (h *Handler) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := defaultTradeLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "limit must be a positive integer"))
			return
		}
		limit = n
	}
	trades, err := h.market.Trades(r.Context(), limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

func (h *Handler) handleMyTrades(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	trades, err := h.market.TradesFor(ctx, requestcontext.AccountID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.market.MarketStats(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}
