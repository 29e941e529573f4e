package market

import (
	"context"

	id "canopy/pkg/domain"
)

// Store persists orders and the trade log. Order IDs come from one shared
// monotonic sequence so an id names exactly one order across both sides.
// The matching engine serializes at the service level; the store only has
// to be internally consistent.
type Store interface {
	InsertBuy(ctx context.Context, order *BuyOrder) (id.OrderID, error)
	InsertSell(ctx context.Context, order *SellOrder) (id.OrderID, error)

	FindBuy(ctx context.Context, orderID id.OrderID) (*BuyOrder, error)
	FindSell(ctx context.Context, orderID id.OrderID) (*SellOrder, error)

	// UpdateBuy runs validate then apply under the store lock against the
	// live order and returns a copy of the result.
	UpdateBuy(ctx context.Context, orderID id.OrderID, validate func(*BuyOrder) error, apply func(*BuyOrder)) (*BuyOrder, error)
	UpdateSell(ctx context.Context, orderID id.OrderID, validate func(*SellOrder) error, apply func(*SellOrder)) (*SellOrder, error)

	// OpenBuys returns live buy orders, best bid first (price descending,
	// then placement order). OpenSells returns live asks, best ask first
	// (price ascending, then placement order).
	OpenBuys(ctx context.Context) ([]*BuyOrder, error)
	OpenSells(ctx context.Context) ([]*SellOrder, error)

	ListBuysByAccount(ctx context.Context, account id.AccountID) ([]*BuyOrder, error)
	ListSellsByAccount(ctx context.Context, account id.AccountID) ([]*SellOrder, error)

	AppendTrade(ctx context.Context, trade *Trade) error
	ListTrades(ctx context.Context, limit int) ([]*Trade, error)
	ListTradesByAccount(ctx context.Context, account id.AccountID) ([]*Trade, error)
}
