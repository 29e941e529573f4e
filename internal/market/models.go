// Package market implements the order book and matching engine for credit
// trades: escrow-backed buy orders, credit-backed sell orders, inline
// matching at placement, and settlement that moves credits, funds, fees,
// certificates, and reputation in one serialized step.
package market

import (
	"time"

	"canopy/internal/funds"
	id "canopy/pkg/domain"
	dErrors "canopy/pkg/domain-errors"
)

// OrderStatus is the order state machine:
// Open -> PartiallyFilled -> Filled, with Cancelled reachable from Open and
// PartiallyFilled. Filled and Cancelled are terminal.
type OrderStatus string

const (
	StatusOpen            OrderStatus = "open"
	StatusPartiallyFilled OrderStatus = "partially_filled"
	StatusFilled          OrderStatus = "filled"
	StatusCancelled       OrderStatus = "cancelled"
)

// FeeAccount accrues marketplace fees on the funds ledger.
const FeeAccount id.AccountID = "canopy:fees"

// Order parameter caps. With both in range, notional plus fee stays well
// inside int64, so escrow arithmetic never wraps.
const (
	maxPricePerTon int64 = 1_000_000_000
	maxQuantity    int64 = 1_000_000_000
)

// BuyOrder is a bid backed by an escrow lock covering notional plus fee at
// the bid price. Settlement happens at the ask, so a filled order can leave
// an escrow remainder, refunded when the order reaches Filled or Cancelled.
type BuyOrder struct {
	ID             id.OrderID     `json:"id"`
	Buyer          id.AccountID   `json:"buyer"`
	PricePerTon    int64          `json:"price_per_ton"`
	Quantity       int64          `json:"quantity"`
	FilledQuantity int64          `json:"filled_quantity"`
	EscrowedAmount int64          `json:"escrowed_amount"`
	SpentAmount    int64          `json:"spent_amount"`
	EscrowID       funds.EscrowID `json:"-"`
	ProjectFilter  string         `json:"project_filter,omitempty"`
	Status         OrderStatus    `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
}

// SellOrder is an ask over a fixed set of credits. Quantity is the sum of
// the credit amounts; RemainingCredits shrinks as whole credits settle.
type SellOrder struct {
	ID               id.OrderID     `json:"id"`
	Seller           id.AccountID   `json:"seller"`
	CreditIDs        []id.CreditID  `json:"credit_ids"`
	RemainingCredits []id.CreditID  `json:"remaining_credits"`
	PricePerTon      int64          `json:"price_per_ton"`
	Quantity         int64          `json:"quantity"`
	FilledQuantity   int64          `json:"filled_quantity"`
	Status           OrderStatus    `json:"status"`
	CreatedAt        time.Time      `json:"created_at"`
}

// Trade is an immutable settlement record.
type Trade struct {
	ID          id.TradeID    `json:"id"`
	BuyOrderID  id.OrderID    `json:"buy_order_id"`
	SellOrderID id.OrderID    `json:"sell_order_id"`
	Buyer       id.AccountID  `json:"buyer"`
	Seller      id.AccountID  `json:"seller"`
	CreditIDs   []id.CreditID `json:"credit_ids"`
	PricePerTon int64         `json:"price_per_ton"`
	Quantity    int64         `json:"quantity"`
	Fee         int64         `json:"fee"`
	ExecutedAt  time.Time     `json:"executed_at"`
}

// Stats is the rolling market snapshot served to clients.
type Stats struct {
	LastPrice    int64        `json:"last_price"`
	Volume24h    int64        `json:"volume_24h"`
	High24h      int64        `json:"high_24h"`
	Low24h       int64        `json:"low_24h"`
	TradeCount   int64        `json:"trade_count"`
	PriceHistory []PricePoint `json:"price_history"`
}

// PricePoint is one entry in the capped price-history ring.
type PricePoint struct {
	Price     int64     `json:"price"`
	Quantity  int64     `json:"quantity"`
	Timestamp time.Time `json:"timestamp"`
}

// PlaceBuyRequest carries the parameters of a new bid.
type PlaceBuyRequest struct {
	PricePerTon   int64  `json:"price_per_ton"`
	Quantity      int64  `json:"quantity"`
	ProjectFilter string `json:"project_filter,omitempty"`
}

func (r PlaceBuyRequest) Validate() error {
	if r.PricePerTon <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "price per ton must be positive")
	}
	if r.PricePerTon > maxPricePerTon {
		return dErrors.Newf(dErrors.CodeInvalidInput, "price per ton must not exceed %d", maxPricePerTon)
	}
	if r.Quantity <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "quantity must be positive")
	}
	if r.Quantity > maxQuantity {
		return dErrors.Newf(dErrors.CodeInvalidInput, "quantity must not exceed %d", maxQuantity)
	}
	return nil
}

// PlaceSellRequest carries the parameters of a new ask.
type PlaceSellRequest struct {
	CreditIDs   []id.CreditID `json:"credit_ids"`
	PricePerTon int64         `json:"price_per_ton"`
}

func (r PlaceSellRequest) Validate() error {
	if r.PricePerTon <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "price per ton must be positive")
	}
	if r.PricePerTon > maxPricePerTon {
		return dErrors.Newf(dErrors.CodeInvalidInput, "price per ton must not exceed %d", maxPricePerTon)
	}
	if len(r.CreditIDs) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "at least one credit id is required")
	}
	seen := make(map[id.CreditID]bool, len(r.CreditIDs))
	for _, cid := range r.CreditIDs {
		if seen[cid] {
			return dErrors.Newf(dErrors.CodeInvalidInput, "duplicate credit id %d", cid)
		}
		seen[cid] = true
	}
	return nil
}

// remaining reports the unfilled quantity of a buy order.
func (o *BuyOrder) remaining() int64 { return o.Quantity - o.FilledQuantity }

// open reports whether the order can still match.
func (o *BuyOrder) open() bool {
	return o.Status == StatusOpen || o.Status == StatusPartiallyFilled
}

func (o *SellOrder) open() bool {
	return o.Status == StatusOpen || o.Status == StatusPartiallyFilled
}

// recordFill advances fill counters and the status machine after a trade.
func (o *BuyOrder) recordFill(qty int64) {
	o.FilledQuantity += qty
	if o.FilledQuantity >= o.Quantity {
		o.Status = StatusFilled
	} else {
		o.Status = StatusPartiallyFilled
	}
}

func (o *SellOrder) recordFill(qty int64, settled []id.CreditID) {
	o.FilledQuantity += qty
	sold := make(map[id.CreditID]bool, len(settled))
	for _, cid := range settled {
		sold[cid] = true
	}
	kept := o.RemainingCredits[:0]
	for _, cid := range o.RemainingCredits {
		if !sold[cid] {
			kept = append(kept, cid)
		}
	}
	o.RemainingCredits = kept
	if len(o.RemainingCredits) == 0 {
		o.Status = StatusFilled
	} else {
		o.Status = StatusPartiallyFilled
	}
}

// cancel transitions to Cancelled if the order is still live.
func cancelStatus(status OrderStatus) (OrderStatus, error) {
	switch status {
	case StatusOpen, StatusPartiallyFilled:
		return StatusCancelled, nil
	default:
		return status, dErrors.Newf(dErrors.CodeAlreadyTerminal, "order is %s", status)
	}
}
