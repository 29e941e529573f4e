package market

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"canopy/internal/credit"
	"canopy/internal/events"
	"canopy/internal/funds"
	marketmetrics "canopy/internal/market/metrics"
	id "canopy/pkg/domain"
	dErrors "canopy/pkg/domain-errors"
	"canopy/pkg/platform/sentinel"
	"canopy/pkg/requestcontext"
)

// CreditRegistry is the slice of the credit lifecycle the engine needs:
// reads for placement checks and transfers at settlement.
type CreditRegistry interface {
	Get(ctx context.Context, creditID id.CreditID) (*credit.Credit, error)
	Transfer(ctx context.Context, caller id.AccountID, creditID id.CreditID, newOwner id.AccountID) (*credit.Credit, error)
}

// CertificateIssuer produces the purchase certificate at settlement.
type CertificateIssuer interface {
	IssuePurchase(ctx context.Context, buyer id.AccountID, creditIDs []id.CreditID, verificationHash, tradeRef string) (id.CertificateID, error)
}

// ReputationRecorder records a delivery outcome for each trade party.
type ReputationRecorder interface {
	RecordSettlement(ctx context.Context, account id.AccountID, success bool, tradeRef string) error
}

// EventPublisher appends to the domain-event log.
type EventPublisher interface {
	Emit(ctx context.Context, event events.Event) error
}

// CancelResult reports what a cancellation released.
type CancelResult struct {
	OrderID  id.OrderID   `json:"order_id"`
	Side     id.OrderSide `json:"side"`
	Refunded int64        `json:"refunded"`
}

// Service is the order book and matching engine. A single mutex covers
// place, cancel, match, and settle: no caller ever observes a half-applied
// match. Matching runs inline with placement; there is no background
// matcher.
type Service struct {
	mu      sync.Mutex
	store   Store
	stats   StatsStore
	credits CreditRegistry
	funds   *funds.Ledger
	feeBps  int64
	certs   CertificateIssuer
	rep     ReputationRecorder
	logger  *slog.Logger
	pub     EventPublisher
	mx      *marketmetrics.Metrics
	tracer  trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithEventPublisher(pub EventPublisher) Option {
	return func(s *Service) { s.pub = pub }
}

func WithMetrics(m *marketmetrics.Metrics) Option {
	return func(s *Service) { s.mx = m }
}

// WithCertificateIssuer wires purchase-certificate issuance into settlement.
func WithCertificateIssuer(certs CertificateIssuer) Option {
	return func(s *Service) { s.certs = certs }
}

// WithReputation wires per-party delivery outcomes into settlement.
func WithReputation(rep ReputationRecorder) Option {
	return func(s *Service) { s.rep = rep }
}

func NewService(store Store, stats StatsStore, credits CreditRegistry, ledger *funds.Ledger, feeBps int64, opts ...Option) *Service {
	s := &Service{
		store:   store,
		stats:   stats,
		credits: credits,
		funds:   ledger,
		feeBps:  feeBps,
		logger:  slog.Default(),
		tracer:  otel.Tracer("canopy/market"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// feeFor computes the marketplace fee on a notional, rounded down.
func (s *Service) feeFor(notional int64) int64 {
	return notional * s.feeBps / 10_000
}

// PlaceBuyOrder locks notional plus fee at the bid price in escrow, inserts
// the bid, and matches it against resting asks before returning. The
// returned order reflects any fills that happened inline.
func (s *Service) PlaceBuyOrder(ctx context.Context, buyer id.AccountID, req PlaceBuyRequest) (*BuyOrder, error) {
	ctx, span := s.tracer.Start(ctx, "market.PlaceBuyOrder")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	notional := req.PricePerTon * req.Quantity
	fee := s.feeFor(notional)
	escrowID, err := s.funds.Lock(ctx, buyer, notional+fee)
	if err != nil {
		return nil, err
	}

	order := &BuyOrder{
		Buyer:          buyer,
		PricePerTon:    req.PricePerTon,
		Quantity:       req.Quantity,
		EscrowedAmount: notional + fee,
		EscrowID:       escrowID,
		ProjectFilter:  req.ProjectFilter,
		Status:         StatusOpen,
		CreatedAt:      requestcontext.Now(ctx),
	}
	orderID, err := s.store.InsertBuy(ctx, order)
	if err != nil {
		// The order never entered the book; release the lock.
		if rerr := s.funds.Refund(ctx, escrowID, notional+fee); rerr != nil {
			s.logger.ErrorContext(ctx, "escrow refund after failed insert", "error", rerr)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store buy order")
	}

	s.emit(ctx, buyer, events.ActionOrderPlaced, orderID.String(), "buy")
	if s.mx != nil {
		s.mx.OrdersPlaced.WithLabelValues("buy").Inc()
	}

	s.match(ctx)
	return s.store.FindBuy(ctx, orderID)
}

// PlaceSellOrder verifies every listed credit is owned by the seller and
// unretired, inserts the ask, and matches it against resting bids before
// returning. Credits stay with the seller until settlement.
func (s *Service) PlaceSellOrder(ctx context.Context, seller id.AccountID, req PlaceSellRequest) (*SellOrder, error) {
	ctx, span := s.tracer.Start(ctx, "market.PlaceSellOrder")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var quantity int64
	for _, creditID := range req.CreditIDs {
		c, err := s.credits.Get(ctx, creditID)
		if err != nil {
			return nil, err
		}
		if c.Owner != seller {
			return nil, dErrors.Newf(dErrors.CodeUnauthorized, "credit %d is not owned by %s", creditID, seller)
		}
		if c.Retired {
			return nil, dErrors.Newf(dErrors.CodeAlreadyTerminal, "credit %d is retired", creditID)
		}
		quantity += c.Amount
	}

	order := &SellOrder{
		Seller:           seller,
		CreditIDs:        append([]id.CreditID(nil), req.CreditIDs...),
		RemainingCredits: append([]id.CreditID(nil), req.CreditIDs...),
		PricePerTon:      req.PricePerTon,
		Quantity:         quantity,
		Status:           StatusOpen,
		CreatedAt:        requestcontext.Now(ctx),
	}
	orderID, err := s.store.InsertSell(ctx, order)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store sell order")
	}

	s.emit(ctx, seller, events.ActionOrderPlaced, orderID.String(), "sell")
	if s.mx != nil {
		s.mx.OrdersPlaced.WithLabelValues("sell").Inc()
	}

	s.match(ctx)
	return s.store.FindSell(ctx, orderID)
}

// CancelOrder cancels a live order. Creator-only. A cancelled bid refunds
// its unreleased escrow; a cancelled ask simply stops matching, the credits
// never left the seller.
func (s *Service) CancelOrder(ctx context.Context, caller id.AccountID, orderID id.OrderID) (*CancelResult, error) {
	ctx, span := s.tracer.Start(ctx, "market.CancelOrder")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	buy, err := s.store.UpdateBuy(ctx, orderID,
		func(o *BuyOrder) error {
			if o.Buyer != caller {
				return dErrors.New(dErrors.CodeUnauthorized, "only the order creator can cancel it")
			}
			_, serr := cancelStatus(o.Status)
			return serr
		},
		func(o *BuyOrder) { o.Status = StatusCancelled },
	)
	switch {
	case err == nil:
		refund := s.funds.EscrowRemaining(ctx, buy.EscrowID)
		if rerr := s.funds.Refund(ctx, buy.EscrowID, refund); rerr != nil {
			s.logger.ErrorContext(ctx, "escrow refund on cancel", "order", orderID, "error", rerr)
		}
		s.emit(ctx, caller, events.ActionOrderCancelled, orderID.String(), "buy")
		if s.mx != nil {
			s.mx.OrdersCancelled.Inc()
		}
		return &CancelResult{OrderID: orderID, Side: id.SideBuy, Refunded: refund}, nil
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, err
	}

	_, err = s.store.UpdateSell(ctx, orderID,
		func(o *SellOrder) error {
			if o.Seller != caller {
				return dErrors.New(dErrors.CodeUnauthorized, "only the order creator can cancel it")
			}
			_, serr := cancelStatus(o.Status)
			return serr
		},
		func(o *SellOrder) { o.Status = StatusCancelled },
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "order %d not found", orderID)
		}
		return nil, err
	}
	s.emit(ctx, caller, events.ActionOrderCancelled, orderID.String(), "sell")
	if s.mx != nil {
		s.mx.OrdersCancelled.Inc()
	}
	return &CancelResult{OrderID: orderID, Side: id.SideSell}, nil
}

// GetBuyOrder returns a bid by id.
func (s *Service) GetBuyOrder(ctx context.Context, orderID id.OrderID) (*BuyOrder, error) {
	order, err := s.store.FindBuy(ctx, orderID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "buy order %d not found", orderID)
		}
		return nil, err
	}
	return order, nil
}

// GetSellOrder returns an ask by id.
func (s *Service) GetSellOrder(ctx context.Context, orderID id.OrderID) (*SellOrder, error) {
	order, err := s.store.FindSell(ctx, orderID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "sell order %d not found", orderID)
		}
		return nil, err
	}
	return order, nil
}

// ListOrders returns both sides of an account's orders.
func (s *Service) ListOrders(ctx context.Context, account id.AccountID) ([]*BuyOrder, []*SellOrder, error) {
	buys, err := s.store.ListBuysByAccount(ctx, account)
	if err != nil {
		return nil, nil, err
	}
	sells, err := s.store.ListSellsByAccount(ctx, account)
	if err != nil {
		return nil, nil, err
	}
	return buys, sells, nil
}

// Trades returns the most recent trades, oldest first.
func (s *Service) Trades(ctx context.Context, limit int) ([]*Trade, error) {
	return s.store.ListTrades(ctx, limit)
}

// TradesFor returns an account's trades on either side.
func (s *Service) TradesFor(ctx context.Context, account id.AccountID) ([]*Trade, error) {
	return s.store.ListTradesByAccount(ctx, account)
}

// MarketStats returns the rolling snapshot.
func (s *Service) MarketStats(ctx context.Context) (*Stats, error) {
	return s.stats.Stats(ctx, requestcontext.Now(ctx))
}

// match sweeps the book, best bid against best ask, settling every
// compatible pair. Caller holds s.mu.
func (s *Service) match(ctx context.Context) {
	ctx, span := s.tracer.Start(ctx, "market.match")
	defer span.End()

	buys, err := s.store.OpenBuys(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "load open bids", "error", err)
		return
	}
	for _, buy := range buys {
		s.matchBuy(ctx, buy)
	}
}

// matchBuy fills one bid against resting asks until the bid is filled or no
// compatible ask remains. Trades execute at the ask.
func (s *Service) matchBuy(ctx context.Context, buy *BuyOrder) {
	sells, err := s.store.OpenSells(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "load open asks", "error", err)
		return
	}
	for _, sell := range sells {
		if buy.remaining() <= 0 {
			return
		}
		if sell.PricePerTon > buy.PricePerTon {
			// Asks are sorted cheapest first; nothing further can match.
			return
		}
		// No self-trading: an account's bid never fills its own ask.
		if sell.Seller == buy.Buyer {
			continue
		}
		selected, quantity := s.selectCredits(ctx, buy, sell)
		if quantity == 0 {
			continue
		}
		if !s.executeTrade(ctx, buy, sell, selected, quantity) {
			return
		}
	}
}

// selectCredits greedily picks whole credits from the ask that pass the
// bid's project filter and fit inside the bid's remaining quantity. Credits
// are indivisible: one that no longer fits is skipped, never split. Stale
// credits (retired or transferred away since placement) are pruned from the
// ask as a side effect.
func (s *Service) selectCredits(ctx context.Context, buy *BuyOrder, sell *SellOrder) ([]id.CreditID, int64) {
	budget := buy.remaining()
	var (
		selected []id.CreditID
		quantity int64
		stale    []id.CreditID
	)
	for _, creditID := range sell.RemainingCredits {
		c, err := s.credits.Get(ctx, creditID)
		if err != nil || c.Owner != sell.Seller || c.Retired {
			stale = append(stale, creditID)
			continue
		}
		if buy.ProjectFilter != "" && c.ProjectID != buy.ProjectFilter {
			continue
		}
		if c.Amount > budget {
			continue
		}
		selected = append(selected, creditID)
		quantity += c.Amount
		budget -= c.Amount
	}
	if len(stale) > 0 {
		s.pruneStale(ctx, sell, stale)
	}
	return selected, quantity
}

// pruneStale drops credits the seller no longer controls from the ask. An
// ask drained entirely by stale credits is cancelled.
func (s *Service) pruneStale(ctx context.Context, sell *SellOrder, stale []id.CreditID) {
	drop := make(map[id.CreditID]bool, len(stale))
	for _, creditID := range stale {
		drop[creditID] = true
	}
	updated, err := s.store.UpdateSell(ctx, sell.ID,
		func(*SellOrder) error { return nil },
		func(o *SellOrder) {
			kept := o.RemainingCredits[:0]
			for _, creditID := range o.RemainingCredits {
				if !drop[creditID] {
					kept = append(kept, creditID)
				}
			}
			o.RemainingCredits = kept
			if len(o.RemainingCredits) == 0 && o.open() {
				o.Status = StatusCancelled
			}
		},
	)
	if err != nil {
		s.logger.ErrorContext(ctx, "prune stale credits", "order", sell.ID, "error", err)
		return
	}
	sell.RemainingCredits = updated.RemainingCredits
	sell.Status = updated.Status
	s.logger.WarnContext(ctx, "dropped stale credits from ask",
		"order", sell.ID, "dropped", len(stale))
}

// executeTrade settles one match: funds move at the ask price, credits move
// to the buyer, the trade is recorded, and the downstream hooks fire.
// Returns false if settlement could not proceed, halting this bid's sweep.
func (s *Service) executeTrade(ctx context.Context, buy *BuyOrder, sell *SellOrder, creditIDs []id.CreditID, quantity int64) bool {
	now := requestcontext.Now(ctx)
	notional := sell.PricePerTon * quantity
	fee := s.feeFor(notional)

	if err := s.funds.Pay(ctx, buy.EscrowID, sell.Seller, notional); err != nil {
		s.logger.ErrorContext(ctx, "settlement payment failed",
			"buy_order", buy.ID, "sell_order", sell.ID, "error", err)
		return false
	}
	if fee > 0 {
		if err := s.funds.Pay(ctx, buy.EscrowID, FeeAccount, fee); err != nil {
			s.logger.ErrorContext(ctx, "fee sweep failed",
				"buy_order", buy.ID, "error", err)
		}
	}

	for _, creditID := range creditIDs {
		if _, err := s.credits.Transfer(ctx, sell.Seller, creditID, buy.Buyer); err != nil {
			s.logger.ErrorContext(ctx, "settlement transfer failed",
				"credit", creditID, "buy_order", buy.ID, "sell_order", sell.ID, "error", err)
		}
	}

	trade := &Trade{
		ID:          id.NewTradeID(),
		BuyOrderID:  buy.ID,
		SellOrderID: sell.ID,
		Buyer:       buy.Buyer,
		Seller:      sell.Seller,
		CreditIDs:   append([]id.CreditID(nil), creditIDs...),
		PricePerTon: sell.PricePerTon,
		Quantity:    quantity,
		Fee:         fee,
		ExecutedAt:  now,
	}
	if err := s.store.AppendTrade(ctx, trade); err != nil {
		s.logger.ErrorContext(ctx, "append trade", "trade", trade.ID, "error", err)
	}

	updatedBuy, err := s.store.UpdateBuy(ctx, buy.ID,
		func(*BuyOrder) error { return nil },
		func(o *BuyOrder) {
			o.recordFill(quantity)
			o.SpentAmount += notional + fee
		},
	)
	if err != nil {
		s.logger.ErrorContext(ctx, "update bid after trade", "order", buy.ID, "error", err)
		return false
	}
	buy.FilledQuantity = updatedBuy.FilledQuantity
	buy.SpentAmount = updatedBuy.SpentAmount
	buy.Status = updatedBuy.Status

	if updatedBuy.Status == StatusFilled {
		// A bid above the ask leaves an escrow excess; return it now.
		if excess := s.funds.EscrowRemaining(ctx, buy.EscrowID); excess > 0 {
			if err := s.funds.Refund(ctx, buy.EscrowID, excess); err != nil {
				s.logger.ErrorContext(ctx, "refund escrow excess", "order", buy.ID, "error", err)
			}
		}
	}

	updatedSell, err := s.store.UpdateSell(ctx, sell.ID,
		func(*SellOrder) error { return nil },
		func(o *SellOrder) { o.recordFill(quantity, creditIDs) },
	)
	if err != nil {
		s.logger.ErrorContext(ctx, "update ask after trade", "order", sell.ID, "error", err)
		return false
	}
	sell.FilledQuantity = updatedSell.FilledQuantity
	sell.RemainingCredits = updatedSell.RemainingCredits
	sell.Status = updatedSell.Status

	if err := s.stats.RecordTrade(ctx, PricePoint{Price: trade.PricePerTon, Quantity: quantity, Timestamp: now}); err != nil {
		s.logger.WarnContext(ctx, "record market stats", "trade", trade.ID, "error", err)
	}

	tradeRef := trade.ID.String()
	if s.certs != nil {
		if _, err := s.certs.IssuePurchase(ctx, buy.Buyer, creditIDs, tradeHash(trade), tradeRef); err != nil {
			s.logger.WarnContext(ctx, "purchase certificate issuance failed", "trade", tradeRef, "error", err)
		}
	}
	if s.rep != nil {
		if err := s.rep.RecordSettlement(ctx, buy.Buyer, true, tradeRef); err != nil {
			s.logger.WarnContext(ctx, "buyer reputation outcome failed", "trade", tradeRef, "error", err)
		}
		if err := s.rep.RecordSettlement(ctx, sell.Seller, true, tradeRef); err != nil {
			s.logger.WarnContext(ctx, "seller reputation outcome failed", "trade", tradeRef, "error", err)
		}
	}

	s.emit(ctx, buy.Buyer, events.ActionTradeExecuted, tradeRef,
		fmt.Sprintf("%d tons @ %d from %s", quantity, trade.PricePerTon, sell.Seller))
	if s.mx != nil {
		s.mx.TradesExecuted.Inc()
		s.mx.TonsTraded.Add(float64(quantity))
		s.mx.FeesAccrued.Add(float64(fee))
	}
	return true
}

// tradeHash derives the purchase certificate's verification hash from the
// settled trade's identity and contents.
func tradeHash(t *Trade) string {
	h := sha256.New()
	h.Write([]byte(t.ID.String()))
	ids := append([]id.CreditID(nil), t.CreditIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, creditID := range ids {
		fmt.Fprintf(h, "|%d", creditID)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (s *Service) emit(ctx context.Context, account id.AccountID, action events.Action, subject, reason string) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Emit(ctx, events.Event{
		Account: account,
		Action:  action,
		Subject: subject,
		Reason:  reason,
	}); err != nil {
		s.logger.WarnContext(ctx, "event emit failed", "action", string(action), "error", err)
	}
}
