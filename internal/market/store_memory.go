package market

import (
	"context"
	"sort"
	"sync"

	id "canopy/pkg/domain"
	"canopy/pkg/platform/sentinel"
)

// InMemoryStore keeps the order book and trade log in process memory.
type InMemoryStore struct {
	mu     sync.RWMutex
	buys   map[id.OrderID]*BuyOrder
	sells  map[id.OrderID]*SellOrder
	trades []*Trade
	nextID id.OrderID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		buys:  make(map[id.OrderID]*BuyOrder),
		sells: make(map[id.OrderID]*SellOrder),
	}
}

func (s *InMemoryStore) InsertBuy(_ context.Context, order *BuyOrder) (id.OrderID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	order.ID = s.nextID
	s.buys[order.ID] = copyBuy(order)
	return order.ID, nil
}

func (s *InMemoryStore) InsertSell(_ context.Context, order *SellOrder) (id.OrderID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	order.ID = s.nextID
	s.sells[order.ID] = copySell(order)
	return order.ID, nil
}

func (s *InMemoryStore) FindBuy(_ context.Context, orderID id.OrderID) (*BuyOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, ok := s.buys[orderID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyBuy(order), nil
}

func (s *InMemoryStore) FindSell(_ context.Context, orderID id.OrderID) (*SellOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, ok := s.sells[orderID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copySell(order), nil
}

func (s *InMemoryStore) UpdateBuy(_ context.Context, orderID id.OrderID, validate func(*BuyOrder) error, apply func(*BuyOrder)) (*BuyOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.buys[orderID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(order); err != nil {
		return nil, err
	}
	apply(order)
	return copyBuy(order), nil
}

func (s *InMemoryStore) UpdateSell(_ context.Context, orderID id.OrderID, validate func(*SellOrder) error, apply func(*SellOrder)) (*SellOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.sells[orderID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(order); err != nil {
		return nil, err
	}
	apply(order)
	return copySell(order), nil
}

func (s *InMemoryStore) OpenBuys(_ context.Context) ([]*BuyOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var open []*BuyOrder
	for _, order := range s.buys {
		if order.open() {
			open = append(open, copyBuy(order))
		}
	}
	sort.Slice(open, func(i, j int) bool {
		if open[i].PricePerTon != open[j].PricePerTon {
			return open[i].PricePerTon > open[j].PricePerTon
		}
		return open[i].ID < open[j].ID
	})
	return open, nil
}

func (s *InMemoryStore) OpenSells(_ context.Context) ([]*SellOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var open []*SellOrder
	for _, order := range s.sells {
		if order.open() {
			open = append(open, copySell(order))
		}
	}
	sort.Slice(open, func(i, j int) bool {
		if open[i].PricePerTon != open[j].PricePerTon {
			return open[i].PricePerTon < open[j].PricePerTon
		}
		return open[i].ID < open[j].ID
	})
	return open, nil
}

func (s *InMemoryStore) ListBuysByAccount(_ context.Context, account id.AccountID) ([]*BuyOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var orders []*BuyOrder
	for _, order := range s.buys {
		if order.Buyer == account {
			orders = append(orders, copyBuy(order))
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return orders, nil
}

func (s *InMemoryStore) ListSellsByAccount(_ context.Context, account id.AccountID) ([]*SellOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var orders []*SellOrder
	for _, order := range s.sells {
		if order.Seller == account {
			orders = append(orders, copySell(order))
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return orders, nil
}

func (s *InMemoryStore) AppendTrade(_ context.Context, trade *Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, copyTrade(trade))
	return nil
}

func (s *InMemoryStore) ListTrades(_ context.Context, limit int) ([]*Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if limit > 0 && len(s.trades) > limit {
		start = len(s.trades) - limit
	}
	trades := make([]*Trade, 0, len(s.trades)-start)
	for _, trade := range s.trades[start:] {
		trades = append(trades, copyTrade(trade))
	}
	return trades, nil
}

func (s *InMemoryStore) ListTradesByAccount(_ context.Context, account id.AccountID) ([]*Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var trades []*Trade
	for _, trade := range s.trades {
		if trade.Buyer == account || trade.Seller == account {
			trades = append(trades, copyTrade(trade))
		}
	}
	return trades, nil
}

func copyBuy(o *BuyOrder) *BuyOrder {
	dup := *o
	return &dup
}

func copySell(o *SellOrder) *SellOrder {
	dup := *o
	dup.CreditIDs = append([]id.CreditID(nil), o.CreditIDs...)
	dup.RemainingCredits = append([]id.CreditID(nil), o.RemainingCredits...)
	return &dup
}

func copyTrade(t *Trade) *Trade {
	dup := *t
	dup.CreditIDs = append([]id.CreditID(nil), t.CreditIDs...)
	return &dup
}
