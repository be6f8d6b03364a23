package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"lv-tradesim/internal/model"
	"lv-tradesim/internal/types"
)

// Compile-time interface checks.
var _ AccountRepository = (*MemoryStore)(nil)
var _ OrderRepository = (*MemoryStore)(nil)
var _ PositionRepository = (*MemoryStore)(nil)
var _ Transactor = (*MemoryStore)(nil)

type MemoryStore struct {
	mu        sync.RWMutex
	accounts  map[string]model.Account
	orders    map[string]model.Order
	positions map[string]model.Position
	closed    map[string][]model.ClosedPosition
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:  make(map[string]model.Account),
		orders:    make(map[string]model.Order),
		positions: make(map[string]model.Position),
		closed:    make(map[string][]model.ClosedPosition),
	}
}

func (s *MemoryStore) Repositories() Repositories {
	return Repositories{Accounts: s, Orders: s, Positions: s, Tx: s}
}

// WithTx keeps an undo log of the writes fn makes and replays it backwards
// when fn fails.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if scopeFrom(ctx) != nil {
		return fn(ctx)
	}
	sc := &txScope{}
	if err := fn(context.WithValue(ctx, txKey{}, sc)); err != nil {
		s.mu.Lock()
		for i := len(sc.undo) - 1; i >= 0; i-- {
			sc.undo[i]()
		}
		s.mu.Unlock()
		return err
	}
	sc.commit()
	return nil
}

// remember records how to revert a write. Callers hold s.mu.
func remember(ctx context.Context, undo func()) {
	if sc := scopeFrom(ctx); sc != nil {
		sc.undo = append(sc.undo, undo)
	}
}

func (s *MemoryStore) GetAccount(_ context.Context, userID string) (model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[userID]
	if !ok {
		return model.Account{}, ErrNotFound
	}
	return acc, nil
}

func (s *MemoryStore) SaveAccount(ctx context.Context, acc model.Account) error {
	s.mu.Lock()
	prev, had := s.accounts[acc.UserID]
	remember(ctx, func() {
		if had {
			s.accounts[acc.UserID] = prev
			return
		}
		delete(s.accounts, acc.UserID)
	})
	s.accounts[acc.UserID] = acc
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) SaveOrder(ctx context.Context, o model.Order) error {
	s.mu.Lock()
	prev, had := s.orders[o.ID]
	remember(ctx, func() {
		if had {
			s.orders[o.ID] = prev
			return
		}
		delete(s.orders, o.ID)
	})
	s.orders[o.ID] = o
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetOrder(_ context.Context, id string) (model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return model.Order{}, ErrNotFound
	}
	return o, nil
}

func (s *MemoryStore) ListOrders(_ context.Context, userID string) ([]model.Order, error) {
	return s.filterOrders(func(o model.Order) bool { return o.UserID == userID }), nil
}

func (s *MemoryStore) ListOrdersByStatus(_ context.Context, userID string, status types.OrderStatus) ([]model.Order, error) {
	return s.filterOrders(func(o model.Order) bool { return o.UserID == userID && o.Status == status }), nil
}

func (s *MemoryStore) ListPendingOrders(_ context.Context) ([]model.Order, error) {
	return s.filterOrders(func(o model.Order) bool { return o.Status == types.OrderStatusPending }), nil
}

func (s *MemoryStore) filterOrders(keep func(model.Order) bool) []model.Order {
	s.mu.RLock()
	out := make([]model.Order, 0, 8)
	for _, o := range s.orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *MemoryStore) SavePosition(ctx context.Context, p model.Position) error {
	s.mu.Lock()
	prev, had := s.positions[p.ID]
	remember(ctx, func() {
		if had {
			s.positions[p.ID] = prev
			return
		}
		delete(s.positions, p.ID)
	})
	s.positions[p.ID] = p
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetPosition(_ context.Context, id string) (model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[id]
	if !ok {
		return model.Position{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) DeletePosition(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.positions[id]
	if !ok {
		return ErrNotFound
	}
	remember(ctx, func() { s.positions[id] = prev })
	delete(s.positions, id)
	return nil
}

func (s *MemoryStore) ListPositions(_ context.Context, userID string) ([]model.Position, error) {
	return s.filterPositions(func(p model.Position) bool { return p.UserID == userID }), nil
}

func (s *MemoryStore) ListPositionsBySymbol(_ context.Context, symbol string) ([]model.Position, error) {
	return s.filterPositions(func(p model.Position) bool { return p.Symbol == symbol }), nil
}

func (s *MemoryStore) filterPositions(keep func(model.Position) bool) []model.Position {
	s.mu.RLock()
	out := make([]model.Position, 0, 8)
	for _, p := range s.positions {
		if keep(p) {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *MemoryStore) SaveClosedPosition(ctx context.Context, c model.ClosedPosition) error {
	s.mu.Lock()
	userID := c.Position.UserID
	n := len(s.closed[userID])
	remember(ctx, func() { s.closed[userID] = s.closed[userID][:n] })
	s.closed[userID] = append(s.closed[userID], c)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ListClosedPositions(_ context.Context, userID string, since time.Time) ([]model.ClosedPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ClosedPosition, 0, len(s.closed[userID]))
	for _, c := range s.closed[userID] {
		if !c.ClosedAt.Before(since) {
			out = append(out, c)
		}
	}
	return out, nil
}
