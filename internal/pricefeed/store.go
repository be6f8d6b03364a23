// Package pricefeed holds the latest quote per symbol. The real market data
// feed lives outside this service and pushes prices in through the internal
// API.
package pricefeed

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type Oracle interface {
	CurrentPrice(symbol string) (decimal.Decimal, bool)
}

type Quote struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type Store struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

func NewStore() *Store {
	return &Store{quotes: map[string]Quote{}}
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func (s *Store) Set(symbol string, price decimal.Decimal) error {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return errors.New("symbol is required")
	}
	if !price.GreaterThan(decimal.Zero) {
		return errors.New("price must be positive")
	}
	s.mu.Lock()
	s.quotes[symbol] = Quote{Symbol: symbol, Price: price, UpdatedAt: time.Now().UTC()}
	s.mu.Unlock()
	return nil
}

func (s *Store) CurrentPrice(symbol string) (decimal.Decimal, bool) {
	s.mu.RLock()
	q, ok := s.quotes[normalizeSymbol(symbol)]
	s.mu.RUnlock()
	if !ok {
		return decimal.Zero, false
	}
	return q.Price, true
}

func (s *Store) Quotes() []Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Quote, 0, len(s.quotes))
	for _, q := range s.quotes {
		out = append(out, q)
	}
	return out
}

// ParseSeed reads "SYM=price,SYM=price" pairs.
func ParseSeed(raw string) (map[string]decimal.Decimal, error) {
	out := map[string]decimal.Decimal{}
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.SplitN(item, "=", 2)
		if len(parts) != 2 {
			return nil, errors.New("invalid seed price entry: " + item)
		}
		p, err := decimal.NewFromString(strings.TrimSpace(parts[1]))
		if err != nil || !p.GreaterThan(decimal.Zero) {
			return nil, errors.New("invalid seed price for " + parts[0])
		}
		out[normalizeSymbol(parts[0])] = p
	}
	return out, nil
}
