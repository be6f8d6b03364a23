// Package store defines the repositories the engine reads and mutates, with
// an in-memory implementation for tests and single-node demos and a Postgres
// implementation for durable deployments.
package store

import (
	"context"
	"errors"
	"time"

	"lv-tradesim/internal/model"
	"lv-tradesim/internal/types"
)

var ErrNotFound = errors.New("not found")

type AccountRepository interface {
	GetAccount(ctx context.Context, userID string) (model.Account, error)
	SaveAccount(ctx context.Context, acc model.Account) error
}

type OrderRepository interface {
	SaveOrder(ctx context.Context, o model.Order) error
	GetOrder(ctx context.Context, id string) (model.Order, error)
	ListOrders(ctx context.Context, userID string) ([]model.Order, error)
	ListOrdersByStatus(ctx context.Context, userID string, status types.OrderStatus) ([]model.Order, error)
	// ListPendingOrders returns resting orders of every user, oldest first.
	ListPendingOrders(ctx context.Context) ([]model.Order, error)
}

type PositionRepository interface {
	SavePosition(ctx context.Context, p model.Position) error
	GetPosition(ctx context.Context, id string) (model.Position, error)
	DeletePosition(ctx context.Context, id string) error
	ListPositions(ctx context.Context, userID string) ([]model.Position, error)
	ListPositionsBySymbol(ctx context.Context, symbol string) ([]model.Position, error)
	SaveClosedPosition(ctx context.Context, c model.ClosedPosition) error
	ListClosedPositions(ctx context.Context, userID string, since time.Time) ([]model.ClosedPosition, error)
}

// Repositories groups the three stores and their unit of work so constructors
// take one value.
type Repositories struct {
	Accounts  AccountRepository
	Orders    OrderRepository
	Positions PositionRepository
	Tx        Transactor
}
