package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lv-tradesim/internal/model"
	"lv-tradesim/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Compile-time interface checks.
var _ AccountRepository = (*PostgresStore)(nil)
var _ OrderRepository = (*PostgresStore)(nil)
var _ PositionRepository = (*PostgresStore)(nil)
var _ Transactor = (*PostgresStore)(nil)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Repositories() Repositories {
	return Repositories{Accounts: s, Orders: s, Positions: s, Tx: s}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PostgresStore) db(ctx context.Context) querier {
	if sc := scopeFrom(ctx); sc != nil && sc.pg != nil {
		return sc.pg
	}
	return s.pool
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if scopeFrom(ctx) != nil {
		return fn(ctx)
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	sc := &txScope{pg: tx}
	if err := fn(context.WithValue(ctx, txKey{}, sc)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	sc.commit()
	return nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (s *PostgresStore) GetAccount(ctx context.Context, userID string) (model.Account, error) {
	var a model.Account
	err := s.db(ctx).QueryRow(ctx, "select user_id, balance, bonus, realized_pnl, equity, used_margin, available_funds, margin_level, exposure, updated_at from accounts where user_id = $1", userID).Scan(&a.UserID, &a.Balance, &a.Bonus, &a.RealizedPnL, &a.Equity, &a.UsedMargin, &a.AvailableFunds, &a.MarginLevel, &a.Exposure, &a.UpdatedAt)
	if err != nil {
		return model.Account{}, notFound(err)
	}
	return a, nil
}

func (s *PostgresStore) SaveAccount(ctx context.Context, a model.Account) error {
	_, err := s.db(ctx).Exec(ctx, `
		insert into accounts (user_id, balance, bonus, realized_pnl, equity, used_margin, available_funds, margin_level, exposure, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		on conflict (user_id) do update set
			balance = excluded.balance,
			bonus = excluded.bonus,
			realized_pnl = excluded.realized_pnl,
			equity = excluded.equity,
			used_margin = excluded.used_margin,
			available_funds = excluded.available_funds,
			margin_level = excluded.margin_level,
			exposure = excluded.exposure,
			updated_at = excluded.updated_at
	`, a.UserID, a.Balance, a.Bonus, a.RealizedPnL, a.Equity, a.UsedMargin, a.AvailableFunds, a.MarginLevel, a.Exposure, a.UpdatedAt)
	return err
}

const orderColumns = "id, user_id, symbol, asset_class, order_type, direction, quantity, filled_quantity, price, slippage, status, stop_loss_price, take_profit_price, expiration, created_at, filled_at, updated_at"

func (s *PostgresStore) SaveOrder(ctx context.Context, o model.Order) error {
	_, err := s.db(ctx).Exec(ctx, `
		insert into orders (`+orderColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		on conflict (id) do update set
			quantity = excluded.quantity,
			filled_quantity = excluded.filled_quantity,
			price = excluded.price,
			slippage = excluded.slippage,
			status = excluded.status,
			stop_loss_price = excluded.stop_loss_price,
			take_profit_price = excluded.take_profit_price,
			expiration = excluded.expiration,
			filled_at = excluded.filled_at,
			updated_at = excluded.updated_at
	`, o.ID, o.UserID, o.Symbol, string(o.AssetClass), string(o.Type), string(o.Side), o.Qty, o.FilledQty, o.Price, o.Slippage, string(o.Status), o.StopLossPrice, o.TakeProfitPrice, o.Expiration, o.CreatedAt, o.FilledAt, o.UpdatedAt)
	return err
}

func scanOrder(row pgx.Row) (model.Order, error) {
	var o model.Order
	var assetClass, typ, side, status string
	var price, sl, tp *decimal.Decimal
	err := row.Scan(&o.ID, &o.UserID, &o.Symbol, &assetClass, &typ, &side, &o.Qty, &o.FilledQty, &price, &o.Slippage, &status, &sl, &tp, &o.Expiration, &o.CreatedAt, &o.FilledAt, &o.UpdatedAt)
	if err != nil {
		return o, err
	}
	o.AssetClass = types.AssetClass(assetClass)
	o.Type = types.OrderType(typ)
	o.Side = types.OrderSide(side)
	o.Status = types.OrderStatus(status)
	o.Price = price
	o.StopLossPrice = sl
	o.TakeProfitPrice = tp
	return o, nil
}

func (s *PostgresStore) GetOrder(ctx context.Context, id string) (model.Order, error) {
	o, err := scanOrder(s.db(ctx).QueryRow(ctx, "select "+orderColumns+" from orders where id = $1", id))
	if err != nil {
		return model.Order{}, notFound(err)
	}
	return o, nil
}

func (s *PostgresStore) queryOrders(ctx context.Context, query string, args ...any) ([]model.Order, error) {
	rows, err := s.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListOrders(ctx context.Context, userID string) ([]model.Order, error) {
	return s.queryOrders(ctx, "select "+orderColumns+" from orders where user_id = $1 order by created_at asc, id asc", userID)
}

func (s *PostgresStore) ListOrdersByStatus(ctx context.Context, userID string, status types.OrderStatus) ([]model.Order, error) {
	return s.queryOrders(ctx, "select "+orderColumns+" from orders where user_id = $1 and status = $2 order by created_at asc, id asc", userID, string(status))
}

func (s *PostgresStore) ListPendingOrders(ctx context.Context) ([]model.Order, error) {
	return s.queryOrders(ctx, "select "+orderColumns+" from orders where status = 'pending' order by created_at asc, id asc")
}

const positionColumns = "id, user_id, order_id, symbol, asset_class, direction, quantity, entry_price, margin_required, take_profit, stop_loss, created_at"

func (s *PostgresStore) SavePosition(ctx context.Context, p model.Position) error {
	_, err := s.db(ctx).Exec(ctx, `
		insert into positions (`+positionColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		on conflict (id) do update set
			take_profit = excluded.take_profit,
			stop_loss = excluded.stop_loss
	`, p.ID, p.UserID, p.OrderID, p.Symbol, string(p.AssetClass), string(p.Side), p.Qty, p.EntryPrice, p.MarginRequired, p.TakeProfit, p.StopLoss, p.CreatedAt)
	return err
}

func scanPosition(row pgx.Row) (model.Position, error) {
	var p model.Position
	var assetClass, side string
	var tp, sl *decimal.Decimal
	err := row.Scan(&p.ID, &p.UserID, &p.OrderID, &p.Symbol, &assetClass, &side, &p.Qty, &p.EntryPrice, &p.MarginRequired, &tp, &sl, &p.CreatedAt)
	if err != nil {
		return p, err
	}
	p.AssetClass = types.AssetClass(assetClass)
	p.Side = types.OrderSide(side)
	p.TakeProfit = tp
	p.StopLoss = sl
	return p, nil
}

func (s *PostgresStore) GetPosition(ctx context.Context, id string) (model.Position, error) {
	p, err := scanPosition(s.db(ctx).QueryRow(ctx, "select "+positionColumns+" from positions where id = $1", id))
	if err != nil {
		return model.Position{}, notFound(err)
	}
	return p, nil
}

func (s *PostgresStore) DeletePosition(ctx context.Context, id string) error {
	tag, err := s.db(ctx).Exec(ctx, "delete from positions where id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) queryPositions(ctx context.Context, query string, args ...any) ([]model.Position, error) {
	rows, err := s.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListPositions(ctx context.Context, userID string) ([]model.Position, error) {
	return s.queryPositions(ctx, "select "+positionColumns+" from positions where user_id = $1 order by created_at asc, id asc", userID)
}

func (s *PostgresStore) ListPositionsBySymbol(ctx context.Context, symbol string) ([]model.Position, error) {
	return s.queryPositions(ctx, "select "+positionColumns+" from positions where symbol = $1 order by created_at asc, id asc", symbol)
}

func (s *PostgresStore) SaveClosedPosition(ctx context.Context, c model.ClosedPosition) error {
	p := c.Position
	_, err := s.db(ctx).Exec(ctx, `
		insert into closed_positions (id, user_id, order_id, symbol, asset_class, direction, quantity, entry_price, margin_required, opened_at, closing_price, pnl, closed_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, p.ID, p.UserID, p.OrderID, p.Symbol, string(p.AssetClass), string(p.Side), p.Qty, p.EntryPrice, p.MarginRequired, p.CreatedAt, c.ClosingPrice, c.PnL, c.ClosedAt)
	return err
}

func (s *PostgresStore) ListClosedPositions(ctx context.Context, userID string, since time.Time) ([]model.ClosedPosition, error) {
	rows, err := s.db(ctx).Query(ctx, `
		select id, user_id, order_id, symbol, asset_class, direction, quantity, entry_price, margin_required, opened_at, closing_price, pnl, closed_at
		from closed_positions
		where user_id = $1 and closed_at >= $2
		order by closed_at asc
	`, userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ClosedPosition
	for rows.Next() {
		var c model.ClosedPosition
		var assetClass, side string
		if err := rows.Scan(&c.Position.ID, &c.Position.UserID, &c.Position.OrderID, &c.Position.Symbol, &assetClass, &side, &c.Position.Qty, &c.Position.EntryPrice, &c.Position.MarginRequired, &c.Position.CreatedAt, &c.ClosingPrice, &c.PnL, &c.ClosedAt); err != nil {
			return nil, err
		}
		c.Position.AssetClass = types.AssetClass(assetClass)
		c.Position.Side = types.OrderSide(side)
		out = append(out, c)
	}
	return out, rows.Err()
}
