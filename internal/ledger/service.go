package ledger

import (
	"context"
	"errors"
	"fmt"

	"lv-tradesim/internal/apperr"
	"lv-tradesim/internal/events"
	"lv-tradesim/internal/model"
	"lv-tradesim/internal/observability"
	"lv-tradesim/internal/pricefeed"
	"lv-tradesim/internal/store"
	"lv-tradesim/internal/types"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type Service struct {
	accounts     store.AccountRepository
	positions    store.PositionRepository
	tx           store.Transactor
	oracle       pricefeed.Oracle
	locks        *Locks
	bus          events.Broadcaster
	metrics      *observability.Metrics
	startBalance decimal.Decimal
	log          zerolog.Logger
}

func NewService(repos store.Repositories, oracle pricefeed.Oracle, bus events.Broadcaster, metrics *observability.Metrics, startBalance decimal.Decimal, log zerolog.Logger) *Service {
	if bus == nil {
		bus = events.Discard{}
	}
	tx := repos.Tx
	if tx == nil {
		tx = store.Direct{}
	}
	return &Service{
		accounts:     repos.Accounts,
		positions:    repos.Positions,
		tx:           tx,
		oracle:       oracle,
		locks:        NewLocks(),
		bus:          bus,
		metrics:      metrics,
		startBalance: startBalance,
		log:          log,
	}
}

func (s *Service) load(ctx context.Context, userID string) (model.Account, error) {
	acc, err := s.accounts.GetAccount(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		acc = model.NewAccount(userID, s.startBalance)
		if err := s.accounts.SaveAccount(ctx, acc); err != nil {
			return model.Account{}, fmt.Errorf("create account: %w", err)
		}
		store.AfterCommit(ctx, func() {
			s.log.Info().Str("user_id", userID).Str("balance", s.startBalance.String()).Msg("account opened")
		})
		return acc, nil
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("load account: %w", err)
	}
	return acc, nil
}

// WithAccount runs fn on the caller's account under its mutex, inside one
// unit of work that also saves the account. fn must make its repository calls
// with the ctx it is given. When fn or any write fails, every write of the
// unit is rolled back.
func (s *Service) WithAccount(ctx context.Context, userID string, fn func(ctx context.Context, acc *model.Account) error) error {
	if userID == "" {
		return apperr.Unauthorized("missing user")
	}
	unlock := s.locks.Lock(userID)
	defer unlock()
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		acc, err := s.load(ctx, userID)
		if err != nil {
			return err
		}
		if err := fn(ctx, &acc); err != nil {
			return err
		}
		if err := s.accounts.SaveAccount(ctx, acc); err != nil {
			return fmt.Errorf("save account: %w", err)
		}
		return nil
	})
}

// Metrics recomputes the account snapshot from live prices and broadcasts it.
func (s *Service) Metrics(ctx context.Context, userID string) (model.Account, error) {
	var snap model.Account
	err := s.WithAccount(ctx, userID, func(ctx context.Context, acc *model.Account) error {
		open, err := s.positions.ListPositions(ctx, userID)
		if err != nil {
			return fmt.Errorf("list positions: %w", err)
		}
		*acc, _ = Snapshot(*acc, open, s.oracle)
		snap = *acc
		return nil
	})
	if err != nil {
		return model.Account{}, err
	}
	s.emit(events.New(types.EventAccountMetricsUpdate, userID, snap))
	return snap, nil
}

func (s *Service) Deposit(ctx context.Context, userID string, amount decimal.Decimal) (model.Account, error) {
	err := s.WithAccount(ctx, userID, func(_ context.Context, acc *model.Account) error {
		return Deposit(acc, amount)
	})
	if err != nil {
		return model.Account{}, err
	}
	s.log.Info().Str("user_id", userID).Str("amount", amount.String()).Msg("deposit booked")
	return s.Metrics(ctx, userID)
}

func (s *Service) emit(evt events.Event) {
	s.metrics.EventEmitted(string(evt.Type))
	s.bus.Emit(evt)
}
