package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Transactor runs fn as one unit of work. Every repository call made with the
// ctx handed to fn commits together or not at all. A nested WithTx joins the
// outer unit.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type txKey struct{}

// txScope is owned by the goroutine running the unit of work.
type txScope struct {
	pg       pgx.Tx
	undo     []func()
	onCommit []func()
}

func scopeFrom(ctx context.Context) *txScope {
	sc, _ := ctx.Value(txKey{}).(*txScope)
	return sc
}

func (sc *txScope) commit() {
	for _, fn := range sc.onCommit {
		fn()
	}
}

// AfterCommit defers fn until the unit of work carried by ctx commits. fn is
// dropped on rollback. Without a unit of work fn runs immediately.
func AfterCommit(ctx context.Context, fn func()) {
	if sc := scopeFrom(ctx); sc != nil {
		sc.onCommit = append(sc.onCommit, fn)
		return
	}
	fn()
}

// Direct runs fn without a unit of work.
type Direct struct{}

func (Direct) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
