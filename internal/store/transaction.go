package store

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type txKey struct{}

var errNoTransaction = errors.New("no transaction in progress")

// ledgerTx is an open gorm transaction carried in a context. Every store
// resolving its db through FromContext joins it.
type ledgerTx struct {
	db *gorm.DB
}

func (t *ledgerTx) finish(op string, fn func() *gorm.DB) error {
	if t.db == nil {
		return errNoTransaction
	}
	if err := fn().Error; err != nil {
		zap.S().Named("store").Errorw("transaction "+op+" failed", "error", err)
		return err
	}
	t.db = nil
	zap.S().Named("store").Debugw("transaction " + op)
	return nil
}

func newTransactionContext(ctx context.Context, db *gorm.DB) (context.Context, error) {
	// already inside a transaction, join it
	if _, found := ctx.Value(txKey{}).(*ledgerTx); found {
		return ctx, nil
	}

	tx := db.Session(&gorm.Session{Context: ctx}).Begin()
	if tx.Error != nil {
		return ctx, tx.Error
	}

	return context.WithValue(ctx, txKey{}, &ledgerTx{db: tx}), nil
}

// Commit commits the transaction of ctx, if any, and returns a context
// without it.
func Commit(ctx context.Context) (context.Context, error) {
	tx, ok := ctx.Value(txKey{}).(*ledgerTx)
	if !ok {
		return ctx, nil
	}
	return context.WithValue(ctx, txKey{}, nil), tx.finish("commit", tx.db.Commit)
}

func Rollback(ctx context.Context) (context.Context, error) {
	tx, ok := ctx.Value(txKey{}).(*ledgerTx)
	if !ok {
		return ctx, nil
	}
	return context.WithValue(ctx, txKey{}, nil), tx.finish("rollback", tx.db.Rollback)
}

func FromContext(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*ledgerTx); ok && tx.db != nil {
		return tx.db
	}
	return nil
}
