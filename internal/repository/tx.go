package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"laundry-dispatch/internal/domain"
	"laundry-dispatch/internal/ports/dispatchtx"
)

// TxRunner opens transactions over the pool.
type TxRunner struct {
	db *pgxpool.Pool
}

// NewTxRunner creates a new TxRunner.
func NewTxRunner(db *pgxpool.Pool) *TxRunner {
	return &TxRunner{db: db}
}

// WithTx opens a transaction and executes fn within it.
func (r *TxRunner) WithTx(ctx context.Context, fn func(tx dispatchtx.Repository) error) error {
	return r.withPgxTx(ctx, func(tx pgx.Tx) error {
		return fn(&TxRepo{tx: tx})
	})
}

func (r *TxRunner) withPgxTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrap("begin tx", err)
	}

	// отменяем в случае паники
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			return fmt.Errorf("rollback tx: %w (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return wrap("commit tx", err)
	}
	return nil
}

// TxRepo implements dispatchtx.Repository on top of one pgx transaction.
// Get*ForUpdate take row locks with SELECT ... FOR UPDATE.
type TxRepo struct {
	tx pgx.Tx
}

func (r *TxRepo) GetOrderForUpdate(ctx context.Context, id string) (*domain.Order, error) {
	return getOrder(ctx, r.tx, id, true)
}

func (r *TxRepo) SaveOrder(ctx context.Context, o *domain.Order) error {
	return saveOrder(ctx, r.tx, o)
}

func (r *TxRepo) GetProviderForUpdate(ctx context.Context, id int64) (*domain.Provider, error) {
	return getProvider(ctx, r.tx, id, true)
}

func (r *TxRepo) SaveProvider(ctx context.Context, p *domain.Provider) error {
	return saveProvider(ctx, r.tx, p)
}

func (r *TxRepo) GetCourierForUpdate(ctx context.Context, id int64) (*domain.Courier, error) {
	return getCourier(ctx, r.tx, id, true)
}

func (r *TxRepo) SaveCourier(ctx context.Context, c *domain.Courier) error {
	return saveCourier(ctx, r.tx, c)
}

var _ dispatchtx.Repository = (*TxRepo)(nil)
