package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"laundry-dispatch/internal/apperr"
)

// PaymentRepo records payment settlement.
type PaymentRepo struct{ db *pgxpool.Pool }

// NewPaymentRepo creates a new PaymentRepo.
func NewPaymentRepo(db *pgxpool.Pool) *PaymentRepo { return &PaymentRepo{db: db} }

// PaymentSettled reports whether a settlement row exists for the order.
func (r *PaymentRepo) PaymentSettled(ctx context.Context, orderID string) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payments WHERE order_id = $1)`, orderID).Scan(&ok)
	if err != nil {
		return false, wrap("payment settled", err)
	}
	return ok, nil
}

// MarkPaymentSettled inserts the settlement once; later calls are no-ops.
func (r *PaymentRepo) MarkPaymentSettled(ctx context.Context, orderID string, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO payments (order_id, settled_at) VALUES ($1, $2)
		ON CONFLICT (order_id) DO NOTHING
	`, orderID, at)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("order %s: %w", orderID, apperr.ErrNotFound)
		}
		return wrap("mark payment settled", err)
	}
	return nil
}
