package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"laundry-dispatch/internal/apperr"
	"laundry-dispatch/internal/domain"
)

const orderColumns = `
	id, customer_id, provider_id, courier_id, preferred_provider_id,
	pickup, delivery, items,
	subtotal, delivery_km, delivery_charge, grand_total, payment_method,
	assignment_attempts, max_radius_km, priority, status, delay_flagged, cancel_reason,
	created_at, updated_at, assigned_at, accepted_at, ready_at, out_for_delivery_at,
	delivered_at, completed_at, cancelled_at, eta_pickup, eta_ready, eta_delivery`

func orderArgs(o *domain.Order) []any {
	return []any{
		o.ID, o.CustomerID, o.ProviderID, o.CourierID, o.PreferredProviderID,
		o.Pickup, o.Delivery, o.Items,
		int64(o.Subtotal), o.DeliveryKm, int64(o.DeliveryCharge), int64(o.GrandTotal), string(o.PaymentMethod),
		o.AssignmentAttempts, o.MaxRadiusKm, string(o.Priority), string(o.Status), o.DelayFlagged, o.CancelReason,
		o.CreatedAt, o.UpdatedAt, o.AssignedAt, o.AcceptedAt, o.ReadyAt, o.OutForDeliveryAt,
		o.DeliveredAt, o.CompletedAt, o.CancelledAt, o.ETAPickup, o.ETAReady, o.ETADelivery,
	}
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o                         domain.Order
		subtotal, charge, total   int64
		payment, priority, status string
	)
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.ProviderID, &o.CourierID, &o.PreferredProviderID,
		&o.Pickup, &o.Delivery, &o.Items,
		&subtotal, &o.DeliveryKm, &charge, &total, &payment,
		&o.AssignmentAttempts, &o.MaxRadiusKm, &priority, &status, &o.DelayFlagged, &o.CancelReason,
		&o.CreatedAt, &o.UpdatedAt, &o.AssignedAt, &o.AcceptedAt, &o.ReadyAt, &o.OutForDeliveryAt,
		&o.DeliveredAt, &o.CompletedAt, &o.CancelledAt, &o.ETAPickup, &o.ETAReady, &o.ETADelivery,
	)
	if err != nil {
		return nil, err
	}
	o.Subtotal, o.DeliveryCharge, o.GrandTotal = domain.Money(subtotal), domain.Money(charge), domain.Money(total)
	o.PaymentMethod = domain.PaymentMethod(payment)
	o.Priority = domain.Priority(priority)
	o.Status = domain.OrderStatus(status)
	return &o, nil
}

func collectOrders(rows pgx.Rows) ([]domain.Order, error) {
	defer rows.Close()
	out := make([]domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func getOrder(ctx context.Context, q querier, id string, forUpdate bool) (*domain.Order, error) {
	sql := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	o, err := scanOrder(q.QueryRow(ctx, sql, id))
	if err != nil {
		return nil, wrap(fmt.Sprintf("get order %s", id), err)
	}
	return o, nil
}

func saveOrder(ctx context.Context, q querier, o *domain.Order) error {
	ct, err := q.Exec(ctx, `
		UPDATE orders SET
			customer_id = $2, provider_id = $3, courier_id = $4, preferred_provider_id = $5,
			pickup = $6, delivery = $7, items = $8,
			subtotal = $9, delivery_km = $10, delivery_charge = $11, grand_total = $12, payment_method = $13,
			assignment_attempts = $14, max_radius_km = $15, priority = $16, status = $17,
			delay_flagged = $18, cancel_reason = $19,
			created_at = $20, updated_at = $21, assigned_at = $22, accepted_at = $23, ready_at = $24,
			out_for_delivery_at = $25, delivered_at = $26, completed_at = $27, cancelled_at = $28,
			eta_pickup = $29, eta_ready = $30, eta_delivery = $31
		WHERE id = $1
	`, orderArgs(o)...)
	if err != nil {
		return wrap(fmt.Sprintf("save order %s", o.ID), err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("save order %s: %w", o.ID, apperr.ErrNotFound)
	}
	return nil
}

// OrderRepo represents order repository.
type OrderRepo struct {
	db *pgxpool.Pool
	tx *TxRunner
}

// NewOrderRepo creates a new OrderRepo.
func NewOrderRepo(db *pgxpool.Pool) *OrderRepo {
	return &OrderRepo{db: db, tx: NewTxRunner(db)}
}

// CreateOrder inserts a new order.
func (r *OrderRepo) CreateOrder(ctx context.Context, o *domain.Order) error {
	_, err := r.db.Exec(ctx, `INSERT INTO orders (`+orderColumns+`) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
		$17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31)`,
		orderArgs(o)...)
	return wrap(fmt.Sprintf("create order %s", o.ID), err)
}

// GetOrder returns the order by id.
func (r *OrderRepo) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return getOrder(ctx, r.db, id, false)
}

// UpdateOrderAtomic locks the row with SELECT ... FOR UPDATE, checks precond and saves the mutation.
func (r *OrderRepo) UpdateOrderAtomic(
	ctx context.Context,
	id string,
	precond func(*domain.Order) bool,
	mutate func(*domain.Order) error,
) (*domain.Order, error) {
	var out *domain.Order
	err := r.tx.withPgxTx(ctx, func(tx pgx.Tx) error {
		o, err := getOrder(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if precond != nil && !precond(o) {
			return fmt.Errorf("order %s: %w", id, apperr.ErrPreconditionFailed)
		}
		if err := mutate(o); err != nil {
			return err
		}
		if err := saveOrder(ctx, tx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FindPendingRetriable returns PENDING orders below the attempt cap, oldest first.
func (r *OrderRepo) FindPendingRetriable(ctx context.Context, maxAttempts int) ([]domain.Order, error) {
	rows, err := r.db.Query(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE status = $1 AND assignment_attempts < $2
		ORDER BY created_at, id`, string(domain.OrderPending), maxAttempts)
	if err != nil {
		return nil, wrap("find pending orders", err)
	}
	out, err := collectOrders(rows)
	return out, wrap("find pending orders", err)
}

// FindReadyForPickup returns READY_FOR_PICKUP orders without a courier.
func (r *OrderRepo) FindReadyForPickup(ctx context.Context) ([]domain.Order, error) {
	rows, err := r.db.Query(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE status = $1 AND courier_id = 0
		ORDER BY created_at, id`, string(domain.OrderReadyForPickup))
	if err != nil {
		return nil, wrap("find ready orders", err)
	}
	out, err := collectOrders(rows)
	return out, wrap("find ready orders", err)
}

// FindOutForDeliveryOverdue returns unflagged deliveries whose ETA is before now.
func (r *OrderRepo) FindOutForDeliveryOverdue(ctx context.Context, now time.Time) ([]domain.Order, error) {
	rows, err := r.db.Query(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE status = $1 AND NOT delay_flagged AND eta_delivery < $2
		ORDER BY eta_delivery, id`, string(domain.OrderOutForDelivery), now)
	if err != nil {
		return nil, wrap("find overdue orders", err)
	}
	out, err := collectOrders(rows)
	return out, wrap("find overdue orders", err)
}
