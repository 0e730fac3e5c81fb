package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"laundry-dispatch/internal/apperr"
	"laundry-dispatch/internal/domain"
	"laundry-dispatch/internal/geo"
)

const courierColumns = `id, name, phone, vehicle_info, lat, lon, last_ping_at, base_lat, base_lon,
	service_radius_km, rating, status, current_order_id, successful_deliveries, total_deliveries`

func scanCourier(row pgx.Row) (*domain.Courier, error) {
	var (
		c        domain.Courier
		lat, lon *float64
		status   string
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.VehicleInfo, &lat, &lon, &c.LastPingAt,
		&c.Base.Lat, &c.Base.Lon, &c.ServiceRadiusKm, &c.Rating, &status, &c.CurrentOrderID,
		&c.SuccessfulDeliveries, &c.TotalDeliveries); err != nil {
		return nil, err
	}
	if lat != nil && lon != nil {
		c.Location = &geo.Point{Lat: *lat, Lon: *lon}
	}
	c.Status = domain.CourierStatus(status)
	return &c, nil
}

func getCourier(ctx context.Context, q querier, id int64, forUpdate bool) (*domain.Courier, error) {
	sql := `SELECT ` + courierColumns + ` FROM couriers WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	c, err := scanCourier(q.QueryRow(ctx, sql, id))
	if err != nil {
		return nil, wrap(fmt.Sprintf("get courier %d", id), err)
	}
	return c, nil
}

func saveCourier(ctx context.Context, q querier, c *domain.Courier) error {
	ct, err := q.Exec(ctx, `
		UPDATE couriers
		SET status = $2, current_order_id = $3, successful_deliveries = $4, total_deliveries = $5
		WHERE id = $1
	`, c.ID, string(c.Status), c.CurrentOrderID, c.SuccessfulDeliveries, c.TotalDeliveries)
	if err != nil {
		return wrap(fmt.Sprintf("save courier %d", c.ID), err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("save courier %d: %w", c.ID, apperr.ErrNotFound)
	}
	return nil
}

// CourierRepo represents courier repository.
type CourierRepo struct{ db *pgxpool.Pool }

// NewCourierRepo creates a new CourierRepo.
func NewCourierRepo(db *pgxpool.Pool) *CourierRepo { return &CourierRepo{db: db} }

// GetCourier returns courier by its ID.
func (r *CourierRepo) GetCourier(ctx context.Context, id int64) (*domain.Courier, error) {
	return getCourier(ctx, r.db, id, false)
}

// ListAvailableCouriersWithLocation returns AVAILABLE couriers that pinged at least once.
func (r *CourierRepo) ListAvailableCouriersWithLocation(ctx context.Context) ([]domain.Courier, error) {
	rows, err := r.db.Query(ctx, `SELECT `+courierColumns+` FROM couriers
		WHERE status = $1 AND lat IS NOT NULL AND lon IS NOT NULL
		ORDER BY id`, string(domain.CourierAvailable))
	if err != nil {
		return nil, wrap("list couriers", err)
	}
	defer rows.Close()

	out := make([]domain.Courier, 0)
	for rows.Next() {
		c, err := scanCourier(rows)
		if err != nil {
			return nil, wrap("list couriers", err)
		}
		out = append(out, *c)
	}
	return out, wrap("list couriers", rows.Err())
}

// UpdateCourierLocation records the last known position.
func (r *CourierRepo) UpdateCourierLocation(ctx context.Context, id int64, p geo.Point, at time.Time) error {
	ct, err := r.db.Exec(ctx, `
		UPDATE couriers SET lat = $2, lon = $3, last_ping_at = $4
		WHERE id = $1
	`, id, p.Lat, p.Lon, at)
	if err != nil {
		return wrap(fmt.Sprintf("update courier %d location", id), err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("courier %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// SetCourierStatus moves the courier from one status to another and reports
// whether it was in from. A courier in any other status is left untouched.
func (r *CourierRepo) SetCourierStatus(ctx context.Context, id int64, from, to domain.CourierStatus) (bool, error) {
	ct, err := r.db.Exec(ctx, `UPDATE couriers SET status = $3 WHERE id = $1 AND status = $2`, id, string(from), string(to))
	if err != nil {
		return false, wrap(fmt.Sprintf("update courier %d status", id), err)
	}
	if ct.RowsAffected() > 0 {
		return true, nil
	}

	var exists bool
	err = r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM couriers WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, wrap(fmt.Sprintf("check courier %d", id), err)
	}
	if !exists {
		return false, fmt.Errorf("courier %d: %w", id, apperr.ErrNotFound)
	}
	return false, nil
}

// DemoteIdleCouriers moves idle couriers without a bound order to OFFLINE.
func (r *CourierRepo) DemoteIdleCouriers(ctx context.Context, cutoff time.Time) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE couriers
		SET status = $1
		WHERE status NOT IN ($1, $2)
		  AND current_order_id = ''
		  AND last_ping_at < $3
		RETURNING id
	`, string(domain.CourierOffline), string(domain.CourierSuspended), cutoff)
	if err != nil {
		return nil, wrap("demote couriers", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, wrap("demote couriers", err)
	}
	return ids, nil
}

// CreateCourier inserts a courier and returns its id.
func (r *CourierRepo) CreateCourier(ctx context.Context, c *domain.Courier) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO couriers (name, phone, vehicle_info, base_lat, base_lon, service_radius_km, rating, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, c.Name, c.Phone, c.VehicleInfo, c.Base.Lat, c.Base.Lon, c.ServiceRadiusKm, c.Rating, string(c.Status),
	).Scan(&id)
	if err != nil {
		return 0, wrap("create courier", err)
	}
	return id, nil
}
