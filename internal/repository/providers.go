package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"laundry-dispatch/internal/apperr"
	"laundry-dispatch/internal/domain"
)

const providerColumns = `id, name, lat, lon, service_radius_km, max_daily_orders, current_load,
	rating, avg_completion_hours, completed_orders, equipment, status, approved`

func scanProvider(row pgx.Row) (*domain.Provider, error) {
	var (
		p      domain.Provider
		equip  int32
		status string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Location.Lat, &p.Location.Lon, &p.ServiceRadiusKm,
		&p.MaxDailyOrders, &p.CurrentLoad, &p.Rating, &p.AvgCompletionHours, &p.CompletedOrders,
		&equip, &status, &p.Approved); err != nil {
		return nil, err
	}
	p.Equipment = domain.Equipment(equip)
	p.Status = domain.ProviderStatus(status)
	return &p, nil
}

func getProvider(ctx context.Context, q querier, id int64, forUpdate bool) (*domain.Provider, error) {
	sql := `SELECT ` + providerColumns + ` FROM providers WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	p, err := scanProvider(q.QueryRow(ctx, sql, id))
	if err != nil {
		return nil, wrap(fmt.Sprintf("get provider %d", id), err)
	}
	return p, nil
}

func saveProvider(ctx context.Context, q querier, p *domain.Provider) error {
	ct, err := q.Exec(ctx, `
		UPDATE providers
		SET current_load = $2, status = $3, completed_orders = $4
		WHERE id = $1
	`, p.ID, p.CurrentLoad, string(p.Status), p.CompletedOrders)
	if err != nil {
		return wrap(fmt.Sprintf("save provider %d", p.ID), err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("save provider %d: %w", p.ID, apperr.ErrNotFound)
	}
	return nil
}

// ProviderRepo represents provider repository.
type ProviderRepo struct{ db *pgxpool.Pool }

// NewProviderRepo creates a new ProviderRepo.
func NewProviderRepo(db *pgxpool.Pool) *ProviderRepo { return &ProviderRepo{db: db} }

// GetProvider returns provider by its ID.
func (r *ProviderRepo) GetProvider(ctx context.Context, id int64) (*domain.Provider, error) {
	return getProvider(ctx, r.db, id, false)
}

// ListActiveProvidersWithCapacity returns approved ACTIVE providers below capacity.
func (r *ProviderRepo) ListActiveProvidersWithCapacity(ctx context.Context) ([]domain.Provider, error) {
	rows, err := r.db.Query(ctx, `SELECT `+providerColumns+` FROM providers
		WHERE approved AND status = $1 AND current_load < max_daily_orders
		ORDER BY id`, string(domain.ProviderActive))
	if err != nil {
		return nil, wrap("list providers", err)
	}
	defer rows.Close()

	out := make([]domain.Provider, 0)
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, wrap("list providers", err)
		}
		out = append(out, *p)
	}
	return out, wrap("list providers", rows.Err())
}

// CreateProvider inserts a provider and returns its id.
func (r *ProviderRepo) CreateProvider(ctx context.Context, p *domain.Provider) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO providers (name, lat, lon, service_radius_km, max_daily_orders, current_load,
			rating, avg_completion_hours, completed_orders, equipment, status, approved)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`, p.Name, p.Location.Lat, p.Location.Lon, p.ServiceRadiusKm, p.MaxDailyOrders, p.CurrentLoad,
		p.Rating, p.AvgCompletionHours, p.CompletedOrders, int32(p.Equipment), string(p.Status), p.Approved,
	).Scan(&id)
	if err != nil {
		return 0, wrap("create provider", err)
	}
	return id, nil
}
