package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"laundry-dispatch/internal/domain"
)

// ItemRepo represents the item catalog.
type ItemRepo struct{ db *pgxpool.Pool }

// NewItemRepo creates a new ItemRepo.
func NewItemRepo(db *pgxpool.Pool) *ItemRepo { return &ItemRepo{db: db} }

// LookupItem returns the catalog item by its keys.
func (r *ItemRepo) LookupItem(ctx context.Context, productKey, categoryKey string) (*domain.CatalogItem, error) {
	var (
		it              domain.CatalogItem
		price, discount int64
		kind            string
	)
	err := r.db.QueryRow(ctx, `
		SELECT product_key, category_key, name, normal_price, discount, in_stock, service_kind
		FROM catalog_items
		WHERE product_key = $1 AND category_key = $2
	`, productKey, categoryKey).Scan(&it.ProductKey, &it.CategoryKey, &it.Name, &price, &discount, &it.InStock, &kind)
	if err != nil {
		return nil, wrap(fmt.Sprintf("lookup item %s/%s", productKey, categoryKey), err)
	}
	it.NormalPrice, it.Discount = domain.Money(price), domain.Money(discount)
	it.ServiceKind = domain.ServiceKind(kind)
	return &it, nil
}

// UpsertItem creates or replaces a catalog item.
func (r *ItemRepo) UpsertItem(ctx context.Context, it domain.CatalogItem) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO catalog_items (product_key, category_key, name, normal_price, discount, in_stock, service_kind)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (product_key, category_key) DO UPDATE SET
			name = EXCLUDED.name, normal_price = EXCLUDED.normal_price, discount = EXCLUDED.discount,
			in_stock = EXCLUDED.in_stock, service_kind = EXCLUDED.service_kind
	`, it.ProductKey, it.CategoryKey, it.Name, int64(it.NormalPrice), int64(it.Discount), it.InStock, string(it.ServiceKind))
	return wrap("upsert item", err)
}
