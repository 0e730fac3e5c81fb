package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the DDL of the dispatch tables. Statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS providers (
	id                   BIGSERIAL PRIMARY KEY,
	name                 TEXT NOT NULL,
	lat                  DOUBLE PRECISION NOT NULL,
	lon                  DOUBLE PRECISION NOT NULL,
	service_radius_km    DOUBLE PRECISION NOT NULL,
	max_daily_orders     INT NOT NULL,
	current_load         INT NOT NULL DEFAULT 0 CHECK (current_load >= 0),
	rating               DOUBLE PRECISION NOT NULL DEFAULT 0,
	avg_completion_hours DOUBLE PRECISION NOT NULL DEFAULT 24,
	completed_orders     INT NOT NULL DEFAULT 0,
	equipment            INT NOT NULL DEFAULT 0,
	status               TEXT NOT NULL,
	approved             BOOLEAN NOT NULL DEFAULT false
);

CREATE TABLE IF NOT EXISTS couriers (
	id                    BIGSERIAL PRIMARY KEY,
	name                  TEXT NOT NULL,
	phone                 TEXT NOT NULL DEFAULT '',
	vehicle_info          TEXT NOT NULL DEFAULT '',
	lat                   DOUBLE PRECISION,
	lon                   DOUBLE PRECISION,
	last_ping_at          TIMESTAMPTZ,
	base_lat              DOUBLE PRECISION NOT NULL DEFAULT 0,
	base_lon              DOUBLE PRECISION NOT NULL DEFAULT 0,
	service_radius_km     DOUBLE PRECISION NOT NULL,
	rating                DOUBLE PRECISION NOT NULL DEFAULT 0,
	status                TEXT NOT NULL,
	current_order_id      TEXT NOT NULL DEFAULT '',
	successful_deliveries INT NOT NULL DEFAULT 0,
	total_deliveries      INT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS catalog_items (
	product_key  TEXT NOT NULL,
	category_key TEXT NOT NULL,
	name         TEXT NOT NULL DEFAULT '',
	normal_price BIGINT NOT NULL,
	discount     BIGINT NOT NULL DEFAULT 0,
	in_stock     BOOLEAN NOT NULL DEFAULT true,
	service_kind TEXT NOT NULL,
	PRIMARY KEY (product_key, category_key)
);

CREATE TABLE IF NOT EXISTS orders (
	id                    TEXT PRIMARY KEY,
	customer_id           BIGINT NOT NULL,
	provider_id           BIGINT NOT NULL DEFAULT 0,
	courier_id            BIGINT NOT NULL DEFAULT 0,
	preferred_provider_id BIGINT NOT NULL DEFAULT 0,
	pickup                JSONB,
	delivery              JSONB,
	items                 JSONB NOT NULL,
	subtotal              BIGINT NOT NULL,
	delivery_km           DOUBLE PRECISION NOT NULL DEFAULT 0,
	delivery_charge       BIGINT NOT NULL DEFAULT 0,
	grand_total           BIGINT NOT NULL,
	payment_method        TEXT NOT NULL,
	assignment_attempts   INT NOT NULL DEFAULT 0,
	max_radius_km         DOUBLE PRECISION NOT NULL,
	priority              TEXT NOT NULL,
	status                TEXT NOT NULL,
	delay_flagged         BOOLEAN NOT NULL DEFAULT false,
	cancel_reason         TEXT NOT NULL DEFAULT '',
	created_at            TIMESTAMPTZ NOT NULL,
	updated_at            TIMESTAMPTZ NOT NULL,
	assigned_at           TIMESTAMPTZ,
	accepted_at           TIMESTAMPTZ,
	ready_at              TIMESTAMPTZ,
	out_for_delivery_at   TIMESTAMPTZ,
	delivered_at          TIMESTAMPTZ,
	completed_at          TIMESTAMPTZ,
	cancelled_at          TIMESTAMPTZ,
	eta_pickup            TIMESTAMPTZ,
	eta_ready             TIMESTAMPTZ,
	eta_delivery          TIMESTAMPTZ,
	CHECK (grand_total = subtotal + delivery_charge)
);

CREATE INDEX IF NOT EXISTS orders_status_created_idx ON orders (status, created_at);

CREATE TABLE IF NOT EXISTS payments (
	order_id   TEXT PRIMARY KEY REFERENCES orders(id) ON DELETE CASCADE,
	settled_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
	id             BIGSERIAL PRIMARY KEY,
	recipient_kind TEXT NOT NULL,
	recipient_id   BIGINT NOT NULL,
	channel        TEXT NOT NULL,
	category       TEXT NOT NULL,
	payload        JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS notifications_recipient_idx ON notifications (recipient_kind, recipient_id, id DESC);
`

// Migrate applies Schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
