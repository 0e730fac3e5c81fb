package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"laundry-dispatch/internal/ports/store"
)

// Store bundles the Postgres repositories into one store.Store.
type Store struct {
	*OrderRepo
	*ProviderRepo
	*CourierRepo
	*ItemRepo
	*PaymentRepo
	*NotificationRepo
	*TxRunner
}

// NewStore creates every repository over the same pool.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{
		OrderRepo:        NewOrderRepo(db),
		ProviderRepo:     NewProviderRepo(db),
		CourierRepo:      NewCourierRepo(db),
		ItemRepo:         NewItemRepo(db),
		PaymentRepo:      NewPaymentRepo(db),
		NotificationRepo: NewNotificationRepo(db),
		TxRunner:         NewTxRunner(db),
	}
}

var _ store.Store = (*Store)(nil)
