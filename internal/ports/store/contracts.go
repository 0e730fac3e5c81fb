// Package store declares the repository ports of the dispatch core.
// Implementations live under internal/repository.
package store

import (
	"context"
	"time"

	"laundry-dispatch/internal/domain"
	"laundry-dispatch/internal/geo"
	"laundry-dispatch/internal/ports/dispatchtx"
)

// Orders reads and writes orders.
type Orders interface {
	CreateOrder(ctx context.Context, o *domain.Order) error
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	// UpdateOrderAtomic locks the order, checks precond and applies mutate in one step.
	// It returns apperr.ErrPreconditionFailed when precond rejects the current row.
	UpdateOrderAtomic(ctx context.Context, id string, precond func(*domain.Order) bool, mutate func(*domain.Order) error) (*domain.Order, error)
	FindPendingRetriable(ctx context.Context, maxAttempts int) ([]domain.Order, error)
	FindReadyForPickup(ctx context.Context) ([]domain.Order, error)
	FindOutForDeliveryOverdue(ctx context.Context, now time.Time) ([]domain.Order, error)
}

// Providers reads providers. Writes go through dispatchtx.
type Providers interface {
	GetProvider(ctx context.Context, id int64) (*domain.Provider, error)
	ListActiveProvidersWithCapacity(ctx context.Context) ([]domain.Provider, error)
}

// Couriers reads couriers and records location and status changes.
type Couriers interface {
	GetCourier(ctx context.Context, id int64) (*domain.Courier, error)
	ListAvailableCouriersWithLocation(ctx context.Context) ([]domain.Courier, error)
	UpdateCourierLocation(ctx context.Context, id int64, p geo.Point, at time.Time) error
	// SetCourierStatus is a compare-and-set: it reports false and changes nothing
	// when the courier is not in from.
	SetCourierStatus(ctx context.Context, id int64, from, to domain.CourierStatus) (bool, error)
	// DemoteIdleCouriers sets OFFLINE on couriers without a bound order whose last ping
	// is older than cutoff, and returns their ids. Couriers that never pinged are skipped.
	DemoteIdleCouriers(ctx context.Context, cutoff time.Time) ([]int64, error)
}

// Items is the item catalog.
type Items interface {
	LookupItem(ctx context.Context, productKey, categoryKey string) (*domain.CatalogItem, error)
}

// Payments observes payment settlement.
type Payments interface {
	PaymentSettled(ctx context.Context, orderID string) (bool, error)
	MarkPaymentSettled(ctx context.Context, orderID string, at time.Time) error
}

// Notifications is the notification inbox.
type Notifications interface {
	SaveNotification(ctx context.Context, n *domain.Notification) error
	ListNotifications(ctx context.Context, r domain.Recipient, limit int) ([]domain.Notification, error)
}

// Store is the full repository surface.
type Store interface {
	Orders
	Providers
	Couriers
	Items
	Payments
	Notifications
	dispatchtx.Runner
}
