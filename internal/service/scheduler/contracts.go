package scheduler

import (
	"context"
	"time"

	"laundry-dispatch/internal/domain"
	"laundry-dispatch/internal/service/assignment"
)

type orderStore interface {
	FindPendingRetriable(ctx context.Context, maxAttempts int) ([]domain.Order, error)
	FindReadyForPickup(ctx context.Context) ([]domain.Order, error)
	FindOutForDeliveryOverdue(ctx context.Context, now time.Time) ([]domain.Order, error)
	UpdateOrderAtomic(ctx context.Context, id string, precond func(*domain.Order) bool, mutate func(*domain.Order) error) (*domain.Order, error)
}

type courierStore interface {
	DemoteIdleCouriers(ctx context.Context, cutoff time.Time) ([]int64, error)
}

type assigner interface {
	AssignProvider(ctx context.Context, orderID string, exclude ...int64) (assignment.Result, error)
	AssignCourier(ctx context.Context, orderID string) (assignment.Result, error)
}

type tracker interface {
	SweepStale(now time.Time) []int64
	SetCourierState(courierID int64, status domain.CourierStatus, orderID string)
}

// Locator is the courier geo index; demoted couriers are dropped from it.
type Locator interface {
	Remove(ctx context.Context, courierIDs ...int64) error
}
