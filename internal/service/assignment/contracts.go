package assignment

import (
	"context"

	"laundry-dispatch/internal/domain"
	"laundry-dispatch/internal/geo"
	"laundry-dispatch/internal/service/selector"
)

type orderReader interface {
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	UpdateOrderAtomic(ctx context.Context, id string, precond func(*domain.Order) bool, mutate func(*domain.Order) error) (*domain.Order, error)
}

type providerRanker interface {
	Rank(ctx context.Context, req selector.ProviderRequest) ([]selector.ProviderCandidate, error)
}

type courierRanker interface {
	Rank(ctx context.Context, target geo.Point) ([]selector.CourierCandidate, error)
}

// Tracker opens the live track of a delivery once a courier is bound.
type Tracker interface {
	StartDelivery(o *domain.Order, c domain.Courier)
}
