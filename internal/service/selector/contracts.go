package selector

import (
	"context"

	"laundry-dispatch/internal/domain"
	"laundry-dispatch/internal/geo"
)

type providerLister interface {
	ListActiveProvidersWithCapacity(ctx context.Context) ([]domain.Provider, error)
}

type courierLister interface {
	ListAvailableCouriersWithLocation(ctx context.Context) ([]domain.Courier, error)
}

// Locator narrows the courier scan to ids near a point.
type Locator interface {
	Nearby(ctx context.Context, p geo.Point, radiusKm float64) ([]int64, error)
}
