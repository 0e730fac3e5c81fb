package tracking

import (
	"context"
	"time"

	"laundry-dispatch/internal/domain"
	"laundry-dispatch/internal/geo"
)

type courierStore interface {
	GetCourier(ctx context.Context, id int64) (*domain.Courier, error)
	UpdateCourierLocation(ctx context.Context, id int64, p geo.Point, at time.Time) error
	SetCourierStatus(ctx context.Context, id int64, from, to domain.CourierStatus) (bool, error)
}

// Indexer mirrors courier positions into an external geo index.
type Indexer interface {
	Put(ctx context.Context, courierID int64, p geo.Point) error
}

type counter interface {
	Inc()
}

type gauge interface {
	Set(float64)
}
