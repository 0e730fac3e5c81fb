package lifecycle

import (
	"context"
	"time"

	"laundry-dispatch/internal/domain"
	"laundry-dispatch/internal/service/assignment"
)

type orderReader interface {
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
}

type payments interface {
	PaymentSettled(ctx context.Context, orderID string) (bool, error)
	MarkPaymentSettled(ctx context.Context, orderID string, at time.Time) error
}

type assigner interface {
	AssignProvider(ctx context.Context, orderID string, exclude ...int64) (assignment.Result, error)
	AssignCourier(ctx context.Context, orderID string) (assignment.Result, error)
}

type tracker interface {
	EndDelivery(o *domain.Order, delivered bool)
	SetCourierState(courierID int64, status domain.CourierStatus, orderID string)
}

type providerReader interface {
	GetProvider(ctx context.Context, id int64) (*domain.Provider, error)
}
