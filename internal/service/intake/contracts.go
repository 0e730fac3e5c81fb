package intake

import (
	"context"

	"laundry-dispatch/internal/domain"
	"laundry-dispatch/internal/service/assignment"
)

type orderCreator interface {
	CreateOrder(ctx context.Context, o *domain.Order) error
}

type catalog interface {
	LookupItem(ctx context.Context, productKey, categoryKey string) (*domain.CatalogItem, error)
}

type assigner interface {
	AssignProvider(ctx context.Context, orderID string, exclude ...int64) (assignment.Result, error)
}
