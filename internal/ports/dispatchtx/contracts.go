package dispatchtx

import (
	"context"

	"laundry-dispatch/internal/domain"
)

// Repository is the set of row-locking operations available inside one transaction.
// Get* methods lock the row until commit and return apperr.ErrNotFound for missing rows.
type Repository interface {
	GetOrderForUpdate(ctx context.Context, id string) (*domain.Order, error)
	SaveOrder(ctx context.Context, o *domain.Order) error
	GetProviderForUpdate(ctx context.Context, id int64) (*domain.Provider, error)
	SaveProvider(ctx context.Context, p *domain.Provider) error
	GetCourierForUpdate(ctx context.Context, id int64) (*domain.Courier, error)
	SaveCourier(ctx context.Context, c *domain.Courier) error
}

// Runner is a transaction runner. fn's changes are committed together or not at all.
type Runner interface {
	WithTx(ctx context.Context, fn func(tx Repository) error) error
}
