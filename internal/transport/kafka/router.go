package kafka

import (
	"context"
	"errors"
	"strings"

	"laundry-dispatch/internal/apperr"
	"laundry-dispatch/internal/service/tracking"
)

// Router dispatches validated messages to the core. Nil handlers reject their type.
type Router struct {
	Location       func(context.Context, tracking.Ping) error
	PaymentSettled func(ctx context.Context, orderID string) error
}

// Handle implements HandleFunc. Domain failures are permanent: redelivery cannot fix them.
func (r Router) Handle(ctx context.Context, m MessageDTO) error {
	var err error
	switch strings.TrimSpace(m.Type) {
	case TypeCourierLocation:
		if r.Location == nil {
			return Permanent(errors.New("courier_location is not routed"))
		}
		err = r.Location(ctx, ToPing(m))
	case TypePaymentSettled:
		if r.PaymentSettled == nil {
			return Permanent(errors.New("payment_settled is not routed"))
		}
		err = r.PaymentSettled(ctx, strings.TrimSpace(m.OrderID))
	default:
		return Permanent(m.Validate())
	}
	if err != nil && apperr.IsDomain(err) && !errors.Is(err, apperr.ErrUnavailable) && !errors.Is(err, apperr.ErrCancelled) {
		return Permanent(err)
	}
	return err
}
