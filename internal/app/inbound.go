package app

import (
	"context"

	"laundry-dispatch/internal/transport/kafka"
)

// inboundRouter routes Kafka messages into the core.
func inboundRouter(core *Core) kafka.Router {
	return kafka.Router{
		Location: core.Registry.PushLocation,
		PaymentSettled: func(ctx context.Context, orderID string) error {
			_, err := core.Lifecycle.ConfirmPayment(ctx, orderID)
			return err
		},
	}
}
