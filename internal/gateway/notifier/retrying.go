package notifier

import (
	"context"

	"laundry-dispatch/internal/ports/notify"
	"laundry-dispatch/internal/retry"
)

// Retrying retries transient failures of the wrapped notifier.
type Retrying struct {
	next    notify.Notifier
	retrier *retry.Retrier
}

// NewRetrying returns nil when next is nil.
func NewRetrying(next notify.Notifier, retrier *retry.Retrier) *Retrying {
	if next == nil {
		return nil
	}
	return &Retrying{next: next, retrier: retrier}
}

// Notify implements notify.Notifier.
func (r *Retrying) Notify(ctx context.Context, msg notify.Message) error {
	return r.retrier.Do(ctx, "notify "+string(msg.Category), func(ctx context.Context) error {
		return r.next.Notify(ctx, msg)
	})
}
