//go:generate mockgen -source=contracts.go -destination=notify_mock.go -package=notify

package notify

import (
	"context"

	"laundry-dispatch/internal/domain"
)

// Message is one outbound user-facing message.
type Message struct {
	Recipient domain.Recipient
	Channel   domain.Channel
	Category  domain.NotificationCategory
	Payload   map[string]any
}

// Notifier dispatches messages to an external channel.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}
