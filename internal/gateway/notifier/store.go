package notifier

import (
	"context"
	"time"

	"laundry-dispatch/internal/domain"
	"laundry-dispatch/internal/ports/notify"
)

type inbox interface {
	SaveNotification(ctx context.Context, n *domain.Notification) error
}

// Store writes every message to the notification inbox.
type Store struct {
	inbox inbox
	now   func() time.Time
}

// NewStore returns a Store. now defaults to time.Now.
func NewStore(inbox inbox, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{inbox: inbox, now: now}
}

// Notify implements notify.Notifier.
func (s *Store) Notify(ctx context.Context, msg notify.Message) error {
	return s.inbox.SaveNotification(ctx, &domain.Notification{
		Recipient: msg.Recipient,
		Channel:   msg.Channel,
		Category:  msg.Category,
		Payload:   msg.Payload,
		CreatedAt: s.now().UTC(),
	})
}
