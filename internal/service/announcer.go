// Package service holds helpers shared by the dispatch services.
package service

import (
	"context"

	"laundry-dispatch/internal/domain"
	"laundry-dispatch/internal/logx"
	"laundry-dispatch/internal/ports/notify"
)

// Announcer sends best-effort notifications. Failures are logged, never returned.
type Announcer struct {
	notifier notify.Notifier
	logger   logx.Logger
}

// NewAnnouncer returns an Announcer. A nil notifier disables sending.
func NewAnnouncer(n notify.Notifier, logger logx.Logger) *Announcer {
	if logger == nil {
		logger = logx.Nop()
	}
	return &Announcer{notifier: n, logger: logger}
}

// Announce sends msgs in order.
func (a *Announcer) Announce(ctx context.Context, msgs ...notify.Message) {
	if a == nil || a.notifier == nil {
		return
	}
	for _, m := range msgs {
		if err := a.notifier.Notify(ctx, m); err != nil {
			a.logger.Warn("notification failed",
				logx.Event("notify_failed"),
				logx.String("category", string(m.Category)),
				logx.String("recipient_kind", string(m.Recipient.Kind)),
				logx.Int64("recipient_id", m.Recipient.ID),
				logx.Err(err),
			)
		}
	}
}

// OrderMessage addresses an order notification to one party.
// Providers get it in their inbox, everyone else as a push.
func OrderMessage(kind domain.RecipientKind, id int64, cat domain.NotificationCategory, o *domain.Order, extra map[string]any) notify.Message {
	payload := map[string]any{
		"order_id": o.ID,
		"status":   string(o.Status),
	}
	for k, v := range extra {
		payload[k] = v
	}
	ch := domain.ChannelPush
	if kind == domain.RecipientProvider {
		ch = domain.ChannelInbox
	}
	return notify.Message{
		Recipient: domain.Recipient{Kind: kind, ID: id},
		Channel:   ch,
		Category:  cat,
		Payload:   payload,
	}
}

// ToCustomer addresses the order's customer.
func ToCustomer(o *domain.Order, cat domain.NotificationCategory, extra map[string]any) notify.Message {
	return OrderMessage(domain.RecipientCustomer, o.CustomerID, cat, o, extra)
}
