package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"laundry-dispatch/internal/domain"
)

// NotificationRepo is the notification inbox.
type NotificationRepo struct{ db *pgxpool.Pool }

// NewNotificationRepo creates a new NotificationRepo.
func NewNotificationRepo(db *pgxpool.Pool) *NotificationRepo { return &NotificationRepo{db: db} }

// SaveNotification inserts n and sets its id.
func (r *NotificationRepo) SaveNotification(ctx context.Context, n *domain.Notification) error {
	payload := n.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO notifications (recipient_kind, recipient_id, channel, category, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, string(n.Recipient.Kind), n.Recipient.ID, string(n.Channel), string(n.Category), payload, n.CreatedAt,
	).Scan(&n.ID)
	return wrap("save notification", err)
}

// ListNotifications returns the newest notifications of the recipient first.
func (r *NotificationRepo) ListNotifications(ctx context.Context, rcpt domain.Recipient, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, recipient_kind, recipient_id, channel, category, payload, created_at
		FROM notifications
		WHERE recipient_kind = $1 AND recipient_id = $2
		ORDER BY id DESC
		LIMIT $3
	`, string(rcpt.Kind), rcpt.ID, limit)
	if err != nil {
		return nil, wrap("list notifications", err)
	}
	defer rows.Close()

	out := make([]domain.Notification, 0)
	for rows.Next() {
		var (
			n                       domain.Notification
			kind, channel, category string
		)
		if err := rows.Scan(&n.ID, &kind, &n.Recipient.ID, &channel, &category, &n.Payload, &n.CreatedAt); err != nil {
			return nil, wrap("list notifications", err)
		}
		n.Recipient.Kind = domain.RecipientKind(kind)
		n.Channel = domain.Channel(channel)
		n.Category = domain.NotificationCategory(category)
		out = append(out, n)
	}
	return out, wrap("list notifications", rows.Err())
}
