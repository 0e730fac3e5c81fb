// Package notifier holds the outbound channels behind the notify port.
package notifier

import (
	"encoding/json"
	"fmt"
	"time"

	"laundry-dispatch/internal/ports/notify"
)

type recipientDTO struct {
	Kind string `json:"kind"`
	ID   int64  `json:"id"`
}

type envelope struct {
	Recipient recipientDTO   `json:"recipient"`
	Channel   string         `json:"channel"`
	Category  string         `json:"category"`
	Payload   map[string]any `json:"payload,omitempty"`
	SentAt    time.Time      `json:"sent_at"`
}

func encode(msg notify.Message, at time.Time) ([]byte, error) {
	b, err := json.Marshal(envelope{
		Recipient: recipientDTO{Kind: string(msg.Recipient.Kind), ID: msg.Recipient.ID},
		Channel:   string(msg.Channel),
		Category:  string(msg.Category),
		Payload:   msg.Payload,
		SentAt:    at.UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode notification: %w", err)
	}
	return b, nil
}

// recipientKey is the partition/routing key of a recipient, e.g. "customer.12".
func recipientKey(msg notify.Message) string {
	return fmt.Sprintf("%s.%d", msg.Recipient.Kind, msg.Recipient.ID)
}
