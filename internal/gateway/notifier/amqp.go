package notifier

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"laundry-dispatch/internal/domain"
	"laundry-dispatch/internal/ports/notify"
)

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQP publishes persistent messages to a topic exchange.
// The routing key is "<recipient kind>.<id>".
type AMQP struct {
	ch       publisher
	exchange string
	now      func() time.Time
}

// NewAMQP wraps an open channel.
func NewAMQP(ch publisher, exchange string) *AMQP {
	return &AMQP{ch: ch, exchange: exchange, now: time.Now}
}

// DialAMQP connects, declares the exchange and returns the notifier with its closer.
func DialAMQP(url, exchange string) (*AMQP, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("amqp declare %s: %w", exchange, err)
	}
	closer := func() error {
		_ = ch.Close()
		return conn.Close()
	}
	return NewAMQP(ch, exchange), closer, nil
}

// Notify implements notify.Notifier.
func (a *AMQP) Notify(ctx context.Context, msg notify.Message) error {
	now := a.now()
	body, err := encode(msg, now)
	if err != nil {
		return err
	}
	err = a.ch.PublishWithContext(ctx, a.exchange, recipientKey(msg), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Priority:     priority(msg.Category),
		Timestamp:    now,
		Type:         string(msg.Category),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("amqp notify %s: %w", msg.Category, err)
	}
	return nil
}

func priority(c domain.NotificationCategory) uint8 {
	switch c {
	case domain.NotifyOrderCancelled, domain.NotifyOrderDelayed:
		return 8
	case domain.NotifyCourierAssigned, domain.NotifyOrderOutForDelivery, domain.NotifyOrderDelivered:
		return 5
	default:
		return 1
	}
}
