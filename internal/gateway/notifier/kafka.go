package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"laundry-dispatch/internal/ports/notify"
)

// Kafka publishes notifications to a topic keyed by recipient.
type Kafka struct {
	producer sarama.SyncProducer
	topic    string
	now      func() time.Time
}

// NewKafka wraps an existing producer.
func NewKafka(producer sarama.SyncProducer, topic string) *Kafka {
	return &Kafka{producer: producer, topic: topic, now: time.Now}
}

// NewKafkaProducer dials brokers with acks from all in-sync replicas.
func NewKafkaProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Retry.Max = 0

	p, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return p, nil
}

// Notify implements notify.Notifier.
func (k *Kafka) Notify(ctx context.Context, msg notify.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := encode(msg, k.now())
	if err != nil {
		return err
	}
	_, _, err = k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(recipientKey(msg)),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("category"), Value: []byte(msg.Category)},
		},
	})
	if err != nil {
		return fmt.Errorf("kafka notify %s: %w", msg.Category, err)
	}
	return nil
}
