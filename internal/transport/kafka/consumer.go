package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"laundry-dispatch/internal/logx"
)

// HandleFunc processes a single inbound message.
type HandleFunc func(context.Context, MessageDTO) error

var newConsumerGroup = sarama.NewConsumerGroup

// ConsumerConfig selects the group and topic the consumer joins.
type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Topic   string
	// Backoff between failed Consume rounds. Defaults to one second.
	Backoff time.Duration
}

func (c ConsumerConfig) enabled() bool {
	return len(c.Brokers) > 0 && strings.TrimSpace(c.Topic) != "" && strings.TrimSpace(c.GroupID) != ""
}

// Consumer reads courier pings and payment events from one topic.
type Consumer struct {
	group   sarama.ConsumerGroup
	topic   string
	backoff time.Duration
	handler HandleFunc
	logger  logx.Logger
}

// NewConsumer joins the consumer group. A nil consumer and nil error mean
// Kafka is not configured.
func NewConsumer(logger logx.Logger, cfg ConsumerConfig, h HandleFunc) (*Consumer, error) {
	if !cfg.enabled() {
		return nil, nil
	}
	if logger == nil {
		logger = logx.Nop()
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}

	sc := sarama.NewConfig()
	sc.Consumer.Offsets.Initial = sarama.OffsetOldest

	group, err := newConsumerGroup(cfg.Brokers, cfg.GroupID, sc)
	if err != nil {
		return nil, err
	}
	return &Consumer{
		group:   group,
		topic:   cfg.Topic,
		backoff: cfg.Backoff,
		handler: h,
		logger:  logger.With(logx.String("topic", cfg.Topic)),
	}, nil
}

// Run joins consume rounds until ctx is done. A failed round is logged and
// retried after the backoff.
func (c *Consumer) Run(ctx context.Context) error {
	if c == nil {
		return nil
	}
	topics := []string{c.topic}
	for ctx.Err() == nil {
		err := c.group.Consume(ctx, topics, c)
		if err == nil || ctx.Err() != nil {
			continue
		}
		c.logger.Error("kafka consume round failed", logx.Err(err))
		t := time.NewTimer(c.backoff)
		select {
		case <-ctx.Done():
			t.Stop()
		case <-t.C:
		}
	}
	return ctx.Err()
}

// Close leaves the consumer group.
func (c *Consumer) Close() error {
	if c == nil {
		return nil
	}
	return c.group.Close()
}

// Setup is part of sarama.ConsumerGroupHandler.
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup is part of sarama.ConsumerGroupHandler.
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim commits every message it is done with. A transient handler
// failure ends the claim without committing, so the message comes back
// after the rebalance.
func (c *Consumer) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		if err := c.process(sess.Context(), msg); err != nil {
			return err
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}

// process returns an error only when the message should be redelivered.
func (c *Consumer) process(ctx context.Context, msg *sarama.ConsumerMessage) error {
	log := c.logger.With(logx.Int64("offset", msg.Offset))

	var m MessageDTO
	if err := json.Unmarshal(msg.Value, &m); err != nil {
		log.Warn("kafka message dropped: bad json", logx.Err(err))
		return nil
	}
	if err := m.Validate(); err != nil {
		log.Warn("kafka message dropped: invalid", logx.Err(err))
		return nil
	}

	err := c.handler(ctx, m)
	var perm PermanentError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &perm):
		log.Warn("kafka message dropped: rejected", logx.String("type", m.Type), logx.Err(err))
		return nil
	default:
		log.Error("kafka message deferred", logx.String("type", m.Type), logx.Err(err))
		return err
	}
}
