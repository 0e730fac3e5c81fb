package app

import (
	"context"
	"errors"

	"laundry-dispatch/internal/clock"
	"laundry-dispatch/internal/config"
	"laundry-dispatch/internal/gateway/notifier"
	"laundry-dispatch/internal/logx"
	"laundry-dispatch/internal/metrics"
	"laundry-dispatch/internal/ports/notify"
	"laundry-dispatch/internal/ports/store"
	"laundry-dispatch/internal/retry"
)

var (
	newKafkaProducer = notifier.NewKafkaProducer
	dialAMQP         = notifier.DialAMQP
	dialFCM          = func(ctx context.Context, file string) (notify.Notifier, error) {
		return notifier.DialFCM(ctx, file)
	}
)

// Notifiers is the fan-out of every configured channel.
// The inbox sink is always first.
type Notifiers struct {
	notify.Notifier
	Sinks   []string
	closers []func() error
}

// Close closes producers and connections.
func (n *Notifiers) Close() error {
	var errs []error
	for _, c := range n.closers {
		errs = append(errs, c())
	}
	n.closers = nil
	return errors.Join(errs...)
}

func openNotifiers(ctx context.Context, cfg *config.Config, st store.Store, clk clock.Clock, logger logx.Logger, m *metrics.Dispatch) (*Notifiers, error) {
	retrier := retry.New(retry.Policy{Attempts: cfg.Core.RetryAttempts, Delay: cfg.Core.RetryDelay}, logger, m.Retries)
	n := &Notifiers{}
	var sinks []notifier.Sink
	add := func(name string, next notify.Notifier) {
		sinks = append(sinks, notifier.Sink{Name: name, Notifier: notifier.NewRetrying(next, retrier)})
		n.Sinks = append(n.Sinks, name)
	}

	add("inbox", notifier.NewStore(st, clk.Now))

	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.NotifyTopic != "" {
		producer, err := newKafkaProducer(cfg.Kafka.Brokers)
		if err != nil {
			return nil, err
		}
		n.closers = append(n.closers, producer.Close)
		add("kafka", notifier.NewKafka(producer, cfg.Kafka.NotifyTopic))
	}

	if cfg.AMQP.URL != "" {
		a, closer, err := dialAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			_ = n.Close()
			return nil, err
		}
		n.closers = append(n.closers, closer)
		add("amqp", a)
	}

	if cfg.Firebase.CredentialsFile != "" {
		f, err := dialFCM(ctx, cfg.Firebase.CredentialsFile)
		if err != nil {
			_ = n.Close()
			return nil, err
		}
		add("fcm", f)
	}

	n.Notifier = notifier.NewFanout(logger, m.Notifications, sinks...)
	logger.Info("notifiers configured", logx.Any("sinks", n.Sinks))
	return n, nil
}
