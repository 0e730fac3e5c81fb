package notifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"laundry-dispatch/internal/logx"
	"laundry-dispatch/internal/ports/notify"
)

// Sink is a named notifier inside a Fanout.
type Sink struct {
	Name     string
	Notifier notify.Notifier
}

// Fanout delivers every message to all sinks in order.
// A failing sink does not stop the others.
type Fanout struct {
	sinks  []Sink
	logger logx.Logger
	sent   *prometheus.CounterVec
}

// NewFanout returns a Fanout. sent may be nil.
func NewFanout(logger logx.Logger, sent *prometheus.CounterVec, sinks ...Sink) *Fanout {
	if logger == nil {
		logger = logx.Nop()
	}
	return &Fanout{sinks: sinks, logger: logger, sent: sent}
}

// Notify implements notify.Notifier. The returned error joins all sink failures.
func (f *Fanout) Notify(ctx context.Context, msg notify.Message) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Notifier.Notify(ctx, msg); err != nil {
			f.logger.Warn("notification sink failed",
				logx.String("sink", s.Name),
				logx.String("category", string(msg.Category)),
				logx.String("recipient", recipientKey(msg)),
				logx.Err(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	result := "sent"
	if len(errs) > 0 {
		result = "failed"
	}
	if f.sent != nil {
		f.sent.WithLabelValues(string(msg.Category), result).Inc()
	}
	return errors.Join(errs...)
}
