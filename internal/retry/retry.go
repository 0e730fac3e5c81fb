// Package retry retries transient repository and notifier failures.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"laundry-dispatch/internal/apperr"
	"laundry-dispatch/internal/logx"
)

type counter interface {
	Inc()
}

// Policy is a linear backoff policy: the n-th retry waits Delay*n.
type Policy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultPolicy is three attempts with 200ms linear backoff.
func DefaultPolicy() Policy {
	return Policy{Attempts: 3, Delay: 200 * time.Millisecond}
}

// Retrier runs operations under a Policy.
type Retrier struct {
	policy  Policy
	logger  logx.Logger
	retries counter
	sleep   func(context.Context, time.Duration) bool
}

// New returns a Retrier. retries may be nil.
func New(p Policy, logger logx.Logger, retries counter) *Retrier {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	if logger == nil {
		logger = logx.Nop()
	}
	return &Retrier{policy: p, logger: logger, retries: retries, sleep: sleepWithContext}
}

// Do calls fn until it succeeds, fails permanently or the attempts run out.
// Exhaustion returns an error wrapping apperr.ErrUnavailable and the last failure.
func (r *Retrier) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= r.policy.Attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return apperr.FromContext(ctx.Err())
		}
		if !IsTransient(err) {
			return err
		}
		if attempt == r.policy.Attempts {
			break
		}

		delay := r.policy.Delay * time.Duration(attempt)
		if r.retries != nil {
			r.retries.Inc()
		}
		r.logger.Warn("transient failure, retrying",
			logx.String("op", op),
			logx.Int("attempt", attempt),
			logx.Duration("delay", delay),
			logx.Err(err),
		)
		if !r.sleep(ctx, delay) {
			return apperr.FromContext(ctx.Err())
		}
	}
	return fmt.Errorf("%s: %w: %w", op, apperr.ErrUnavailable, lastErr)
}

// IsTransient reports whether err is worth retrying: gRPC Unavailable, ResourceExhausted
// and DeadlineExceeded always are; domain errors and cancellation never are; anything
// else is treated as a transient infrastructure failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		switch st.Code() {
		case codes.ResourceExhausted, codes.Unavailable, codes.DeadlineExceeded:
			return true
		default:
			return false
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !apperr.IsDomain(err)
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
