// Package lifecycle applies provider, courier, payment and cancel actions to orders.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"laundry-dispatch/internal/apperr"
	"laundry-dispatch/internal/clock"
	"laundry-dispatch/internal/domain"
	"laundry-dispatch/internal/logx"
	"laundry-dispatch/internal/ports/dispatchtx"
	"laundry-dispatch/internal/ports/notify"
	"laundry-dispatch/internal/retry"
	"laundry-dispatch/internal/service"
)

// Deps wires the service.
type Deps struct {
	Orders      orderReader
	Providers   providerReader
	Payments    payments
	Tx          dispatchtx.Runner
	Engine      assigner
	Tracker     tracker
	Announcer   *service.Announcer
	Retrier     *retry.Retrier
	Clock       clock.Clock
	Logger      logx.Logger
	Transitions *prometheus.CounterVec
}

// Config holds service tunables.
type Config struct {
	MaxAttempts      int
	OperationTimeout time.Duration
}

// Service drives orders through the state machine with their side effects.
type Service struct {
	orders      orderReader
	providers   providerReader
	payments    payments
	tx          dispatchtx.Runner
	engine      assigner
	tracker     tracker
	announcer   *service.Announcer
	retrier     *retry.Retrier
	clock       clock.Clock
	logger      logx.Logger
	transitions *prometheus.CounterVec
	cfg         Config
}

// New returns a Service.
func New(d Deps, cfg Config) *Service {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 3 * time.Second
	}
	if d.Logger == nil {
		d.Logger = logx.Nop()
	}
	if d.Retrier == nil {
		d.Retrier = retry.New(retry.DefaultPolicy(), d.Logger, nil)
	}
	return &Service{
		orders:      d.Orders,
		providers:   d.Providers,
		payments:    d.Payments,
		tx:          d.Tx,
		engine:      d.Engine,
		tracker:     d.Tracker,
		announcer:   d.Announcer,
		retrier:     d.Retrier,
		clock:       d.Clock,
		logger:      d.Logger,
		transitions: d.Transitions,
		cfg:         cfg,
	}
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.OperationTimeout)
}

// step is the state of one transaction over an order.
type step struct {
	tx    dispatchtx.Repository
	o     *domain.Order
	now   time.Time
	moved []domain.OrderStatus
}

func (st *step) advance(to domain.OrderStatus) error {
	if err := st.o.Advance(to, st.now); err != nil {
		return err
	}
	st.moved = append(st.moved, to)
	return nil
}

// mutate locks the order, runs fn and commits everything fn saved together with the order.
func (s *Service) mutate(ctx context.Context, orderID string, fn func(ctx context.Context, st *step) error) (*domain.Order, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		out  *domain.Order
		from domain.OrderStatus
		path []domain.OrderStatus
	)
	err := s.retrier.Do(ctx, "order "+orderID, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, func(tx dispatchtx.Repository) error {
			o, err := tx.GetOrderForUpdate(ctx, orderID)
			if err != nil {
				return err
			}
			st := &step{tx: tx, o: o, now: s.clock.Now()}
			from = o.Status
			if err := fn(ctx, st); err != nil {
				return err
			}
			if err := tx.SaveOrder(ctx, o); err != nil {
				return err
			}
			out, path = o, st.moved
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	for _, to := range path {
		s.logger.Info("order transition",
			logx.Event("order_transition"),
			logx.OrderID(out.ID),
			logx.String("from", string(from)),
			logx.String("to", string(to)),
		)
		if s.transitions != nil {
			s.transitions.WithLabelValues(string(to)).Inc()
		}
		from = to
	}
	return out, nil
}

// releaseProvider gives one unit of load back and reopens a provider closed for capacity.
func releaseProvider(ctx context.Context, tx dispatchtx.Repository, providerID int64) error {
	p, err := tx.GetProviderForUpdate(ctx, providerID)
	if err != nil {
		return err
	}
	if p.CurrentLoad > 0 {
		p.CurrentLoad--
	}
	if p.Status == domain.ProviderBusy && !p.Full() {
		p.Status = domain.ProviderActive
	}
	return tx.SaveProvider(ctx, p)
}

// releaseCourier frees a courier still holding the order and reports whether it did.
func releaseCourier(ctx context.Context, tx dispatchtx.Repository, courierID int64, orderID string, delivered bool) (bool, error) {
	c, err := tx.GetCourierForUpdate(ctx, courierID)
	if err != nil {
		return false, err
	}
	if c.CurrentOrderID != orderID {
		return false, nil
	}
	c.Status = domain.CourierAvailable
	c.CurrentOrderID = ""
	if delivered {
		c.SuccessfulDeliveries++
	}
	return true, tx.SaveCourier(ctx, c)
}

// Order returns the current order.
func (s *Service) Order(ctx context.Context, id string) (*domain.Order, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var o *domain.Order
	err := s.retrier.Do(ctx, "get order", func(ctx context.Context) error {
		var err error
		o, err = s.orders.GetOrder(ctx, id)
		return err
	})
	return o, err
}

// Accept moves ASSIGNED -> ACCEPTED on behalf of the bound provider.
func (s *Service) Accept(ctx context.Context, orderID string, providerID int64) (*domain.Order, error) {
	o, err := s.mutate(ctx, orderID, func(_ context.Context, st *step) error {
		if err := requireProvider(st.o, providerID); err != nil {
			return err
		}
		return st.advance(domain.OrderAccepted)
	})
	if err != nil {
		return nil, err
	}

	extra := map[string]any{"provider_id": providerID}
	if p, err := s.providers.GetProvider(ctx, providerID); err == nil {
		extra["provider_name"] = p.Name
	}
	s.announcer.Announce(ctx, service.ToCustomer(o, domain.NotifyOrderAccepted, extra))
	return o, nil
}

// Reject releases the provider and re-enters phase A without it, unless the attempts ran out.
func (s *Service) Reject(ctx context.Context, orderID string, providerID int64) (*domain.Order, error) {
	o, err := s.mutate(ctx, orderID, func(ctx context.Context, st *step) error {
		if err := requireProvider(st.o, providerID); err != nil {
			return err
		}
		if err := st.advance(domain.OrderRejected); err != nil {
			return err
		}
		if err := releaseProvider(ctx, st.tx, providerID); err != nil {
			return err
		}
		st.o.AssignmentAttempts++
		return st.advance(domain.OrderPending)
	})
	if err != nil {
		return nil, err
	}
	if o.AssignmentAttempts >= s.cfg.MaxAttempts {
		return o, nil
	}

	res, err := s.engine.AssignProvider(ctx, o.ID, providerID)
	if err != nil {
		s.logger.Warn("reassignment after rejection failed, left for the sweep",
			logx.OrderID(o.ID),
			logx.Err(err),
		)
		return o, nil
	}
	return res.Order, nil
}

// Start moves ACCEPTED -> IN_PROGRESS.
func (s *Service) Start(ctx context.Context, orderID string, providerID int64) (*domain.Order, error) {
	return s.mutate(ctx, orderID, func(_ context.Context, st *step) error {
		if err := requireProvider(st.o, providerID); err != nil {
			return err
		}
		return st.advance(domain.OrderInProgress)
	})
}

// MarkReady moves IN_PROGRESS -> READY_FOR_PICKUP and runs phase B.
// A phase B failure leaves the order ready for the sweep.
func (s *Service) MarkReady(ctx context.Context, orderID string, providerID int64) (*domain.Order, error) {
	o, err := s.mutate(ctx, orderID, func(_ context.Context, st *step) error {
		if err := requireProvider(st.o, providerID); err != nil {
			return err
		}
		return st.advance(domain.OrderReadyForPickup)
	})
	if err != nil {
		return nil, err
	}
	s.announcer.Announce(ctx, service.ToCustomer(o, domain.NotifyOrderReady, nil))

	res, err := s.engine.AssignCourier(ctx, o.ID)
	if err != nil {
		s.logger.Warn("courier assignment failed, left for the sweep",
			logx.OrderID(o.ID),
			logx.Err(err),
		)
		return o, nil
	}
	return res.Order, nil
}

// ConfirmPickup records that the bound courier collected the laundry: BUSY -> ON_DELIVERY.
func (s *Service) ConfirmPickup(ctx context.Context, orderID string, courierID int64) (*domain.Order, error) {
	o, err := s.mutate(ctx, orderID, func(ctx context.Context, st *step) error {
		if err := requireCourier(st.o, courierID); err != nil {
			return err
		}
		if st.o.Status != domain.OrderOutForDelivery {
			return fmt.Errorf("%w: pickup in %s", apperr.ErrIllegalTransition, st.o.Status)
		}
		c, err := st.tx.GetCourierForUpdate(ctx, courierID)
		if err != nil {
			return err
		}
		if c.Status != domain.CourierBusy || c.CurrentOrderID != st.o.ID {
			return fmt.Errorf("courier %d is %s: %w", c.ID, c.Status, apperr.ErrConflict)
		}
		c.Status = domain.CourierOnDelivery
		return st.tx.SaveCourier(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	s.tracker.SetCourierState(courierID, domain.CourierOnDelivery, o.ID)
	return o, nil
}

// Deliver moves OUT_FOR_DELIVERY -> DELIVERED and frees the courier.
// An order already paid for completes right after. Settlement is read after
// the delivery commit, so a payment landing concurrently is never missed.
func (s *Service) Deliver(ctx context.Context, orderID string, courierID int64) (*domain.Order, error) {
	o, err := s.mutate(ctx, orderID, func(ctx context.Context, st *step) error {
		if err := requireCourier(st.o, courierID); err != nil {
			return err
		}
		if err := st.advance(domain.OrderDelivered); err != nil {
			return err
		}
		_, err := releaseCourier(ctx, st.tx, courierID, st.o.ID, true)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.tracker.SetCourierState(courierID, domain.CourierAvailable, "")
	s.tracker.EndDelivery(o, true)

	completed := false
	settled, err := s.settled(ctx, orderID)
	if err == nil && settled {
		var done *domain.Order
		done, completed, err = s.completeDelivered(ctx, orderID)
		if err == nil {
			o = done
		}
	}
	if err != nil {
		s.logger.Error("delivered order not completed", logx.OrderID(orderID), logx.Err(err))
	}

	s.announcer.Announce(ctx,
		service.ToCustomer(o, domain.NotifyOrderDelivered, map[string]any{"completed": completed}),
	)
	return o, nil
}

// ConfirmPayment records settlement and completes a DELIVERED order.
func (s *Service) ConfirmPayment(ctx context.Context, orderID string) (*domain.Order, error) {
	markCtx, cancel := s.withTimeout(ctx)
	err := s.retrier.Do(markCtx, "mark payment", func(ctx context.Context) error {
		return s.payments.MarkPaymentSettled(ctx, orderID, s.clock.Now())
	})
	cancel()
	if err != nil {
		return nil, err
	}

	o, completed, err := s.completeDelivered(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if completed {
		s.announceCompleted(ctx, o)
	}
	return o, nil
}

// ConfirmCash completes a DELIVERED cash-on-delivery order on the courier's receipt.
func (s *Service) ConfirmCash(ctx context.Context, orderID string, courierID int64) (*domain.Order, error) {
	o, err := s.mutate(ctx, orderID, func(ctx context.Context, st *step) error {
		if err := requireCourier(st.o, courierID); err != nil {
			return err
		}
		if st.o.PaymentMethod != domain.PaymentCashOnDelivery {
			return fmt.Errorf("order %s is paid %s: %w", st.o.ID, st.o.PaymentMethod, apperr.ErrInvalid)
		}
		return complete(ctx, st)
	})
	if err != nil {
		return nil, err
	}
	s.announceCompleted(ctx, o)

	err = s.retrier.Do(ctx, "mark payment", func(ctx context.Context) error {
		return s.payments.MarkPaymentSettled(ctx, orderID, *o.CompletedAt)
	})
	if err != nil {
		s.logger.Error("cash receipt not recorded", logx.OrderID(orderID), logx.Err(err))
	}
	return o, nil
}

// completeDelivered completes the order if it is DELIVERED and reports whether
// this call made the move. Concurrent callers are serialized by the row lock.
func (s *Service) completeDelivered(ctx context.Context, orderID string) (*domain.Order, bool, error) {
	var completed bool
	o, err := s.mutate(ctx, orderID, func(ctx context.Context, st *step) error {
		completed = false
		if st.o.Status != domain.OrderDelivered {
			return nil
		}
		if err := complete(ctx, st); err != nil {
			return err
		}
		completed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return o, completed, nil
}

func (s *Service) announceCompleted(ctx context.Context, o *domain.Order) {
	s.announcer.Announce(ctx,
		service.ToCustomer(o, domain.NotifyOrderDelivered, map[string]any{"completed": true}),
	)
}

func complete(ctx context.Context, st *step) error {
	if err := st.advance(domain.OrderCompleted); err != nil {
		return err
	}
	return releaseProvider(ctx, st.tx, st.o.ProviderID)
}

func (s *Service) settled(ctx context.Context, orderID string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var ok bool
	err := s.retrier.Do(ctx, "payment settled", func(ctx context.Context) error {
		var err error
		ok, err = s.payments.PaymentSettled(ctx, orderID)
		return err
	})
	return ok, err
}

// Cancel moves any non-terminal order to CANCELLED and releases its provider and courier.
func (s *Service) Cancel(ctx context.Context, orderID string, actor Actor, reason string) (*domain.Order, error) {
	var courierFreed bool
	o, err := s.mutate(ctx, orderID, func(ctx context.Context, st *step) error {
		if err := mayCancel(st.o, actor); err != nil {
			return err
		}
		holdsLoad := st.o.HoldsProviderLoad()
		if err := st.advance(domain.OrderCancelled); err != nil {
			return err
		}
		st.o.CancelReason = reason
		if holdsLoad {
			if err := releaseProvider(ctx, st.tx, st.o.ProviderID); err != nil {
				return err
			}
		}
		if st.o.HasCourier() {
			freed, err := releaseCourier(ctx, st.tx, st.o.CourierID, st.o.ID, false)
			if err != nil {
				return err
			}
			courierFreed = freed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if o.HasCourier() {
		s.tracker.EndDelivery(o, false)
		if courierFreed {
			s.tracker.SetCourierState(o.CourierID, domain.CourierAvailable, "")
		}
	}

	extra := map[string]any{"reason": reason, "cancelled_by": string(actor.Role)}
	msgs := []notify.Message{service.ToCustomer(o, domain.NotifyOrderCancelled, extra)}
	if o.HasProvider() {
		msgs = append(msgs, service.OrderMessage(domain.RecipientProvider, o.ProviderID, domain.NotifyOrderCancelled, o, extra))
	}
	if courierFreed {
		msgs = append(msgs, service.OrderMessage(domain.RecipientCourier, o.CourierID, domain.NotifyOrderCancelled, o, extra))
	}
	s.announcer.Announce(ctx, msgs...)
	return o, nil
}
