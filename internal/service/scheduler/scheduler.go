// Package scheduler runs the periodic maintenance loops of the dispatch core.
package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"laundry-dispatch/internal/apperr"
	"laundry-dispatch/internal/clock"
	"laundry-dispatch/internal/domain"
	"laundry-dispatch/internal/logx"
	"laundry-dispatch/internal/service"
	"laundry-dispatch/internal/service/assignment"
)

// Loop names, also used as metric labels.
const (
	LoopPending    = "pending"
	LoopDemote     = "demote"
	LoopDelay      = "delay"
	LoopTrackingGC = "tracking_gc"
)

// Config holds loop periods and thresholds.
type Config struct {
	PendingPeriod  time.Duration
	DemotePeriod   time.Duration
	DelayPeriod    time.Duration
	StalePeriod    time.Duration
	IdleOfflineTTL time.Duration
	MaxAttempts    int
}

// Metrics are optional loop collectors.
type Metrics struct {
	Duration *prometheus.HistogramVec
	Skipped  *prometheus.CounterVec
}

// Deps wires the scheduler.
type Deps struct {
	Orders    orderStore
	Couriers  courierStore
	Engine    assigner
	Tracking  tracker
	Locator   Locator
	Announcer *service.Announcer
	Clock     clock.Clock
	Logger    logx.Logger
	Metrics   Metrics
}

type loop struct {
	name   string
	period time.Duration
	sweep  func(context.Context) error
	busy   atomic.Bool
}

// Scheduler owns the four loops. Each loop runs at most one sweep at a time;
// a tick that finds the previous sweep still running is skipped.
type Scheduler struct {
	orders    orderStore
	couriers  courierStore
	engine    assigner
	tracking  tracker
	locator   Locator
	announcer *service.Announcer
	clock     clock.Clock
	logger    logx.Logger
	metrics   Metrics
	cfg       Config

	loops   []*loop
	running atomic.Bool
	wg      sync.WaitGroup
}

// New returns a Scheduler.
func New(d Deps, cfg Config) *Scheduler {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.IdleOfflineTTL <= 0 {
		cfg.IdleOfflineTTL = 30 * time.Minute
	}
	if d.Logger == nil {
		d.Logger = logx.Nop()
	}
	s := &Scheduler{
		orders:    d.Orders,
		couriers:  d.Couriers,
		engine:    d.Engine,
		tracking:  d.Tracking,
		locator:   d.Locator,
		announcer: d.Announcer,
		clock:     d.Clock,
		logger:    d.Logger,
		metrics:   d.Metrics,
		cfg:       cfg,
	}
	s.loops = []*loop{
		{name: LoopPending, period: orDefault(cfg.PendingPeriod, 2*time.Minute), sweep: s.SweepPending},
		{name: LoopDemote, period: orDefault(cfg.DemotePeriod, 10*time.Minute), sweep: s.DemoteIdle},
		{name: LoopDelay, period: orDefault(cfg.DelayPeriod, 5*time.Minute), sweep: s.FlagDelays},
		{name: LoopTrackingGC, period: orDefault(cfg.StalePeriod, 5*time.Minute), sweep: s.CollectTracking},
	}
	return s
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Running reports whether Run is active.
func (s *Scheduler) Running() bool { return s.running.Load() }

// Run ticks every loop until ctx is cancelled and waits for in-flight sweeps.
func (s *Scheduler) Run(ctx context.Context) error {
	s.running.Store(true)
	defer s.running.Store(false)

	g, ctx := errgroup.WithContext(ctx)
	for _, l := range s.loops {
		g.Go(func() error {
			ticker := time.NewTicker(l.period)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					s.trigger(ctx, l)
				}
			}
		})
	}
	err := g.Wait()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
	return err
}

// trigger starts one sweep of l unless the previous one is still running.
func (s *Scheduler) trigger(ctx context.Context, l *loop) bool {
	if !l.busy.CompareAndSwap(false, true) {
		if s.metrics.Skipped != nil {
			s.metrics.Skipped.WithLabelValues(l.name).Inc()
		}
		s.logger.Warn("sweep skipped, previous tick still running",
			logx.Event("sweep_skipped"),
			logx.String("loop", l.name),
		)
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer l.busy.Store(false)
		s.runSweep(ctx, l)
	}()
	return true
}

func (s *Scheduler) runSweep(ctx context.Context, l *loop) {
	start := s.clock.Monotonic()
	err := l.sweep(ctx)
	if s.metrics.Duration != nil {
		s.metrics.Duration.WithLabelValues(l.name).Observe((s.clock.Monotonic() - start).Seconds())
	}
	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrCancelled):
		s.logger.Debug("sweep interrupted", logx.String("loop", l.name))
	default:
		s.logger.Error("sweep failed", logx.String("loop", l.name), logx.Err(err))
	}
}

func cancelled(ctx context.Context) error {
	return apperr.FromContext(ctx.Err())
}

// SweepPending retries phase A on every retriable PENDING order, most urgent and oldest
// first, then phase B on every READY_FOR_PICKUP order still without a courier.
func (s *Scheduler) SweepPending(ctx context.Context) error {
	pending, err := s.orders.FindPendingRetriable(ctx, s.cfg.MaxAttempts)
	if err != nil {
		return apperr.FromContext(err)
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].Priority.Rank() > pending[j].Priority.Rank()
	})

	var assigned int
	for i := range pending {
		if err := cancelled(ctx); err != nil {
			return err
		}
		res, err := s.engine.AssignProvider(ctx, pending[i].ID)
		if err != nil {
			if errors.Is(err, apperr.ErrCancelled) {
				return err
			}
			s.logger.Warn("pending sweep: provider assignment failed",
				logx.OrderID(pending[i].ID),
				logx.Err(err),
			)
			continue
		}
		if res.Outcome == assignment.OutcomeAssigned {
			assigned++
		}
	}

	ready, err := s.orders.FindReadyForPickup(ctx)
	if err != nil {
		return apperr.FromContext(err)
	}
	var dispatched int
	for i := range ready {
		if err := cancelled(ctx); err != nil {
			return err
		}
		res, err := s.engine.AssignCourier(ctx, ready[i].ID)
		if err != nil {
			if errors.Is(err, apperr.ErrCancelled) {
				return err
			}
			s.logger.Warn("pending sweep: courier assignment failed",
				logx.OrderID(ready[i].ID),
				logx.Err(err),
			)
			continue
		}
		if res.Outcome == assignment.OutcomeAssigned {
			dispatched++
		}
	}

	if len(pending)+len(ready) > 0 {
		s.logger.Info("pending sweep done",
			logx.Int("pending", len(pending)),
			logx.Int("providers_bound", assigned),
			logx.Int("ready", len(ready)),
			logx.Int("couriers_bound", dispatched),
		)
	}
	return nil
}

// DemoteIdle sets OFFLINE on couriers silent for longer than the idle TTL.
func (s *Scheduler) DemoteIdle(ctx context.Context) error {
	cutoff := s.clock.Now().Add(-s.cfg.IdleOfflineTTL)
	ids, err := s.couriers.DemoteIdleCouriers(ctx, cutoff)
	if err != nil {
		return apperr.FromContext(err)
	}
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		s.tracking.SetCourierState(id, domain.CourierOffline, "")
		s.logger.Info("courier demoted",
			logx.Event("courier_demoted"),
			logx.CourierID(id),
			logx.Time("cutoff", cutoff),
		)
	}
	if s.locator != nil {
		if err := s.locator.Remove(ctx, ids...); err != nil {
			s.logger.Warn("courier index cleanup failed", logx.Int("couriers", len(ids)), logx.Err(err))
		}
	}
	return nil
}

// FlagDelays marks overdue deliveries once and tells the customer.
func (s *Scheduler) FlagDelays(ctx context.Context) error {
	now := s.clock.Now()
	overdue, err := s.orders.FindOutForDeliveryOverdue(ctx, now)
	if err != nil {
		return apperr.FromContext(err)
	}
	for i := range overdue {
		if err := cancelled(ctx); err != nil {
			return err
		}
		o, err := s.orders.UpdateOrderAtomic(ctx, overdue[i].ID,
			func(o *domain.Order) bool {
				return o.Status == domain.OrderOutForDelivery && !o.DelayFlagged
			},
			func(o *domain.Order) error {
				o.DelayFlagged = true
				return nil
			},
		)
		if errors.Is(err, apperr.ErrPreconditionFailed) {
			continue
		}
		if err != nil {
			if errors.Is(apperr.FromContext(err), apperr.ErrCancelled) {
				return apperr.FromContext(err)
			}
			s.logger.Warn("delay flag failed", logx.OrderID(overdue[i].ID), logx.Err(err))
			continue
		}

		extra := map[string]any{}
		if o.ETADelivery != nil {
			extra["eta_delivery"] = o.ETADelivery.Format(time.RFC3339)
			s.logger.Info("delivery delayed",
				logx.Event("delivery_delayed"),
				logx.OrderID(o.ID),
				logx.CourierID(o.CourierID),
				logx.Duration("overdue", now.Sub(*o.ETADelivery)),
			)
		}
		s.announcer.Announce(ctx, service.ToCustomer(o, domain.NotifyOrderDelayed, extra))
	}
	return nil
}

// CollectTracking evicts stale tracking entries.
func (s *Scheduler) CollectTracking(ctx context.Context) error {
	if err := cancelled(ctx); err != nil {
		return err
	}
	s.tracking.SweepStale(s.clock.Now())
	return nil
}
