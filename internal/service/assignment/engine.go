// Package assignment binds orders to providers (phase A) and couriers (phase B).
package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"laundry-dispatch/internal/apperr"
	"laundry-dispatch/internal/clock"
	"laundry-dispatch/internal/domain"
	"laundry-dispatch/internal/geo"
	"laundry-dispatch/internal/logx"
	"laundry-dispatch/internal/ports/dispatchtx"
	"laundry-dispatch/internal/retry"
	"laundry-dispatch/internal/service"
	"laundry-dispatch/internal/service/selector"
)

const (
	phaseProvider = "provider"
	phaseCourier  = "courier"
)

// Config holds engine tunables.
type Config struct {
	MaxAttempts           int
	RadiusIncrementKm     float64
	CourierMinutesPerKm   float64
	CourierHandoffMinutes float64
	// CourierSpeedKmh turns the courier-to-provider distance into eta_pickup.
	CourierSpeedKmh  float64
	OperationTimeout time.Duration
}

// Metrics are optional engine collectors.
type Metrics struct {
	Assignments   *prometheus.CounterVec
	BindConflicts *prometheus.CounterVec
	Transitions   *prometheus.CounterVec
}

// Deps wires the engine.
type Deps struct {
	Orders    orderReader
	Tx        dispatchtx.Runner
	Providers providerRanker
	Couriers  courierRanker
	Tracker   Tracker
	Announcer *service.Announcer
	Retrier   *retry.Retrier
	Clock     clock.Clock
	Logger    logx.Logger
	Metrics   Metrics
}

// Engine runs both assignment phases.
type Engine struct {
	orders    orderReader
	tx        dispatchtx.Runner
	providers providerRanker
	couriers  courierRanker
	tracker   Tracker
	announcer *service.Announcer
	retrier   *retry.Retrier
	clock     clock.Clock
	logger    logx.Logger
	metrics   Metrics
	cfg       Config
}

// New returns an Engine.
func New(d Deps, cfg Config) *Engine {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 3 * time.Second
	}
	if cfg.CourierSpeedKmh <= 0 {
		cfg.CourierSpeedKmh = 30
	}
	if d.Logger == nil {
		d.Logger = logx.Nop()
	}
	if d.Retrier == nil {
		d.Retrier = retry.New(retry.DefaultPolicy(), d.Logger, nil)
	}
	return &Engine{
		orders:    d.Orders,
		tx:        d.Tx,
		providers: d.Providers,
		couriers:  d.Couriers,
		tracker:   d.Tracker,
		announcer: d.Announcer,
		retrier:   d.Retrier,
		clock:     d.Clock,
		logger:    d.Logger,
		metrics:   d.Metrics,
		cfg:       cfg,
	}
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.cfg.OperationTimeout)
}

// AssignProvider runs phase A on a PENDING order. Every pass without a binding
// spends one attempt and widens the radius; passes repeat until an attempt binds
// or the attempts run out. Providers in exclude are never chosen.
func (e *Engine) AssignProvider(ctx context.Context, orderID string, exclude ...int64) (Result, error) {
	for {
		res, done, err := e.providerPass(ctx, orderID, exclude)
		if err != nil {
			return Result{}, err
		}
		if done {
			e.count(phaseProvider, res.Outcome)
			return res, nil
		}
	}
}

func (e *Engine) providerPass(ctx context.Context, orderID string, exclude []int64) (Result, bool, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	o, err := e.getOrder(ctx, orderID)
	if err != nil {
		return Result{}, true, err
	}
	if o.Status != domain.OrderPending || o.HasProvider() || o.AssignmentAttempts >= e.cfg.MaxAttempts {
		return Result{Outcome: OutcomeSkipped, Order: o}, true, nil
	}
	pickup, ok := o.SourcePoint()
	if !ok {
		return Result{}, true, fmt.Errorf("order %s has no location: %w", o.ID, apperr.ErrInvalid)
	}

	var ranked []selector.ProviderCandidate
	err = e.retrier.Do(ctx, "rank providers", func(ctx context.Context) error {
		var err error
		ranked, err = e.providers.Rank(ctx, selector.ProviderRequest{
			Pickup:              pickup,
			MaxRadiusKm:         o.MaxRadiusKm,
			RequiresMachine:     o.RequiresMachine(),
			PreferredProviderID: o.PreferredProviderID,
			Exclude:             exclude,
		})
		return err
	})
	if err != nil {
		return Result{}, true, err
	}

	for _, cand := range ranked {
		bound, p, err := e.bindProvider(ctx, o.ID, cand.Provider.ID)
		switch {
		case err == nil:
			e.providerBound(ctx, bound, p, cand)
			return Result{Outcome: OutcomeAssigned, Order: bound, DistanceKm: cand.DistanceKm}, true, nil
		case errors.Is(err, apperr.ErrCapacityLost):
			e.conflict(phaseProvider)
			e.logger.Info("provider capacity lost, trying next candidate",
				logx.OrderID(o.ID),
				logx.Int64("provider_id", cand.Provider.ID),
			)
		case errors.Is(err, apperr.ErrPreconditionFailed):
			cur, gerr := e.getOrder(ctx, orderID)
			if gerr != nil {
				return Result{}, true, gerr
			}
			return Result{Outcome: OutcomeSkipped, Order: cur}, true, nil
		default:
			return Result{}, true, err
		}
	}

	return e.providerMiss(ctx, o, len(ranked))
}

func (e *Engine) providerMiss(ctx context.Context, seen *domain.Order, candidates int) (Result, bool, error) {
	now := e.clock.Now()
	var updated *domain.Order
	err := e.retrier.Do(ctx, "record provider miss", func(ctx context.Context) error {
		var err error
		updated, err = e.orders.UpdateOrderAtomic(ctx, seen.ID,
			func(o *domain.Order) bool {
				return o.Status == domain.OrderPending && !o.HasProvider() &&
					o.AssignmentAttempts == seen.AssignmentAttempts
			},
			func(o *domain.Order) error {
				o.AssignmentAttempts++
				o.MaxRadiusKm += e.cfg.RadiusIncrementKm
				if now.After(o.UpdatedAt) {
					o.UpdatedAt = now
				}
				return nil
			})
		return err
	})
	if errors.Is(err, apperr.ErrPreconditionFailed) {
		cur, gerr := e.getOrder(ctx, seen.ID)
		if gerr != nil {
			return Result{}, true, gerr
		}
		return Result{Outcome: OutcomeSkipped, Order: cur}, true, nil
	}
	if err != nil {
		return Result{}, true, err
	}

	e.logger.Debug("no provider in radius",
		logx.OrderID(seen.ID),
		logx.Float64("radius_km", seen.MaxRadiusKm),
		logx.Int("candidates_lost", candidates),
		logx.Int("attempts", updated.AssignmentAttempts),
	)
	if updated.AssignmentAttempts < e.cfg.MaxAttempts {
		return Result{}, false, nil
	}

	e.logger.Warn("provider assignment exhausted",
		logx.Event("provider_assignment_exhausted"),
		logx.OrderID(updated.ID),
		logx.Int("attempts", updated.AssignmentAttempts),
		logx.Float64("max_radius_km", updated.MaxRadiusKm),
	)
	return Result{Outcome: OutcomeNoCandidate, Order: updated}, true, nil
}

// bindProvider increments the provider load and moves the order to ASSIGNED in one commit.
func (e *Engine) bindProvider(ctx context.Context, orderID string, providerID int64) (*domain.Order, *domain.Provider, error) {
	var (
		bound *domain.Order
		prov  *domain.Provider
	)
	err := e.retrier.Do(ctx, "bind provider", func(ctx context.Context) error {
		return e.tx.WithTx(ctx, func(tx dispatchtx.Repository) error {
			o, err := tx.GetOrderForUpdate(ctx, orderID)
			if err != nil {
				return err
			}
			if o.Status != domain.OrderPending || o.HasProvider() {
				return fmt.Errorf("order %s is %s: %w", o.ID, o.Status, apperr.ErrPreconditionFailed)
			}
			p, err := tx.GetProviderForUpdate(ctx, providerID)
			if err != nil {
				return err
			}
			if !p.Selectable() {
				return fmt.Errorf("provider %d: %w", p.ID, apperr.ErrCapacityLost)
			}

			now := e.clock.Now()
			if err := o.Advance(domain.OrderAssigned, now); err != nil {
				return err
			}
			o.ProviderID = p.ID
			etaReady := o.UpdatedAt.Add(time.Duration(p.AvgCompletionHours * float64(time.Hour)))
			o.ETAReady = &etaReady

			p.CurrentLoad++
			if p.Full() {
				p.Status = domain.ProviderBusy
			}
			if err := tx.SaveProvider(ctx, p); err != nil {
				return err
			}
			if err := tx.SaveOrder(ctx, o); err != nil {
				return err
			}
			bound, prov = o, p
			return nil
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return bound, prov, nil
}

func (e *Engine) providerBound(ctx context.Context, o *domain.Order, p *domain.Provider, cand selector.ProviderCandidate) {
	e.transition(domain.OrderAssigned)
	e.logger.Info("provider assigned",
		logx.Event("provider_assigned"),
		logx.OrderID(o.ID),
		logx.Int64("provider_id", p.ID),
		logx.Float64("distance_km", cand.DistanceKm),
		logx.Float64("score", cand.Score),
		logx.Bool("preferred", cand.Preferred),
		logx.Int("provider_load", p.CurrentLoad),
	)
	e.announcer.Announce(ctx,
		service.ToCustomer(o, domain.NotifyOrderReceived, map[string]any{"provider_id": p.ID}),
		service.OrderMessage(domain.RecipientProvider, p.ID, domain.NotifyProviderAssigned, o, nil),
	)
}

// AssignCourier runs phase B on a READY_FOR_PICKUP order without a courier.
// With no courier in reach the order is left untouched for the sweep.
func (e *Engine) AssignCourier(ctx context.Context, orderID string) (Result, error) {
	res, err := e.assignCourier(ctx, orderID)
	if err != nil {
		return Result{}, err
	}
	e.count(phaseCourier, res.Outcome)
	return res, nil
}

func (e *Engine) assignCourier(ctx context.Context, orderID string) (Result, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	o, err := e.getOrder(ctx, orderID)
	if err != nil {
		return Result{}, err
	}
	if o.Status != domain.OrderReadyForPickup || o.HasCourier() {
		return Result{Outcome: OutcomeSkipped, Order: o}, nil
	}
	target, ok := o.DropPoint()
	if !ok {
		return Result{}, fmt.Errorf("order %s has no location: %w", o.ID, apperr.ErrInvalid)
	}

	var ranked []selector.CourierCandidate
	err = e.retrier.Do(ctx, "rank couriers", func(ctx context.Context) error {
		var err error
		ranked, err = e.couriers.Rank(ctx, target)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	if len(ranked) == 0 {
		e.logger.Debug("no courier in reach", logx.OrderID(o.ID))
		return Result{Outcome: OutcomeNoCandidate, Order: o}, nil
	}

	for _, cand := range ranked {
		bound, c, d, err := e.bindCourier(ctx, o.ID, cand.Courier.ID, target)
		switch {
		case err == nil:
			e.courierBound(ctx, bound, c, d)
			return Result{Outcome: OutcomeAssigned, Order: bound, DistanceKm: d}, nil
		case errors.Is(err, apperr.ErrCapacityLost):
			e.conflict(phaseCourier)
		case errors.Is(err, apperr.ErrPreconditionFailed):
			cur, gerr := e.getOrder(ctx, orderID)
			if gerr != nil {
				return Result{}, gerr
			}
			return Result{Outcome: OutcomeSkipped, Order: cur}, nil
		default:
			return Result{}, err
		}
	}
	return Result{Outcome: OutcomeCapacityLost, Order: o}, nil
}

// bindCourier moves the courier AVAILABLE -> BUSY and the order to OUT_FOR_DELIVERY in one commit.
func (e *Engine) bindCourier(ctx context.Context, orderID string, courierID int64, target geo.Point) (*domain.Order, *domain.Courier, float64, error) {
	var (
		bound *domain.Order
		cour  *domain.Courier
		dist  float64
	)
	err := e.retrier.Do(ctx, "bind courier", func(ctx context.Context) error {
		return e.tx.WithTx(ctx, func(tx dispatchtx.Repository) error {
			o, err := tx.GetOrderForUpdate(ctx, orderID)
			if err != nil {
				return err
			}
			if o.Status != domain.OrderReadyForPickup || o.HasCourier() {
				return fmt.Errorf("order %s is %s: %w", o.ID, o.Status, apperr.ErrPreconditionFailed)
			}
			// провайдер до курьера: тот же порядок блокировок, что и при отмене
			var shop *geo.Point
			if o.HasProvider() {
				p, err := tx.GetProviderForUpdate(ctx, o.ProviderID)
				switch {
				case err == nil:
					shop = &p.Location
				case !errors.Is(err, apperr.ErrNotFound):
					return err
				}
			}
			c, err := tx.GetCourierForUpdate(ctx, courierID)
			if err != nil {
				return err
			}
			if !c.Selectable() || c.CurrentOrderID != "" {
				return fmt.Errorf("courier %d is %s: %w", c.ID, c.Status, apperr.ErrCapacityLost)
			}

			d := geo.MustDistance(*c.Location, target)
			now := e.clock.Now()
			if err := o.Advance(domain.OrderOutForDelivery, now); err != nil {
				return err
			}
			o.CourierID = c.ID
			minutes := d*e.cfg.CourierMinutesPerKm + e.cfg.CourierHandoffMinutes
			eta := o.UpdatedAt.Add(time.Duration(minutes * float64(time.Minute)))
			o.ETADelivery = &eta
			if shop != nil {
				hours := geo.MustDistance(*c.Location, *shop) / e.cfg.CourierSpeedKmh
				pickup := now.Add(time.Duration(hours * float64(time.Hour)))
				o.ETAPickup = &pickup
			}

			c.Status = domain.CourierBusy
			c.CurrentOrderID = o.ID
			c.TotalDeliveries++
			if err := tx.SaveCourier(ctx, c); err != nil {
				return err
			}
			if err := tx.SaveOrder(ctx, o); err != nil {
				return err
			}
			bound, cour, dist = o, c, d
			return nil
		})
	})
	if err != nil {
		return nil, nil, 0, err
	}
	return bound, cour, dist, nil
}

func (e *Engine) courierBound(ctx context.Context, o *domain.Order, c *domain.Courier, d float64) {
	e.transition(domain.OrderOutForDelivery)
	if e.tracker != nil {
		e.tracker.StartDelivery(o, *c)
	}
	e.logger.Info("courier assigned",
		logx.Event("courier_assigned"),
		logx.OrderID(o.ID),
		logx.CourierID(c.ID),
		logx.Float64("distance_km", d),
		logx.Time("eta_delivery", *o.ETADelivery),
	)
	e.announcer.Announce(ctx,
		service.OrderMessage(domain.RecipientCourier, c.ID, domain.NotifyCourierAssigned, o, nil),
		service.ToCustomer(o, domain.NotifyOrderOutForDelivery, map[string]any{
			"courier_id":   c.ID,
			"courier_name": c.Name,
			"eta_delivery": o.ETADelivery.Format(time.RFC3339),
		}),
	)
}

func (e *Engine) getOrder(ctx context.Context, id string) (*domain.Order, error) {
	var o *domain.Order
	err := e.retrier.Do(ctx, "get order", func(ctx context.Context) error {
		var err error
		o, err = e.orders.GetOrder(ctx, id)
		return err
	})
	return o, err
}

func (e *Engine) count(phase string, out Outcome) {
	if e.metrics.Assignments != nil {
		e.metrics.Assignments.WithLabelValues(phase, string(out)).Inc()
	}
}

func (e *Engine) conflict(kind string) {
	if e.metrics.BindConflicts != nil {
		e.metrics.BindConflicts.WithLabelValues(kind).Inc()
	}
}

func (e *Engine) transition(to domain.OrderStatus) {
	if e.metrics.Transitions != nil {
		e.metrics.Transitions.WithLabelValues(string(to)).Inc()
	}
}
