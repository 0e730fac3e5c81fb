package app

import (
	"context"

	"github.com/google/uuid"

	"laundry-dispatch/internal/clock"
	"laundry-dispatch/internal/config"
	"laundry-dispatch/internal/geo"
	"laundry-dispatch/internal/logx"
	"laundry-dispatch/internal/metrics"
	"laundry-dispatch/internal/ports/notify"
	"laundry-dispatch/internal/ports/store"
	"laundry-dispatch/internal/retry"
	"laundry-dispatch/internal/service"
	"laundry-dispatch/internal/service/assignment"
	"laundry-dispatch/internal/service/intake"
	"laundry-dispatch/internal/service/lifecycle"
	"laundry-dispatch/internal/service/scheduler"
	"laundry-dispatch/internal/service/selector"
	"laundry-dispatch/internal/service/tracking"
)

// CourierIndex is an optional external geo index of courier positions.
type CourierIndex interface {
	Put(ctx context.Context, courierID int64, p geo.Point) error
	Remove(ctx context.Context, courierIDs ...int64) error
	Nearby(ctx context.Context, p geo.Point, radiusKm float64) ([]int64, error)
}

// CoreDeps are the adapters the dispatch core runs on.
type CoreDeps struct {
	Store    store.Store
	Index    CourierIndex
	Notifier notify.Notifier
	Clock    clock.Clock
	Logger   logx.Logger
	Metrics  *metrics.Dispatch
	Config   config.CoreConfig
	NewID    func() string
}

// Core holds every service of the dispatch core.
type Core struct {
	Store     store.Store
	Registry  *tracking.Registry
	Engine    *assignment.Engine
	Intake    *intake.Service
	Lifecycle *lifecycle.Service
	Scheduler *scheduler.Scheduler
	Retrier   *retry.Retrier
}

// NewCore wires the core services over d.
func NewCore(d CoreDeps) *Core {
	if d.Logger == nil {
		d.Logger = logx.Nop()
	}
	if d.Clock == nil {
		d.Clock = clock.NewReal()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.NewDispatch()
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	cfg := d.Config

	var (
		locator  selector.Locator
		indexer  tracking.Indexer
		janitor  scheduler.Locator
		trackOpt []tracking.Option
	)
	if d.Index != nil {
		locator, indexer, janitor = d.Index, d.Index, d.Index
		trackOpt = append(trackOpt, tracking.WithIndexer(indexer))
	}
	trackOpt = append(trackOpt, tracking.WithMetrics(d.Metrics.TrackingEntries, d.Metrics.TrackingDropped))

	retrier := retry.New(retry.Policy{Attempts: cfg.RetryAttempts, Delay: cfg.RetryDelay}, d.Logger, d.Metrics.Retries)
	announcer := service.NewAnnouncer(d.Notifier, d.Logger)

	registry := tracking.New(d.Store, d.Clock, tracking.Config{
		StaleTTL: cfg.TrackingStaleTTL,
		SpeedKmh: cfg.AssumedCourierSpeedKmh,
		Buffer:   cfg.SubscriberBuffer,
	}, d.Logger, trackOpt...)

	engine := assignment.New(assignment.Deps{
		Orders:    d.Store,
		Tx:        d.Store,
		Providers: selector.NewProviderSelector(d.Store),
		Couriers:  selector.NewCourierSelector(d.Store, locator, cfg.CourierRadiusKm, d.Logger),
		Tracker:   registry,
		Announcer: announcer,
		Retrier:   retrier,
		Clock:     d.Clock,
		Logger:    d.Logger,
		Metrics: assignment.Metrics{
			Assignments:   d.Metrics.Assignments,
			BindConflicts: d.Metrics.BindConflicts,
			Transitions:   d.Metrics.Transitions,
		},
	}, assignment.Config{
		MaxAttempts:           cfg.MaxAttempts,
		RadiusIncrementKm:     cfg.RadiusIncrementKm,
		CourierMinutesPerKm:   cfg.CourierMinutesPerKm,
		CourierHandoffMinutes: cfg.CourierHandoffMinutes,
		CourierSpeedKmh:       cfg.AssumedCourierSpeedKmh,
		OperationTimeout:      cfg.OperationTimeout,
	})

	in := intake.New(intake.Deps{
		Orders:  d.Store,
		Catalog: d.Store,
		Engine:  engine,
		Retrier: retrier,
		Clock:   d.Clock,
		Logger:  d.Logger,
		NewID:   d.NewID,
	}, intake.Config{
		InitialRadiusKm:     cfg.InitialRadiusKm,
		DeliveryChargePerKm: cfg.DeliveryChargePerKm,
		OperationTimeout:    cfg.OperationTimeout,
	})

	lc := lifecycle.New(lifecycle.Deps{
		Orders:      d.Store,
		Providers:   d.Store,
		Payments:    d.Store,
		Tx:          d.Store,
		Engine:      engine,
		Tracker:     registry,
		Announcer:   announcer,
		Retrier:     retrier,
		Clock:       d.Clock,
		Logger:      d.Logger,
		Transitions: d.Metrics.Transitions,
	}, lifecycle.Config{
		MaxAttempts:      cfg.MaxAttempts,
		OperationTimeout: cfg.OperationTimeout,
	})

	sched := scheduler.New(scheduler.Deps{
		Orders:    d.Store,
		Couriers:  d.Store,
		Engine:    engine,
		Tracking:  registry,
		Locator:   janitor,
		Announcer: announcer,
		Clock:     d.Clock,
		Logger:    d.Logger,
		Metrics: scheduler.Metrics{
			Duration: d.Metrics.SweepDuration,
			Skipped:  d.Metrics.SweepsSkipped,
		},
	}, scheduler.Config{
		PendingPeriod:  cfg.SweepPendingPeriod,
		DemotePeriod:   cfg.SweepDemotePeriod,
		DelayPeriod:    cfg.SweepDelayPeriod,
		StalePeriod:    cfg.SweepStalePeriod,
		IdleOfflineTTL: cfg.CourierIdleOfflineTTL,
		MaxAttempts:    cfg.MaxAttempts,
	})

	return &Core{
		Store:     d.Store,
		Registry:  registry,
		Engine:    engine,
		Intake:    in,
		Lifecycle: lc,
		Scheduler: sched,
		Retrier:   retrier,
	}
}
