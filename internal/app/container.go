package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/dig"

	"laundry-dispatch/internal/clock"
	"laundry-dispatch/internal/config"
	"laundry-dispatch/internal/http/handlers"
	mw "laundry-dispatch/internal/http/middleware"
	"laundry-dispatch/internal/http/middleware/ratelimit"
	"laundry-dispatch/internal/http/pprofserver"
	"laundry-dispatch/internal/http/router"
	"laundry-dispatch/internal/logx"
	"laundry-dispatch/internal/metrics"
	"laundry-dispatch/internal/transport/grpcserver"
	"laundry-dispatch/internal/transport/kafka"
)

// ContainerBuilder is a dig container builder.
type ContainerBuilder struct {
	loadConfig func() (*config.Config, error)
	dbConnect  dbConnectFunc
	logFatalf  func(string, ...interface{})
}

// NewContainerBuilder returns a new dig container builder
func NewContainerBuilder() *ContainerBuilder {
	return &ContainerBuilder{
		loadConfig: config.Load,
		dbConnect:  connectDbWithRetry,
		logFatalf:  log.Fatalf,
	}
}

// WithConfig replaces config.Load.
func (b *ContainerBuilder) WithConfig(fn func() (*config.Config, error)) *ContainerBuilder {
	if fn != nil {
		b.loadConfig = fn
	}
	return b
}

// WithDBConnect sets the database connection function
func (b *ContainerBuilder) WithDBConnect(fn dbConnectFunc) *ContainerBuilder {
	if fn != nil {
		b.dbConnect = fn
	}
	return b
}

// WithLogFatalf sets the log.Fatalf function
func (b *ContainerBuilder) WithLogFatalf(fn func(string, ...interface{})) *ContainerBuilder {
	if fn != nil {
		b.logFatalf = fn
	}
	return b
}

// MustBuild builds and returns a new dig container
func (b *ContainerBuilder) MustBuild(ctx context.Context) *dig.Container {
	container, err := b.build(ctx)
	if err != nil {
		b.logFatalf("failed to build container: %v", err)
	}
	return container
}

func (b *ContainerBuilder) build(ctx context.Context) (*dig.Container, error) {
	container := dig.New()

	steps := []struct {
		name string
		fn   func(*dig.Container) error
	}{
		{"core", func(c *dig.Container) error { return registerCore(c, ctx, b.loadConfig) }},
		{"storage", func(c *dig.Container) error { return registerStorage(c, b.dbConnect) }},
		{"notifier", registerNotifier},
		{"service", registerService},
		{"transport", registerTransport},
		{"http", registerHTTP},
	}
	for _, s := range steps {
		if err := s.fn(container); err != nil {
			return nil, fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return container, nil
}

// MustBuildContainer builds and returns a new dig container
func MustBuildContainer(ctx context.Context) *dig.Container {
	return NewContainerBuilder().MustBuild(ctx)
}

func provideAll(container *dig.Container, providers ...any) error {
	for _, provider := range providers {
		if err := container.Provide(provider); err != nil {
			return fmt.Errorf("provide %T: %w", provider, err)
		}
	}
	return nil
}

type registryIn struct {
	dig.In
	Dispatch  *metrics.Dispatch
	HTTP      *mw.HTTPMetrics
	RateLimit prometheus.Counter `name:"rate_limit_exceeded_total"`
}

func newRegistry(in registryIn) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	if err := in.Dispatch.Register(reg); err != nil {
		return nil, err
	}
	cs := append(in.HTTP.Collectors(),
		in.RateLimit,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return reg, nil
}

func registerCore(container *dig.Container, ctx context.Context, loadConfig func() (*config.Config, error)) error {
	if err := provideAll(container,
		func() context.Context { return ctx },
		loadConfig,
		NewLogger,
		func() clock.Clock { return clock.NewReal() },
		metrics.NewDispatch,
		mw.NewHTTPMetrics,
		newRegistry,
	); err != nil {
		return err
	}
	return container.Provide(metrics.NewRateLimitExceededTotal, dig.Name("rate_limit_exceeded_total"))
}

func registerStorage(container *dig.Container, dbConnect dbConnectFunc) error {
	return provideAll(container,
		func(ctx context.Context, cfg *config.Config, logger logx.Logger) (*Storage, error) {
			return openStorage(ctx, cfg, logger, dbConnect)
		},
	)
}

func registerNotifier(container *dig.Container) error {
	return provideAll(container,
		func(ctx context.Context, cfg *config.Config, s *Storage, clk clock.Clock, logger logx.Logger, m *metrics.Dispatch) (*Notifiers, error) {
			return openNotifiers(ctx, cfg, s.Store, clk, logger, m)
		},
	)
}

func registerService(container *dig.Container) error {
	return provideAll(container,
		func(cfg *config.Config, s *Storage, n *Notifiers, clk clock.Clock, logger logx.Logger, m *metrics.Dispatch) *Core {
			return NewCore(CoreDeps{
				Store:    s.Store,
				Index:    s.Index,
				Notifier: n,
				Clock:    clk,
				Logger:   logger,
				Metrics:  m,
				Config:   cfg.Core,
			})
		},
	)
}

func registerTransport(container *dig.Container) error {
	return provideAll(container,
		func(cfg *config.Config, core *Core, logger logx.Logger) (*kafka.Consumer, error) {
			return kafka.NewConsumer(logger, kafka.ConsumerConfig{
				Brokers: cfg.Kafka.Brokers,
				GroupID: cfg.Kafka.GroupID,
				Topic:   cfg.Kafka.InboundTopic,
			}, inboundRouter(core).Handle)
		},
		func(cfg *config.Config, core *Core, logger logx.Logger) *grpcserver.Server {
			if cfg.GRPCPort == 0 {
				return nil
			}
			return grpcserver.New(logger, core.Scheduler.Running, 5*time.Second)
		},
	)
}

func newLimiter(cfg *config.Config, clk clock.Clock) ratelimit.Limiter {
	rl := cfg.RateLimit
	if !rl.Enabled {
		return ratelimit.NopLimiter{}
	}
	return ratelimit.NewTokenBucketLimiter(clk, ratelimit.Config{
		Rate:       rl.Rate,
		Burst:      rl.Burst,
		TTL:        rl.TTL,
		MaxBuckets: rl.MaxBuckets,
	})
}

type routerIn struct {
	dig.In
	Config      *config.Config
	Clock       clock.Clock
	Logger      logx.Logger
	Core        *Core
	HTTPMetrics *mw.HTTPMetrics
	Denied      prometheus.Counter `name:"rate_limit_exceeded_total"`
}

func newRouter(in routerIn) http.Handler {
	return router.New(router.Deps{
		Base:          handlers.New(in.Logger),
		Orders:        handlers.NewOrderHandler(in.Logger, in.Core.Intake, in.Core.Lifecycle),
		Tracking:      handlers.NewTrackingHandler(in.Logger, in.Core.Registry),
		Notifications: handlers.NewNotificationHandler(in.Logger, in.Core.Store),
		Logger:        in.Logger,
		Metrics:       in.HTTPMetrics,
		RateLimit:     ratelimit.New(in.Logger, in.Denied, newLimiter(in.Config, in.Clock)),
		LocationLimit: ratelimit.New(in.Logger, in.Denied, newLimiter(in.Config, in.Clock),
			ratelimit.WithKey(ratelimit.CourierKey("id"))),
	})
}

type serverOut struct {
	dig.Out
	Main  *http.Server
	Admin *http.Server `name:"admin_server"`
}

func newServers(cfg *config.Config, mux http.Handler, reg *prometheus.Registry, core *Core) serverOut {
	out := serverOut{
		Main: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			// без WriteTimeout: SSE-стрим держит ответ открытым
			IdleTimeout: 60 * time.Second,
		},
	}
	if cfg.Admin.Addr != "" {
		admin := pprofserver.Handler(pprofserver.Config{
			User:     cfg.Admin.User,
			Pass:     cfg.Admin.Pass,
			Gatherer: reg,
			Probes:   map[string]func() bool{"scheduler": core.Scheduler.Running},
		})
		out.Admin = &http.Server{
			Addr:              cfg.Admin.Addr,
			Handler:           admin,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return out
}

func registerHTTP(container *dig.Container) error {
	return provideAll(container,
		newRouter,
		newServers,
	)
}
