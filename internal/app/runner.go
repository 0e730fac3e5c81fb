package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"go.uber.org/dig"
	"golang.org/x/sync/errgroup"

	"laundry-dispatch/internal/config"
	"laundry-dispatch/internal/logx"
	"laundry-dispatch/internal/transport/grpcserver"
	"laundry-dispatch/internal/transport/kafka"
)

const shutdownTimeout = 15 * time.Second

// MustRun starts the service using the provided DI container
func MustRun(container *dig.Container) {
	if err := run(container); err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			log.Println("shutdown requested, exiting")
			return
		case errors.Is(err, context.DeadlineExceeded):
			log.Println("startup aborted: startup timeout exceeded")
			return
		default:
			log.Fatalf("run error: %v", err)
		}
	}
}

type runIn struct {
	dig.In

	Ctx       context.Context
	Config    *config.Config
	Logger    logx.Logger
	Core      *Core
	Storage   *Storage
	Notifiers *Notifiers
	Server    *http.Server
	Admin     *http.Server       `name:"admin_server" optional:"true"`
	Consumer  *kafka.Consumer    `optional:"true"`
	GRPC      *grpcserver.Server `optional:"true"`
}

func run(container *dig.Container) error {
	return container.Invoke(func(in runIn) error {
		defer closeResources(in)
		return serve(in)
	})
}

func serve(in runIn) error {
	g, ctx := errgroup.WithContext(in.Ctx)

	servers := []*http.Server{in.Server}
	if in.Admin != nil {
		servers = append(servers, in.Admin)
	}
	for _, srv := range servers {
		g.Go(func() error {
			in.Logger.Info("http listening", logx.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	g.Go(func() error { return in.Core.Scheduler.Run(ctx) })

	if in.Consumer != nil {
		g.Go(func() error { return in.Consumer.Run(ctx) })
	}
	if in.GRPC != nil {
		g.Go(func() error {
			return in.GRPC.ListenAndServe(ctx, fmt.Sprintf(":%d", in.Config.GRPCPort))
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		in.Logger.Info("shutting down laundry-dispatch")
		gracefulShutdown(in.Logger, shutdownTimeout, servers...)
		return nil
	})

	in.Logger.Info("laundry-dispatch started", logx.String("storage", in.Config.Storage))
	err := g.Wait()
	if err == nil && in.Ctx.Err() != nil {
		return in.Ctx.Err()
	}
	return err
}

func gracefulShutdown(logger logx.Logger, timeout time.Duration, servers ...*http.Server) {
	shCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shCtx); err != nil {
			logger.Warn("graceful shutdown error", logx.String("addr", srv.Addr), logx.Err(err))
		}
	}
}

func closeResources(in runIn) {
	if in.Consumer != nil {
		if err := in.Consumer.Close(); err != nil {
			in.Logger.Error("kafka close error", logx.Err(err))
		}
	}
	if err := in.Notifiers.Close(); err != nil {
		in.Logger.Error("notifier close error", logx.Err(err))
	}
	in.Storage.Close()
	_ = in.Logger.Sync()
}
