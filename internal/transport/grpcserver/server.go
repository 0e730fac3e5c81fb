// Package grpcserver exposes the standard gRPC health service of the dispatcher.
package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"laundry-dispatch/internal/logx"
)

// ServiceName is the health service name reported for the dispatch core.
const ServiceName = "laundry.dispatch"

// Probe reports whether the core is live.
type Probe func() bool

// Server is a gRPC server carrying the health service.
type Server struct {
	srv    *grpc.Server
	health *health.Server
	logger logx.Logger
	probe  Probe
	period time.Duration
}

// New creates a Server. probe is polled every period to flip the serving status.
func New(logger logx.Logger, probe Probe, period time.Duration) *Server {
	if logger == nil {
		logger = logx.Nop()
	}
	if period <= 0 {
		period = 5 * time.Second
	}
	hs := health.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	s := &Server{srv: srv, health: hs, logger: logger, probe: probe, period: period}
	s.set(false)
	return s
}

func (s *Server) set(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// Refresh polls the probe once.
func (s *Server) Refresh() {
	s.set(s.probe != nil && s.probe())
}

// Serve serves on lis until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("grpc health listening", logx.String("addr", lis.Addr().String()))

	t := time.NewTicker(s.period)
	defer t.Stop()
	s.Refresh()

	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			s.srv.GracefulStop()
			return nil
		case err, ok := <-errCh:
			if !ok {
				return nil
			}
			return fmt.Errorf("grpc serve: %w", err)
		case <-t.C:
			s.Refresh()
		}
	}
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	lis, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", addr, err)
	}
	return s.Serve(ctx, lis)
}
