// Package grpcserver exposes the pond's readiness over the standard
// grpc.health.v1 service and provides a client for it.
package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// ServiceName is the health service name of the mirror.
const ServiceName = "mirrorpond.Mirror"

const defaultRefresh = 10 * time.Second

// Backends reports which answer backends are available.
type Backends interface {
	Backends() (local, relay bool)
}

// Options configures a Server.
type Options struct {
	Backends Backends
	// Refresh is how often backend availability is re-read.
	Refresh time.Duration
	Logger  *slog.Logger
}

// Server serves grpc.health.v1.
type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	backends Backends
	refresh  time.Duration
	logger   *slog.Logger
}

// New creates a health server. Status is computed once immediately.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Refresh <= 0 {
		opts.Refresh = defaultRefresh
	}
	gs := grpc.NewServer(grpc.KeepaliveParams(keepalive.ServerParameters{
		Time:    2 * time.Minute,
		Timeout: 10 * time.Second,
	}))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	s := &Server{
		grpc:     gs,
		health:   hs,
		backends: opts.Backends,
		refresh:  opts.Refresh,
		logger:   opts.Logger,
	}
	s.Refresh()
	return s
}

// Refresh recomputes the serving status: SERVING when at least one backend
// can answer.
func (s *Server) Refresh() {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if s.backends != nil {
		if local, relay := s.backends.Backends(); local || relay {
			status = healthpb.HealthCheckResponse_SERVING
		}
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	lis, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve serves on lis until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(s.refresh)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.health.Shutdown()
				s.grpc.GracefulStop()
				return
			case <-done:
				return
			case <-ticker.C:
				s.Refresh()
			}
		}
	}()

	s.logger.Info("gRPC health server listening", "addr", lis.Addr().String())
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}
