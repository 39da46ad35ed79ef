package grpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// Components reported by the health service
const (
	ComponentConnector = "connector"
	ComponentEvents    = "events"
	ComponentExecutor  = "executor"
)

// HealthServer serves grpc.health.v1 with one status per component. The
// overall status ("") is SERVING only while every component is.
type HealthServer struct {
	listener   net.Listener
	grpcServer *gogrpc.Server
	health     *health.Server
	logger     *slog.Logger

	mu         sync.Mutex
	components map[string]bool
}

// NewHealthServer listens on addr and registers every component as NOT_SERVING
func NewHealthServer(addr string, logger *slog.Logger) (*HealthServer, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	grpcServer := gogrpc.NewServer(gogrpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)

	s := &HealthServer{
		listener:   listener,
		grpcServer: grpcServer,
		health:     healthServer,
		logger:     logger,
		components: map[string]bool{},
	}
	for _, c := range []string{ComponentConnector, ComponentEvents, ComponentExecutor} {
		s.SetServing(c, false)
	}
	return s, nil
}

func (s *HealthServer) Addr() string {
	return s.listener.Addr().String()
}

// SetServing updates one component and recomputes the overall status
func (s *HealthServer) SetServing(component string, serving bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.components[component] = serving
	s.health.SetServingStatus(component, servingStatus(serving))

	all := true
	for _, ok := range s.components {
		all = all && ok
	}
	s.health.SetServingStatus("", servingStatus(all))
}

func servingStatus(serving bool) grpc_health_v1.HealthCheckResponse_ServingStatus {
	if serving {
		return grpc_health_v1.HealthCheckResponse_SERVING
	}
	return grpc_health_v1.HealthCheckResponse_NOT_SERVING
}

// Serve runs until ctx is done
func (s *HealthServer) Serve(ctx context.Context) error {
	s.logger.Info("health server listening", "addr", s.listener.Addr().String())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpcServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
		err := <-serveErr
		if err == nil || errors.Is(err, gogrpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, gogrpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	}
}
