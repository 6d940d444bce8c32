package grpcapi

import (
	"context"
	"fmt"
	"net"
	"time"

	"persona-gateway/internal/application"
	"persona-gateway/internal/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

type HealthProber interface {
	Health(ctx context.Context) *application.HealthReport
}

// HealthServer exposes the standard gRPC health service for service name
// and keeps its status in line with the inference engine.
type HealthServer struct {
	name     string
	server   *grpc.Server
	health   *health.Server
	prober   HealthProber
	interval time.Duration
	stop     chan struct{}
}

func NewHealthServer(name string, prober HealthProber, interval time.Duration) *HealthServer {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	s := &HealthServer{
		name:     name,
		server:   grpc.NewServer(),
		health:   health.NewServer(),
		prober:   prober,
		interval: interval,
		stop:     make(chan struct{}),
	}
	grpc_health_v1.RegisterHealthServer(s.server, s.health)
	reflection.Register(s.server)
	s.health.SetServingStatus(name, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return s
}

// Probe runs one health check and publishes the result. A degraded engine
// is still serving.
func (s *HealthServer) Probe(ctx context.Context) grpc_health_v1.HealthCheckResponse_ServingStatus {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	report := s.prober.Health(ctx)
	if report.Connected {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	} else {
		logger.With("component", "grpc-health").Warn("engine probe failed", "service", s.name, "error", report.Error)
	}
	s.health.SetServingStatus(s.name, status)
	s.health.SetServingStatus("", status)
	return status
}

func (s *HealthServer) probeLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.Probe(context.Background())
		select {
		case <-ticker.C:
		case <-s.stop:
			return
		}
	}
}

// Serve blocks serving on lis until Stop is called.
func (s *HealthServer) Serve(lis net.Listener) error {
	go s.probeLoop()
	logger.Info("grpc health server listening", "addr", lis.Addr().String())
	if err := s.server.Serve(lis); err != nil {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// ListenAndServe listens on port and serves.
func (s *HealthServer) ListenAndServe(port int) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("listen grpc :%d: %w", port, err)
	}
	return s.Serve(lis)
}

func (s *HealthServer) Stop() {
	close(s.stop)
	s.health.Shutdown()
	s.server.GracefulStop()
}
