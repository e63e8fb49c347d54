// Package grpcapi serves the agent's gRPC health service. The capture
// service's status follows the application's readiness.
package grpcapi

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"interview-copilot/internal/observability"
	"interview-copilot/internal/observability/logging"
	"interview-copilot/internal/observability/metrics"
)

// CaptureService is the health service name reported for capture readiness.
const CaptureService = "interview.copilot.Capture"

const probeInterval = 5 * time.Second

// ReadyFunc reports whether capture sessions can be started.
type ReadyFunc func(ctx context.Context) error

// Server wraps a grpc.Server with the health service registered.
type Server struct {
	GRPC   *grpc.Server
	health *health.Server
	ready  ReadyFunc
	logger zerolog.Logger
}

// New creates the gRPC server with logging and metrics interceptors.
func New(ready ReadyFunc) *Server {
	m := metrics.DefaultMetrics
	g := grpc.NewServer(
		grpc.UnaryInterceptor(observability.UnaryServerInterceptor(m)),
		grpc.StreamInterceptor(observability.StreamServerInterceptor(m)),
	)

	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(g, hs)
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	hs.SetServingStatus(CaptureService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	// grpcurl and friends
	reflection.Register(g)

	return &Server{
		GRPC:   g,
		health: hs,
		ready:  ready,
		logger: logging.WithComponent("grpc"),
	}
}

// Probe updates the capture service status once.
func (s *Server) Probe(ctx context.Context) grpc_health_v1.HealthCheckResponse_ServingStatus {
	status := grpc_health_v1.HealthCheckResponse_SERVING
	if s.ready != nil {
		if err := s.ready(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Capture not ready")
			status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus(CaptureService, status)
	return status
}

// WatchReadiness probes until ctx is done.
func (s *Server) WatchReadiness(ctx context.Context) {
	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()
	for {
		s.Probe(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Shutdown marks everything NOT_SERVING and stops gracefully.
func (s *Server) Shutdown() {
	s.health.Shutdown()
	s.GRPC.GracefulStop()
}
