package observability

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"interview-copilot/internal/observability/metrics"
)

// UnaryServerInterceptor counts unary calls (health checks) by method and code.
func UnaryServerInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		observe(m, log.Debug(), info.FullMethod, start, err)
		return resp, err
	}
}

// StreamServerInterceptor counts streaming calls. Health watches live as long
// as the probe that opened them, so they are logged at info on completion.
func StreamServerInterceptor(m *metrics.Metrics) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		observe(m, log.Info(), info.FullMethod, start, err)
		return err
	}
}

func observe(m *metrics.Metrics, ev *zerolog.Event, method string, start time.Time, err error) {
	code := status.Code(err).String()
	if m != nil {
		m.GRPCRequests.WithLabelValues(method, code).Inc()
	}
	ev.Str("method", method).
		Str("code", code).
		Dur("duration", time.Since(start)).
		Msg("gRPC call")
}
