package medreserve

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// RegisterFunc registers gRPC services on a server.
type RegisterFunc func(*grpc.Server)

// ServerConfig configures a gRPC server.
type ServerConfig struct {
	Name string
	Port string
}

// RunServer starts a gRPC server with health checks and blocks until ctx is
// cancelled or the server fails. Cancellation triggers a graceful stop.
func RunServer(ctx context.Context, cfg ServerConfig, logger *zap.Logger, register RegisterFunc, opts ...grpc.ServerOption) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", cfg.Port, err)
	}
	return Serve(ctx, lis, cfg.Name, logger, register, opts...)
}

// Serve runs the gRPC server on an existing listener.
func Serve(ctx context.Context, lis net.Listener, name string, logger *zap.Logger, register RegisterFunc, opts ...grpc.ServerOption) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := grpc.NewServer(opts...)
	register(s)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(s, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	logger.Info("grpc server started",
		zap.String("service", name),
		zap.String("addr", lis.Addr().String()),
	)

	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			healthServer.Shutdown()
			s.GracefulStop()
		case <-stopped:
		}
	}()
	defer close(stopped)

	if err := s.Serve(lis); err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}
