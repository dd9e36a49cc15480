package grpcserver

import (
	"context"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"todoService/internal/auth"
	"todoService/internal/todo"
)

const healthCheckMethod = "/grpc.health.v1.Health/Check"

// NewServer builds a gRPC server exposing todo.v1.TodoService and the standard
// health service. Register, Login and health checks bypass authentication.
func NewServer(svc *todo.Service, tokens *auth.TokenService, logger logrus.FieldLogger) *grpc.Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		loggingInterceptor(logger),
		auth.NewUnaryAuthInterceptor(tokens, MethodRegister, MethodLogin, healthCheckMethod),
	))

	RegisterTodoServiceServer(srv, &TodoServer{Svc: svc, Logger: logger})

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv
}

// StartGRPC starts the gRPC server on addr and returns a shutdown function.
func StartGRPC(addr string, svc *todo.Service, tokens *auth.TokenService, logger logrus.FieldLogger) (func(context.Context) error, error) {
	if addr == "" {
		addr = ":50051"
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	// Plaintext; terminate TLS in front of the service.
	srv := NewServer(svc, tokens, logger)
	go func() {
		if err := srv.Serve(lis); err != nil {
			logger.WithError(err).Error("grpc server stopped")
		}
	}()

	return func(ctx context.Context) error {
		done := make(chan struct{})
		go func() { srv.GracefulStop(); close(done) }()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			srv.Stop()
			return ctx.Err()
		}
	}, nil
}

// loggingInterceptor logs one entry per unary call, after authentication has run.
func loggingInterceptor(logger logrus.FieldLogger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.WithFields(logrus.Fields{
			"method":      info.FullMethod,
			"code":        status.Code(err).String(),
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("rpc completed")
		return resp, err
	}
}
