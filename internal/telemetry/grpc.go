package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	grpcauth "github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/auth"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/ratelimit"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"google.golang.org/grpc"

	"github.com/Ricardolombre/acdn-elearning/internal/errors"
)

type GRPCConfig struct {
	// AuthFunc authenticates every call. Calls are not authenticated when nil.
	AuthFunc grpcauth.AuthFunc
	// Limiter throttles callers after authentication. Calls are not limited when nil.
	Limiter ratelimit.Limiter
}

// GRPCServerInterceptor chains panic recovery, call logging, authentication and rate limiting, in that order.
func GRPCServerInterceptor(c GRPCConfig) grpc.ServerOption {
	opts := []logging.Option{
		logging.WithLogOnEvents(logging.StartCall, logging.FinishCall),
	}

	interceptors := []grpc.UnaryServerInterceptor{
		recovery.UnaryServerInterceptor(recovery.WithRecoveryHandlerContext(recoverPanic)),
		logging.UnaryServerInterceptor(grpcServerLogger(slog.Default()), opts...),
	}
	if c.AuthFunc != nil {
		interceptors = append(interceptors, grpcauth.UnaryServerInterceptor(c.AuthFunc))
	}
	if c.Limiter != nil {
		interceptors = append(interceptors, ratelimit.UnaryServerInterceptor(c.Limiter))
	}

	return grpc.ChainUnaryInterceptor(interceptors...)
}

func grpcServerLogger(l *slog.Logger) logging.Logger {
	return logging.LoggerFunc(func(ctx context.Context, lvl logging.Level, msg string, fields ...any) {
		l.Log(ctx, slog.Level(lvl), msg, fields...)
	})
}

func recoverPanic(ctx context.Context, p any) error {
	slog.ErrorContext(ctx, "grpc: handler panic",
		"error", fmt.Errorf("%v, stack: %s", p, debug.Stack()),
	)
	return errors.New(errors.CodeInternal)
}
