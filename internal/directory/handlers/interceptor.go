package handlers

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Interceptor logs every unary gRPC call and converts handler panics into
// codes.Internal.
type Interceptor struct {
	logger *zap.Logger
}

// NewLoggingInterceptor creates an Interceptor writing to logger.
func NewLoggingInterceptor(logger *zap.Logger) *Interceptor {
	return &Interceptor{logger: logger.Named("grpc")}
}

// Unary returns the gRPC unary server interceptor.
func (i *Interceptor) Unary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		start := time.Now()

		defer func() {
			if p := recover(); p != nil {
				i.logger.Error("panic in gRPC handler",
					zap.String("method", info.FullMethod),
					zap.Any("panic", p),
				)
				resp, err = nil, status.Error(codes.Internal, "internal server error")
			}

			code := status.Code(err)
			fields := []zap.Field{
				zap.String("method", info.FullMethod),
				zap.String("code", code.String()),
				zap.Duration("duration", time.Since(start)),
			}
			if code == codes.OK {
				i.logger.Debug("call", fields...)
			} else {
				i.logger.Warn("call failed", append(fields, zap.Error(err))...)
			}
		}()

		return handler(ctx, req)
	}
}
