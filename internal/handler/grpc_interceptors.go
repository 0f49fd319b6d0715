package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/pesio-ai/be-legal-matters/internal/common/logger"
)

// RequestIDMetadataKey mirrors the HTTP X-Request-ID header.
const RequestIDMetadataKey = "x-request-id"

// UnaryRequestLogger tags each call with a request id, echoes it in the
// response header and logs the outcome.
func UnaryRequestLogger(log *logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()

		requestID := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(RequestIDMetadataKey); len(vals) > 0 {
				requestID = vals[0]
			}
		}
		if requestID == "" {
			requestID = uuid.NewString()
		}
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDMetadataKey, requestID))

		resp, err := next(ctx, req)

		code := status.Code(err)
		evt := log.Info()
		if code == codes.Internal || code == codes.Unknown {
			evt = log.Error()
		}
		evt.
			Str("request_id", requestID).
			Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("duration", time.Since(start)).
			Msg("gRPC request")

		return resp, err
	}
}

// UnaryRecovery converts a handler panic into codes.Internal.
func UnaryRecovery(log *logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().
					Str("method", info.FullMethod).
					Str("panic", fmt.Sprint(rec)).
					Msg("gRPC handler panicked")
				resp, err = nil, status.Error(codes.Internal, "internal server error")
			}
		}()
		return next(ctx, req)
	}
}
