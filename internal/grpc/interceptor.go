package grpc

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"payment-engine/internal/logger"
	"payment-engine/internal/metrics"
	"payment-engine/internal/models"
)

// LoggingInterceptor gives every call a request-scoped logger and records
// its outcome.
func LoggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	l := logger.Logger.With().
		Str("request_id", uuid.NewString()).
		Str("grpc_method", info.FullMethod).
		Logger()

	resp, err := handler(logger.WithContext(ctx, l), req)

	code := status.Code(err)
	metrics.GRPCRequestsTotal.WithLabelValues(info.FullMethod, code.String()).Inc()

	event := l.Info()
	if err != nil {
		event = l.Warn().Err(err)
	}
	event.Str("code", code.String()).Dur("duration", time.Since(start)).Msg("gRPC request completed")
	return resp, err
}

var errorCodes = []struct {
	target error
	code   codes.Code
}{
	{models.ErrInvalidInput, codes.InvalidArgument},
	{models.ErrNotFound, codes.NotFound},
	{models.ErrDuplicateReference, codes.AlreadyExists},
	{models.ErrInvalidState, codes.FailedPrecondition},
	{models.ErrNotRetryable, codes.FailedPrecondition},
	{models.ErrRefundFailed, codes.Aborted},
	{models.ErrGatewayTimeout, codes.DeadlineExceeded},
	{context.DeadlineExceeded, codes.DeadlineExceeded},
	{models.ErrTransientGateway, codes.Unavailable},
	{models.ErrPermanentGateway, codes.Aborted},
}

func toStatus(err error) error {
	if err == nil {
		return nil
	}
	for _, e := range errorCodes {
		if errors.Is(err, e.target) {
			return status.Error(e.code, err.Error())
		}
	}
	return status.Error(codes.Internal, "internal error")
}
