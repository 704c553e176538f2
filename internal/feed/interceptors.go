package feed

import (
	"context"
	"time"

	"github.com/signalsfoundry/mapdraw/internal/logging"
	"github.com/signalsfoundry/mapdraw/internal/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// RequestIDHeader carries a caller-chosen request id in both directions.
const RequestIDHeader = "x-request-id"

// serverRequestScope gives each RPC a request id (taken from the caller's
// metadata when present), a request logger on the context, and echoes the
// id back as a response header. The otelgrpc span is tagged with the same
// id and any handler error.
func serverRequestScope(base logging.Logger) grpc.UnaryServerInterceptor {
	base = logging.OrNoop(base)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if ids := md.Get(RequestIDHeader); len(ids) > 0 && ids[0] != "" {
				ctx = logging.ContextWithRequestID(ctx, ids[0])
			}
		}
		ctx, reqLog := logging.WithRequestLogger(ctx, base.With(logging.String("method", info.FullMethod)))
		ctx = logging.ContextWithLogger(ctx, reqLog)
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, logging.RequestIDFromContext(ctx)))

		service, method := observability.SplitMethod(info.FullMethod)
		span := trace.SpanFromContext(ctx)
		span.SetAttributes(
			attribute.String("rpc.service", service),
			attribute.String("rpc.method", method),
			attribute.String("request_id", logging.RequestIDFromContext(ctx)),
		)

		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			span.RecordError(err)
		}
		reqLog.Debug(ctx, "rpc finished",
			logging.String("code", status.Code(err).String()),
			logging.Duration("duration", time.Since(start)),
		)
		return resp, err
	}
}

// clientRequestID forwards the context's request id as outgoing metadata.
func clientRequestID() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if id := logging.RequestIDFromContext(ctx); id != "" {
			ctx = metadata.AppendToOutgoingContext(ctx, RequestIDHeader, id)
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}
