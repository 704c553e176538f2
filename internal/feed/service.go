package feed

import (
	"context"

	"github.com/signalsfoundry/mapdraw/internal/logging"
	"github.com/signalsfoundry/mapdraw/internal/observability"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName is the fully-qualified gRPC service name.
	ServiceName    = "mapdraw.feed.v1.FeedService"
	pushFullMethod = "/" + ServiceName + "/Push"
)

// FeedServer accepts pushed feed payloads. The payload is the same JSON
// array the websocket transport carries, expressed as a structpb.Value.
type FeedServer interface {
	Push(context.Context, *structpb.Value) (*emptypb.Empty, error)
}

func _FeedService_Push_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FeedServer).Push(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: pushFullMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FeedServer).Push(ctx, req.(*structpb.Value))
	}
	return interceptor(ctx, in, info, handler)
}

// FeedServiceDesc describes FeedService for grpc.ServiceRegistrar.
var FeedServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FeedServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Push",
			Handler:    _FeedService_Push_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mapdraw/feed/v1/feed.proto",
}

// RegisterFeedServer registers srv on s.
func RegisterFeedServer(s grpc.ServiceRegistrar, srv FeedServer) {
	s.RegisterService(&FeedServiceDesc, srv)
}

// Service applies pushed payloads to a Sink.
type Service struct {
	sink Sink
	log  logging.Logger
}

// NewService constructs a Service bound to sink.
func NewService(sink Sink, log logging.Logger) *Service {
	return &Service{sink: sink, log: logging.OrNoop(log)}
}

// Push decodes the payload and replaces the overlay. A malformed payload
// still clears the overlay and is reported as InvalidArgument.
func (s *Service) Push(ctx context.Context, in *structpb.Value) (*emptypb.Empty, error) {
	reqLog := logging.LoggerFromContext(ctx)
	if reqLog == nil {
		ctx, reqLog = logging.WithRequestLogger(ctx, s.log)
	}
	ctx, span := observability.StartSpan(ctx, "Feed.Push")
	defer span.End()

	if s.sink == nil {
		return nil, ToStatusError(ErrNoSink)
	}

	var payload []byte
	if in != nil {
		data, err := protojson.Marshal(in)
		if err != nil {
			return nil, ToStatusError(err)
		}
		payload = data
	}

	snap, err := Decode(payload)
	span.SetAttributes(observability.RecordCount(len(snap)))
	s.sink.ApplyFeed(ctx, snap)
	if err != nil {
		span.RecordError(err)
		reqLog.Warn(ctx, "rejected feed payload", logging.Err(err))
		return nil, ToStatusError(err)
	}
	reqLog.Debug(ctx, "feed applied", logging.Int("nodes", len(snap)))
	return &emptypb.Empty{}, nil
}

// NewGRPCServer builds a gRPC server carrying FeedService and the standard
// health service, instrumented with otelgrpc and the RPC metrics collector.
func NewGRPCServer(sink Sink, collector *observability.Collector, log logging.Logger, opts ...grpc.ServerOption) *grpc.Server {
	log = logging.OrNoop(log)
	base := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			serverRequestScope(log),
			collector.UnaryServerInterceptor(),
		),
	}
	server := grpc.NewServer(append(base, opts...)...)

	RegisterFeedServer(server, NewService(sink, log))

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, hs)
	return server
}
