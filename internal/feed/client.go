package feed

import (
	"context"
	"fmt"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/mapdraw/model"
)

// Client pushes snapshots to a FeedService.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an existing connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Dial opens an insecure, instrumented connection to target.
func Dial(target string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithChainUnaryInterceptor(clientRequestID()),
	}
	return grpc.NewClient(target, append(base, opts...)...)
}

// Push sends snapshot. A nil snapshot clears the remote overlay.
func (c *Client) Push(ctx context.Context, snapshot model.FeedSnapshot) error {
	data, err := Encode(snapshot)
	if err != nil {
		return fmt.Errorf("encode feed: %w", err)
	}
	return c.PushRaw(ctx, data)
}

// PushRaw sends an already-encoded JSON payload without validating it.
func (c *Client) PushRaw(ctx context.Context, payload []byte) error {
	in := &structpb.Value{}
	if err := protojson.Unmarshal(payload, in); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFeed, err)
	}
	return c.cc.Invoke(ctx, pushFullMethod, in, new(emptypb.Empty))
}
