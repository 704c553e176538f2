package feed

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrNoSink is returned by a Service that has nowhere to apply feeds.
var ErrNoSink = errors.New("feed sink not configured")

var statusCodes = []struct {
	target error
	code   codes.Code
}{
	{ErrMalformedFeed, codes.InvalidArgument},
	{ErrNoSink, codes.Unavailable},
	{context.Canceled, codes.Canceled},
	{context.DeadlineExceeded, codes.DeadlineExceeded},
}

// ToStatusError maps feed errors onto gRPC status codes. Errors that
// already carry a status pass through; unknown errors become Internal.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	for _, m := range statusCodes {
		if errors.Is(err, m.target) {
			return status.Error(m.code, err.Error())
		}
	}
	return status.Error(codes.Internal, err.Error())
}
