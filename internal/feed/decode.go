// Package feed turns live network-node payloads into overlay snapshots and
// carries them in over websocket and gRPC.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/signalsfoundry/mapdraw/model"
)

// ErrMalformedFeed marks a payload that is not an array of well-formed
// node records. The overlay is absent for such a payload.
var ErrMalformedFeed = errors.New("malformed feed payload")

// Sink receives decoded feed snapshots. A nil snapshot means the overlay
// is absent (disconnect, empty or malformed payload).
type Sink interface {
	ApplyFeed(ctx context.Context, snapshot model.FeedSnapshot)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, snapshot model.FeedSnapshot)

func (f SinkFunc) ApplyFeed(ctx context.Context, snapshot model.FeedSnapshot) { f(ctx, snapshot) }

type wireRecord struct {
	ID           *string           `json:"id"`
	Position     *model.Coordinate `json:"position"`
	SignalMetric *float64          `json:"signalMetric"`
	Connections  []string          `json:"connections"`
}

// Decode parses a feed payload. null, an empty body and an empty array
// decode to a nil snapshot without error. Anything that is not an array,
// or an array with a record missing id, position or signalMetric, yields
// ErrMalformedFeed. Connections are optional.
func Decode(payload []byte) (model.FeedSnapshot, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: not an array", ErrMalformedFeed)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFeed, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	out := make(model.FeedSnapshot, 0, len(raw))
	for i, item := range raw {
		var rec wireRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrMalformedFeed, i, err)
		}
		switch {
		case rec.ID == nil || *rec.ID == "":
			return nil, fmt.Errorf("%w: record %d has no id", ErrMalformedFeed, i)
		case rec.Position == nil:
			return nil, fmt.Errorf("%w: record %d (%s) has no position", ErrMalformedFeed, i, *rec.ID)
		case rec.SignalMetric == nil:
			return nil, fmt.Errorf("%w: record %d (%s) has no signalMetric", ErrMalformedFeed, i, *rec.ID)
		}
		out = append(out, model.NodeRecord{
			ID:           *rec.ID,
			Position:     *rec.Position,
			SignalMetric: *rec.SignalMetric,
			Connections:  rec.Connections,
		})
	}
	return out, nil
}

// Encode is the inverse of Decode, used by feed producers.
func Encode(snapshot model.FeedSnapshot) ([]byte, error) {
	if snapshot == nil {
		snapshot = model.FeedSnapshot{}
	}
	return json.Marshal(snapshot)
}
