package feed

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signalsfoundry/mapdraw/internal/logging"
)

const (
	defaultMinBackoff = 500 * time.Millisecond
	defaultMaxBackoff = 30 * time.Second
)

// WSSource subscribes to a websocket endpoint that pushes feed payloads as
// text messages. Each message replaces the overlay; losing the connection
// clears it until the next payload arrives after reconnecting.
type WSSource struct {
	URL    string
	Header http.Header
	Dialer *websocket.Dialer
	Sink   Sink
	Log    logging.Logger

	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Run connects and reconnects until ctx is cancelled. It returns ctx.Err().
func (s *WSSource) Run(ctx context.Context) error {
	log := logging.OrNoop(s.Log).With(logging.String("feed_url", s.URL))
	dialer := s.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	minBackoff, maxBackoff := s.MinBackoff, s.MaxBackoff
	if minBackoff <= 0 {
		minBackoff = defaultMinBackoff
	}
	if maxBackoff < minBackoff {
		maxBackoff = max(defaultMaxBackoff, minBackoff)
	}

	backoff := minBackoff
	for {
		conn, _, err := dialer.DialContext(ctx, s.URL, s.Header)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn(ctx, "feed dial failed", logging.Err(err), logging.Duration("retry_in", backoff))
		} else {
			log.Info(ctx, "feed connected")
			backoff = minBackoff
			err = s.consume(ctx, conn, log)
			// Disconnect: the overlay is absent until data flows again.
			s.Sink.ApplyFeed(ctx, nil)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn(ctx, "feed disconnected", logging.Err(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (s *WSSource) consume(ctx context.Context, conn *websocket.Conn, log logging.Logger) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return errors.New("closed by peer")
			}
			return err
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		snap, err := Decode(data)
		if err != nil {
			log.Debug(ctx, "dropping malformed feed payload", logging.Err(err))
		}
		s.Sink.ApplyFeed(ctx, snap)
	}
}
