package surface

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/signalsfoundry/mapdraw/internal/logging"
	"github.com/signalsfoundry/mapdraw/internal/workspace"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	// The surface is served to a local operator UI.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// session is one websocket connection. Writes from the command loop, the
// update pusher and the keepalive are serialised by mu.
type session struct {
	id     string
	conn   *websocket.Conn
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	log    logging.Logger

	// notify coalesces workspace changes into at most one pending update.
	notify chan struct{}
}

func (s *session) write(r Reply) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(r)
}

func (s *session) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (srv *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		srv.log.Warn(r.Context(), "websocket upgrade failed", logging.Err(err))
		return
	}

	id := uuid.NewString()
	ctx := logging.ContextWithSessionID(context.WithoutCancel(r.Context()), id)
	ctx, cancel := context.WithCancel(ctx)
	sess := &session{
		id:     id,
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		log:    srv.log.With(logging.String("conn_id", id)),
		notify: make(chan struct{}, 1),
	}

	srv.register(sess)
	defer srv.unregister(sess)
	unsubscribe := srv.ws.Subscribe(func(workspace.Change) {
		select {
		case sess.notify <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	view := srv.ws.View()
	if err := sess.write(Reply{Type: ReplyHello, Conn: id, View: &view}); err != nil {
		sess.log.Warn(ctx, "failed to send hello", logging.Err(err))
		cancel()
		conn.Close()
		return
	}
	sess.log.Info(ctx, "operator session opened", logging.String("remote", r.RemoteAddr))
	srv.serve(sess)
}

func (srv *Server) register(sess *session) {
	srv.mu.Lock()
	srv.sessions[sess.id] = sess
	srv.mu.Unlock()
	if srv.metrics != nil {
		srv.metrics.AddSessions(1)
	}
}

func (srv *Server) unregister(sess *session) {
	srv.mu.Lock()
	delete(srv.sessions, sess.id)
	srv.mu.Unlock()
	if srv.metrics != nil {
		srv.metrics.AddSessions(-1)
	}
}

func (srv *Server) serve(sess *session) {
	defer func() {
		sess.cancel()
		sess.conn.Close()
		sess.log.Info(sess.ctx, "operator session closed")
	}()

	go srv.keepalive(sess)
	go srv.pushUpdates(sess)
	go func() {
		// Unblocks the read below when the server shuts the session down.
		<-sess.ctx.Done()
		sess.conn.Close()
	}()

	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				sess.log.Warn(sess.ctx, "websocket read failed", logging.Err(err))
			}
			return
		}

		var cmd Command
		var reply Reply
		if err := json.Unmarshal(data, &cmd); err != nil {
			reply = srv.errorReply(cmd, fmt.Errorf("%w: %v", errBadCommand, err))
		} else {
			reply = srv.dispatch(sess.ctx, sess.log, cmd)
		}
		if err := sess.write(reply); err != nil {
			sess.log.Warn(sess.ctx, "websocket write failed", logging.Err(err))
			return
		}
	}
}

func (srv *Server) keepalive(sess *session) {
	ticker := time.NewTicker(srv.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-sess.ctx.Done():
			return
		case <-ticker.C:
			if err := sess.ping(); err != nil {
				sess.log.Debug(sess.ctx, "ping failed", logging.Err(err))
				sess.cancel()
				return
			}
		}
	}
}

// pushUpdates sends the current view after changes made by any session,
// the feed or a snapshot load.
func (srv *Server) pushUpdates(sess *session) {
	for {
		select {
		case <-sess.ctx.Done():
			return
		case <-sess.notify:
			view := srv.ws.View()
			if err := sess.write(Reply{Type: ReplyUpdate, View: &view}); err != nil {
				sess.cancel()
				return
			}
		}
	}
}
