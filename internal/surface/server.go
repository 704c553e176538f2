// Package surface exposes the workspace to an operator UI: a websocket
// session carrying pointer and layer commands, plus REST endpoints for
// import and snapshot management.
package surface

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/signalsfoundry/mapdraw/internal/importer"
	"github.com/signalsfoundry/mapdraw/internal/logging"
	"github.com/signalsfoundry/mapdraw/internal/persist"
	"github.com/signalsfoundry/mapdraw/internal/workspace"
)

var errPersistenceDisabled = errors.New("persistence disabled")

const (
	defaultPingInterval = 30 * time.Second
	defaultImportLimit  = 32 << 20
)

// SessionRecorder tracks connected operator sessions.
// *observability.Collector satisfies it.
type SessionRecorder interface {
	AddSessions(delta int)
}

// Persister saves and restores snapshots on demand.
// *persist.AutoSaver satisfies it.
type Persister interface {
	SaveNow(ctx context.Context) error
	Load(ctx context.Context) (*persist.Snapshot, error)
}

// Server serves one workspace to any number of websocket sessions.
type Server struct {
	ws        *workspace.Workspace
	persister Persister
	metrics   SessionRecorder
	log       logging.Logger

	metricsHandler http.Handler

	pingInterval time.Duration
	importLimit  int64

	mu       sync.Mutex
	sessions map[string]*session
}

// Option customises a Server.
type Option func(*Server)

func WithLogger(l logging.Logger) Option {
	return func(s *Server) { s.log = logging.OrNoop(l) }
}

// WithPersistence enables the snapshot save and load endpoints.
func WithPersistence(p Persister) Option {
	return func(s *Server) { s.persister = p }
}

func WithSessionMetrics(m SessionRecorder) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithPingInterval overrides the websocket keepalive period.
func WithPingInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.pingInterval = d
		}
	}
}

// WithImportLimit caps the size of an import request body.
func WithImportLimit(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.importLimit = n
		}
	}
}

// New builds a Server for ws.
func New(ws *workspace.Workspace, opts ...Option) *Server {
	s := &Server{
		ws:           ws,
		log:          logging.Noop(),
		pingInterval: defaultPingInterval,
		importLimit:  defaultImportLimit,
		sessions:     make(map[string]*session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("POST /api/import", s.handleImport)
	mux.HandleFunc("GET /api/view", s.handleView)
	mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	mux.HandleFunc("POST /api/snapshot/save", s.handleSave)
	mux.HandleFunc("POST /api/snapshot/load", s.handleLoad)
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}
	return s.withRequestID(mux)
}

// Sessions returns the number of connected websocket sessions.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close disconnects every websocket session.
func (s *Server) Close() {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()
	for _, sess := range sessions {
		sess.cancel()
	}
}

// statusWriter records the response status for the access log. Hijack
// is passed through so websocket upgrades keep working.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// withRequestID tags each request with a request id and logs it once it
// completes.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := r.Header.Get("X-Request-ID"); id != "" {
			ctx = logging.ContextWithRequestID(ctx, id)
		}
		ctx, reqLog := logging.WithRequestLogger(ctx, s.log)
		ctx = logging.ContextWithLogger(ctx, reqLog)
		w.Header().Set("X-Request-ID", logging.RequestIDFromContext(ctx))

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r.WithContext(ctx))
		reqLog.Debug(ctx, "http_access",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", sw.status),
			logging.Int("bytes", sw.bytes),
			logging.Duration("duration", time.Since(start)),
			logging.String("remote", r.RemoteAddr),
		)
	})
}

type importResponse struct {
	LayerIDs []string `json:"layerIds"`
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.importLimit))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("import body exceeds %d bytes", tooBig.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}
	batches, err := importer.FromGeoJSON(body, importer.Options{
		Name:  r.URL.Query().Get("name"),
		Group: r.URL.Query().Get("group"),
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	// Nothing is stored unless every batch is accepted.
	ids, err := s.ws.Import(ctx, batches...)
	if err != nil {
		logging.OrNoop(logging.LoggerFromContext(ctx)).Warn(ctx, "import failed", logging.Err(err))
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, importResponse{LayerIDs: ids})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ws.View())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	data, err := persist.Encode(s.ws.Snapshot())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if s.persister == nil {
		writeError(w, http.StatusServiceUnavailable, errPersistenceDisabled)
		return
	}
	if err := s.persister.SaveNow(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	if s.persister == nil {
		writeError(w, http.StatusServiceUnavailable, errPersistenceDisabled)
		return
	}
	ctx := r.Context()
	snap, err := s.persister.Load(ctx)
	switch {
	case errors.Is(err, persist.ErrNoSnapshot):
		writeError(w, http.StatusNotFound, err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.ws.LoadSnapshot(ctx, snap); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ws.View())
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
