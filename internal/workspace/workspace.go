// Package workspace holds the operator's application state: the layer
// store, the drawing session, at most one drag gesture and one rubber
// band, the live overlay and the camera. Every command runs under one
// coarse lock, so pointer events, feed updates and store mutations are
// applied one at a time in arrival order.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/signalsfoundry/mapdraw/core"
	"github.com/signalsfoundry/mapdraw/internal/logging"
	"github.com/signalsfoundry/mapdraw/internal/observability"
	"github.com/signalsfoundry/mapdraw/kb"
	"github.com/signalsfoundry/mapdraw/model"
)

var (
	// ErrNoGesture is returned by move/end commands without a matching start.
	ErrNoGesture = errors.New("no gesture in progress")
	// ErrDrawingActive is returned when a drag or rubber band starts while
	// a drawing tool is selected.
	ErrDrawingActive = errors.New("a drawing tool is active")
)

// DefaultViewport is the camera before anything is loaded or focused.
var DefaultViewport = model.Viewport{Zoom: 2}

// MetricsRecorder receives workspace-level gauges and counters.
// *observability.Collector satisfies it.
type MetricsRecorder interface {
	SetLayerCounts(counts map[string]map[string]int)
	IncCommit(kind string)
	ObserveFeed(nodes int)
}

var _ MetricsRecorder = (*observability.Collector)(nil)

// SaveTrigger is notified after every layer mutation.
// *persist.AutoSaver satisfies it.
type SaveTrigger interface {
	Trigger()
}

// Change tells listeners why the workspace changed.
type Change string

const (
	ChangeSession  Change = "session"
	ChangeLayers   Change = "layers"
	ChangeViewport Change = "viewport"
	ChangeOverlay  Change = "overlay"
	ChangeLoaded   Change = "loaded"
)

// View is the externally visible state after a command.
type View struct {
	Frame       core.Frame          `json:"frame"`
	Viewport    model.Viewport      `json:"viewport"`
	Session     core.DrawingSession `json:"session"`
	Dragging    string              `json:"dragging,omitempty"`
	Band        *model.RubberBand   `json:"band,omitempty"`
	Layers      []*model.Layer      `json:"layers"`
	GroupLabels map[string]string   `json:"groupLabels"`
	Collapsed   map[string]bool     `json:"collapsed"`
	MapStyle    string              `json:"mapStyle"`
	OverlaySize int                 `json:"overlaySize"`
}

// Workspace is safe for concurrent use.
type Workspace struct {
	// mu is the coarse command lock. Take it before the store's own lock.
	mu sync.Mutex

	store     *kb.LayerStore
	session   core.DrawingSession
	drag      *core.DragGesture
	band      *model.RubberBand
	overlay   *core.NetworkOverlay
	viewport  model.Viewport
	mapStyle  string
	sessionID uuid.UUID

	saver SaveTrigger

	log     logging.Logger
	metrics MetricsRecorder

	lmu       sync.Mutex
	listeners map[int]func(Change)
	nextLis   int
}

// Option customises Workspace construction.
type Option func(*Workspace)

// WithLogger sets the workspace logger.
func WithLogger(l logging.Logger) Option {
	return func(w *Workspace) { w.log = logging.OrNoop(l) }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(w *Workspace) { w.metrics = m }
}

// WithStore uses an existing layer store.
func WithStore(s *kb.LayerStore) Option {
	return func(w *Workspace) {
		if s != nil {
			w.store = s
		}
	}
}

// WithMapStyle sets the initial base map style identifier.
func WithMapStyle(style string) Option {
	return func(w *Workspace) { w.mapStyle = style }
}

// New constructs an empty workspace.
func New(opts ...Option) *Workspace {
	w := &Workspace{
		session:   core.NewDrawingSession(),
		viewport:  DefaultViewport,
		sessionID: uuid.New(),
		log:       logging.Noop(),
		listeners: make(map[int]func(Change)),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.store == nil {
		w.store = kb.NewLayerStore()
	}
	w.log = w.log.With(logging.String("session_id", w.sessionID.String()))
	w.store.Subscribe(w.onStoreEvent)
	w.publishLayerCounts()
	return w
}

// SessionID identifies this workspace instance in snapshots and logs.
func (w *Workspace) SessionID() uuid.UUID { return w.sessionID }

// Store exposes the layer store for read access.
func (w *Workspace) Store() *kb.LayerStore { return w.store }

// AttachSaver registers the debounced saver notified on layer mutations.
func (w *Workspace) AttachSaver(s SaveTrigger) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.saver = s
}

// Subscribe registers fn to run after every state change. fn runs outside
// the command lock and may call back into the workspace.
func (w *Workspace) Subscribe(fn func(Change)) (unsubscribe func()) {
	w.lmu.Lock()
	defer w.lmu.Unlock()
	id := w.nextLis
	w.nextLis++
	w.listeners[id] = fn
	return func() {
		w.lmu.Lock()
		defer w.lmu.Unlock()
		delete(w.listeners, id)
	}
}

func (w *Workspace) emit(c Change) {
	w.lmu.Lock()
	fns := make([]func(Change), 0, len(w.listeners))
	for _, fn := range w.listeners {
		fns = append(fns, fn)
	}
	w.lmu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}

// onStoreEvent runs on the goroutine that mutated the store, which holds
// w.mu for every store mutation made through the workspace.
func (w *Workspace) onStoreEvent(e kb.Event) {
	w.publishLayerCounts()
	if e.Type == kb.EventReplaced {
		return
	}
	if w.saver != nil {
		w.saver.Trigger()
	}
}

func (w *Workspace) publishLayerCounts() {
	if w.metrics == nil {
		return
	}
	counts := make(map[string]map[string]int)
	for kind, byOrigin := range w.store.CountByKind() {
		m := make(map[string]int, len(byOrigin))
		for origin, n := range byOrigin {
			m[string(origin)] = n
		}
		counts[string(kind)] = m
	}
	w.metrics.SetLayerCounts(counts)
}

// run executes fn under the command lock and notifies listeners with c
// when fn succeeds.
func (w *Workspace) run(c Change, fn func() error) error {
	w.mu.Lock()
	err := fn()
	w.mu.Unlock()
	if err != nil {
		return err
	}
	w.emit(c)
	return nil
}

// SetMode switches drawing tool, abandoning any unfinished gesture.
func (w *Workspace) SetMode(mode core.DrawMode) {
	_ = w.run(ChangeSession, func() error {
		w.session = w.session.Start(mode)
		return nil
	})
}

// Cancel resets the drawing session to idle and drops any rubber band.
func (w *Workspace) Cancel() {
	_ = w.run(ChangeSession, func() error {
		w.session = w.session.Cancel()
		w.band = nil
		return nil
	})
}

// Move updates the drawing cursor.
func (w *Workspace) Move(c model.Coordinate) {
	_ = w.run(ChangeSession, func() error {
		w.session = w.session.Move(c, w.viewport.Zoom)
		return nil
	})
}

// Click advances the drawing session. When the click completes a gesture
// the new layer is stored and returned.
func (w *Workspace) Click(ctx context.Context, c model.Coordinate) (*model.Layer, error) {
	w.mu.Lock()
	next, commit := w.session.Click(c, w.viewport.Zoom)
	if commit == nil {
		w.session = next
		w.mu.Unlock()
		w.emit(ChangeSession)
		return nil, nil
	}

	layer := core.LayerFromCommit(*commit, w.nextLabelLocked(commit.Kind), "")
	id, err := w.store.Add(layer)
	if err != nil {
		// The gesture is kept so the operator can retry or cancel.
		w.mu.Unlock()
		return nil, fmt.Errorf("commit %s: %w", commit.Kind, err)
	}
	w.session = next
	if w.metrics != nil {
		w.metrics.IncCommit(string(commit.Kind))
	}
	added, _ := w.store.Get(id)
	w.mu.Unlock()

	w.log.Info(ctx, "layer drawn",
		logging.String("layer_id", id),
		logging.String("kind", string(commit.Kind)),
		logging.String("measurement", commit.Measurement),
	)
	w.emit(ChangeLayers)
	return added, nil
}

// nextLabelLocked names a drawn layer "<Kind> <n>", n counting drawn
// layers of that kind including the new one.
func (w *Workspace) nextLabelLocked(kind model.LayerKind) string {
	n := w.store.CountByKind()[kind][model.OriginDrawn] + 1
	name := string(kind)
	return fmt.Sprintf("%s%s %d", strings.ToUpper(name[:1]), name[1:], n)
}

// DragStart begins translating a drawn layer from the press position.
func (w *Workspace) DragStart(id string, at model.Coordinate) error {
	return w.run(ChangeSession, func() error {
		if w.session.Mode != core.ModeNone {
			return ErrDrawingActive
		}
		layer, err := w.store.Get(id)
		if err != nil {
			return err
		}
		g, err := core.BeginDrag(layer, at)
		if err != nil {
			return err
		}
		w.drag = g
		return nil
	})
}

// DragMove writes the press-time geometry translated to at into the store.
func (w *Workspace) DragMove(at model.Coordinate) error {
	return w.run(ChangeLayers, func() error {
		if w.drag == nil {
			return ErrNoGesture
		}
		return w.store.SetGeometry(w.drag.LayerID, w.drag.Apply(at))
	})
}

// DragEnd applies the final position and discards the gesture.
func (w *Workspace) DragEnd(at model.Coordinate) error {
	return w.run(ChangeLayers, func() error {
		if w.drag == nil {
			return ErrNoGesture
		}
		g := w.drag
		w.drag = nil
		return w.store.SetGeometry(g.LayerID, g.Apply(at))
	})
}

// BandStart begins a rubber-band selection.
func (w *Workspace) BandStart(at model.Coordinate) error {
	return w.run(ChangeSession, func() error {
		if w.session.Mode != core.ModeNone {
			return ErrDrawingActive
		}
		w.band = &model.RubberBand{Start: at, End: at}
		return nil
	})
}

// BandMove stretches the rubber band to at.
func (w *Workspace) BandMove(at model.Coordinate) error {
	return w.run(ChangeSession, func() error {
		if w.band == nil {
			return ErrNoGesture
		}
		w.band = &model.RubberBand{Start: w.band.Start, End: at}
		return nil
	})
}

// BandEnd closes the rubber band at at and zooms the camera onto it.
func (w *Workspace) BandEnd(at model.Coordinate) (model.Viewport, error) {
	var vp model.Viewport
	err := w.run(ChangeViewport, func() error {
		if w.band == nil {
			return ErrNoGesture
		}
		band := model.RubberBand{Start: w.band.Start, End: at}
		w.band = nil
		w.viewport = core.RubberBandZoom(w.viewport, band)
		vp = w.viewport
		return nil
	})
	return vp, err
}

// Focus centres the camera on a layer. ok is false, and the camera is
// unchanged, for a layer without geometry.
func (w *Workspace) Focus(id string) (vp model.Viewport, ok bool, err error) {
	err = w.run(ChangeViewport, func() error {
		layer, err := w.store.Get(id)
		if err != nil {
			return err
		}
		w.viewport, ok = core.FocusLayer(w.viewport, layer)
		vp = w.viewport
		return nil
	})
	return vp, ok, err
}

// SetViewport replaces the camera, clamping zoom.
func (w *Workspace) SetViewport(v model.Viewport) {
	v.Zoom = model.ClampZoom(v.Zoom)
	_ = w.run(ChangeViewport, func() error {
		w.viewport = v
		return nil
	})
}

// Viewport returns the current camera.
func (w *Workspace) Viewport() model.Viewport {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.viewport
}

// SetMapStyle records the base map style identifier.
func (w *Workspace) SetMapStyle(style string) {
	_ = w.run(ChangeViewport, func() error {
		w.mapStyle = style
		if w.saver != nil {
			w.saver.Trigger()
		}
		return nil
	})
}

// ApplyFeed swaps in the overlay built from snapshot. A nil or empty
// snapshot makes the overlay absent.
func (w *Workspace) ApplyFeed(ctx context.Context, snapshot model.FeedSnapshot) {
	ctx, span := observability.StartSpan(ctx, "Workspace.ApplyFeed",
		observability.WorkspaceID(w.sessionID.String()),
		observability.RecordCount(len(snapshot)),
	)
	defer span.End()

	overlay := core.BuildOverlay(snapshot)
	_ = w.run(ChangeOverlay, func() error {
		w.overlay = overlay
		if w.metrics != nil {
			w.metrics.ObserveFeed(overlay.Len())
		}
		return nil
	})
	w.log.Debug(ctx, "overlay updated", logging.Int("nodes", overlay.Len()))
}

// HitTest resolves a reported overlay position to its feed record.
func (w *Workspace) HitTest(at model.Coordinate) (model.NodeRecord, bool) {
	w.mu.Lock()
	overlay := w.overlay
	w.mu.Unlock()
	return overlay.HitTest(at)
}

// Import stores the layers built from the importer batches and returns
// their IDs. It is all-or-nothing: when any batch fails to convert or any
// layer is rejected by the store, layers added by this call are removed
// again and no IDs are returned.
func (w *Workspace) Import(ctx context.Context, batches ...core.ImportBatch) ([]string, error) {
	var (
		layers   []*model.Layer
		features int
	)
	for i, batch := range batches {
		ls, err := core.LayersFromBatch(batch)
		if err != nil {
			return nil, fmt.Errorf("batch %d: %w", i, err)
		}
		layers = append(layers, ls...)
		features += len(batch.Features)
	}

	var ids []string
	err := w.run(ChangeLayers, func() error {
		for _, l := range layers {
			id, err := w.store.Add(l)
			if err != nil {
				for _, added := range ids {
					_ = w.store.Remove(added)
				}
				ids = nil
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	w.log.Info(ctx, "layers imported",
		logging.Int("batches", len(batches)),
		logging.Int("layers", len(ids)),
		logging.Int("features", features),
	)
	return ids, nil
}

// Frame builds the render set for the current state.
func (w *Workspace) Frame() core.Frame {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frameLocked()
}

func (w *Workspace) frameLocked() core.Frame {
	return core.BuildFrame(core.FrameInput{
		Layers:  w.store.List(),
		Session: w.session,
		Band:    w.band,
		Overlay: w.overlay,
	})
}

// View captures everything a surface needs to redraw.
func (w *Workspace) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	v := View{
		Frame:       w.frameLocked(),
		Viewport:    w.viewport,
		Session:     w.session,
		Layers:      w.store.List(),
		GroupLabels: w.store.GroupLabels(),
		Collapsed:   w.store.Collapsed(),
		MapStyle:    w.mapStyle,
		OverlaySize: w.overlay.Len(),
	}
	if w.drag != nil {
		v.Dragging = w.drag.LayerID
	}
	if w.band != nil {
		b := *w.band
		v.Band = &b
	}
	return v
}
