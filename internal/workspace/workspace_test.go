package workspace

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/signalsfoundry/mapdraw/core"
	"github.com/signalsfoundry/mapdraw/internal/observability"
	"github.com/signalsfoundry/mapdraw/internal/persist"
	"github.com/signalsfoundry/mapdraw/kb"
	"github.com/signalsfoundry/mapdraw/model"
)

type countingSaver struct {
	mu sync.Mutex
	n  int
}

func (c *countingSaver) Trigger() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
}

func (c *countingSaver) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func pt(lng, lat float64) model.Coordinate { return model.Coordinate{Lng: lng, Lat: lat} }

func newTestWorkspace(t *testing.T) (*Workspace, *observability.Collector) {
	t.Helper()
	collector, err := observability.NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	return New(WithMetrics(collector)), collector
}

func TestDrawPolygonCommitsLabelledLayer(t *testing.T) {
	w, collector := newTestWorkspace(t)
	ctx := context.Background()

	w.SetMode(core.ModePolygon)
	for _, c := range []model.Coordinate{pt(0, 0), pt(1, 0), pt(1, 1)} {
		if l, err := w.Click(ctx, c); err != nil || l != nil {
			t.Fatalf("Click(%v) = %v, %v; want no commit", c, l, err)
		}
	}
	layer, err := w.Click(ctx, pt(0, 0))
	if err != nil {
		t.Fatalf("closing Click: %v", err)
	}
	if layer == nil {
		t.Fatalf("closing click did not commit")
	}
	if layer.Label != "Polygon 1" || layer.Origin != model.OriginDrawn || !layer.Visible {
		t.Fatalf("layer = %+v", layer)
	}
	ring := layer.Geometry.(model.RingGeometry)[0]
	if len(ring) != 4 || ring[0] != ring[3] {
		t.Fatalf("ring = %v, want closed 4-point ring", ring)
	}
	if w.View().Session.Mode != core.ModeNone {
		t.Fatalf("session not reset after commit")
	}

	w.SetMode(core.ModePolygon)
	for _, c := range []model.Coordinate{pt(5, 5), pt(6, 5), pt(6, 6), pt(5, 5)} {
		if _, err := w.Click(ctx, c); err != nil {
			t.Fatalf("Click: %v", err)
		}
	}
	layers := w.Store().List()
	if len(layers) != 2 || layers[1].Label != "Polygon 2" {
		t.Fatalf("second label = %q", layers[1].Label)
	}

	if got := testutil.ToFloat64(collector.Commits.WithLabelValues("polygon")); got != 2 {
		t.Fatalf("commits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.Layers.WithLabelValues("polygon", "drawn")); got != 2 {
		t.Fatalf("layer gauge = %v, want 2", got)
	}
}

func TestDrawDistanceMeasurement(t *testing.T) {
	w := New()
	ctx := context.Background()

	w.SetMode(core.ModeDistance)
	if _, err := w.Click(ctx, pt(0, 0)); err != nil {
		t.Fatalf("Click: %v", err)
	}
	layer, err := w.Click(ctx, pt(1, 0))
	if err != nil || layer == nil {
		t.Fatalf("Click = %v, %v", layer, err)
	}
	if layer.Measurement != "111.19 km" || layer.Label != "Distance 1" {
		t.Fatalf("layer = %q %q", layer.Label, layer.Measurement)
	}
}

func TestClickWithoutModeIsNoop(t *testing.T) {
	w := New()
	layer, err := w.Click(context.Background(), pt(1, 1))
	if err != nil || layer != nil {
		t.Fatalf("Click in none mode = %v, %v", layer, err)
	}
	if w.Store().Len() != 0 {
		t.Fatalf("store changed")
	}
}

func TestSwitchingModeAbandonsGesture(t *testing.T) {
	w := New()
	ctx := context.Background()

	w.SetMode(core.ModeLine)
	if _, err := w.Click(ctx, pt(0, 0)); err != nil {
		t.Fatalf("Click: %v", err)
	}
	w.SetMode(core.ModePolygon)
	if v := w.View(); len(v.Session.Vertices) != 0 || v.Session.Mode != core.ModePolygon {
		t.Fatalf("session = %+v", v.Session)
	}
	w.Move(pt(3, 3))
	w.Cancel()
	if v := w.View(); v.Session.Mode != core.ModeNone || v.Session.Cursor != nil {
		t.Fatalf("Cancel left %+v", v.Session)
	}
	if w.Store().Len() != 0 {
		t.Fatalf("abandoned gesture stored a layer")
	}
}

func TestDragTranslatesDrawnLayer(t *testing.T) {
	w := New()
	ctx := context.Background()

	w.SetMode(core.ModePoint)
	layer, err := w.Click(ctx, pt(10, 10))
	if err != nil {
		t.Fatalf("Click: %v", err)
	}

	if err := w.DragStart(layer.ID, pt(10, 10)); err != nil {
		t.Fatalf("DragStart: %v", err)
	}
	if w.View().Dragging != layer.ID {
		t.Fatalf("Dragging not reported")
	}
	for range 3 {
		if err := w.DragMove(pt(12, 11)); err != nil {
			t.Fatalf("DragMove: %v", err)
		}
	}
	if err := w.DragEnd(pt(13, 13)); err != nil {
		t.Fatalf("DragEnd: %v", err)
	}
	got, _ := w.Store().Get(layer.ID)
	if p := got.Geometry.(model.PointGeometry)[0]; p != pt(13, 13) {
		t.Fatalf("point = %v, want (13,13)", p)
	}
	if err := w.DragMove(pt(0, 0)); !errors.Is(err, ErrNoGesture) {
		t.Fatalf("DragMove after end err = %v", err)
	}
}

func TestDragRejectsUploadedAndActiveDrawing(t *testing.T) {
	w := New()
	ctx := context.Background()
	ids, err := w.Import(ctx, core.ImportBatch{
		Kind:     model.KindPoint,
		Features: []core.ImportFeature{{Parts: [][]model.Coordinate{{pt(1, 1)}}}},
	})
	if err != nil || len(ids) != 1 {
		t.Fatalf("Import = %v, %v", ids, err)
	}
	if err := w.DragStart(ids[0], pt(1, 1)); !errors.Is(err, core.ErrNotDraggable) {
		t.Fatalf("DragStart(uploaded) err = %v", err)
	}
	if err := w.DragStart("missing", pt(1, 1)); !errors.Is(err, kb.ErrLayerNotFound) {
		t.Fatalf("DragStart(missing) err = %v", err)
	}

	w.SetMode(core.ModeLine)
	if err := w.DragStart(ids[0], pt(1, 1)); !errors.Is(err, ErrDrawingActive) {
		t.Fatalf("DragStart while drawing err = %v", err)
	}
	if err := w.BandStart(pt(1, 1)); !errors.Is(err, ErrDrawingActive) {
		t.Fatalf("BandStart while drawing err = %v", err)
	}
}

func TestImportIsAllOrNothing(t *testing.T) {
	w := New()
	var changes int
	w.Subscribe(func(Change) { changes++ })

	good := core.ImportBatch{
		Kind:     model.KindPoint,
		Features: []core.ImportFeature{{Parts: [][]model.Coordinate{{pt(1, 1)}}}},
	}
	bad := core.ImportBatch{
		Kind:     model.KindSector,
		Features: []core.ImportFeature{{Parts: [][]model.Coordinate{{pt(0, 0), pt(1, 0), pt(1, 1)}}}},
	}
	ids, err := w.Import(context.Background(), good, bad)
	if !errors.Is(err, core.ErrUnsupportedImport) {
		t.Fatalf("Import err = %v, want ErrUnsupportedImport", err)
	}
	if ids != nil {
		t.Fatalf("Import ids = %v, want none", ids)
	}
	if n := len(w.Store().List()); n != 0 {
		t.Fatalf("store holds %d layers after a failed import, want 0", n)
	}
	if changes != 0 {
		t.Fatalf("failed import emitted %d changes", changes)
	}

	ids, err = w.Import(context.Background(), good, good)
	if err != nil || len(ids) != 2 {
		t.Fatalf("Import(good, good) = %v, %v", ids, err)
	}
}

func TestRemoveLayerDropsDrag(t *testing.T) {
	w := New()
	w.SetMode(core.ModePoint)
	layer, _ := w.Click(context.Background(), pt(0, 0))
	if err := w.DragStart(layer.ID, pt(0, 0)); err != nil {
		t.Fatalf("DragStart: %v", err)
	}
	if err := w.RemoveLayer(layer.ID); err != nil {
		t.Fatalf("RemoveLayer: %v", err)
	}
	if w.View().Dragging != "" {
		t.Fatalf("drag survived removal")
	}
}

func TestRubberBandZoom(t *testing.T) {
	w := New()
	w.SetViewport(model.Viewport{Zoom: 5, Pitch: 30, Bearing: 45})

	if _, err := w.BandEnd(pt(0, 0)); !errors.Is(err, ErrNoGesture) {
		t.Fatalf("BandEnd without start err = %v", err)
	}
	if err := w.BandStart(pt(0, 0)); err != nil {
		t.Fatalf("BandStart: %v", err)
	}
	if err := w.BandMove(pt(0.005, 0.005)); err != nil {
		t.Fatalf("BandMove: %v", err)
	}
	if v := w.View(); v.Band == nil || v.Band.End != pt(0.005, 0.005) {
		t.Fatalf("band = %+v", v.Band)
	}
	vp, err := w.BandEnd(pt(0.01, 0.01))
	if err != nil {
		t.Fatalf("BandEnd: %v", err)
	}
	if vp.Zoom != 14 || vp.Pitch != 30 || vp.Bearing != 45 || vp.Longitude != 0.005 {
		t.Fatalf("viewport = %+v", vp)
	}
	if w.View().Band != nil {
		t.Fatalf("band survived BandEnd")
	}
}

func TestFocus(t *testing.T) {
	w := New()
	w.SetMode(core.ModePoint)
	layer, _ := w.Click(context.Background(), pt(7, 8))

	vp, ok, err := w.Focus(layer.ID)
	if err != nil || !ok {
		t.Fatalf("Focus = %v, %v", ok, err)
	}
	if vp.Longitude != 7 || vp.Latitude != 8 || vp.Zoom != 15 {
		t.Fatalf("viewport = %+v", vp)
	}
	if w.Viewport() != vp {
		t.Fatalf("camera not updated")
	}
	if _, _, err := w.Focus("missing"); !errors.Is(err, kb.ErrLayerNotFound) {
		t.Fatalf("Focus(missing) err = %v", err)
	}
}

func TestApplyFeedSwapsOverlay(t *testing.T) {
	w, collector := newTestWorkspace(t)
	ctx := context.Background()

	w.ApplyFeed(ctx, model.FeedSnapshot{
		{ID: "a", Position: pt(1, 1), SignalMetric: 25, Connections: []string{"b"}},
		{ID: "b", Position: pt(2, 2), SignalMetric: 5},
	})
	if v := w.View(); v.OverlaySize != 2 {
		t.Fatalf("overlay size = %d", v.OverlaySize)
	}
	rec, ok := w.HitTest(pt(2, 2))
	if !ok || rec.ID != "b" {
		t.Fatalf("HitTest = %+v, %v", rec, ok)
	}
	if got := testutil.ToFloat64(collector.OverlayNodes); got != 2 {
		t.Fatalf("overlay gauge = %v", got)
	}

	w.ApplyFeed(ctx, nil)
	if _, ok := w.HitTest(pt(2, 2)); ok {
		t.Fatalf("HitTest found a node in an absent overlay")
	}
	if got := testutil.ToFloat64(collector.FeedUpdates.WithLabelValues("absent")); got != 1 {
		t.Fatalf("absent updates = %v", got)
	}
}

func TestFrameCombinesLayersPreviewAndOverlay(t *testing.T) {
	w := New()
	ctx := context.Background()
	w.SetMode(core.ModePoint)
	_, _ = w.Click(ctx, pt(0, 0))
	w.SetMode(core.ModeLine)
	_, _ = w.Click(ctx, pt(1, 1))
	w.Move(pt(2, 2))
	w.ApplyFeed(ctx, model.FeedSnapshot{{ID: "n", Position: pt(3, 3), SignalMetric: 1}})

	var roles []core.PrimitiveRole
	for _, p := range w.Frame().Primitives {
		roles = append(roles, p.Role)
	}
	want := []core.PrimitiveRole{core.RoleLayer, core.RolePreview, core.RoleOverlayNode}
	if len(roles) != len(want) {
		t.Fatalf("roles = %v, want %v", roles, want)
	}
	for i := range want {
		if roles[i] != want[i] {
			t.Fatalf("roles = %v, want %v", roles, want)
		}
	}
}

func TestLayerCommandsTriggerSave(t *testing.T) {
	w := New()
	saver := &countingSaver{}
	w.AttachSaver(saver)

	w.SetMode(core.ModePoint)
	layer, _ := w.Click(context.Background(), pt(0, 0))
	if err := w.SetVisible(layer.ID, false); err != nil {
		t.Fatalf("SetVisible: %v", err)
	}
	if err := w.RenameLayer(layer.ID, "Mast"); err != nil {
		t.Fatalf("RenameLayer: %v", err)
	}
	w.SetGroupLabel("g1", "Survey")
	w.SetMapStyle("dark")
	if got := saver.count(); got != 5 {
		t.Fatalf("save triggers = %d, want 5", got)
	}

	w.Move(pt(1, 1))
	w.SetViewport(model.Viewport{Zoom: 3})
	if got := saver.count(); got != 5 {
		t.Fatalf("non-layer commands triggered saves: %d", got)
	}
	if err := w.SetColor("missing", model.RGB{}); !errors.Is(err, kb.ErrLayerNotFound) {
		t.Fatalf("SetColor(missing) err = %v", err)
	}
}

func TestSubscribeReceivesChanges(t *testing.T) {
	w := New()
	var (
		mu  sync.Mutex
		got []Change
	)
	unsubscribe := w.Subscribe(func(c Change) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, c)
		// Listeners may read back.
		_ = w.View()
	})

	w.SetMode(core.ModePoint)
	_, _ = w.Click(context.Background(), pt(0, 0))
	w.ApplyFeed(context.Background(), nil)
	unsubscribe()
	w.Cancel()

	mu.Lock()
	defer mu.Unlock()
	want := []Change{ChangeSession, ChangeLayers, ChangeOverlay}
	if len(got) != len(want) {
		t.Fatalf("changes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("changes = %v, want %v", got, want)
		}
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	src := New(WithMapStyle("satellite"))
	ctx := context.Background()
	src.SetMode(core.ModeArea)
	for _, c := range []model.Coordinate{pt(0, 0), pt(1, 0), pt(1, 1), pt(0, 0)} {
		if _, err := src.Click(ctx, c); err != nil {
			t.Fatalf("Click: %v", err)
		}
	}
	src.SetGroupLabel("g", "Site A")
	src.SetCollapsed("uploaded", true)
	src.SetViewport(model.Viewport{Longitude: 3, Latitude: 4, Zoom: 9})

	store := persist.NewMemoryStore()
	if err := store.Save(ctx, src.Snapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	snap, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	dst := New()
	dst.SetMode(core.ModeLine)
	if err := dst.LoadSnapshot(ctx, snap); err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	v := dst.View()
	if len(v.Layers) != 1 || v.Layers[0].Kind != model.KindArea || v.Layers[0].Measurement == "" {
		t.Fatalf("layers = %+v", v.Layers)
	}
	if v.GroupLabels["g"] != "Site A" || !v.Collapsed["uploaded"] {
		t.Fatalf("groups = %v %v", v.GroupLabels, v.Collapsed)
	}
	if v.Viewport.Zoom != 9 || v.MapStyle != "satellite" {
		t.Fatalf("viewport/style = %+v %q", v.Viewport, v.MapStyle)
	}
	if v.Session.Mode != core.ModeNone {
		t.Fatalf("load did not reset the drawing session")
	}
}

func TestLoadSnapshotAbsentPiecesUntouched(t *testing.T) {
	w := New(WithMapStyle("streets"))
	w.SetMode(core.ModePoint)
	_, _ = w.Click(context.Background(), pt(0, 0))
	w.SetViewport(model.Viewport{Zoom: 6})

	zoom := model.Viewport{Zoom: 50}
	if err := w.LoadSnapshot(context.Background(), &persist.Snapshot{Viewport: &zoom}); err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	v := w.View()
	if len(v.Layers) != 1 || v.MapStyle != "streets" {
		t.Fatalf("absent pieces changed: %d layers, style %q", len(v.Layers), v.MapStyle)
	}
	if v.Viewport.Zoom != model.MaxZoom {
		t.Fatalf("zoom = %v, want clamped %v", v.Viewport.Zoom, model.MaxZoom)
	}

	if err := w.LoadSnapshot(context.Background(), &persist.Snapshot{Layers: []*model.Layer{}}); err != nil {
		t.Fatalf("LoadSnapshot(empty): %v", err)
	}
	if w.Store().Len() != 0 {
		t.Fatalf("empty layer list did not replace the store")
	}
}

func TestLoadSnapshotInvalidLeavesStateUntouched(t *testing.T) {
	w := New()
	w.SetMode(core.ModePoint)
	_, _ = w.Click(context.Background(), pt(0, 0))

	bad := &persist.Snapshot{Layers: []*model.Layer{{Kind: model.KindPolygon, Origin: model.OriginDrawn}}}
	if err := w.LoadSnapshot(context.Background(), bad); !errors.Is(err, kb.ErrEmptyGeometry) {
		t.Fatalf("LoadSnapshot err = %v, want ErrEmptyGeometry", err)
	}
	if w.Store().Len() != 1 {
		t.Fatalf("store changed on failed load")
	}
}
