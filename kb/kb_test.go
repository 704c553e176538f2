package kb

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/mapdraw/model"
)

func pt(lng, lat float64) model.Coordinate { return model.Coordinate{Lng: lng, Lat: lat} }

func pointLayer(id string) *model.Layer {
	return &model.Layer{
		ID:       id,
		Kind:     model.KindPoint,
		Origin:   model.OriginDrawn,
		Visible:  true,
		Geometry: model.PointGeometry{pt(1, 2)},
	}
}

func polygonLayer(id string) *model.Layer {
	return &model.Layer{
		ID:       id,
		Kind:     model.KindPolygon,
		Origin:   model.OriginDrawn,
		Visible:  true,
		Geometry: model.RingGeometry{{pt(0, 0), pt(1, 0), pt(1, 1), pt(0, 0)}},
	}
}

func TestAddAndGetLayer(t *testing.T) {
	store := NewLayerStore()
	id, err := store.Add(pointLayer("p1"))
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if id != "p1" {
		t.Fatalf("Add id = %q, want p1", id)
	}
	got, err := store.Get("p1")
	if err != nil || got.Kind != model.KindPoint {
		t.Fatalf("Get returned %#v, %v", got, err)
	}
}

func TestAddAssignsIDs(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	store := NewLayerStore(WithClock(func() time.Time { return now }))

	a, err := store.Add(pointLayer(""))
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}
	b, _ := store.Add(polygonLayer(""))
	if a != "point-1700000000123-1" {
		t.Fatalf("first id = %q", a)
	}
	if b != "polygon-1700000000123-2" {
		t.Fatalf("second id = %q", b)
	}
}

func TestAddDuplicate(t *testing.T) {
	store := NewLayerStore()
	if _, err := store.Add(pointLayer("p1")); err != nil {
		t.Fatalf("first Add error: %v", err)
	}
	if _, err := store.Add(pointLayer("p1")); !errors.Is(err, ErrLayerExists) {
		t.Fatalf("duplicate Add err = %v, want ErrLayerExists", err)
	}
}

func TestAddValidation(t *testing.T) {
	cases := []struct {
		name  string
		layer *model.Layer
		want  error
	}{
		{"empty", &model.Layer{Kind: model.KindLine, Origin: model.OriginDrawn, Geometry: model.PathGeometry{}}, ErrEmptyGeometry},
		{"nil geometry", &model.Layer{Kind: model.KindPoint, Origin: model.OriginDrawn}, ErrEmptyGeometry},
		{"shape", &model.Layer{Kind: model.KindPolygon, Origin: model.OriginDrawn, Geometry: model.PathGeometry{{pt(0, 0), pt(1, 1)}}}, ErrShapeMismatch},
		{"open ring", &model.Layer{Kind: model.KindArea, Origin: model.OriginDrawn, Geometry: model.RingGeometry{{pt(0, 0), pt(1, 0), pt(1, 1)}}}, ErrOpenRing},
		{"kind", &model.Layer{Kind: "circle", Origin: model.OriginDrawn, Geometry: model.PointGeometry{pt(0, 0)}}, ErrInvalidKind},
		{"empty path", &model.Layer{Kind: model.KindLine, Origin: model.OriginDrawn, Geometry: model.PathGeometry{{}}}, ErrEmptyGeometry},
	}
	store := NewLayerStore()
	for _, tc := range cases {
		if _, err := store.Add(tc.layer); !errors.Is(err, tc.want) {
			t.Errorf("%s: err = %v, want %v", tc.name, err, tc.want)
		}
	}
	if store.Len() != 0 {
		t.Fatalf("invalid layers were stored: %d", store.Len())
	}
}

func TestStoreCopiesLayers(t *testing.T) {
	store := NewLayerStore()
	l := polygonLayer("a")
	store.Add(l)

	l.Geometry.(model.RingGeometry)[0][1] = pt(9, 9)
	got, _ := store.Get("a")
	if got.Geometry.(model.RingGeometry)[0][1] != pt(1, 0) {
		t.Fatalf("store aliases caller's geometry")
	}

	got.Label = "changed"
	again, _ := store.Get("a")
	if again.Label == "changed" {
		t.Fatalf("Get returned the stored pointer")
	}
}

func TestListKeepsInsertionOrder(t *testing.T) {
	store := NewLayerStore()
	for i := range 3 {
		if _, err := store.Add(pointLayer(fmt.Sprintf("p-%d", i))); err != nil {
			t.Fatalf("Add error: %v", err)
		}
	}
	var ids []string
	for _, l := range store.List() {
		ids = append(ids, l.ID)
	}
	if got := strings.Join(ids, ","); got != "p-0,p-1,p-2" {
		t.Fatalf("List order = %s", got)
	}
}

func TestMoveTo(t *testing.T) {
	store := NewLayerStore()
	for _, id := range []string{"a", "b", "c", "d"} {
		store.Add(pointLayer(id))
	}
	order := func() string {
		var ids []string
		for _, l := range store.List() {
			ids = append(ids, l.ID)
		}
		return strings.Join(ids, "")
	}

	if err := store.MoveTo("d", 0); err != nil {
		t.Fatalf("MoveTo error: %v", err)
	}
	if got := order(); got != "dabc" {
		t.Fatalf("order = %s, want dabc", got)
	}
	store.MoveTo("d", 99)
	if got := order(); got != "abcd" {
		t.Fatalf("order = %s, want abcd", got)
	}
	store.MoveTo("a", 2)
	if got := order(); got != "bcad" {
		t.Fatalf("order = %s, want bcad", got)
	}
	if err := store.MoveTo("zz", 0); !errors.Is(err, ErrLayerNotFound) {
		t.Fatalf("MoveTo(missing) err = %v", err)
	}
}

func TestRemove(t *testing.T) {
	store := NewLayerStore()
	store.Add(pointLayer("a"))
	store.Add(pointLayer("b"))
	if err := store.Remove("a"); err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	if _, err := store.Get("a"); !errors.Is(err, ErrLayerNotFound) {
		t.Fatalf("Get after Remove err = %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("Len = %d, want 1", store.Len())
	}
	if err := store.Remove("a"); !errors.Is(err, ErrLayerNotFound) {
		t.Fatalf("second Remove err = %v", err)
	}
}

func TestSingleFieldSetters(t *testing.T) {
	store := NewLayerStore()
	store.Add(pointLayer("p"))

	steps := []error{
		store.SetVisible("p", false),
		store.SetColor("p", model.RGB{1, 2, 3}),
		store.Rename("p", "Tower"),
		store.SetGroup("p", "sites"),
		store.SetIcon("p", "antenna"),
		store.SetIconKind("p", "square"),
		store.SetPointMode("p", model.PointModeIcon),
		store.SetRadius("p", 9),
	}
	for i, err := range steps {
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	got, _ := store.Get("p")
	if got.Visible || got.Label != "Tower" || got.Group != "sites" {
		t.Fatalf("layer = %+v", got)
	}
	want := model.Style{Color: model.RGB{1, 2, 3}, Icon: "antenna", IconKind: "square", PointMode: model.PointModeIcon, Radius: 9}
	if got.Style != want {
		t.Fatalf("style = %+v, want %+v", got.Style, want)
	}
	if got.Kind != model.KindPoint || got.Origin != model.OriginDrawn {
		t.Fatalf("immutable fields changed: %+v", got)
	}
}

func TestSetterErrors(t *testing.T) {
	store := NewLayerStore()
	store.Add(polygonLayer("poly"))

	if err := store.Rename("missing", "x"); !errors.Is(err, ErrLayerNotFound) {
		t.Fatalf("Rename(missing) err = %v", err)
	}
	if err := store.SetPointMode("poly", "sparkle"); !errors.Is(err, ErrInvalidStyle) {
		t.Fatalf("SetPointMode(bad) err = %v", err)
	}
	if err := store.SetRadius("poly", 4); !errors.Is(err, ErrInvalidStyle) {
		t.Fatalf("SetRadius(polygon) err = %v", err)
	}
	if err := store.SetRadius("poly", -1); !errors.Is(err, ErrInvalidStyle) {
		t.Fatalf("SetRadius(-1) err = %v", err)
	}
}

func TestSetGeometryValidates(t *testing.T) {
	store := NewLayerStore()
	store.Add(polygonLayer("poly"))

	moved := model.RingGeometry{{pt(5, 5), pt(6, 5), pt(6, 6), pt(5, 5)}}
	if err := store.SetGeometry("poly", moved); err != nil {
		t.Fatalf("SetGeometry error: %v", err)
	}
	if err := store.SetGeometry("poly", model.RingGeometry{{pt(0, 0), pt(1, 1)}}); !errors.Is(err, ErrOpenRing) {
		t.Fatalf("SetGeometry(open) err = %v", err)
	}
	if err := store.SetGeometry("poly", model.PointGeometry{pt(0, 0)}); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("SetGeometry(points) err = %v", err)
	}
	got, _ := store.Get("poly")
	if got.Geometry.(model.RingGeometry)[0][0] != pt(5, 5) {
		t.Fatalf("geometry = %v", got.Geometry)
	}
}

func TestGroupLabelsAndCollapsed(t *testing.T) {
	store := NewLayerStore()
	store.SetGroupLabel("g1", "Survey")
	store.SetGroupLabel("g2", "Temp")
	store.SetGroupLabel("g2", "")
	store.SetCollapsed("uploaded", true)
	store.SetCollapsed("drawn", true)
	store.SetCollapsed("drawn", false)

	labels := store.GroupLabels()
	if len(labels) != 1 || labels["g1"] != "Survey" {
		t.Fatalf("labels = %v", labels)
	}
	collapsed := store.Collapsed()
	if len(collapsed) != 1 || !collapsed["uploaded"] {
		t.Fatalf("collapsed = %v", collapsed)
	}

	labels["g1"] = "mutated"
	if store.GroupLabels()["g1"] != "Survey" {
		t.Fatalf("GroupLabels returned internal map")
	}
}

func TestReplace(t *testing.T) {
	store := NewLayerStore()
	store.Add(pointLayer("old"))
	store.SetGroupLabel("g", "Keep")

	err := store.Replace([]*model.Layer{polygonLayer("n1"), pointLayer("")}, nil, map[string]bool{"x": true})
	if err != nil {
		t.Fatalf("Replace error: %v", err)
	}
	list := store.List()
	if len(list) != 2 || list[0].ID != "n1" || list[1].ID == "" {
		t.Fatalf("List after Replace = %v", list)
	}
	if store.GroupLabels()["g"] != "Keep" {
		t.Fatalf("nil labels should leave labels untouched")
	}
	if !store.Collapsed()["x"] {
		t.Fatalf("collapsed not replaced")
	}
}

func TestReplaceIsAllOrNothing(t *testing.T) {
	store := NewLayerStore()
	store.Add(pointLayer("keep"))

	bad := &model.Layer{Kind: model.KindPolygon, Origin: model.OriginDrawn, Geometry: model.RingGeometry{{pt(0, 0), pt(1, 1), pt(2, 0)}}}
	if err := store.Replace([]*model.Layer{polygonLayer("ok"), bad}, nil, nil); !errors.Is(err, ErrOpenRing) {
		t.Fatalf("Replace err = %v, want ErrOpenRing", err)
	}
	if err := store.Replace([]*model.Layer{pointLayer("dup"), pointLayer("dup")}, nil, nil); !errors.Is(err, ErrLayerExists) {
		t.Fatalf("Replace dup err = %v, want ErrLayerExists", err)
	}
	if list := store.List(); len(list) != 1 || list[0].ID != "keep" {
		t.Fatalf("store changed after failed Replace: %v", list)
	}
}

func TestCountByKind(t *testing.T) {
	store := NewLayerStore()
	store.Add(pointLayer("a"))
	up := pointLayer("b")
	up.Origin = model.OriginUploaded
	store.Add(up)
	store.Add(polygonLayer("c"))

	counts := store.CountByKind()
	if counts[model.KindPoint][model.OriginDrawn] != 1 || counts[model.KindPoint][model.OriginUploaded] != 1 {
		t.Fatalf("point counts = %v", counts[model.KindPoint])
	}
	if counts[model.KindPolygon][model.OriginDrawn] != 1 {
		t.Fatalf("polygon counts = %v", counts[model.KindPolygon])
	}
}

func TestSubscribe(t *testing.T) {
	store := NewLayerStore()

	var (
		mu     sync.Mutex
		events []Event
	)
	unsub := store.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	})

	store.Add(pointLayer("p1"))
	store.SetVisible("p1", false)
	store.Remove("p1")

	mu.Lock()
	if len(events) != 3 {
		mu.Unlock()
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].Type != EventLayerAdded || events[0].Layer == nil || events[0].LayerID != "p1" {
		t.Fatalf("first event = %+v", events[0])
	}
	if events[1].Type != EventLayerUpdated || events[1].Layer.Visible {
		t.Fatalf("second event = %+v", events[1])
	}
	if events[2].Type != EventLayerRemoved || events[2].Layer != nil {
		t.Fatalf("third event = %+v", events[2])
	}
	mu.Unlock()

	unsub()
	unsub()
	store.Add(pointLayer("p2"))
	mu.Lock()
	defer mu.Unlock()
	if len(events) != 3 {
		t.Fatalf("events after unsubscribe = %d, want 3", len(events))
	}
}

func TestSubscriberMayReadStore(t *testing.T) {
	store := NewLayerStore()
	var seen int
	store.Subscribe(func(Event) {
		// Notification happens outside the lock.
		seen = store.Len()
	})
	store.Add(pointLayer("a"))
	if seen != 1 {
		t.Fatalf("subscriber saw Len = %d, want 1", seen)
	}
}

func TestFailedMutationDoesNotNotify(t *testing.T) {
	store := NewLayerStore()
	store.Add(polygonLayer("poly"))
	called := false
	store.Subscribe(func(Event) { called = true })
	_ = store.SetRadius("poly", 3)
	_ = store.Rename("missing", "x")
	if called {
		t.Fatalf("subscriber notified for a failed mutation")
	}
}
