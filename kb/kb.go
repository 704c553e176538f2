package kb

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/signalsfoundry/mapdraw/model"
)

var (
	ErrLayerNotFound = errors.New("layer not found")
	ErrLayerExists   = errors.New("layer already exists")
	ErrInvalidKind   = errors.New("invalid layer kind")
	ErrEmptyGeometry = errors.New("layer geometry is empty")
	ErrShapeMismatch = errors.New("geometry shape does not match layer kind")
	ErrOpenRing      = errors.New("ring is not closed")
	ErrInvalidStyle  = errors.New("invalid style value")
)

// EventType indicates what kind of change happened in the store.
type EventType int

const (
	EventLayerAdded EventType = iota
	EventLayerUpdated
	EventLayerRemoved
	EventLayersReordered
	EventGroupsUpdated
	EventReplaced
)

func (t EventType) String() string {
	switch t {
	case EventLayerAdded:
		return "added"
	case EventLayerUpdated:
		return "updated"
	case EventLayerRemoved:
		return "removed"
	case EventLayersReordered:
		return "reordered"
	case EventGroupsUpdated:
		return "groups"
	case EventReplaced:
		return "replaced"
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

// Event is emitted to subscribers after every successful mutation.
// Layer is a copy of the affected layer; nil for removals and for
// store-wide events.
type Event struct {
	Type    EventType
	LayerID string
	Layer   *model.Layer
}

// Option configures a LayerStore.
type Option func(*LayerStore)

// WithClock overrides the time source used for layer IDs.
func WithClock(now func() time.Time) Option {
	return func(s *LayerStore) {
		if now != nil {
			s.now = now
		}
	}
}

// LayerStore is the ordered, thread-safe collection of annotation layers
// plus the organisational state around them (group labels and collapsed
// sidebar sections). Layers handed in and out are copies.
type LayerStore struct {
	mu sync.RWMutex

	order  []string
	layers map[string]*model.Layer

	groupLabels map[string]string
	collapsed   map[string]bool

	counter uint64
	now     func() time.Time

	subs    map[int]func(Event)
	nextSub int
}

// NewLayerStore constructs an empty store.
func NewLayerStore(opts ...Option) *LayerStore {
	s := &LayerStore{
		layers:      make(map[string]*model.Layer),
		groupLabels: make(map[string]string),
		collapsed:   make(map[string]bool),
		now:         time.Now,
		subs:        make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// nextIDLocked returns <kind>-<unix-millis>-<counter>. Callers hold mu.
func (s *LayerStore) nextIDLocked(kind model.LayerKind) string {
	s.counter++
	return fmt.Sprintf("%s-%d-%d", kind, s.now().UnixMilli(), s.counter)
}

// Validate checks the structural invariants every stored layer satisfies.
func Validate(l *model.Layer) error {
	if l == nil {
		return fmt.Errorf("%w: nil layer", ErrEmptyGeometry)
	}
	if !l.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, l.Kind)
	}
	if l.Origin != model.OriginDrawn && l.Origin != model.OriginUploaded {
		return fmt.Errorf("%w: origin %q", ErrInvalidKind, l.Origin)
	}
	return validateGeometry(l.Kind, l.Geometry)
}

func validateGeometry(kind model.LayerKind, g model.Geometry) error {
	if g == nil || g.Len() == 0 {
		return fmt.Errorf("%w: %s layer", ErrEmptyGeometry, kind)
	}
	if g.Shape() != kind.Shape() {
		return fmt.Errorf("%w: %s layer with %s geometry", ErrShapeMismatch, kind, g.Shape())
	}
	switch geom := g.(type) {
	case model.PointGeometry:
	case model.RingGeometry:
		for i, r := range geom {
			if !r.Closed() {
				return fmt.Errorf("%w: ring %d of %s layer", ErrOpenRing, i, kind)
			}
		}
	case model.PathGeometry:
		for i, p := range geom {
			if len(p) == 0 {
				return fmt.Errorf("%w: path %d of %s layer", ErrEmptyGeometry, i, kind)
			}
		}
	default:
		panic(fmt.Sprintf("kb: unhandled geometry %T", g))
	}
	return nil
}

// Add validates and appends a copy of l. An empty ID is assigned by the
// store; the assigned ID is returned.
func (s *LayerStore) Add(l *model.Layer) (string, error) {
	if err := Validate(l); err != nil {
		return "", err
	}
	cp := l.Clone()

	s.mu.Lock()
	if cp.ID == "" {
		cp.ID = s.nextIDLocked(cp.Kind)
	}
	if _, exists := s.layers[cp.ID]; exists {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %q", ErrLayerExists, cp.ID)
	}
	s.layers[cp.ID] = cp
	s.order = append(s.order, cp.ID)
	event := Event{Type: EventLayerAdded, LayerID: cp.ID, Layer: cp.Clone()}
	subs := s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, event)
	return cp.ID, nil
}

// Get returns a copy of the layer with the given ID.
func (s *LayerStore) Get(id string) (*model.Layer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.layers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrLayerNotFound, id)
	}
	return l.Clone(), nil
}

// List returns copies of every layer in display order.
func (s *LayerStore) List() []*model.Layer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]*model.Layer, 0, len(s.order))
	for _, id := range s.order {
		res = append(res, s.layers[id].Clone())
	}
	return res
}

// Len is the number of stored layers.
func (s *LayerStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// CountByKind reports how many layers of each kind and origin are stored.
func (s *LayerStore) CountByKind() map[model.LayerKind]map[model.Origin]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[model.LayerKind]map[model.Origin]int)
	for _, l := range s.layers {
		if out[l.Kind] == nil {
			out[l.Kind] = make(map[model.Origin]int)
		}
		out[l.Kind][l.Origin]++
	}
	return out
}

// Remove deletes the layer with the given ID.
func (s *LayerStore) Remove(id string) error {
	s.mu.Lock()
	if _, ok := s.layers[id]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrLayerNotFound, id)
	}
	delete(s.layers, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	subs := s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, Event{Type: EventLayerRemoved, LayerID: id})
	return nil
}

// MoveTo repositions a layer in display order. index is clamped to the
// valid range.
func (s *LayerStore) MoveTo(id string, index int) error {
	s.mu.Lock()
	from := -1
	for i, oid := range s.order {
		if oid == id {
			from = i
			break
		}
	}
	if from < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrLayerNotFound, id)
	}
	rest := append(append([]string(nil), s.order[:from]...), s.order[from+1:]...)
	index = max(0, min(index, len(rest)))
	order := make([]string, 0, len(s.order))
	order = append(order, rest[:index]...)
	order = append(order, id)
	order = append(order, rest[index:]...)
	s.order = order
	subs := s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, Event{Type: EventLayersReordered, LayerID: id})
	return nil
}

// update applies fn to the stored layer under the write lock and notifies
// subscribers with the result.
func (s *LayerStore) update(id string, fn func(*model.Layer) error) error {
	s.mu.Lock()
	l, ok := s.layers[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrLayerNotFound, id)
	}
	if err := fn(l); err != nil {
		s.mu.Unlock()
		return err
	}
	event := Event{Type: EventLayerUpdated, LayerID: id, Layer: l.Clone()}
	subs := s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, event)
	return nil
}

func (s *LayerStore) SetVisible(id string, visible bool) error {
	return s.update(id, func(l *model.Layer) error {
		l.Visible = visible
		return nil
	})
}

func (s *LayerStore) SetColor(id string, c model.RGB) error {
	return s.update(id, func(l *model.Layer) error {
		l.Style.Color = c
		return nil
	})
}

func (s *LayerStore) Rename(id, label string) error {
	return s.update(id, func(l *model.Layer) error {
		l.Label = label
		return nil
	})
}

// SetGroup moves a layer into a folder. The empty group is the root.
func (s *LayerStore) SetGroup(id, group string) error {
	return s.update(id, func(l *model.Layer) error {
		l.Group = group
		return nil
	})
}

func (s *LayerStore) SetIcon(id, icon string) error {
	return s.update(id, func(l *model.Layer) error {
		l.Style.Icon = icon
		return nil
	})
}

func (s *LayerStore) SetIconKind(id, kind string) error {
	return s.update(id, func(l *model.Layer) error {
		l.Style.IconKind = kind
		return nil
	})
}

func (s *LayerStore) SetPointMode(id string, mode model.PointMode) error {
	if mode != model.PointModeCircle && mode != model.PointModeIcon {
		return fmt.Errorf("%w: point mode %q", ErrInvalidStyle, mode)
	}
	return s.update(id, func(l *model.Layer) error {
		l.Style.PointMode = mode
		return nil
	})
}

// SetRadius sets the pixel radius of a point layer.
func (s *LayerStore) SetRadius(id string, radius float64) error {
	if !(radius > 0) {
		return fmt.Errorf("%w: radius %v", ErrInvalidStyle, radius)
	}
	return s.update(id, func(l *model.Layer) error {
		if l.Kind != model.KindPoint {
			return fmt.Errorf("%w: radius on %s layer", ErrInvalidStyle, l.Kind)
		}
		l.Style.Radius = radius
		return nil
	})
}

// SetGeometry replaces a layer's geometry, e.g. on every drag move. The
// new geometry must satisfy the same invariants as on Add.
func (s *LayerStore) SetGeometry(id string, g model.Geometry) error {
	return s.update(id, func(l *model.Layer) error {
		if err := validateGeometry(l.Kind, g); err != nil {
			return err
		}
		l.Geometry = g.Clone()
		return nil
	})
}

// SetGroupLabel names a folder. An empty label removes the entry.
func (s *LayerStore) SetGroupLabel(group, label string) {
	s.mu.Lock()
	if label == "" {
		delete(s.groupLabels, group)
	} else {
		s.groupLabels[group] = label
	}
	subs := s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, Event{Type: EventGroupsUpdated})
}

// SetCollapsed records whether a sidebar section is collapsed.
func (s *LayerStore) SetCollapsed(section string, collapsed bool) {
	s.mu.Lock()
	if collapsed {
		s.collapsed[section] = true
	} else {
		delete(s.collapsed, section)
	}
	subs := s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, Event{Type: EventGroupsUpdated})
}

func (s *LayerStore) GroupLabels() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.groupLabels))
	for k, v := range s.groupLabels {
		out[k] = v
	}
	return out
}

func (s *LayerStore) Collapsed() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool, len(s.collapsed))
	for k, v := range s.collapsed {
		out[k] = v
	}
	return out
}

// Replace swaps the whole store content, as on loading a snapshot. Every
// layer is validated first; on error the store is left untouched. Layers
// without an ID get one. A nil labels or collapsed map leaves that piece
// unchanged.
func (s *LayerStore) Replace(layers []*model.Layer, labels map[string]string, collapsed map[string]bool) error {
	for i, l := range layers {
		if err := Validate(l); err != nil {
			return fmt.Errorf("layer %d: %w", i, err)
		}
	}

	s.mu.Lock()
	next := make(map[string]*model.Layer, len(layers))
	order := make([]string, 0, len(layers))
	for _, l := range layers {
		cp := l.Clone()
		if cp.ID == "" {
			cp.ID = s.nextIDLocked(cp.Kind)
		}
		if _, dup := next[cp.ID]; dup {
			s.mu.Unlock()
			return fmt.Errorf("%w: %q", ErrLayerExists, cp.ID)
		}
		next[cp.ID] = cp
		order = append(order, cp.ID)
	}
	s.layers = next
	s.order = order
	if labels != nil {
		s.groupLabels = make(map[string]string, len(labels))
		for k, v := range labels {
			s.groupLabels[k] = v
		}
	}
	if collapsed != nil {
		s.collapsed = make(map[string]bool, len(collapsed))
		for k, v := range collapsed {
			if v {
				s.collapsed[k] = true
			}
		}
	}
	subs := s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, Event{Type: EventReplaced})
	return nil
}

// Subscribe registers a callback for store events. It returns an
// unsubscribe function; calling it more than once is harmless.
func (s *LayerStore) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *LayerStore) subscribersLocked() []func(Event) {
	if len(s.subs) == 0 {
		return nil
	}
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	// Registration order.
	slices.Sort(ids)
	out := make([]func(Event), len(ids))
	for i, id := range ids {
		out[i] = s.subs[id]
	}
	return out
}

// notify runs outside the lock so subscribers may call back into the store.
func notify(subs []func(Event), e Event) {
	for _, sub := range subs {
		sub(e)
	}
}
