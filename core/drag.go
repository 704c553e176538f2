package core

import (
	"errors"
	"fmt"

	"github.com/signalsfoundry/mapdraw/model"
)

var (
	// ErrNotDraggable is returned when a drag starts on an uploaded layer.
	ErrNotDraggable = errors.New("layer is not draggable")
	// ErrNothingToDrag is returned for a layer without geometry.
	ErrNothingToDrag = errors.New("layer has no geometry to drag")
)

// DragGesture is one press-move-release translation of a drawn layer. It
// holds an immutable snapshot of the geometry at press time and the press
// coordinate; every move is computed from those, never from the live
// geometry, so replaying a move is idempotent.
type DragGesture struct {
	LayerID string
	Start   model.Coordinate

	snapshot model.Geometry
}

// BeginDrag captures a deep snapshot of layer's geometry.
func BeginDrag(layer *model.Layer, start model.Coordinate) (*DragGesture, error) {
	if layer == nil {
		return nil, fmt.Errorf("%w: nil layer", ErrNothingToDrag)
	}
	if !layer.Draggable() {
		return nil, fmt.Errorf("%w: %s has origin %s", ErrNotDraggable, layer.ID, layer.Origin)
	}
	if layer.Geometry == nil || layer.Geometry.Len() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNothingToDrag, layer.ID)
	}
	return &DragGesture{
		LayerID:  layer.ID,
		Start:    start,
		snapshot: layer.Geometry.Clone(),
	}, nil
}

// Apply returns the snapshot translated by current - Start.
func (g *DragGesture) Apply(current model.Coordinate) model.Geometry {
	dLng, dLat := current.Sub(g.Start)
	return g.snapshot.Translate(dLng, dLat)
}

// Snapshot returns a copy of the press-time geometry.
func (g *DragGesture) Snapshot() model.Geometry {
	return g.snapshot.Clone()
}
