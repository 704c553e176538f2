package core

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/mapdraw/model"
)

// DrawMode is the active drawing tool. ModeNone is both the initial state
// and the state between gestures.
type DrawMode string

const (
	ModeNone     DrawMode = "none"
	ModePoint    DrawMode = "point"
	ModePolygon  DrawMode = "polygon"
	ModeLine     DrawMode = "line"
	ModeSector   DrawMode = "sector"
	ModeDistance DrawMode = "distance"
	ModeArea     DrawMode = "area"
	ModeAzimuth  DrawMode = "azimuth"
)

// ParseDrawMode accepts the mode names used on the wire. An empty string
// is ModeNone.
func ParseDrawMode(s string) (DrawMode, error) {
	switch m := DrawMode(s); m {
	case "", ModeNone:
		return ModeNone, nil
	case ModePoint, ModePolygon, ModeLine, ModeSector, ModeDistance, ModeArea, ModeAzimuth:
		return m, nil
	}
	return ModeNone, fmt.Errorf("unknown draw mode %q", s)
}

// Kind is the layer kind a completed gesture in this mode produces.
func (m DrawMode) Kind() model.LayerKind {
	switch m {
	case ModePoint:
		return model.KindPoint
	case ModePolygon:
		return model.KindPolygon
	case ModeLine:
		return model.KindLine
	case ModeSector:
		return model.KindSector
	case ModeDistance:
		return model.KindDistance
	case ModeArea:
		return model.KindArea
	case ModeAzimuth:
		return model.KindAzimuth
	}
	panic(fmt.Sprintf("core: draw mode %q has no layer kind", string(m)))
}

// SectorDraft collects the sector parameters click by click. Each field
// is nil until its click arrives.
type SectorDraft struct {
	Center     *model.Coordinate `json:"center,omitempty"`
	Radius     *float64          `json:"radius,omitempty"`
	StartAngle *float64          `json:"startAngle,omitempty"`
}

// DrawingSession is the transient drawing state. Handlers are pure: they
// take a session by value and return the next one, never mutating the
// receiver's slices.
type DrawingSession struct {
	Mode           DrawMode           `json:"mode"`
	Vertices       []model.Coordinate `json:"vertices,omitempty"`
	Sector         SectorDraft        `json:"sector"`
	Cursor         *model.Coordinate  `json:"cursor,omitempty"`
	NearClosePoint bool               `json:"nearClosePoint"`
}

// Commit is a completed gesture, ready to be turned into a layer.
type Commit struct {
	Kind        model.LayerKind
	Geometry    model.Geometry
	Measurement string
}

// NewDrawingSession returns an idle session.
func NewDrawingSession() DrawingSession {
	return DrawingSession{Mode: ModeNone}
}

// Active reports whether a gesture has started accumulating state.
func (s DrawingSession) Active() bool {
	return len(s.Vertices) > 0 || s.Sector.Center != nil
}

// Start switches to mode, abandoning any unfinished gesture.
func (s DrawingSession) Start(mode DrawMode) DrawingSession {
	return DrawingSession{Mode: mode}
}

// Cancel clears vertices, sector and cursor unconditionally and returns
// to ModeNone.
func (s DrawingSession) Cancel() DrawingSession {
	return NewDrawingSession()
}

// Move records the pointer position for preview. In polygon and area
// modes with at least two vertices it re-evaluates the close-point test
// against the cursor; that flag is visual only.
func (s DrawingSession) Move(c model.Coordinate, zoom float64) DrawingSession {
	next := s
	cursor := c
	next.Cursor = &cursor
	next.NearClosePoint = false
	if s.Mode == ModePolygon || s.Mode == ModeArea {
		next.NearClosePoint = NearFirstVertex(s.Vertices, c, zoom)
	}
	return next
}

// Click advances the state machine with a click at c. zoom is the current
// map zoom, used by the polygon close test. A non-nil Commit is returned
// when the click completes a gesture; the session is then idle again.
func (s DrawingSession) Click(c model.Coordinate, zoom float64) (DrawingSession, *Commit) {
	switch s.Mode {
	case ModeNone:
		return s, nil
	case ModePoint:
		return NewDrawingSession(), &Commit{
			Kind:     model.KindPoint,
			Geometry: model.PointGeometry{c},
		}
	case ModeLine, ModeDistance, ModeAzimuth:
		return s.clickTwoPoint(c)
	case ModePolygon, ModeArea:
		return s.clickPolygon(c, zoom)
	case ModeSector:
		return s.clickSector(c)
	}
	panic(fmt.Sprintf("core: unhandled draw mode %q", string(s.Mode)))
}

func (s DrawingSession) appendVertex(c model.Coordinate) DrawingSession {
	next := s
	next.Vertices = make([]model.Coordinate, len(s.Vertices), len(s.Vertices)+1)
	copy(next.Vertices, s.Vertices)
	next.Vertices = append(next.Vertices, c)
	return next
}

func (s DrawingSession) clickTwoPoint(c model.Coordinate) (DrawingSession, *Commit) {
	next := s.appendVertex(c)
	if len(next.Vertices) < 2 {
		return next, nil
	}

	path := model.Path(next.Vertices)
	commit := &Commit{
		Kind:     s.Mode.Kind(),
		Geometry: model.PathGeometry{path},
	}
	switch s.Mode {
	case ModeDistance:
		commit.Measurement = FormatDistance(Distance(path[0], path[1]))
	case ModeAzimuth:
		commit.Measurement = FormatAngle(Azimuth(path[0], path[1]))
	}
	return NewDrawingSession(), commit
}

func (s DrawingSession) clickPolygon(c model.Coordinate, zoom float64) (DrawingSession, *Commit) {
	if !NearFirstVertex(s.Vertices, c, zoom) {
		next := s.appendVertex(c)
		next.NearClosePoint = false
		return next, nil
	}

	ring := make(model.Ring, 0, len(s.Vertices)+1)
	ring = append(ring, s.Vertices...)
	ring = append(ring, s.Vertices[0])

	commit := &Commit{
		Kind:     s.Mode.Kind(),
		Geometry: model.RingGeometry{ring},
	}
	if s.Mode == ModeArea {
		commit.Measurement = FormatArea(PolygonArea(ring))
	}
	return NewDrawingSession(), commit
}

func (s DrawingSession) clickSector(c model.Coordinate) (DrawingSession, *Commit) {
	next := s
	d := s.Sector

	switch {
	case d.Center == nil:
		center := c
		next.Sector = SectorDraft{Center: &center}
		return next, nil
	case d.Radius == nil:
		r := PlanarDistance(c, *d.Center)
		next.Sector = SectorDraft{Center: d.Center, Radius: &r}
		return next, nil
	case d.StartAngle == nil:
		a := PlanarAngle(*d.Center, c)
		next.Sector = SectorDraft{Center: d.Center, Radius: d.Radius, StartAngle: &a}
		return next, nil
	}

	end := PlanarAngle(*d.Center, c)
	ring := SectorPolygon(*d.Center, *d.Radius, *d.StartAngle, end)
	// The measurement is the raw angular difference, not the swept angle.
	sweep := math.Abs(toDegrees(end - *d.StartAngle))
	return NewDrawingSession(), &Commit{
		Kind:        model.KindSector,
		Geometry:    model.RingGeometry{ring},
		Measurement: FormatAngle(sweep),
	}
}

// Preview returns the in-progress geometry for rendering: the committed
// vertices followed by the cursor, if any.
func (s DrawingSession) Preview() []model.Coordinate {
	out := append([]model.Coordinate(nil), s.Vertices...)
	if s.Cursor != nil && len(out) > 0 {
		out = append(out, *s.Cursor)
	}
	return out
}

// SectorPreview returns the sector ring the next click would commit, using
// the cursor as the end angle. ok is false until centre, radius and start
// angle are known and a cursor exists.
func (s DrawingSession) SectorPreview() (ring model.Ring, ok bool) {
	d := s.Sector
	if s.Mode != ModeSector || d.Center == nil || d.Radius == nil || d.StartAngle == nil || s.Cursor == nil {
		return nil, false
	}
	return SectorPolygon(*d.Center, *d.Radius, *d.StartAngle, PlanarAngle(*d.Center, *s.Cursor)), true
}
